package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/loyalcart/api/internal/platform/requestctx"
)

func TestParseCloudTraceContext(t *testing.T) {
	traceID := "105445aa7843bc8bf206b12000100000"

	info, spanCtx, ok := parseCloudTraceContext(traceID + "/a3bf2;o=1")
	if !ok {
		t.Fatal("expected header to parse")
	}
	if info.TraceID != traceID {
		t.Fatalf("expected trace id %s, got %s", traceID, info.TraceID)
	}
	if !info.Sampled {
		t.Fatal("expected sampled flag set")
	}
	if !spanCtx.IsRemote() || !spanCtx.IsSampled() {
		t.Fatalf("expected remote sampled span context, got %+v", spanCtx)
	}

	// Decimal span IDs appear in headers sent by older Google frontends.
	if _, spanCtx, ok = parseCloudTraceContext(traceID + "/123456789;o=0"); !ok {
		t.Fatal("expected decimal span id to parse")
	} else if !spanCtx.SpanID().IsValid() {
		t.Fatal("expected valid span id from decimal encoding")
	}

	for _, header := range []string{"", "garbage", "short/1;o=1", traceID} {
		if _, _, ok := parseCloudTraceContext(header); ok {
			t.Fatalf("expected header %q to be rejected", header)
		}
	}
}

func TestTraceMiddlewarePropagatesSpanContext(t *testing.T) {
	traceID := "105445aa7843bc8bf206b12000100000"

	var gotInfo requestctx.TraceInfo
	var spanValid bool
	handler := TraceMiddleware("demo-project")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotInfo, _ = requestctx.Trace(r.Context())
		spanValid = trace.SpanContextFromContext(r.Context()).TraceID().IsValid()
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/products", nil)
	req.Header.Set("X-Cloud-Trace-Context", traceID+"/a3bf2;o=1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotInfo.TraceID != traceID {
		t.Fatalf("expected inbound trace id carried through, got %s", gotInfo.TraceID)
	}
	if gotInfo.ProjectID != "demo-project" {
		t.Fatalf("expected project id recorded, got %s", gotInfo.ProjectID)
	}
	if !spanValid {
		t.Fatal("expected a span context on the request context")
	}
	if echoed := rec.Header().Get("X-Cloud-Trace-Context"); echoed == "" {
		t.Fatal("expected trace header echoed on the response")
	}
}
