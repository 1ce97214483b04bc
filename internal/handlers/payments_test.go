package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/loyalcart/api/internal/domain"
	"github.com/loyalcart/api/internal/platform/auth"
	"github.com/loyalcart/api/internal/services"
)

type stubPaymentService struct {
	webhookFn func(context.Context, services.WebhookCommand) error
	confirmFn func(context.Context, services.ConfirmOrderCommand) (services.Order, error)
	verifyFn  func(context.Context, services.VerifySessionCommand) (services.SessionVerification, error)
	refundFn  func(context.Context, services.RefundCommand) (services.Order, error)
}

func (s *stubPaymentService) HandleWebhook(ctx context.Context, cmd services.WebhookCommand) error {
	if s.webhookFn != nil {
		return s.webhookFn(ctx, cmd)
	}
	return errors.New("not implemented")
}

func (s *stubPaymentService) ConfirmOrder(ctx context.Context, cmd services.ConfirmOrderCommand) (services.Order, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubPaymentService) VerifySession(ctx context.Context, cmd services.VerifySessionCommand) (services.SessionVerification, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, cmd)
	}
	return services.SessionVerification{}, errors.New("not implemented")
}

func (s *stubPaymentService) Refund(ctx context.Context, cmd services.RefundCommand) (services.Order, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

var _ services.PaymentService = (*stubPaymentService)(nil)

func TestPaymentHandlersVerifySession(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	var captured services.VerifySessionCommand
	service := &stubPaymentService{
		verifyFn: func(ctx context.Context, cmd services.VerifySessionCommand) (services.SessionVerification, error) {
			captured = cmd
			return services.SessionVerification{
				Order:        sampleOrder(now),
				GatewayPaid:  true,
				PaymentState: domain.PaymentStatePaid,
			}, nil
		},
	}

	handler := NewPaymentHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/payments/sessions/cs_test_123/verify", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.SessionID != "cs_test_123" || captured.RequestedBy != "user-1" {
		t.Fatalf("unexpected command %#v", captured)
	}

	var resp sessionVerificationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.GatewayPaid {
		t.Fatalf("expected gateway paid")
	}
	if resp.PaymentState != string(domain.PaymentStatePaid) {
		t.Fatalf("expected paid state, got %s", resp.PaymentState)
	}
	if resp.Order.ID != "ord_123" {
		t.Fatalf("unexpected order %#v", resp.Order)
	}
}

func TestPaymentHandlersVerifySessionForbiddenHidesExistence(t *testing.T) {
	service := &stubPaymentService{
		verifyFn: func(ctx context.Context, cmd services.VerifySessionCommand) (services.SessionVerification, error) {
			return services.SessionVerification{}, services.ErrPaymentForbidden
		},
	}

	handler := NewPaymentHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/payments/sessions/cs_other/verify", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-2"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestPaymentHandlersVerifySessionGatewayFailure(t *testing.T) {
	service := &stubPaymentService{
		verifyFn: func(ctx context.Context, cmd services.VerifySessionCommand) (services.SessionVerification, error) {
			return services.SessionVerification{}, services.ErrPaymentGatewayFailed
		},
	}

	handler := NewPaymentHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/payments/sessions/cs_test_123/verify", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}
}

func TestPaymentHandlersVerifySessionRequiresIdentity(t *testing.T) {
	handler := NewPaymentHandlers(nil, &stubPaymentService{})
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/payments/sessions/cs_test_123/verify", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}
