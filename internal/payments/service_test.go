package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/nmarchetti-dev/tradepost-backend/internal/payments/providers"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/db/models"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
	pkgerrors "github.com/nmarchetti-dev/tradepost-backend/pkg/errors"
)

func newServiceFixture(t *testing.T, client *stubChargeClient) (Service, *stubRepo) {
	t.Helper()

	orderID := uuid.New()
	repo := &stubRepo{
		order: &models.Order{
			ID:         orderID,
			BuyerID:    uuid.New(),
			Status:     enums.OrderStatusPending,
			TotalCents: 25000,
			Currency:   enums.CurrencyUSD,
		},
		buyer: &models.User{ID: uuid.New(), Email: "buyer@example.com", Role: enums.UserRoleBuyer},
	}

	svc, err := NewService(ServiceParams{
		Repo:      repo,
		Providers: providers.Registry{enums.PaymentProviderPaystack: client},
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc, repo
}

func TestCreateIntentPersistsInitiatedPayment(t *testing.T) {
	checkout := "https://checkout.paystack.com/x"
	client := &stubChargeClient{result: &providers.ChargeResult{ExternalRef: "ref-99", CheckoutURL: &checkout}}
	svc, repo := newServiceFixture(t, client)

	payment, err := svc.CreateIntent(context.Background(), repo.order.ID, enums.PaymentProviderPaystack)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if payment.Status != enums.PaymentStatusInitiated {
		t.Fatalf("expected initiated, got %s", payment.Status)
	}
	if payment.ExternalRef != "ref-99" {
		t.Fatalf("unexpected external ref %s", payment.ExternalRef)
	}
	if payment.AmountCents != 25000 {
		t.Fatalf("amount must come from the order, got %d", payment.AmountCents)
	}
	if client.gotReq.BuyerEmail != "buyer@example.com" {
		t.Fatalf("buyer email not forwarded to provider")
	}
	if len(repo.upserts) != 1 {
		t.Fatalf("expected one upsert, got %d", len(repo.upserts))
	}
	if repo.order.ExternalRef == nil || *repo.order.ExternalRef != "ref-99" {
		t.Fatalf("order external ref not stamped")
	}
}

func TestCreateIntentUnknownProvider(t *testing.T) {
	svc, repo := newServiceFixture(t, &stubChargeClient{})

	_, err := svc.CreateIntent(context.Background(), repo.order.ID, enums.PaymentProvider("cash"))
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateIntentUnconfiguredProvider(t *testing.T) {
	svc, repo := newServiceFixture(t, &stubChargeClient{})

	_, err := svc.CreateIntent(context.Background(), repo.order.ID, enums.PaymentProviderStripe)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateIntentOrderNotFound(t *testing.T) {
	svc, _ := newServiceFixture(t, &stubChargeClient{result: &providers.ChargeResult{ExternalRef: "r"}})

	_, err := svc.CreateIntent(context.Background(), uuid.New(), enums.PaymentProviderPaystack)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateIntentNonPendingOrder(t *testing.T) {
	svc, repo := newServiceFixture(t, &stubChargeClient{result: &providers.ChargeResult{ExternalRef: "r"}})
	repo.order.Status = enums.OrderStatusPaid

	_, err := svc.CreateIntent(context.Background(), repo.order.ID, enums.PaymentProviderPaystack)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCreateIntentSettledPaymentConflicts(t *testing.T) {
	svc, repo := newServiceFixture(t, &stubChargeClient{result: &providers.ChargeResult{ExternalRef: "r"}})
	repo.payment = &models.Payment{
		ID:          uuid.New(),
		OrderID:     repo.order.ID,
		Status:      enums.PaymentStatusSucceeded,
		ExternalRef: "settled-ref",
	}

	_, err := svc.CreateIntent(context.Background(), repo.order.ID, enums.PaymentProviderPaystack)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCreateIntentProviderFailure(t *testing.T) {
	client := &stubChargeClient{err: pkgerrors.New(pkgerrors.CodeDependency, "psp down")}
	svc, repo := newServiceFixture(t, client)

	_, err := svc.CreateIntent(context.Background(), repo.order.ID, enums.PaymentProviderPaystack)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if len(repo.upserts) != 0 {
		t.Fatalf("failed charge must not persist a payment")
	}
}

func TestGetByOrderID(t *testing.T) {
	svc, repo := newServiceFixture(t, &stubChargeClient{})
	repo.payment = &models.Payment{ID: uuid.New(), OrderID: repo.order.ID, Status: enums.PaymentStatusInitiated, ExternalRef: "ref"}

	payment, err := svc.GetByOrderID(context.Background(), repo.order.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if payment.ExternalRef != "ref" {
		t.Fatalf("unexpected payment %+v", payment)
	}

	_, err = svc.GetByOrderID(context.Background(), uuid.New())
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
