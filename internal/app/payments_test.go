package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/domain"
	"github.com/Turabayo/she-saves-bloom-sub000/pkg/momoclient"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestInitiateTopUp_PersistsPendingAfterProviderAccepts(t *testing.T) {
	f := newFixture(Options{})
	userID := uuid.New()

	payment, err := f.svc.InitiateTopUp(context.Background(), userID, domain.TopUpRequest{
		Amount:      decimal.NewFromInt(5000),
		PhoneNumber: "0788 123 456",
	})
	if err != nil {
		t.Fatalf("InitiateTopUp returned error: %v", err)
	}

	if payment.Status != domain.StatusPending {
		t.Fatalf("expected PENDING, got %s", payment.Status)
	}
	if payment.Phone != "250788123456" {
		t.Fatalf("expected normalized phone, got %s", payment.Phone)
	}
	if len(f.provider.submitted) != 1 || f.provider.submitted[0].op != "request_to_pay" {
		t.Fatalf("expected one request_to_pay, got %+v", f.provider.submitted)
	}
	sent := f.provider.submitted[0]
	if sent.referenceID != payment.ReferenceID {
		t.Fatalf("expected provider reference %s, got %s", payment.ReferenceID, sent.referenceID)
	}
	if sent.req.Payer == nil || sent.req.Payer.PartyID != "250788123456" || sent.req.Payee != nil {
		t.Fatalf("unexpected parties %+v", sent.req)
	}
	if sent.req.Amount != "5000" || sent.req.Currency != "RWF" {
		t.Fatalf("unexpected amount/currency %s %s", sent.req.Amount, sent.req.Currency)
	}

	stored, err := f.repo.FindPaymentByReferenceID(context.Background(), domain.KindTopUp, payment.ReferenceID)
	if err != nil {
		t.Fatalf("expected stored top-up: %v", err)
	}
	if stored.UserID != userID || stored.Status != domain.StatusPending {
		t.Fatalf("unexpected stored top-up %+v", stored)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("expected one initiation notification, got %d", f.notifier.count())
	}
}

func TestInitiateTopUp_MintsFreshReferencePerAttempt(t *testing.T) {
	f := newFixture(Options{})
	req := domain.TopUpRequest{Amount: decimal.NewFromInt(100), PhoneNumber: "250788123456"}

	first, err := f.svc.InitiateTopUp(context.Background(), uuid.New(), req)
	if err != nil {
		t.Fatalf("first InitiateTopUp: %v", err)
	}
	second, err := f.svc.InitiateTopUp(context.Background(), uuid.New(), req)
	if err != nil {
		t.Fatalf("second InitiateTopUp: %v", err)
	}
	if first.ReferenceID == second.ReferenceID {
		t.Fatal("expected distinct reference ids")
	}
	if first.ExternalID == second.ExternalID {
		t.Fatal("expected distinct external ids")
	}
}

func TestInitiateTopUp_ValidationHasNoSideEffects(t *testing.T) {
	cases := []struct {
		name    string
		opts    Options
		req     domain.TopUpRequest
		wantErr error
	}{
		{"zero amount", Options{}, domain.TopUpRequest{Amount: decimal.Zero, PhoneNumber: "250788123456"}, ErrInvalidAmount},
		{"negative amount", Options{}, domain.TopUpRequest{Amount: decimal.NewFromInt(-5), PhoneNumber: "250788123456"}, ErrInvalidAmount},
		{"missing phone", Options{}, domain.TopUpRequest{Amount: decimal.NewFromInt(10), PhoneNumber: ""}, ErrInvalidPhone},
		{"garbage phone", Options{}, domain.TopUpRequest{Amount: decimal.NewFromInt(10), PhoneNumber: "call me"}, ErrInvalidPhone},
		{"over maximum", Options{MaxTransactionAmount: decimal.NewFromInt(1000)}, domain.TopUpRequest{Amount: decimal.NewFromInt(1001), PhoneNumber: "250788123456"}, ErrAmountTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(tc.opts)
			_, err := f.svc.InitiateTopUp(context.Background(), uuid.New(), tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if len(f.provider.submitted) != 0 {
				t.Fatal("provider must not be called on validation failure")
			}
			if len(f.repo.payments[domain.KindTopUp]) != 0 {
				t.Fatal("no row may be written on validation failure")
			}
		})
	}
}

func TestInitiateTopUp_ProviderRejectionWritesNoRow(t *testing.T) {
	f := newFixture(Options{})
	f.provider.submitErr = &momoclient.APIError{Op: "request_to_pay", StatusCode: 409, Body: `{"code":"RESOURCE_ALREADY_EXIST"}`}

	_, err := f.svc.InitiateTopUp(context.Background(), uuid.New(), domain.TopUpRequest{Amount: decimal.NewFromInt(10), PhoneNumber: "250788123456"})
	var apiErr *momoclient.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 409 {
		t.Fatalf("expected provider APIError 409, got %v", err)
	}
	if len(f.repo.payments[domain.KindTopUp]) != 0 {
		t.Fatal("no row may be written when the provider rejects")
	}
	if f.notifier.count() != 0 {
		t.Fatal("no notification on rejection")
	}
}

func TestInitiateTopUp_MissingCredentialsFailsBeforeNetwork(t *testing.T) {
	f := newFixture(Options{})
	f.provider.missing[momoclient.ProductCollection] = true

	_, err := f.svc.InitiateTopUp(context.Background(), uuid.New(), domain.TopUpRequest{Amount: decimal.NewFromInt(10), PhoneNumber: "250788123456"})
	if !errors.Is(err, ErrProviderNotConfigured) {
		t.Fatalf("expected ErrProviderNotConfigured, got %v", err)
	}
	if len(f.provider.submitted) != 0 {
		t.Fatal("provider must not be called without credentials")
	}
}

func TestInitiateTopUp_PersistFailureSurfacesError(t *testing.T) {
	f := newFixture(Options{})
	f.repo.createErr = errBoom

	_, err := f.svc.InitiateTopUp(context.Background(), uuid.New(), domain.TopUpRequest{Amount: decimal.NewFromInt(10), PhoneNumber: "250788123456"})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if len(f.provider.submitted) != 1 {
		t.Fatal("expected the provider request to have been sent")
	}
}

func TestInitiateTopUp_RateLimited(t *testing.T) {
	f := newFixture(Options{InitiationRateLimit: 2})
	counter := &counterStub{retryAfter: 41500 * time.Millisecond}
	f.svc.SetInitiationCounter(counter)
	req := domain.TopUpRequest{Amount: decimal.NewFromInt(10), PhoneNumber: "250788123456"}
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		if _, err := f.svc.InitiateTopUp(context.Background(), userID, req); err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i+1, err)
		}
	}
	_, err := f.svc.InitiateTopUp(context.Background(), userID, req)
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if rlErr.RetryAfterSeconds != 42 {
		t.Fatalf("expected retry after 42, got %d", rlErr.RetryAfterSeconds)
	}
	if len(f.provider.submitted) != 2 {
		t.Fatalf("expected only two provider calls, got %d", len(f.provider.submitted))
	}
	if counter.kinds[0] != domain.KindTopUp {
		t.Fatalf("expected top-up initiations to be counted, got %v", counter.kinds)
	}
}

func TestInitiateTopUp_LimiterOutageDoesNotBlock(t *testing.T) {
	f := newFixture(Options{InitiationRateLimit: 1})
	f.svc.SetInitiationCounter(&counterStub{err: errBoom})

	if _, err := f.svc.InitiateTopUp(context.Background(), uuid.New(), domain.TopUpRequest{Amount: decimal.NewFromInt(10), PhoneNumber: "250788123456"}); err != nil {
		t.Fatalf("expected success when limiter is down, got %v", err)
	}
}

func TestInitiateWithdrawal_UsesTransferAndKeepsGoal(t *testing.T) {
	f := newFixture(Options{})
	goalID := uuid.New()

	payment, err := f.svc.InitiateWithdrawal(context.Background(), uuid.New(), domain.WithdrawalRequest{
		Amount:      decimal.RequireFromString("2500.50"),
		PhoneNumber: "+250 788 000 111",
		GoalID:      &goalID,
		Note:        "school fees",
	})
	if err != nil {
		t.Fatalf("InitiateWithdrawal returned error: %v", err)
	}
	if len(f.provider.submitted) != 1 || f.provider.submitted[0].op != "transfer" {
		t.Fatalf("expected one transfer, got %+v", f.provider.submitted)
	}
	sent := f.provider.submitted[0].req
	if sent.Payee == nil || sent.Payee.PartyID != "250788000111" || sent.Payer != nil {
		t.Fatalf("unexpected parties %+v", sent)
	}
	if sent.Amount != "2500.5" {
		t.Fatalf("unexpected amount %s", sent.Amount)
	}

	stored, err := f.repo.FindPaymentByReferenceID(context.Background(), domain.KindWithdrawal, payment.ReferenceID)
	if err != nil {
		t.Fatalf("expected stored withdrawal: %v", err)
	}
	if stored.GoalID == nil || *stored.GoalID != goalID {
		t.Fatal("expected goal id to be stored")
	}
	if stored.Note == nil || *stored.Note != "school fees" {
		t.Fatal("expected note to be stored")
	}
}

func TestInitiateWithdrawal_MissingDisbursementCredentials(t *testing.T) {
	f := newFixture(Options{})
	f.provider.missing[momoclient.ProductDisbursement] = true

	_, err := f.svc.InitiateWithdrawal(context.Background(), uuid.New(), domain.WithdrawalRequest{Amount: decimal.NewFromInt(10), PhoneNumber: "250788123456"})
	if !errors.Is(err, ErrProviderNotConfigured) {
		t.Fatalf("expected ErrProviderNotConfigured, got %v", err)
	}
}
