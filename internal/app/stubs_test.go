package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/domain"
	"github.com/Turabayo/she-saves-bloom-sub000/internal/store"
	"github.com/Turabayo/she-saves-bloom-sub000/pkg/momoclient"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// memoryRepo is an in-memory store.Repository with the same status and ledger
// rules as the Postgres implementation.
type memoryRepo struct {
	store.Repository

	mu        sync.Mutex
	payments  map[domain.PaymentKind]map[string]*domain.Payment
	ledger    map[string]*domain.LedgerTransaction
	savings   []domain.SavingsEntry
	callbacks []domain.CallbackRecord
	phones    map[uuid.UUID]string
	rules     map[uuid.UUID]*domain.ScheduledSavingRule

	createErr  error
	executeErr map[uuid.UUID]error
	dueQueries []time.Time
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		payments: map[domain.PaymentKind]map[string]*domain.Payment{
			domain.KindTopUp:      {},
			domain.KindWithdrawal: {},
		},
		ledger:     map[string]*domain.LedgerTransaction{},
		phones:     map[uuid.UUID]string{},
		rules:      map[uuid.UUID]*domain.ScheduledSavingRule{},
		executeErr: map[uuid.UUID]error{},
	}
}

func (r *memoryRepo) CreatePayment(ctx context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	cp := *p
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.payments[p.Kind][p.ReferenceID] = &cp
	return nil
}

func (r *memoryRepo) FindPaymentByReferenceID(ctx context.Context, kind domain.PaymentKind, referenceID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[kind][referenceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRepo) apply(p *domain.Payment, update domain.PaymentStatusUpdate) {
	if update.Status != nil {
		p.Status = *update.Status
	}
	if update.FinancialTransactionID != nil {
		p.FinancialTransactionID = update.FinancialTransactionID
	}
	if update.FailureReason != nil {
		p.FailureReason = update.FailureReason
	}
	p.UpdatedAt = time.Now()
}

func (r *memoryRepo) UpdatePaymentStatus(ctx context.Context, kind domain.PaymentKind, referenceID string, update domain.PaymentStatusUpdate) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[kind][referenceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	r.apply(p, update)
	cp := *p
	return &cp, nil
}

func (r *memoryRepo) ApplyPaymentCallback(ctx context.Context, kind domain.PaymentKind, referenceID string, update domain.PaymentStatusUpdate) (*store.CallbackOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[kind][referenceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	update = update.ResolveAgainst(p.Status)
	r.apply(p, update)
	cp := *p
	outcome := &store.CallbackOutcome{Payment: &cp}
	if cp.Status == domain.StatusSuccessful {
		if _, exists := r.ledger[cp.ReferenceID]; !exists {
			l := domain.LedgerForPayment(&cp)
			l.CreatedAt = time.Now()
			r.ledger[cp.ReferenceID] = l
			outcome.Ledger = l
		}
	}
	return outcome, nil
}

func (r *memoryRepo) ListUnsettledPayments(ctx context.Context, kind domain.PaymentKind, olderThan time.Time, limit int) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Payment
	for _, p := range r.payments[kind] {
		if !p.CreatedAt.Before(olderThan) {
			continue
		}
		_, booked := r.ledger[p.ReferenceID]
		if !p.Status.IsTerminal() || (p.Status == domain.StatusSuccessful && !booked) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) RecordCallback(ctx context.Context, rec *domain.CallbackRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, *rec)
	return nil
}

func (r *memoryRepo) FindUserPhone(ctx context.Context, userID uuid.UUID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	phone, ok := r.phones[userID]
	if !ok {
		return "", store.ErrNotFound
	}
	return phone, nil
}

func (r *memoryRepo) ListDueScheduledSavings(ctx context.Context, today time.Time) ([]domain.ScheduledSavingRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dueQueries = append(r.dueQueries, today)
	todayKey := today.Format(domain.DateLayout)
	var out []domain.ScheduledSavingRule
	for _, rule := range r.rules {
		if rule.IsActive && rule.NextExecutionDate.Format(domain.DateLayout) <= todayKey {
			out = append(out, *rule)
		}
	}
	return out, nil
}

func (r *memoryRepo) ExecuteScheduledSaving(ctx context.Context, exec store.ScheduleExecution) (store.ExecutionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[exec.RuleID]
	if !ok || !rule.IsActive || !rule.NextExecutionDate.Equal(exec.ObservedDate) {
		return store.ExecutionClaimLost, nil
	}
	if err := r.executeErr[exec.RuleID]; err != nil {
		return 0, err
	}
	rule.NextExecutionDate = exec.NextDate
	rule.IsActive = exec.StayActive
	executed := exec.ExecutedAt
	rule.LastExecutedAt = &executed
	if _, exists := r.ledger[*exec.Ledger.ReferenceID]; exists {
		return store.ExecutionAlreadyBooked, nil
	}
	r.ledger[*exec.Ledger.ReferenceID] = exec.Ledger
	r.savings = append(r.savings, *exec.Savings)
	return store.ExecutionApplied, nil
}

func (r *memoryRepo) addPayment(p domain.Payment) *domain.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.payments[p.Kind][p.ReferenceID] = &cp
	return &cp
}

func (r *memoryRepo) ledgerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ledger)
}

type providerStub struct {
	mu sync.Mutex

	missing     map[momoclient.Product]bool
	submitErr   error
	statusErr   error
	status      *momoclient.StatusResponse
	submitted   []submittedRequest
	statusCalls int
}

type submittedRequest struct {
	op          string
	referenceID string
	req         momoclient.PaymentRequest
}

func (p *providerStub) record(op, ref string, req momoclient.PaymentRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = append(p.submitted, submittedRequest{op: op, referenceID: ref, req: req})
	return p.submitErr
}

func (p *providerStub) RequestToPay(ctx context.Context, referenceID string, req momoclient.PaymentRequest) error {
	return p.record("request_to_pay", referenceID, req)
}

func (p *providerStub) Transfer(ctx context.Context, referenceID string, req momoclient.PaymentRequest) error {
	return p.record("transfer", referenceID, req)
}

func (p *providerStub) statusResult() (*momoclient.StatusResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusCalls++
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	if p.status == nil {
		return &momoclient.StatusResponse{}, nil
	}
	cp := *p.status
	return &cp, nil
}

func (p *providerStub) RequestToPayStatus(ctx context.Context, referenceID string) (*momoclient.StatusResponse, error) {
	return p.statusResult()
}

func (p *providerStub) TransferStatus(ctx context.Context, referenceID string) (*momoclient.StatusResponse, error) {
	return p.statusResult()
}

func (p *providerStub) CheckCredentials(product momoclient.Product) error {
	if p.missing[product] {
		return momoclient.ErrMissingCredentials
	}
	return nil
}

type notifierStub struct {
	mu       sync.Mutex
	messages []string
	phones   []string
	err      error
}

func (n *notifierStub) Notify(ctx context.Context, phone, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.phones = append(n.phones, phone)
	n.messages = append(n.messages, message)
	return n.err
}

func (n *notifierStub) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type publisherStub struct {
	mu          sync.Mutex
	routingKeys []string
	bodies      []interface{}
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routingKeys = append(p.routingKeys, routingKey)
	p.bodies = append(p.bodies, body)
	return nil
}

func (p *publisherStub) Close() {}

type counterStub struct {
	count      int
	retryAfter time.Duration
	err        error
	kinds      []domain.PaymentKind
}

func (c *counterStub) CountInitiation(ctx context.Context, kind domain.PaymentKind, userID uuid.UUID, window time.Duration) (int, time.Duration, error) {
	if c.err != nil {
		return 0, 0, c.err
	}
	c.count++
	c.kinds = append(c.kinds, kind)
	return c.count, c.retryAfter, nil
}

type serviceFixture struct {
	svc       *Service
	repo      *memoryRepo
	provider  *providerStub
	notifier  *notifierStub
	publisher *publisherStub
}

func newFixture(opts Options) *serviceFixture {
	repo := newMemoryRepo()
	provider := &providerStub{missing: map[momoclient.Product]bool{}}
	notifier := &notifierStub{}
	publisher := &publisherStub{}
	if opts.Currency == "" {
		opts.Currency = "RWF"
	}
	svc := NewService(repo, provider, notifier, publisher, zap.NewNop(), opts)
	return &serviceFixture{svc: svc, repo: repo, provider: provider, notifier: notifier, publisher: publisher}
}

var errBoom = errors.New("boom")
