package app

import (
	"context"
	"testing"
	"time"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return d
}

func addRule(f *serviceFixture, freq string, next time.Time) *domain.ScheduledSavingRule {
	rule := &domain.ScheduledSavingRule{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		Name:              "Rainy day",
		Amount:            decimal.NewFromInt(2000),
		Frequency:         freq,
		NextExecutionDate: next,
		IsActive:          true,
	}
	f.repo.rules[rule.ID] = rule
	return rule
}

func fixtureAt(t *testing.T, day string) *serviceFixture {
	now := date(t, day).Add(9 * time.Hour)
	return newFixture(Options{Now: func() time.Time { return now }, Location: time.UTC})
}

func TestExecuteAutoSavings_MonthlyAdvancesFromScheduledDate(t *testing.T) {
	f := fixtureAt(t, "2024-02-01")
	rule := addRule(f, "monthly", date(t, "2024-01-15"))

	summary, err := f.svc.ExecuteAutoSavings(context.Background())
	if err != nil {
		t.Fatalf("ExecuteAutoSavings returned error: %v", err)
	}
	if summary.Processed != 1 || summary.Succeeded != 1 || summary.Errors != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if got := rule.NextExecutionDate.Format(domain.DateLayout); got != "2024-02-15" {
		t.Fatalf("expected next execution 2024-02-15, got %s", got)
	}
	if summary.Results[0].NextExecutionDate != "2024-02-15" {
		t.Fatalf("unexpected result %+v", summary.Results[0])
	}
	if f.repo.ledgerCount() != 1 || len(f.repo.savings) != 1 {
		t.Fatalf("expected one ledger and one savings row, got %d / %d", f.repo.ledgerCount(), len(f.repo.savings))
	}
	for _, l := range f.repo.ledger {
		if l.Type != domain.LedgerTypeAutoSavings || l.Status != domain.LedgerStatusSuccess {
			t.Fatalf("unexpected ledger row %+v", l)
		}
	}
}

func TestExecuteAutoSavings_OneTimeDeactivatesAndKeepsDate(t *testing.T) {
	f := fixtureAt(t, "2024-03-10")
	rule := addRule(f, "one-time", date(t, "2024-03-10"))

	if _, err := f.svc.ExecuteAutoSavings(context.Background()); err != nil {
		t.Fatalf("ExecuteAutoSavings returned error: %v", err)
	}
	if rule.IsActive {
		t.Fatal("expected one-time rule to be deactivated")
	}
	if got := rule.NextExecutionDate.Format(domain.DateLayout); got != "2024-03-10" {
		t.Fatalf("expected date unchanged, got %s", got)
	}
}

func TestExecuteAutoSavings_FailureLeavesRuleDueAndContinues(t *testing.T) {
	f := fixtureAt(t, "2024-03-10")
	broken := addRule(f, "daily", date(t, "2024-03-10"))
	healthy := addRule(f, "weekly", date(t, "2024-03-09"))
	f.repo.executeErr[broken.ID] = errBoom

	summary, err := f.svc.ExecuteAutoSavings(context.Background())
	if err != nil {
		t.Fatalf("ExecuteAutoSavings returned error: %v", err)
	}
	if summary.Succeeded != 1 || summary.Errors != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if !broken.IsActive || broken.NextExecutionDate.Format(domain.DateLayout) != "2024-03-10" {
		t.Fatalf("failed rule must keep its date and stay active, got %+v", broken)
	}
	if healthy.NextExecutionDate.Format(domain.DateLayout) != "2024-03-16" {
		t.Fatalf("expected healthy rule to advance a week, got %s", healthy.NextExecutionDate.Format(domain.DateLayout))
	}

	// The failed rule is picked up again by the next run.
	delete(f.repo.executeErr, broken.ID)
	summary, err = f.svc.ExecuteAutoSavings(context.Background())
	if err != nil {
		t.Fatalf("second run returned error: %v", err)
	}
	if summary.Processed != 1 || summary.Succeeded != 1 {
		t.Fatalf("expected the failed rule to be retried, got %+v", summary)
	}
}

func TestExecuteAutoSavings_SecondRunSameDayDoesNothing(t *testing.T) {
	f := fixtureAt(t, "2024-03-10")
	addRule(f, "daily", date(t, "2024-03-10"))

	if _, err := f.svc.ExecuteAutoSavings(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	summary, err := f.svc.ExecuteAutoSavings(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Processed != 0 {
		t.Fatalf("expected nothing due on second run, got %+v", summary)
	}
	if f.repo.ledgerCount() != 1 {
		t.Fatalf("expected one ledger row, got %d", f.repo.ledgerCount())
	}
}

func TestExecuteAutoSavings_LostClaimIsSkipped(t *testing.T) {
	f := fixtureAt(t, "2024-03-10")
	rule := addRule(f, "daily", date(t, "2024-03-10"))

	// Simulate a concurrent run that listed the rule and then lost the claim.
	stale := *rule
	rule.NextExecutionDate = date(t, "2024-03-11")
	result := f.svc.executeRule(context.Background(), stale, time.Now())
	if result.Status != domain.AutoSavingsAlreadyProcessed {
		t.Fatalf("expected already_processed, got %+v", result)
	}
	if f.repo.ledgerCount() != 0 {
		t.Fatal("lost claim must not book")
	}
}

func TestExecuteAutoSavings_UnsupportedFrequencyIsAnError(t *testing.T) {
	f := fixtureAt(t, "2024-03-10")
	rule := addRule(f, "fortnightly", date(t, "2024-03-10"))

	summary, err := f.svc.ExecuteAutoSavings(context.Background())
	if err != nil {
		t.Fatalf("ExecuteAutoSavings returned error: %v", err)
	}
	if summary.Errors != 1 || summary.Results[0].Error == "" {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if rule.NextExecutionDate.Format(domain.DateLayout) != "2024-03-10" {
		t.Fatal("rule must not advance")
	}
}

func TestExecuteAutoSavings_UsesBusinessTimezoneForToday(t *testing.T) {
	kigali := time.FixedZone("CAT", 2*60*60)
	now := time.Date(2024, 3, 9, 22, 30, 0, 0, time.UTC) // already the 10th in Kigali
	f := newFixture(Options{Now: func() time.Time { return now }, Location: kigali})
	addRule(f, "daily", date(t, "2024-03-10"))

	summary, err := f.svc.ExecuteAutoSavings(context.Background())
	if err != nil {
		t.Fatalf("ExecuteAutoSavings returned error: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("expected rule due on local date, got %+v", summary)
	}
	if got := f.repo.dueQueries[0].Format(domain.DateLayout); got != "2024-03-10" {
		t.Fatalf("expected today 2024-03-10, got %s", got)
	}
}

func TestExecuteAutoSavings_NotifiesOwnerWhenPhoneKnown(t *testing.T) {
	f := fixtureAt(t, "2024-03-10")
	withPhone := addRule(f, "daily", date(t, "2024-03-10"))
	addRule(f, "daily", date(t, "2024-03-10"))
	f.repo.phones[withPhone.UserID] = "250788123456"

	if _, err := f.svc.ExecuteAutoSavings(context.Background()); err != nil {
		t.Fatalf("ExecuteAutoSavings returned error: %v", err)
	}
	if f.notifier.count() != 1 || f.notifier.phones[0] != "250788123456" {
		t.Fatalf("expected one notification to the known phone, got %v", f.notifier.phones)
	}
}
