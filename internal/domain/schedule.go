package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Frequency is how often a scheduled saving rule fires.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyOneTime Frequency = "one-time"
)

// ParseFrequency accepts the stored frequency in any case, with "once"/"one_time" aliases.
func ParseFrequency(raw string) (Frequency, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "daily":
		return FrequencyDaily, true
	case "weekly":
		return FrequencyWeekly, true
	case "monthly":
		return FrequencyMonthly, true
	case "one-time", "one_time", "onetime", "once":
		return FrequencyOneTime, true
	default:
		return "", false
	}
}

// DateLayout is the wire and SQL layout of calendar dates.
const DateLayout = "2006-01-02"

// ScheduledSavingRule is a user-defined recurring contribution.
type ScheduledSavingRule struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	GoalID            *uuid.UUID      `json:"goal_id,omitempty"`
	Name              string          `json:"name"`
	Amount            decimal.Decimal `json:"amount"`
	Frequency         string          `json:"frequency"`
	NextExecutionDate time.Time       `json:"next_execution_date"`
	IsActive          bool            `json:"is_active"`
	LastExecutedAt    *time.Time      `json:"last_executed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NextSchedule returns the date the rule fires next and whether it stays active.
// The successor is computed from the stored date, not from the run date, so a
// late run never shifts the cadence.
func NextSchedule(current time.Time, freq Frequency) (next time.Time, active bool) {
	switch freq {
	case FrequencyDaily:
		return current.AddDate(0, 0, 1), true
	case FrequencyWeekly:
		return current.AddDate(0, 0, 7), true
	case FrequencyMonthly:
		return AddMonthClamped(current, 1), true
	default:
		return current, false
	}
}

// AddMonthClamped adds n calendar months, clamping to the last day of the target
// month (Jan 31 + 1 month is Feb 28 or 29).
func AddMonthClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// LocalMidnight truncates now to the start of its calendar day in loc.
func LocalMidnight(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// AutoSavingsReference is the ledger reference id of one rule execution.
func AutoSavingsReference(ruleID uuid.UUID, date time.Time) string {
	return "autosave:" + ruleID.String() + ":" + date.Format(DateLayout)
}

// Auto-savings per-rule outcomes.
const (
	AutoSavingsSucceeded        = "success"
	AutoSavingsFailed           = "error"
	AutoSavingsAlreadyProcessed = "already_processed"
)

// AutoSavingsResult is the outcome of one rule within a run.
type AutoSavingsResult struct {
	RuleID            uuid.UUID `json:"ruleId"`
	UserID            uuid.UUID `json:"userId"`
	Status            string    `json:"status"`
	Amount            string    `json:"amount"`
	NextExecutionDate string    `json:"nextExecutionDate,omitempty"`
	Error             string    `json:"error,omitempty"`
}

// AutoSavingsSummary is returned by the auto-savings trigger.
type AutoSavingsSummary struct {
	Success   bool                `json:"success"`
	Processed int                 `json:"processed"`
	Succeeded int                 `json:"succeeded"`
	Errors    int                 `json:"errors"`
	Skipped   int                 `json:"skipped"`
	Results   []AutoSavingsResult `json:"results"`
}

// ReconcileSummary is returned by the batch reconciliation trigger.
type ReconcileSummary struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Expired int `json:"expired"`
	Booked  int `json:"booked"`
	Errors  int `json:"errors"`
}
