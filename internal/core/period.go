package core

// period.go computes weekly billing periods and submission deadlines.
//
// A period is the calendar week (configurable start weekday) containing a
// reference date. Its submission deadline is the period end plus a grace
// offset; a warning window opens shortly before the deadline so clients can
// surface "submit soon" prompts. The importer uses the same math to decide
// whether an entry date still falls inside the open billing window.

import (
	"fmt"
	"time"
)

// PeriodConfig controls billing-period computation.
type PeriodConfig struct {
	// StartDay is the weekday a billing week begins on.
	StartDay time.Weekday
	// DeadlineGrace is added to the period end to get the submission deadline.
	DeadlineGrace time.Duration
	// WarningWindow is how long before the deadline the warning opens.
	WarningWindow time.Duration
	// MaxBackdate is how far behind the current period start an entry date may
	// fall and still be accepted at commit time.
	MaxBackdate time.Duration
}

// InvoicePeriod describes one weekly billing period.
type InvoicePeriod struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Deadline time.Time `json:"deadline"`
	WarnFrom time.Time `json:"warnFrom"`
}

// PeriodFor returns the billing period containing t. Start is midnight of
// the period's first day in t's location; End is the instant the next period
// begins (half-open interval).
func PeriodFor(t time.Time, cfg PeriodConfig) InvoicePeriod {
	daysBack := (int(t.Weekday()) - int(cfg.StartDay) + 7) % 7
	year, month, day := t.AddDate(0, 0, -daysBack).Date()
	start := time.Date(year, month, day, 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 0, 7)
	deadline := end.Add(cfg.DeadlineGrace)

	return InvoicePeriod{
		Start:    start,
		End:      end,
		Deadline: deadline,
		WarnFrom: deadline.Add(-cfg.WarningWindow),
	}
}

// Contains reports whether t falls inside the period's half-open interval.
func (p InvoicePeriod) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// DeadlineWarningActive reports whether now is inside the warning window but
// the deadline has not yet passed.
func (p InvoicePeriod) DeadlineWarningActive(now time.Time) bool {
	return !now.Before(p.WarnFrom) && now.Before(p.Deadline)
}

// CheckEntryDate verifies that an entry date (DateLayout) is still inside
// the open billing window relative to now: not in the future and not older
// than the configured back-date horizon. Returns a human-readable reason on
// rejection.
func CheckEntryDate(date string, now time.Time, cfg PeriodConfig) error {
	d, err := time.ParseInLocation(DateLayout, date, now.Location())
	if err != nil {
		return fmt.Errorf("date %q is not a valid calendar date", date)
	}

	period := PeriodFor(now, cfg)
	if !d.Before(period.End) {
		return fmt.Errorf("date %s is in a future billing period", date)
	}

	horizon := period.Start.Add(-cfg.MaxBackdate)
	if d.Before(horizon) {
		return fmt.Errorf("date %s is in a closed billing period (cutoff %s)",
			date, horizon.Format(DateLayout))
	}

	return nil
}
