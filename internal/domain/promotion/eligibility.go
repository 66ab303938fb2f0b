package promotion

import (
	"time"

	"github.com/EmilioM092611/KantarEs-sub000/internal/domain/order"
)

// IsEligible reports whether the promotion's temporal and quantitative
// conditions hold for the order at the given instant. It is a pure function:
// a failed condition simply excludes the promotion, it is not an error.
func IsEligible(p *Promotion, o *order.Order, now time.Time) bool {
	if now.Before(p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return false
	}
	if !withinDailyWindow(p, now) {
		return false
	}
	if !onAllowedWeekday(p, now) {
		return false
	}
	if o.TotalQuantity() < p.MinQuantity {
		return false
	}
	if o.LinesSubtotal().LessThan(p.MinAmount) {
		return false
	}
	return matchesScope(p, o)
}

// withinDailyWindow checks the optional time-of-day window, both bounds
// inclusive. A missing bound leaves that side of the window open; the window
// does not wrap past midnight.
func withinDailyWindow(p *Promotion, now time.Time) bool {
	if p.StartMinute == nil && p.EndMinute == nil {
		return true
	}
	minute := now.Hour()*60 + now.Minute()
	if p.StartMinute != nil && minute < *p.StartMinute {
		return false
	}
	if p.EndMinute != nil && minute > *p.EndMinute {
		return false
	}
	return true
}

// onAllowedWeekday checks membership in the configured weekday set using
// time.Weekday numbering (0=Sunday). An empty set allows every day.
func onAllowedWeekday(p *Promotion, now time.Time) bool {
	if len(p.Weekdays) == 0 {
		return true
	}
	day := now.Weekday()
	for _, wd := range p.Weekdays {
		if wd == day {
			return true
		}
	}
	return false
}

// matchesScope checks that the promotion reaches at least one order line.
// Order-scoped promotions always match; product and category scopes need a
// line covered by one of the promotion's targets.
func matchesScope(p *Promotion, o *order.Order) bool {
	if p.Scope == ScopeOrder {
		return true
	}
	for _, ln := range o.Lines {
		for _, t := range p.Targets {
			if t.Matches(ln) {
				return true
			}
		}
	}
	return false
}
