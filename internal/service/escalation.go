package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
)

// Escalation records one Open→Escalated transition made during a pass.
type Escalation struct {
	TicketID    string
	OldSeverity domain.Severity
	NewSeverity domain.Severity
	Age         time.Duration
}

// Escalator applies the time-based escalation rule. It holds no state besides
// the threshold, so it can be evaluated on every read.
type Escalator struct {
	threshold time.Duration
}

// NewEscalator builds an escalator. The threshold is wall-clock time since createdAt.
func NewEscalator(threshold time.Duration) *Escalator {
	return &Escalator{threshold: threshold}
}

// Threshold returns the configured escalation threshold.
func (e *Escalator) Threshold() time.Duration {
	return e.threshold
}

// Due reports whether the rule fires for t at now.
func (e *Escalator) Due(t domain.Ticket, now time.Time) bool {
	if t.Status != domain.TicketStatusOpen {
		return false
	}
	switch t.Severity {
	case domain.SeverityEmergency:
		return false
	case domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh:
	default:
		return false
	}
	return now.UnixMilli()-t.CreatedAt > e.threshold.Milliseconds()
}

// Apply evaluates the rule over tickets in store order and returns the next
// collection (same order) plus the transitions made. Input is not modified.
func (e *Escalator) Apply(tickets []domain.Ticket, now time.Time) ([]domain.Ticket, []Escalation) {
	next := make([]domain.Ticket, len(tickets))
	var fired []Escalation
	nowMs := now.UnixMilli()

	for i, t := range tickets {
		if !e.Due(t, now) {
			next[i] = t
			continue
		}
		escalated := t.WithEvent(domain.TimelineEvent{
			Timestamp:   nowMs,
			Title:       domain.EventTitleAutoEscalated,
			Description: fmt.Sprintf("Ticket escalated after %s without action.", formatThreshold(e.threshold)),
			Icon:        domain.IconEscalated,
		})
		escalated.Status = domain.TicketStatusEscalated
		if !escalated.Severity.AtLeast(domain.SeverityHigh) {
			escalated.Severity = domain.SeverityHigh
		}
		escalated.UpdatedAt = nowMs
		next[i] = escalated
		fired = append(fired, Escalation{
			TicketID:    t.ID,
			OldSeverity: t.Severity,
			NewSeverity: escalated.Severity,
			Age:         time.Duration(nowMs-t.CreatedAt) * time.Millisecond,
		})
	}
	return next, fired
}

// SortNewestFirst orders tickets by createdAt descending. Equal timestamps keep
// their store (insertion) order.
func SortNewestFirst(tickets []domain.Ticket) []domain.Ticket {
	out := append([]domain.Ticket(nil), tickets...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out
}

func formatThreshold(d time.Duration) string {
	minutes := int64(d / time.Minute)
	if minutes == 1 {
		return "1 minute"
	}
	if minutes > 0 && d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	return d.String()
}
