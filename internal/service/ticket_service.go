package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
	"github.com/spec-kit/civic-ticket-service/internal/events"
	"github.com/spec-kit/civic-ticket-service/internal/observability"
	"github.com/spec-kit/civic-ticket-service/internal/repository"
	apperrors "github.com/spec-kit/civic-ticket-service/pkg/util"
)

// ErrTicketNotFound is wrapped by the not-found error returned for unknown ids.
var ErrTicketNotFound = errors.New("ticket not found")

// analysisEventDelay puts the seeded analysis event one second after creation.
const analysisEventDelay = time.Second

// TicketService is the ticket lifecycle API. Every read runs the escalation
// rule; every write is a load→mutate→save cycle through the store.
type TicketService struct {
	mu          sync.Mutex
	store       repository.TicketStore
	authorities repository.AuthorityRegistry
	escalator   *Escalator
	ids         *IDAllocator
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store       repository.TicketStore
	Authorities repository.AuthorityRegistry
	Escalator   *Escalator
	IDs         *IDAllocator
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Clock       func() time.Time
}

// TicketDraft is the committed output of the analysis pipeline.
type TicketDraft struct {
	Title       string
	Description string
	ImageURL    string
	Severity    domain.Severity
	Location    domain.Coordinates
	Address     string
	AuthorityID string
	AIAnalysis  *domain.AIAnalysis
	Drafts      *domain.Drafts
}

// Stats summarizes the corrected ticket list.
type Stats struct {
	Total      int
	Votes      int
	ByStatus   map[domain.TicketStatus]int
	BySeverity map[domain.Severity]int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		store:       deps.Store,
		authorities: deps.Authorities,
		escalator:   deps.Escalator,
		ids:         deps.IDs,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      observability.OrNop(deps.Logger),
		now:         deps.Clock,
	}
	if s.escalator == nil {
		s.escalator = NewEscalator(2 * time.Minute)
	}
	if s.ids == nil {
		s.ids = NewIDAllocator(nil)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ListTickets returns the corrected collection, newest first.
func (s *TicketService) ListTickets(ctx context.Context) ([]domain.Ticket, error) {
	now := s.now()
	tickets, fired, err := s.correct(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	s.afterEscalation(ctx, fired, now)
	return SortNewestFirst(tickets), nil
}

func (s *TicketService) correct(ctx context.Context, now time.Time) ([]domain.Ticket, []Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fired []Escalation
	tickets, err := repository.Transact(ctx, s.store, func(current []domain.Ticket) ([]domain.Ticket, bool, error) {
		var next []domain.Ticket
		next, fired = s.escalator.Apply(current, now)
		return next, len(fired) > 0, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return tickets, fired, nil
}

// GetTicket looks a ticket up in the corrected list.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	tickets, err := s.ListTickets(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tickets {
		if tickets[i].ID == id {
			t := tickets[i]
			return &t, nil
		}
	}
	return nil, notFound(id)
}

// Search matches query case-insensitively against id, title and description.
// An empty query returns the full list.
func (s *TicketService) Search(ctx context.Context, query string) ([]domain.Ticket, error) {
	tickets, err := s.ListTickets(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return tickets, nil
	}
	out := make([]domain.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if strings.Contains(strings.ToLower(t.ID), q) ||
			strings.Contains(strings.ToLower(t.Title), q) ||
			strings.Contains(strings.ToLower(t.Description), q) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Stats counts the corrected list per status and severity.
func (s *TicketService) Stats(ctx context.Context) (Stats, error) {
	tickets, err := s.ListTickets(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		Total:      len(tickets),
		ByStatus:   make(map[domain.TicketStatus]int, len(domain.TicketStatuses)),
		BySeverity: make(map[domain.Severity]int, len(domain.Severities)),
	}
	for _, st := range domain.TicketStatuses {
		stats.ByStatus[st] = 0
	}
	for _, sev := range domain.Severities {
		stats.BySeverity[sev] = 0
	}
	for _, t := range tickets {
		stats.ByStatus[t.Status]++
		stats.BySeverity[t.Severity]++
		stats.Votes += t.Votes
	}
	return stats, nil
}

// createAttempts bounds retries when a drawn id belongs to a record the store is holding.
const createAttempts = 3

// CreateTicket assigns an id, seeds the timeline and persists the ticket.
// Title and description are stored as given.
func (s *TicketService) CreateTicket(ctx context.Context, draft TicketDraft) (*domain.Ticket, error) {
	if !draft.Severity.Valid() {
		return nil, apperrors.NewValidationError("invalid severity", map[string]any{"severity": draft.Severity})
	}
	authority := s.authorityFor(draft.AuthorityID)

	now := s.now()
	var (
		created domain.Ticket
		fired   []Escalation
		err     error
	)
	held := make(map[string]struct{})
	s.mu.Lock()
	for attempt := 0; attempt < createAttempts; attempt++ {
		created, fired, err = s.insert(ctx, draft, authority, held, now)
		if !errors.Is(err, repository.ErrHeldID) {
			break
		}
		held[created.ID] = struct{}{}
	}
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	s.afterEscalation(ctx, fired, now)
	s.metrics.TicketCreated()
	s.logger.Info("ticket created",
		zap.String("ticket_id", created.ID),
		zap.String("severity", string(created.Severity)),
		zap.String("authority_id", created.AuthorityID))
	s.publishEvent(ctx, events.New(events.EventTicketCreated, created.ID, now, events.TicketCreatedPayload{
		AuthorityID: created.AuthorityID,
		Severity:    created.Severity,
		Title:       created.Title,
		Address:     created.Address,
	}))
	return &created, nil
}

// insert runs one create cycle. Ids in reserved are never drawn.
func (s *TicketService) insert(ctx context.Context, draft TicketDraft, authority domain.Authority, reserved map[string]struct{}, now time.Time) (domain.Ticket, []Escalation, error) {
	nowMs := now.UnixMilli()
	var (
		created domain.Ticket
		fired   []Escalation
	)
	_, err := repository.Transact(ctx, s.store, func(current []domain.Ticket) ([]domain.Ticket, bool, error) {
		next, esc := s.escalator.Apply(current, now)
		fired = esc

		taken := make(map[string]struct{}, len(next)+len(reserved))
		for _, t := range next {
			taken[t.ID] = struct{}{}
		}
		for id := range reserved {
			taken[id] = struct{}{}
		}
		id, err := s.ids.Next(taken)
		if err != nil {
			return nil, false, err
		}

		created = domain.Ticket{
			ID:          id,
			Title:       draft.Title,
			Description: draft.Description,
			ImageURL:    draft.ImageURL,
			Severity:    draft.Severity,
			Status:      domain.TicketStatusOpen,
			Location:    draft.Location,
			Address:     draft.Address,
			CreatedAt:   nowMs,
			UpdatedAt:   nowMs,
			AuthorityID: authority.ID,
			AIAnalysis:  draft.AIAnalysis,
			Drafts:      draft.Drafts,
			Timeline: []domain.TimelineEvent{
				{
					Timestamp:   now.Add(analysisEventDelay).UnixMilli(),
					Title:       domain.EventTitleAnalyzed,
					Description: fmt.Sprintf("Severity rated as %s. Routed to %s.", draft.Severity, authority.Name),
					Icon:        domain.IconAnalyzed,
				},
				{
					Timestamp:   nowMs,
					Title:       domain.EventTitleCreated,
					Description: "Issue reported by citizen.",
					Icon:        domain.IconCreated,
				},
			},
		}
		created = created.Clone()
		return append(next, created), true, nil
	})
	return created, fired, err
}

// Vote adds exactly one vote. Unknown ids return a not-found error and leave
// the collection untouched.
func (s *TicketService) Vote(ctx context.Context, id string) (*domain.Ticket, error) {
	updated, err := s.mutateTicket(ctx, id, func(t domain.Ticket, now time.Time) (domain.Ticket, bool, error) {
		next := t.Clone()
		next.Votes++
		return next, true, nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Voted()
	s.publishEvent(ctx, events.New(events.EventTicketVoted, updated.ID, s.now(), events.TicketVotedPayload{Votes: updated.Votes}))
	return updated, nil
}

// AppendTimelineEvent prepends event and bumps updatedAt. A zero timestamp is
// filled with the current time.
func (s *TicketService) AppendTimelineEvent(ctx context.Context, id string, event domain.TimelineEvent) (*domain.Ticket, error) {
	if strings.TrimSpace(event.Title) == "" {
		return nil, apperrors.NewValidationError("timeline event title required", nil)
	}
	updated, err := s.mutateTicket(ctx, id, func(t domain.Ticket, now time.Time) (domain.Ticket, bool, error) {
		if event.Timestamp == 0 {
			event.Timestamp = now.UnixMilli()
		}
		next := t.WithEvent(event)
		next.UpdatedAt = now.UnixMilli()
		return next, true, nil
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.New(events.EventTimelineEventAdded, updated.ID, s.now(), events.TimelineEventAddedPayload{
		Title: event.Title,
		Icon:  event.Icon,
	}))
	return updated, nil
}

// SetCommissionerResponse stores the persona text together with its timeline
// event. A ticket that already has a response is returned unchanged with
// applied=false.
func (s *TicketService) SetCommissionerResponse(ctx context.Context, id, response string) (ticket *domain.Ticket, applied bool, err error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, false, apperrors.NewValidationError("commissioner response is empty", nil)
	}
	updated, err := s.mutateTicket(ctx, id, func(t domain.Ticket, now time.Time) (domain.Ticket, bool, error) {
		applied = false
		if t.CommissionerResponse != "" {
			return t, false, nil
		}
		next := t.WithEvent(domain.TimelineEvent{
			Timestamp:   now.UnixMilli(),
			Title:       domain.EventTitleOfficial,
			Description: "Virtual Commissioner has acknowledged the ticket.",
			Icon:        domain.IconOfficial,
		})
		next.CommissionerResponse = response
		next.UpdatedAt = now.UnixMilli()
		applied = true
		return next, true, nil
	})
	if err != nil {
		return nil, false, err
	}
	if applied {
		s.publishEvent(ctx, events.New(events.EventCommissionerResponded, updated.ID, s.now(), events.CommissionerRespondedPayload{
			Preview: preview(response, 80),
		}))
	}
	return updated, applied, nil
}

// mutateTicket runs the escalation rule and then fn against one ticket inside a
// single store transaction. Nothing is written when neither changed anything.
func (s *TicketService) mutateTicket(ctx context.Context, id string, fn func(domain.Ticket, time.Time) (domain.Ticket, bool, error)) (*domain.Ticket, error) {
	now := s.now()
	var (
		updated domain.Ticket
		fired   []Escalation
	)
	s.mu.Lock()
	_, err := repository.Transact(ctx, s.store, func(current []domain.Ticket) ([]domain.Ticket, bool, error) {
		idx := indexOf(current, id)
		if idx < 0 {
			return nil, false, notFound(id)
		}
		next, esc := s.escalator.Apply(current, now)
		fired = esc
		changed, touched, err := fn(next[idx], now)
		if err != nil {
			return nil, false, err
		}
		next[idx] = changed
		updated = changed.Clone()
		return next, touched || len(esc) > 0, nil
	})
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, ErrTicketNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update ticket %s: %w", id, err)
	}
	s.afterEscalation(ctx, fired, now)
	return &updated, nil
}

// authorityFor never fails: unknown or empty ids route to the default authority.
func (s *TicketService) authorityFor(id string) domain.Authority {
	if s.authorities == nil {
		return domain.Authority{ID: id, Name: id}
	}
	if a, ok := s.authorities.GetByID(id); ok {
		return a
	}
	def := s.authorities.Default()
	if strings.TrimSpace(id) != "" {
		s.logger.Warn("unknown authority on draft; routing to default",
			zap.String("authority_id", id),
			zap.String("default_authority_id", def.ID))
	}
	return def
}

func (s *TicketService) afterEscalation(ctx context.Context, fired []Escalation, now time.Time) {
	if len(fired) == 0 {
		return
	}
	s.metrics.TicketsEscalated(len(fired))
	for _, e := range fired {
		s.logger.Info("ticket auto-escalated",
			zap.String("ticket_id", e.TicketID),
			zap.String("old_severity", string(e.OldSeverity)),
			zap.String("new_severity", string(e.NewSeverity)),
			zap.Duration("age", e.Age))
		s.publishEvent(ctx, events.New(events.EventTicketEscalated, e.TicketID, now, events.TicketEscalatedPayload{
			OldSeverity: e.OldSeverity,
			NewSeverity: e.NewSeverity,
			AgeMinutes:  int64(e.Age / time.Minute),
		}))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func indexOf(tickets []domain.Ticket, id string) int {
	for i := range tickets {
		if tickets[i].ID == id {
			return i
		}
	}
	return -1
}

func notFound(id string) error {
	return apperrors.NewNotFound("ticket", ErrTicketNotFound, map[string]any{"id": id})
}

func preview(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
