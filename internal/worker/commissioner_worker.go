package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
	"github.com/spec-kit/civic-ticket-service/internal/events"
	"github.com/spec-kit/civic-ticket-service/internal/observability"
)

const (
	defaultQueueSize      = 64
	defaultPersonaTimeout = 30 * time.Second
)

// PersonaRunner produces the commissioner text for a committed ticket.
type PersonaRunner interface {
	Persona(ctx context.Context, ticket domain.Ticket) (string, error)
}

// TicketResponder is the slice of the lifecycle API the worker needs.
type TicketResponder interface {
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	SetCommissionerResponse(ctx context.Context, id, response string) (*domain.Ticket, bool, error)
}

// CommissionerOptions tunes the worker.
type CommissionerOptions struct {
	QueueSize int
	Timeout   time.Duration
}

// CommissionerWorker runs the persona stage for tickets one at a time.
// A ticket id is queued at most once while it is pending or running.
type CommissionerWorker struct {
	tickets TicketResponder
	persona PersonaRunner
	logger  *zap.Logger
	metrics *observability.Metrics
	timeout time.Duration

	jobs     chan string
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewCommissionerWorker builds the worker; call Run to start consuming.
func NewCommissionerWorker(tickets TicketResponder, persona PersonaRunner, logger *zap.Logger, metrics *observability.Metrics, opts CommissionerOptions) *CommissionerWorker {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultPersonaTimeout
	}
	return &CommissionerWorker{
		tickets:  tickets,
		persona:  persona,
		logger:   observability.OrNop(logger),
		metrics:  metrics,
		timeout:  opts.Timeout,
		jobs:     make(chan string, opts.QueueSize),
		inflight: make(map[string]struct{}),
	}
}

// Register enqueues every newly created ticket.
func (w *CommissionerWorker) Register(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventTicketCreated, func(ctx context.Context, e events.Event) error {
		w.Enqueue(e.TicketID)
		return nil
	})
}

// Enqueue schedules id without blocking. It reports false when id is already
// queued or running, or when the queue is full.
func (w *CommissionerWorker) Enqueue(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inflight[id]; busy {
		return false
	}
	select {
	case w.jobs <- id:
		w.inflight[id] = struct{}{}
		return true
	default:
		w.logger.Warn("commissioner queue full; dropping job", zap.String("ticket_id", id))
		return false
	}
}

// Pending reports whether id is queued or running.
func (w *CommissionerWorker) Pending(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.inflight[id]
	return ok
}

// Run consumes jobs sequentially until ctx is cancelled.
func (w *CommissionerWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-w.jobs:
			if err := w.Process(ctx, id); err != nil {
				w.logger.Warn("commissioner response failed", zap.String("ticket_id", id), zap.Error(err))
			}
			w.release(id)
		}
	}
}

// Process runs the persona stage for one ticket. Tickets that already carry a
// response are skipped without calling the model.
func (w *CommissionerWorker) Process(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticket, err := w.tickets.GetTicket(ctx, id)
	if err != nil {
		w.metrics.CommissionerResponse("lookup_error")
		return err
	}
	if ticket.CommissionerResponse != "" {
		w.metrics.CommissionerResponse("skipped")
		return nil
	}

	reply, err := w.persona.Persona(ctx, *ticket)
	if err != nil {
		w.metrics.CommissionerResponse("error")
		return err
	}

	_, applied, err := w.tickets.SetCommissionerResponse(ctx, id, reply)
	if err != nil {
		w.metrics.CommissionerResponse("error")
		return err
	}
	if applied {
		w.metrics.CommissionerResponse("applied")
		w.logger.Info("commissioner responded", zap.String("ticket_id", id))
	} else {
		w.metrics.CommissionerResponse("skipped")
	}
	return nil
}

func (w *CommissionerWorker) release(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, id)
}
