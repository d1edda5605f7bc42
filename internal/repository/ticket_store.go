package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
)

// TicketStore persists the whole ticket collection under a single named slot.
// It carries no business rules: no indexing, querying or ordering.
type TicketStore interface {
	// LoadAll returns every valid persisted ticket. Missing or corrupt data
	// yields an empty collection; only transport failures are returned as
	// errors. Records failing validation are held back and survive writes.
	LoadAll(ctx context.Context) ([]domain.Ticket, error)
	// SaveAll replaces the valid tickets in one write, keeping held records.
	SaveAll(ctx context.Context, tickets []domain.Ticket) error
}

// MutateFunc derives the next collection from the current one. changed=false skips the write.
type MutateFunc func(tickets []domain.Ticket) (next []domain.Ticket, changed bool, err error)

// Transactor is implemented by stores that can guard a load→mutate→save cycle
// against concurrent writers.
type Transactor interface {
	Transact(ctx context.Context, fn MutateFunc) ([]domain.Ticket, error)
}

// Transact runs fn against the store's current collection and persists the
// result when fn reports a change. It returns the collection as it now stands.
func Transact(ctx context.Context, store TicketStore, fn MutateFunc) ([]domain.Ticket, error) {
	if tx, ok := store.(Transactor); ok {
		return tx.Transact(ctx, fn)
	}
	current, err := store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	next, changed, err := fn(current)
	if err != nil {
		return nil, err
	}
	if !changed {
		return current, nil
	}
	if err := store.SaveAll(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// ErrHeldID is returned when a write would reuse the id of a held record.
var ErrHeldID = errors.New("ticket id belongs to a held record")

// slot is a decoded collection. Records that fail validation are held: they
// never reach callers and every write carries them through unchanged.
type slot struct {
	tickets []domain.Ticket
	held    []json.RawMessage
	heldIDs map[string]struct{}
}

// decodeSlot never fails: an unreadable payload becomes an empty collection.
func decodeSlot(payload []byte, logger *zap.Logger) slot {
	out := slot{tickets: []domain.Ticket{}}
	if len(payload) == 0 {
		return out
	}
	var records []json.RawMessage
	if err := json.Unmarshal(payload, &records); err != nil {
		logger.Warn("ticket store payload unreadable; treating as empty", zap.Error(err))
		return out
	}
	for i, rec := range records {
		var t domain.Ticket
		err := json.Unmarshal(rec, &t)
		if err == nil {
			err = t.Validate()
		}
		if err != nil {
			logger.Warn("holding invalid ticket record", zap.Int("index", i), zap.Error(err))
			out.hold(rec)
			continue
		}
		out.tickets = append(out.tickets, t)
	}
	return out
}

// slotFromTickets builds a slot from in-memory values, holding the invalid ones.
func slotFromTickets(tickets []domain.Ticket) slot {
	out := slot{tickets: []domain.Ticket{}}
	for _, t := range tickets {
		if t.Validate() != nil {
			if rec, err := json.Marshal(t); err == nil {
				out.hold(rec)
			}
			continue
		}
		out.tickets = append(out.tickets, t.Clone())
	}
	return out
}

func (s *slot) hold(rec json.RawMessage) {
	s.held = append(s.held, append(json.RawMessage(nil), rec...))
	var head struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(rec, &head) == nil && head.ID != "" {
		if s.heldIDs == nil {
			s.heldIDs = make(map[string]struct{})
		}
		s.heldIDs[head.ID] = struct{}{}
	}
}

// with returns the slot holding next in place of the current tickets.
func (s slot) with(next []domain.Ticket) slot {
	return slot{tickets: cloneTickets(next), held: s.held, heldIDs: s.heldIDs}
}

// encode validates next and serializes it followed by the held records.
func (s slot) encode(next []domain.Ticket) ([]byte, error) {
	records := make([]json.RawMessage, 0, len(next)+len(s.held))
	for i := range next {
		if err := next[i].Validate(); err != nil {
			return nil, fmt.Errorf("refusing to persist: %w", err)
		}
		if _, clash := s.heldIDs[next[i].ID]; clash {
			return nil, fmt.Errorf("ticket %s: %w", next[i].ID, ErrHeldID)
		}
		rec, err := json.Marshal(next[i])
		if err != nil {
			return nil, fmt.Errorf("encode ticket %s: %w", next[i].ID, err)
		}
		records = append(records, rec)
	}
	records = append(records, s.held...)
	return json.Marshal(records)
}

func replaceWith(tickets []domain.Ticket) MutateFunc {
	return func([]domain.Ticket) ([]domain.Ticket, bool, error) {
		return tickets, true, nil
	}
}

func cloneTickets(tickets []domain.Ticket) []domain.Ticket {
	out := make([]domain.Ticket, len(tickets))
	for i := range tickets {
		out[i] = tickets[i].Clone()
	}
	return out
}
