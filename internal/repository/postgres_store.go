package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
	"github.com/spec-kit/civic-ticket-service/internal/observability"
)

// PostgresTicketStore keeps the collection as a JSONB document in one ticket_slots row.
type PostgresTicketStore struct {
	pool   *pgxpool.Pool
	slot   string
	logger *zap.Logger
}

// NewPostgresTicketStore instantiates the store. The ticket_slots table comes from migrations.
func NewPostgresTicketStore(pool *pgxpool.Pool, slot string, logger *zap.Logger) *PostgresTicketStore {
	return &PostgresTicketStore{pool: pool, slot: slot, logger: observability.OrNop(logger)}
}

func (s *PostgresTicketStore) LoadAll(ctx context.Context) ([]domain.Ticket, error) {
	const query = `SELECT payload FROM ticket_slots WHERE slot=$1`
	var payload []byte
	if err := s.pool.QueryRow(ctx, query, s.slot).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []domain.Ticket{}, nil
		}
		return nil, fmt.Errorf("load slot %s: %w", s.slot, err)
	}
	return decodeSlot(payload, s.logger).tickets, nil
}

// SaveAll goes through Transact so held records in the row are read back and kept.
func (s *PostgresTicketStore) SaveAll(ctx context.Context, tickets []domain.Ticket) error {
	_, err := s.Transact(ctx, replaceWith(tickets))
	return err
}

// Transact locks the slot row for the duration of the cycle.
func (s *PostgresTicketStore) Transact(ctx context.Context, fn MutateFunc) (result []domain.Ticket, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx,
		`INSERT INTO ticket_slots (slot) VALUES ($1) ON CONFLICT (slot) DO NOTHING`, s.slot); err != nil {
		return nil, fmt.Errorf("ensure slot %s: %w", s.slot, err)
	}

	var payload []byte
	if err = tx.QueryRow(ctx,
		`SELECT payload FROM ticket_slots WHERE slot=$1 FOR UPDATE`, s.slot).Scan(&payload); err != nil {
		return nil, fmt.Errorf("lock slot %s: %w", s.slot, err)
	}
	current := decodeSlot(payload, s.logger)

	next, changed, err := fn(cloneTickets(current.tickets))
	if err != nil {
		return nil, err
	}
	result = current.tickets
	if changed {
		encoded, encErr := current.encode(next)
		if encErr != nil {
			err = encErr
			return nil, err
		}
		if _, err = tx.Exec(ctx,
			`UPDATE ticket_slots SET payload=$2::jsonb, version=version+1, updated_at=NOW() WHERE slot=$1`,
			s.slot, string(encoded)); err != nil {
			return nil, fmt.Errorf("update slot %s: %w", s.slot, err)
		}
		result = next
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}
