package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
	"github.com/spec-kit/civic-ticket-service/internal/observability"
)

const redisTransactRetries = 5

// ErrStoreContention is returned when optimistic retries are exhausted.
var ErrStoreContention = errors.New("ticket store: too many concurrent writers")

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisTicketStore keeps the collection as one JSON value under the slot key.
type RedisTicketStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisTicketStore uses slot as the key name.
func NewRedisTicketStore(client *redis.Client, slot string, logger *zap.Logger) *RedisTicketStore {
	return &RedisTicketStore{client: client, key: slot, logger: observability.OrNop(logger)}
}

func (s *RedisTicketStore) LoadAll(ctx context.Context) ([]domain.Ticket, error) {
	current, err := s.load(ctx, s.client)
	if err != nil {
		return nil, err
	}
	return current.tickets, nil
}

// SaveAll goes through Transact so held records in the slot are read back and kept.
func (s *RedisTicketStore) SaveAll(ctx context.Context, tickets []domain.Ticket) error {
	_, err := s.Transact(ctx, replaceWith(tickets))
	return err
}

// Transact uses WATCH/MULTI so a concurrent writer aborts and retries the cycle.
func (s *RedisTicketStore) Transact(ctx context.Context, fn MutateFunc) ([]domain.Ticket, error) {
	var result []domain.Ticket
	txf := func(tx *redis.Tx) error {
		current, err := s.load(ctx, tx)
		if err != nil {
			return err
		}
		next, changed, err := fn(cloneTickets(current.tickets))
		if err != nil {
			return err
		}
		if !changed {
			result = current.tickets
			return nil
		}
		payload, err := current.encode(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, payload, 0)
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for attempt := 0; attempt < redisTransactRetries; attempt++ {
		err := s.client.Watch(ctx, txf, s.key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("ticket slot changed during transaction; retrying", zap.Int("attempt", attempt+1))
			continue
		}
		return nil, err
	}
	return nil, ErrStoreContention
}

func (s *RedisTicketStore) load(ctx context.Context, cmd stringGetter) (slot, error) {
	payload, err := cmd.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return decodeSlot(nil, s.logger), nil
		}
		return slot{}, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	return decodeSlot(payload, s.logger), nil
}
