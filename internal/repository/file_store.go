package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
	"github.com/spec-kit/civic-ticket-service/internal/observability"
)

// FileTicketStore keeps the collection as one JSON document on disk.
// Writes go to a temp file that is renamed over the target, so readers see
// either the old or the new collection.
type FileTicketStore struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewFileTicketStore creates the parent directory if needed.
func NewFileTicketStore(path string, logger *zap.Logger) (*FileTicketStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return &FileTicketStore{path: path, logger: observability.OrNop(logger)}, nil
}

func (s *FileTicketStore) LoadAll(ctx context.Context) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked().tickets, nil
}

func (s *FileTicketStore) SaveAll(ctx context.Context, tickets []domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(s.loadLocked(), tickets)
}

func (s *FileTicketStore) Transact(ctx context.Context, fn MutateFunc) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.loadLocked()
	next, changed, err := fn(cloneTickets(current.tickets))
	if err != nil {
		return nil, err
	}
	if !changed {
		return current.tickets, nil
	}
	if err := s.saveLocked(current, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *FileTicketStore) loadLocked() slot {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("ticket store unreadable; treating as empty", zap.String("path", s.path), zap.Error(err))
		}
		return decodeSlot(nil, s.logger)
	}
	return decodeSlot(payload, s.logger)
}

func (s *FileTicketStore) saveLocked(current slot, tickets []domain.Ticket) error {
	payload, err := current.encode(tickets)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tickets-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write tickets: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync tickets: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace ticket file: %w", err)
	}
	return nil
}
