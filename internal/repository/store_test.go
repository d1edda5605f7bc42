package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
)

func sampleTicket(id string) domain.Ticket {
	return domain.Ticket{
		ID:        id,
		Title:     "Pothole",
		Severity:  domain.SeverityMedium,
		Status:    domain.TicketStatusOpen,
		CreatedAt: 1_700_000_000_000,
		UpdatedAt: 1_700_000_000_000,
		Timeline: []domain.TimelineEvent{
			{Timestamp: 1_700_000_000_000, Title: domain.EventTitleCreated, Icon: domain.IconCreated},
		},
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTicketStore()

	got, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, store.SaveAll(ctx, []domain.Ticket{sampleTicket("1001"), sampleTicket("1002")}))
	got, err = store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1001", got[0].ID)

	got[0].Timeline[0].Title = "mutated"
	again, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.EventTitleCreated, again[0].Timeline[0].Title)
}

func TestSaveRejectsInvalidTicket(t *testing.T) {
	store := NewMemoryTicketStore(sampleTicket("1001"))
	bad := sampleTicket("1002")
	bad.Timeline = nil

	err := store.SaveAll(context.Background(), []domain.Ticket{bad})
	assert.Error(t, err)
	assert.Equal(t, 0, store.Saves())
}

func TestTransactSkipsWriteWhenUnchanged(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTicketStore(sampleTicket("1001"))

	out, err := Transact(ctx, store, func(tickets []domain.Ticket) ([]domain.Ticket, bool, error) {
		return tickets, false, nil
	})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, 0, store.Saves())

	out, err = Transact(ctx, store, func(tickets []domain.Ticket) ([]domain.Ticket, bool, error) {
		return append(tickets, sampleTicket("1002")), true, nil
	})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, 1, store.Saves())
}

func TestTransactPropagatesMutateError(t *testing.T) {
	store := NewMemoryTicketStore(sampleTicket("1001"))
	boom := errors.New("boom")

	_, err := Transact(context.Background(), store, func(tickets []domain.Ticket) ([]domain.Ticket, bool, error) {
		return nil, false, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Saves())
}

type plainStore struct {
	tickets []domain.Ticket
	saves   int
}

func (p *plainStore) LoadAll(context.Context) ([]domain.Ticket, error) {
	return cloneTickets(p.tickets), nil
}

func (p *plainStore) SaveAll(_ context.Context, tickets []domain.Ticket) error {
	p.tickets = cloneTickets(tickets)
	p.saves++
	return nil
}

func TestTransactFallsBackToLoadSave(t *testing.T) {
	store := &plainStore{tickets: []domain.Ticket{sampleTicket("1001")}}

	out, err := Transact(context.Background(), store, func(tickets []domain.Ticket) ([]domain.Ticket, bool, error) {
		tickets[0].Votes = 3
		return tickets, true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, out[0].Votes)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, 3, store.tickets[0].Votes)
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	store, err := NewFileTicketStore(filepath.Join(t.TempDir(), "nested", "tickets.json"), nil)
	require.NoError(t, err)

	got, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileStoreCorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickets.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := NewFileTicketStore(path, nil)
	require.NoError(t, err)
	got, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileStoreHoldsInvalidRecordsAcrossWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tickets.json")
	severe := `{"id":"1002","severity":"Severe","status":"Open","timeline":[{"title":"Ticket Created"}]}`
	empty := `{"id":"1003","severity":"Low","status":"Open","timeline":[]}`
	payload := `[{"id":"1001","severity":"Low","status":"Open","timeline":[{"title":"Ticket Created"}]},` + severe + `,` + empty + `]`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	store, err := NewFileTicketStore(path, nil)
	require.NoError(t, err)
	got, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1001", got[0].ID)

	_, err = store.Transact(ctx, func(tickets []domain.Ticket) ([]domain.Ticket, bool, error) {
		tickets[0].Votes = 4
		return tickets, true, nil
	})
	require.NoError(t, err)
	require.NoError(t, store.SaveAll(ctx, append(got, sampleTicket("1004"))))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &records))
	require.Len(t, records, 4)
	assert.JSONEq(t, severe, string(records[2]))
	assert.JSONEq(t, empty, string(records[3]))

	got, err = store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1004", got[1].ID)
}

func TestSaveRejectsHeldID(t *testing.T) {
	bad := sampleTicket("1002")
	bad.Severity = "Critical"
	store := NewMemoryTicketStore(sampleTicket("1001"), bad)
	assert.Equal(t, 1, store.Held())

	got, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	err = store.SaveAll(context.Background(), append(got, sampleTicket("1002")))
	assert.ErrorIs(t, err, ErrHeldID)
	assert.Equal(t, 0, store.Saves())

	require.NoError(t, store.SaveAll(context.Background(), append(got, sampleTicket("1003"))))
	assert.Equal(t, 1, store.Held())
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tickets.json")

	first, err := NewFileTicketStore(path, nil)
	require.NoError(t, err)
	_, err = first.Transact(ctx, func(tickets []domain.Ticket) ([]domain.Ticket, bool, error) {
		return append(tickets, sampleTicket("1001")), true, nil
	})
	require.NoError(t, err)

	second, err := NewFileTicketStore(path, nil)
	require.NoError(t, err)
	got, err := second.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Pothole", got[0].Title)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not linger")
}

func TestFileStoreSavesEmptyAsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickets.json")
	store, err := NewFileTicketStore(path, nil)
	require.NoError(t, err)

	require.NoError(t, store.SaveAll(context.Background(), nil))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}
