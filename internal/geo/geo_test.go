package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
)

type memCache struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memCache) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]string{}
	}
	m.data[key] = value
	return nil
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "MG Road, Shivaji Nagar, Bengaluru",
		ShortAddress("MG Road, Shivaji Nagar, Bengaluru, Bangalore Urban, Karnataka, 560001, India"))
	assert.Equal(t, "Somewhere", ShortAddress("Somewhere"))
	assert.Equal(t, "", ShortAddress(""))
}

func TestNominatimReverse(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "CivicAI/test", r.Header.Get("User-Agent"))
		assert.Equal(t, "12.9716", r.URL.Query().Get("lat"))
		_, _ = w.Write([]byte(`{"lat":"12.9716","lon":"77.5946","display_name":"MG Road, Shivaji Nagar, Bengaluru, Karnataka, India"}`))
	}))
	defer srv.Close()

	cache := &memCache{}
	n := NewNominatim(NominatimOptions{BaseURL: srv.URL, UserAgent: "CivicAI/test", Cache: cache, MinInterval: -1}, nil)
	at := domain.Coordinates{Lat: 12.9716, Lng: 77.5946}

	addr, err := n.Reverse(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, "MG Road, Shivaji Nagar, Bengaluru", addr)

	addr, err = n.Reverse(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, "MG Road, Shivaji Nagar, Bengaluru", addr)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "second lookup served from cache")
}

func TestNominatimReverseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := NewNominatim(NominatimOptions{BaseURL: srv.URL, MinInterval: -1}, nil)
	_, err := n.Reverse(context.Background(), domain.Coordinates{Lat: 1, Lng: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNominatimSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		switch r.URL.Query().Get("q") {
		case "Cubbon Park":
			_, _ = w.Write([]byte(`[{"lat":"12.9763","lon":"77.5929","display_name":"Cubbon Park"}]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	n := NewNominatim(NominatimOptions{BaseURL: srv.URL, MinInterval: -1}, nil)
	got, err := n.Search(context.Background(), "Cubbon Park")
	require.NoError(t, err)
	assert.InDelta(t, 12.9763, got.Lat, 1e-9)
	assert.InDelta(t, 77.5929, got.Lng, 1e-9)

	_, err = n.Search(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, ErrNoResults)

	_, err = n.Search(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestNominatimRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"lat":"1","lon":"2"}]`))
	}))
	defer srv.Close()

	n := NewNominatim(NominatimOptions{BaseURL: srv.URL, MinInterval: time.Hour}, nil)
	_, err := n.Search(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = n.Search(ctx, "second")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOSRMRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/route/v1/driving/77.590000,12.970000;77.600000,12.970000", r.URL.Path)
		assert.Equal(t, "geojson", r.URL.Query().Get("geometries"))
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"distance":1085.2,"duration":140.5,
			"geometry":{"coordinates":[[77.59,12.97],[77.595,12.97],[77.60,12.97]]}}]}`))
	}))
	defer srv.Close()

	o := NewOSRM(srv.URL, "", nil)
	route, err := o.Route(context.Background(), domain.Coordinates{Lat: 12.97, Lng: 77.59}, domain.Coordinates{Lat: 12.97, Lng: 77.60})
	require.NoError(t, err)
	require.Len(t, route.Path, 3)
	assert.Equal(t, domain.Coordinates{Lat: 12.97, Lng: 77.595}, route.Path[1])
	assert.InDelta(t, 1085.2, route.DistanceMeters, 1e-9)
	assert.InDelta(t, 140.5, route.DurationSeconds, 1e-9)
}

func TestOSRMNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"NoRoute","message":"Impossible route","routes":[]}`))
	}))
	defer srv.Close()

	_, err := NewOSRM(srv.URL, "", nil).Route(context.Background(), domain.Coordinates{Lat: 1, Lng: 1}, domain.Coordinates{Lat: 2, Lng: 2})
	assert.Error(t, err)
}

func hazardTicket(id string, lat, lng float64) domain.Ticket {
	return domain.Ticket{ID: id, Location: domain.Coordinates{Lat: lat, Lng: lng}}
}

func TestScanHazards(t *testing.T) {
	path := []domain.Coordinates{{Lat: 12.97, Lng: 77.59}, {Lat: 12.97, Lng: 77.60}}
	tickets := []domain.Ticket{
		hazardTicket("near", 12.9705, 77.595), // ~56 m north of the path
		hazardTicket("on", 12.97, 77.592),
		hazardTicket("far", 12.972, 77.595), // ~220 m
		hazardTicket("past-end", 12.97, 77.603),
		hazardTicket("sentinel", 0, 0),
	}

	hazards := ScanHazards(path, tickets, DefaultHazardRadiusKm)
	require.Len(t, hazards, 2)
	assert.Equal(t, "on", hazards[0].Ticket.ID)
	assert.InDelta(t, 0, hazards[0].DistanceKm, 1e-4)
	assert.Equal(t, "near", hazards[1].Ticket.ID)
	assert.InDelta(t, 0.0556, hazards[1].DistanceKm, 0.002)

	assert.Empty(t, ScanHazards(nil, tickets, 1))
}

type stubGeocoder map[string]domain.Coordinates

func (s stubGeocoder) Search(ctx context.Context, q string) (domain.Coordinates, error) {
	c, ok := s[q]
	if !ok {
		return domain.Coordinates{}, ErrNoResults
	}
	return c, nil
}

type stubRouter struct{ route Route }

func (s stubRouter) Route(ctx context.Context, from, to domain.Coordinates) (Route, error) {
	return s.route, nil
}

type stubLister []domain.Ticket

func (s stubLister) ListTickets(ctx context.Context) ([]domain.Ticket, error) { return s, nil }

func TestHazardFinder(t *testing.T) {
	geocoder := stubGeocoder{"A": {Lat: 12.97, Lng: 77.59}, "B": {Lat: 12.97, Lng: 77.60}}
	router := stubRouter{route: Route{Path: []domain.Coordinates{{Lat: 12.97, Lng: 77.59}, {Lat: 12.97, Lng: 77.60}}}}
	finder := NewHazardFinder(geocoder, router, stubLister{hazardTicket("near", 12.9705, 77.595)}, 0)

	report, err := finder.Find(context.Background(), "A", "B")
	require.NoError(t, err)
	require.Len(t, report.Hazards, 1)
	assert.Equal(t, geocoder["A"], report.From)

	_, err = finder.Find(context.Background(), "A", "Nowhere")
	assert.True(t, errors.Is(err, ErrNoResults))
}
