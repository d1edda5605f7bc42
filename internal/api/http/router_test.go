package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-ticket-service/internal/api/dto"
	"github.com/spec-kit/civic-ticket-service/internal/api/http/handlers"
	"github.com/spec-kit/civic-ticket-service/internal/domain"
	"github.com/spec-kit/civic-ticket-service/internal/evidence"
	"github.com/spec-kit/civic-ticket-service/internal/genai"
	"github.com/spec-kit/civic-ticket-service/internal/geo"
	"github.com/spec-kit/civic-ticket-service/internal/observability"
	"github.com/spec-kit/civic-ticket-service/internal/pipeline"
	"github.com/spec-kit/civic-ticket-service/internal/repository"
	"github.com/spec-kit/civic-ticket-service/internal/service"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x01}, 64)...)

type queueSpy struct {
	mu  sync.Mutex
	ids []string
}

func (q *queueSpy) Enqueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return true
}

func (q *queueSpy) enqueued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.ids...)
}

type placeBook map[string]domain.Coordinates

func (p placeBook) Search(ctx context.Context, query string) (domain.Coordinates, error) {
	c, ok := p[query]
	if !ok {
		return domain.Coordinates{}, geo.ErrNoResults
	}
	return c, nil
}

type straightRouter struct{}

func (straightRouter) Route(ctx context.Context, from, to domain.Coordinates) (geo.Route, error) {
	return geo.Route{Path: []domain.Coordinates{from, to}, DistanceMeters: 1000, DurationSeconds: 120}, nil
}

type testServer struct {
	app   *fiber.App
	queue *queueSpy
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	reg, err := repository.NewAuthorityRegistry(repository.DefaultAuthorities(), "auth_muni")
	require.NoError(t, err)

	store := repository.NewMemoryTicketStore()
	metrics := observability.NewMetrics()
	tickets := service.NewTicketService(service.TicketDependencies{
		Store:       store,
		Authorities: reg,
		Escalator:   service.NewEscalator(2 * time.Minute),
		Metrics:     metrics,
	})
	windows, err := pipeline.NewResolutionTable(map[string]time.Duration{"High": 24 * time.Hour})
	require.NoError(t, err)
	pipe := pipeline.New(pipeline.Dependencies{
		Analyzer:    genai.NewStubAnalyzer(),
		Authorities: reg,
		Windows:     windows,
		Metrics:     metrics,
	})
	ev, err := evidence.NewStore(t.TempDir(), 1024)
	require.NoError(t, err)
	places := placeBook{
		"Central Station": {Lat: 12.9700, Lng: 77.5900},
		"City Park":       {Lat: 12.9800, Lng: 77.6000},
	}
	finder := geo.NewHazardFinder(places, straightRouter{}, tickets, 0.5)

	queue := &queueSpy{}
	app := fiber.New()
	RegisterMiddlewares(app, nil, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:      handlers.NewHealthHandler("civic-ticket-service", "test", store, nil, nil),
		Tickets:     handlers.NewTicketsHandler(tickets, queue),
		Reports:     handlers.NewReportsHandler(pipe, ev),
		Routes:      handlers.NewRoutesHandler(finder),
		Evidence:    handlers.NewEvidenceHandler(ev),
		Authorities: handlers.NewAuthoritiesHandler(reg),
		Metrics:     metrics.Registry(),
	})
	return &testServer{app: app, queue: queue}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (s *testServer) analyze(t *testing.T, fields map[string]string, image []byte) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if image != nil {
		part, err := w.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(fiber.MethodPost, "/reports/analyze", &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

type envelope[T any] struct {
	Data  T `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decode[T any](t *testing.T, raw []byte) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return env
}

func createTicket(t *testing.T, s *testServer, req dto.CreateTicketRequest) dto.TicketResponse {
	t.Helper()
	status, body := s.do(t, fiber.MethodPost, "/tickets", req)
	require.Equal(t, fiber.StatusCreated, status, string(body))
	return decode[dto.TicketResponse](t, body).Data
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, fiber.MethodGet, "/health/live", nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, body := s.do(t, fiber.MethodGet, "/health/ready", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(body), `"store":"ok"`)
	assert.NotContains(t, string(body), "postgres")
}

func TestAnalyzeReportFromText(t *testing.T) {
	s := newTestServer(t)

	status, body := s.analyze(t, map[string]string{
		"text":    "Water leak from a burst pipe",
		"address": "MG Road, Bengaluru",
		"lat":     "12.9716",
		"lng":     "77.5946",
	}, nil)
	require.Equal(t, fiber.StatusOK, status, string(body))

	got := decode[dto.AnalysisResponse](t, body).Data
	assert.Equal(t, "ready", got.State)
	assert.False(t, got.Fallback)
	assert.Equal(t, domain.SeverityHigh, got.Severity)
	assert.Equal(t, "auth_water", got.Authority.ID)
	assert.Equal(t, "MG Road, Bengaluru", got.Address)
	assert.InDelta(t, 12.9716, got.Location.Lat, 1e-9)
	assert.NotEmpty(t, got.Drafts.EmailSubject)
	assert.Empty(t, got.ImageURL)
}

func TestAnalyzeReportStoresEvidence(t *testing.T) {
	s := newTestServer(t)

	status, body := s.analyze(t, map[string]string{"text": "pothole"}, pngBytes)
	require.Equal(t, fiber.StatusOK, status, string(body))
	got := decode[dto.AnalysisResponse](t, body).Data
	require.True(t, strings.HasPrefix(got.ImageURL, evidence.URLPrefix), got.ImageURL)
	assert.Equal(t, "Unknown Location", got.Address)

	req := httptest.NewRequest(fiber.MethodGet, got.ImageURL, nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get(fiber.HeaderContentType))
	served, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, served)
}

func TestAnalyzeReportValidation(t *testing.T) {
	s := newTestServer(t)

	status, body := s.analyze(t, map[string]string{}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", decode[any](t, body).Error.Code)

	status, _ = s.analyze(t, map[string]string{"text": "pothole", "lat": "north", "lng": "1"}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = s.analyze(t, map[string]string{"text": "pothole"}, []byte("plain text, not an image"))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", decode[any](t, body).Error.Code)

	status, body = s.analyze(t, map[string]string{"text": "pothole"}, append(append([]byte(nil), pngBytes...), bytes.Repeat([]byte{0}, 2048)...))
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, status)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", decode[any](t, body).Error.Code)
}

func TestCreateTicketAppliesSeverityOverride(t *testing.T) {
	s := newTestServer(t)

	ticket := createTicket(t, s, dto.CreateTicketRequest{
		Title:            "Burst water main",
		Description:      "Water flooding the junction",
		Severity:         "emergency",
		DetectedSeverity: "High",
		AuthorityID:      "auth_water",
		Location:         &domain.Coordinates{Lat: 12.97, Lng: 77.59},
		Address:          "MG Road",
		DetectedObjects:  []string{"water leak"},
		Confidence:       0.9,
		Reasoning:        "visible flooding",
		Drafts:           &dto.DraftsPayload{EmailSubject: "Leak", EmailBody: "Body", WhatsappMessage: "Msg"},
	})

	assert.Equal(t, domain.SeverityEmergency, ticket.Severity)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, "auth_water", ticket.AuthorityID)
	require.NotNil(t, ticket.AIAnalysis)
	assert.Equal(t, domain.SeverityHigh, ticket.AIAnalysis.DetectedSeverity)
	require.Len(t, ticket.Timeline, 2)
	assert.Equal(t, domain.EventTitleAnalyzed, ticket.Timeline[0].Title)
	assert.Equal(t, "Severity rated as Emergency. Routed to Metro Water Supply Board.", ticket.Timeline[0].Description)
	assert.Equal(t, domain.EventTitleCreated, ticket.Timeline[1].Title)
	require.NotNil(t, ticket.Drafts)
	assert.Equal(t, "Leak", ticket.Drafts.EmailSubject)
}

func TestCreateTicketValidation(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, fiber.MethodPost, "/tickets", dto.CreateTicketRequest{Title: "x", Severity: "Catastrophic"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.do(t, fiber.MethodPost, "/tickets", dto.CreateTicketRequest{Title: "x"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.do(t, fiber.MethodPost, "/tickets", dto.CreateTicketRequest{Severity: "Low"})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestCreateTicketUnknownAuthorityRoutesToDefault(t *testing.T) {
	s := newTestServer(t)

	ticket := createTicket(t, s, dto.CreateTicketRequest{Title: "Broken bench", DetectedSeverity: "Low", AuthorityID: "auth_parks"})
	assert.Equal(t, "auth_muni", ticket.AuthorityID)
	assert.Equal(t, domain.SeverityLow, ticket.Severity)
}

func TestTicketLifecycleEndpoints(t *testing.T) {
	s := newTestServer(t)
	first := createTicket(t, s, dto.CreateTicketRequest{Title: "Pothole on Elm Street", DetectedSeverity: "Medium"})
	second := createTicket(t, s, dto.CreateTicketRequest{Title: "Garbage pile", Description: "Near the market", DetectedSeverity: "Low"})

	status, body := s.do(t, fiber.MethodGet, "/tickets/"+first.ID, nil)
	require.Equal(t, fiber.StatusOK, status, string(body))
	assert.Equal(t, first.ID, decode[dto.TicketResponse](t, body).Data.ID)
	assert.Equal(t, []string{first.ID}, s.queue.enqueued())

	status, body = s.do(t, fiber.MethodPost, "/tickets/"+first.ID+"/votes", nil)
	require.Equal(t, fiber.StatusOK, status, string(body))
	assert.Equal(t, 1, decode[dto.TicketResponse](t, body).Data.Votes)

	status, body = s.do(t, fiber.MethodPost, "/tickets/"+second.ID+"/timeline", dto.TimelineEventRequest{
		Title:       "Crew Dispatched",
		Description: "Sanitation crew on the way.",
		Icon:        "fa-truck",
	})
	require.Equal(t, fiber.StatusCreated, status, string(body))
	updated := decode[dto.TicketResponse](t, body).Data
	require.Len(t, updated.Timeline, 3)
	assert.Equal(t, "Crew Dispatched", updated.Timeline[0].Title)
	assert.NotZero(t, updated.Timeline[0].Timestamp)

	status, body = s.do(t, fiber.MethodGet, "/tickets", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, decode[[]dto.TicketResponse](t, body).Data, 2)

	status, body = s.do(t, fiber.MethodGet, "/tickets?q=market", nil)
	require.Equal(t, fiber.StatusOK, status)
	found := decode[[]dto.TicketResponse](t, body).Data
	require.Len(t, found, 1)
	assert.Equal(t, second.ID, found[0].ID)

	status, body = s.do(t, fiber.MethodGet, "/tickets/stats", nil)
	require.Equal(t, fiber.StatusOK, status, string(body))
	stats := decode[dto.StatsResponse](t, body).Data
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Votes)
	assert.Equal(t, 2, stats.ByStatus["Open"])
	assert.Equal(t, 1, stats.BySeverity["Low"])
}

func TestUnknownTicketReturnsNotFound(t *testing.T) {
	s := newTestServer(t)

	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{fiber.MethodGet, "/tickets/9999", nil},
		{fiber.MethodPost, "/tickets/9999/votes", nil},
		{fiber.MethodPost, "/tickets/9999/timeline", dto.TimelineEventRequest{Title: "Note"}},
	} {
		status, body := s.do(t, tc.method, tc.path, tc.body)
		assert.Equal(t, fiber.StatusNotFound, status, tc.path)
		env := decode[any](t, body)
		assert.Equal(t, "NOT_FOUND", env.Error.Code, tc.path)
		assert.Equal(t, "9999", env.Error.Details["id"], tc.path)
	}
	assert.Empty(t, s.queue.enqueued())
}

func TestHazardsEndpoint(t *testing.T) {
	s := newTestServer(t)
	near := createTicket(t, s, dto.CreateTicketRequest{
		Title:            "Open manhole",
		DetectedSeverity: "High",
		Location:         &domain.Coordinates{Lat: 12.9750, Lng: 77.5950},
	})
	createTicket(t, s, dto.CreateTicketRequest{
		Title:            "Far away pothole",
		DetectedSeverity: "Low",
		Location:         &domain.Coordinates{Lat: 13.2, Lng: 77.9},
	})
	createTicket(t, s, dto.CreateTicketRequest{Title: "No location", DetectedSeverity: "Low"})

	status, body := s.do(t, fiber.MethodGet, "/routes/hazards?from=Central%20Station&to=City%20Park", nil)
	require.Equal(t, fiber.StatusOK, status, string(body))
	report := decode[dto.HazardReportResponse](t, body).Data
	assert.Len(t, report.Path, 2)
	require.Len(t, report.Hazards, 1)
	assert.Equal(t, near.ID, report.Hazards[0].Ticket.ID)

	status, _ = s.do(t, fiber.MethodGet, "/routes/hazards?from=Central%20Station", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = s.do(t, fiber.MethodGet, "/routes/hazards?from=Atlantis&to=City%20Park", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", decode[any](t, body).Error.Code)
}

func TestAuthoritiesAndMetrics(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, fiber.MethodGet, "/authorities", nil)
	require.Equal(t, fiber.StatusOK, status)
	list := decode[[]dto.AuthorityResponse](t, body).Data
	require.Len(t, list, 4)
	assert.Equal(t, "auth_muni", list[0].ID)
	assert.Equal(t, "Corporation", list[0].Type)

	createTicket(t, s, dto.CreateTicketRequest{Title: "Pothole", DetectedSeverity: "Low"})
	status, body = s.do(t, fiber.MethodGet, "/metrics", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(body), "tickets_created_total")
}

func TestUnknownEvidenceAndRoutes(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, fiber.MethodGet, "/evidence/../../etc/passwd", nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body := s.do(t, fiber.MethodGet, "/evidence/"+strings.Repeat("a", 64)+".png", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", decode[any](t, body).Error.Code)

	status, _ = s.do(t, fiber.MethodGet, "/no-such-route", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}
