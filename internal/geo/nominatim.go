package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
	"github.com/spec-kit/civic-ticket-service/internal/observability"
)

const (
	// DefaultNominatimURL is the public Nominatim API endpoint.
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"
	// Nominatim usage policy: at most one request per second.
	defaultMinInterval = time.Second
	// addressParts keeps reverse-geocoded addresses short.
	addressParts = 3
)

// ErrNoResults is returned when a forward search matches nothing.
var ErrNoResults = errors.New("geocoder: no results")

// NominatimOptions configures the geocoder.
type NominatimOptions struct {
	BaseURL     string
	UserAgent   string
	Cache       Cache
	CacheTTL    time.Duration
	MinInterval time.Duration
	HTTPClient  *http.Client
}

// Nominatim is a rate-limited, optionally cached OpenStreetMap geocoder.
type Nominatim struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	cache       Cache
	cacheTTL    time.Duration
	minInterval time.Duration
	logger      *zap.Logger

	rateLimitLock sync.Mutex
	lastRequest   time.Time
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NewNominatim builds a geocoder. A negative MinInterval disables rate limiting.
func NewNominatim(opts NominatimOptions, logger *zap.Logger) *Nominatim {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultNominatimURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.MinInterval == 0 {
		opts.MinInterval = defaultMinInterval
	}
	return &Nominatim{
		httpClient:  opts.HTTPClient,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		userAgent:   opts.UserAgent,
		cache:       opts.Cache,
		cacheTTL:    opts.CacheTTL,
		minInterval: opts.MinInterval,
		logger:      observability.OrNop(logger),
	}
}

// Reverse returns the first three components of the place's display name.
func (n *Nominatim) Reverse(ctx context.Context, at domain.Coordinates) (string, error) {
	key := fmt.Sprintf("rev:%.5f,%.5f", at.Lat, at.Lng)
	if addr, ok := n.cached(ctx, key); ok {
		return addr, nil
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("lat", strconv.FormatFloat(at.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(at.Lng, 'f', -1, 64))

	var place nominatimPlace
	if err := n.get(ctx, "/reverse", params, &place); err != nil {
		return "", err
	}
	addr := ShortAddress(place.DisplayName)
	if addr == "" {
		return "", ErrNoResults
	}
	n.store(ctx, key, addr)
	return addr, nil
}

// Search resolves a free-text place name to coordinates.
func (n *Nominatim) Search(ctx context.Context, query string) (domain.Coordinates, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Coordinates{}, ErrNoResults
	}
	key := "fwd:" + strings.ToLower(query)
	if cached, ok := n.cached(ctx, key); ok {
		if c, err := parseLatLng(cached); err == nil {
			return c, nil
		}
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("q", query)

	var places []nominatimPlace
	if err := n.get(ctx, "/search", params, &places); err != nil {
		return domain.Coordinates{}, err
	}
	if len(places) == 0 {
		return domain.Coordinates{}, ErrNoResults
	}
	c, err := parseLatLng(places[0].Lat + "," + places[0].Lon)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("decode search result: %w", err)
	}
	n.store(ctx, key, fmt.Sprintf("%s,%s", places[0].Lat, places[0].Lon))
	return c, nil
}

// ShortAddress keeps the first three comma-separated components.
func ShortAddress(displayName string) string {
	var parts []string
	for _, p := range strings.Split(displayName, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
		if len(parts) == addressParts {
			break
		}
	}
	return strings.Join(parts, ", ")
}

func (n *Nominatim) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := n.enforceRateLimit(ctx); err != nil {
		return err
	}
	reqURL := fmt.Sprintf("%s%s?%s", n.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if n.userAgent != "" {
		req.Header.Set("User-Agent", n.userAgent)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("nominatim returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// enforceRateLimit spaces requests at least minInterval apart.
func (n *Nominatim) enforceRateLimit(ctx context.Context) error {
	if n.minInterval < 0 {
		return nil
	}
	n.rateLimitLock.Lock()
	defer n.rateLimitLock.Unlock()

	if wait := n.minInterval - time.Since(n.lastRequest); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	n.lastRequest = time.Now()
	return nil
}

func (n *Nominatim) cached(ctx context.Context, key string) (string, bool) {
	if n.cache == nil {
		return "", false
	}
	val, ok, err := n.cache.Get(ctx, key)
	if err != nil {
		n.logger.Warn("geocoder cache read failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return val, ok
}

func (n *Nominatim) store(ctx context.Context, key, val string) {
	if n.cache == nil {
		return
	}
	if err := n.cache.Set(ctx, key, val, n.cacheTTL); err != nil {
		n.logger.Warn("geocoder cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func parseLatLng(s string) (domain.Coordinates, error) {
	latStr, lngStr, ok := strings.Cut(s, ",")
	if !ok {
		return domain.Coordinates{}, fmt.Errorf("malformed coordinates %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return domain.Coordinates{}, err
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return domain.Coordinates{}, err
	}
	return domain.Coordinates{Lat: lat, Lng: lng}, nil
}
