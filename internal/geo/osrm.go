package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
)

// DefaultOSRMURL is the public OSRM demo server.
const DefaultOSRMURL = "https://router.project-osrm.org"

// Route is a driving path between two points.
type Route struct {
	Path            []domain.Coordinates
	DistanceMeters  float64
	DurationSeconds float64
}

// OSRM asks an OSRM server for driving routes.
type OSRM struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// NewOSRM builds a router client. A nil httpClient gets a 30s timeout.
func NewOSRM(baseURL, userAgent string, httpClient *http.Client) *OSRM {
	if baseURL == "" {
		baseURL = DefaultOSRMURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &OSRM{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/"), userAgent: userAgent}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route returns the first route OSRM proposes from → to.
func (o *OSRM) Route(ctx context.Context, from, to domain.Coordinates) (Route, error) {
	reqURL := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=geojson",
		o.baseURL, from.Lng, from.Lat, to.Lng, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Route{}, fmt.Errorf("failed to create request: %w", err)
	}
	if o.userAgent != "" {
		req.Header.Set("User-Agent", o.userAgent)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return Route{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	var body osrmResponse
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Route{}, fmt.Errorf("osrm returned status %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Route{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return Route{}, fmt.Errorf("osrm: no route (%s %s)", body.Code, body.Message)
	}

	first := body.Routes[0]
	path := make([]domain.Coordinates, 0, len(first.Geometry.Coordinates))
	for _, pair := range first.Geometry.Coordinates {
		if len(pair) < 2 {
			continue
		}
		// GeoJSON order is lng, lat
		path = append(path, domain.Coordinates{Lat: pair[1], Lng: pair[0]})
	}
	return Route{Path: path, DistanceMeters: first.Distance, DurationSeconds: first.Duration}, nil
}
