package geo

import (
	"context"
	"fmt"
	"sort"

	"github.com/golang/geo/s2"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
)

// earthRadiusKm is the mean Earth radius used to turn s2 angles into distances.
const earthRadiusKm = 6371.01

// DefaultHazardRadiusKm flags tickets within 100 m of a route.
const DefaultHazardRadiusKm = 0.1

// Hazard is a ticket lying close to a route.
type Hazard struct {
	Ticket     domain.Ticket
	DistanceKm float64
}

// ScanHazards returns tickets within radiusKm of path, nearest first. Tickets
// at the (0,0) sentinel have no known location and are skipped.
func ScanHazards(path []domain.Coordinates, tickets []domain.Ticket, radiusKm float64) []Hazard {
	if len(path) == 0 {
		return nil
	}
	points := make([]s2.Point, len(path))
	for i, c := range path {
		points[i] = s2.PointFromLatLng(s2.LatLngFromDegrees(c.Lat, c.Lng))
	}
	line := s2.Polyline(points)

	var hazards []Hazard
	for _, t := range tickets {
		if t.Location.IsZero() {
			continue
		}
		p := s2.PointFromLatLng(s2.LatLngFromDegrees(t.Location.Lat, t.Location.Lng))
		var nearest s2.Point
		if len(line) == 1 {
			nearest = line[0]
		} else {
			nearest, _ = line.Project(p)
		}
		km := p.Distance(nearest).Radians() * earthRadiusKm
		if km <= radiusKm {
			hazards = append(hazards, Hazard{Ticket: t, DistanceKm: km})
		}
	}
	sort.SliceStable(hazards, func(i, j int) bool {
		return hazards[i].DistanceKm < hazards[j].DistanceKm
	})
	return hazards
}

// ForwardGeocoder resolves a place name.
type ForwardGeocoder interface {
	Search(ctx context.Context, query string) (domain.Coordinates, error)
}

// Router computes a path between two points.
type Router interface {
	Route(ctx context.Context, from, to domain.Coordinates) (Route, error)
}

// TicketLister supplies the corrected ticket list.
type TicketLister interface {
	ListTickets(ctx context.Context) ([]domain.Ticket, error)
}

// HazardReport is the result of a route scan.
type HazardReport struct {
	From    domain.Coordinates
	To      domain.Coordinates
	Route   Route
	Hazards []Hazard
}

// HazardFinder geocodes two place names, routes between them and flags nearby tickets.
type HazardFinder struct {
	geocoder ForwardGeocoder
	router   Router
	tickets  TicketLister
	radiusKm float64
}

// NewHazardFinder builds a finder; a non-positive radius uses DefaultHazardRadiusKm.
func NewHazardFinder(geocoder ForwardGeocoder, router Router, tickets TicketLister, radiusKm float64) *HazardFinder {
	if radiusKm <= 0 {
		radiusKm = DefaultHazardRadiusKm
	}
	return &HazardFinder{geocoder: geocoder, router: router, tickets: tickets, radiusKm: radiusKm}
}

// Find runs the full scan.
func (h *HazardFinder) Find(ctx context.Context, from, to string) (*HazardReport, error) {
	start, err := h.geocoder.Search(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", from, err)
	}
	end, err := h.geocoder.Search(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", to, err)
	}
	route, err := h.router.Route(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}
	tickets, err := h.tickets.ListTickets(ctx)
	if err != nil {
		return nil, err
	}
	return &HazardReport{
		From:    start,
		To:      end,
		Route:   route,
		Hazards: ScanHazards(route.Path, tickets, h.radiusKm),
	}, nil
}
