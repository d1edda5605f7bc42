package pipeline

import (
	"fmt"
	"time"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
)

const day = 24 * time.Hour

// ResolutionTable maps severity to the expected resolution window quoted to citizens.
type ResolutionTable map[domain.Severity]time.Duration

// NewResolutionTable converts a configuration table keyed by severity name.
func NewResolutionTable(raw map[string]time.Duration) (ResolutionTable, error) {
	out := make(ResolutionTable, len(raw))
	for key, d := range raw {
		sev, err := domain.ParseSeverity(key)
		if err != nil {
			return nil, fmt.Errorf("resolution window: %w", err)
		}
		out[sev] = d
	}
	return out, nil
}

// Window renders the window for sev, e.g. "7 days" or "24 hours".
func (t ResolutionTable) Window(sev domain.Severity) string {
	d, ok := t[sev]
	if !ok || d <= 0 {
		return "the standard service window"
	}
	switch {
	case d%day == 0 && d != day:
		return plural(int64(d/day), "day")
	case d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	}
	return d.String()
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
