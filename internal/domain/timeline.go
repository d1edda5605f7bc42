package domain

// Timeline event titles written by the core.
const (
	EventTitleCreated       = "Ticket Created"
	EventTitleAnalyzed      = "AI Analysis Complete"
	EventTitleAutoEscalated = "Auto-Escalated"
	EventTitleOfficial      = "Official Response"
)

// Icon tags for core-authored events.
const (
	IconCreated   = "fa-plus-circle"
	IconAnalyzed  = "fa-robot"
	IconEscalated = "fa-arrow-up"
	IconOfficial  = "fa-user-tie"
)

// TimelineEvent is an entry in a ticket's history. It has no identity of its own.
type TimelineEvent struct {
	Timestamp   int64  `json:"timestamp"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// CountEvents returns how many timeline entries carry the given title.
func CountEvents(timeline []TimelineEvent, title string) int {
	n := 0
	for _, ev := range timeline {
		if ev.Title == title {
			n++
		}
	}
	return n
}
