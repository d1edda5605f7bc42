package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityEmergency.AtLeast(SeverityHigh))
	assert.True(t, SeverityHigh.AtLeast(SeverityHigh))
	assert.False(t, SeverityMedium.AtLeast(SeverityHigh))
	assert.False(t, Severity("Critical").Valid())

	for i := 1; i < len(Severities); i++ {
		assert.Greater(t, Severities[i].Rank(), Severities[i-1].Rank())
	}
}

func TestParseEnums(t *testing.T) {
	sev, err := ParseSeverity(" emergency ")
	require.NoError(t, err)
	assert.Equal(t, SeverityEmergency, sev)

	_, err = ParseSeverity("urgent")
	assert.Error(t, err)

	status, err := ParseTicketStatus("InProgress")
	require.NoError(t, err)
	assert.Equal(t, TicketStatusInProgress, status)

	status, err = ParseTicketStatus("in progress")
	require.NoError(t, err)
	assert.Equal(t, TicketStatusInProgress, status)

	cat, err := ParseAuthorityCategory("water board")
	require.NoError(t, err)
	assert.Equal(t, CategoryWaterBoard, cat)
}

func TestCloneIsDeep(t *testing.T) {
	orig := Ticket{
		ID:         "0001",
		Severity:   SeverityLow,
		Status:     TicketStatusOpen,
		AIAnalysis: &AIAnalysis{DetectedObjects: []string{"pothole"}},
		Drafts:     &Drafts{EmailSubject: "subject"},
		Timeline:   []TimelineEvent{{Title: EventTitleCreated}},
	}

	cp := orig.Clone()
	cp.AIAnalysis.DetectedObjects[0] = "garbage"
	cp.Drafts.EmailSubject = "changed"
	cp.Timeline[0].Title = "changed"

	assert.Equal(t, "pothole", orig.AIAnalysis.DetectedObjects[0])
	assert.Equal(t, "subject", orig.Drafts.EmailSubject)
	assert.Equal(t, EventTitleCreated, orig.Timeline[0].Title)
}

func TestWithEventPrepends(t *testing.T) {
	orig := Ticket{ID: "0001", Timeline: []TimelineEvent{{Title: EventTitleCreated}}}
	next := orig.WithEvent(TimelineEvent{Title: EventTitleOfficial})

	require.Len(t, next.Timeline, 2)
	assert.Equal(t, EventTitleOfficial, next.Timeline[0].Title)
	assert.Len(t, orig.Timeline, 1)
	assert.Equal(t, 1, CountEvents(next.Timeline, EventTitleOfficial))
}

func TestValidate(t *testing.T) {
	valid := Ticket{
		ID:       "0001",
		Severity: SeverityMedium,
		Status:   TicketStatusOpen,
		Timeline: []TimelineEvent{{Title: EventTitleCreated}},
	}
	assert.NoError(t, valid.Validate())

	missingID := valid
	missingID.ID = " "
	assert.Error(t, missingID.Validate())

	noTimeline := valid
	noTimeline.Timeline = nil
	assert.Error(t, noTimeline.Validate())

	badStatus := valid
	badStatus.Status = "Closed"
	assert.Error(t, badStatus.Validate())
}
