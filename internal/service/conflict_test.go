package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-registration-api/internal/models"
)

func meeting(sectionID, days string, start, end int) models.MeetingTime {
	return models.MeetingTime{SectionID: sectionID, Days: days, StartMinutes: start, EndMinutes: end}
}

func TestIntervalsOverlap(t *testing.T) {
	assert.True(t, intervalsOverlap(540, 600, 570, 630))
	assert.True(t, intervalsOverlap(540, 600, 540, 600))
	assert.True(t, intervalsOverlap(540, 600, 599, 660))

	// Back-to-back windows share a boundary but no minute.
	assert.False(t, intervalsOverlap(540, 600, 600, 660))
	assert.False(t, intervalsOverlap(600, 660, 540, 600))
	assert.False(t, intervalsOverlap(540, 600, 700, 760))
}

func TestMeetingConflictsSharedDay(t *testing.T) {
	existing := []models.MeetingTime{meeting("sec-1", "MON,WED,FRI", 540, 590)}
	candidate := []models.MeetingTime{meeting("sec-2", "WED", 560, 620)}

	conflicts := MeetingConflicts(existing, candidate)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "WED", conflicts[0].Day)
	assert.Equal(t, "sec-1", conflicts[0].ExistingSectionID)
	assert.Equal(t, "sec-2", conflicts[0].CandidateSectionID)
}

func TestMeetingConflictsDisjointDays(t *testing.T) {
	existing := []models.MeetingTime{meeting("sec-1", "MON,WED", 540, 600)}
	candidate := []models.MeetingTime{meeting("sec-2", "TUE,THU", 540, 600)}

	assert.Empty(t, MeetingConflicts(existing, candidate))
}

func TestMeetingConflictsBackToBack(t *testing.T) {
	existing := []models.MeetingTime{meeting("sec-1", "MON", 540, 600)}
	candidate := []models.MeetingTime{meeting("sec-2", "MON", 600, 660)}

	assert.Empty(t, MeetingConflicts(existing, candidate))
}

func TestMeetingConflictsSymmetry(t *testing.T) {
	a := []models.MeetingTime{meeting("sec-1", "MON,TUE", 540, 620)}
	b := []models.MeetingTime{meeting("sec-2", "TUE", 600, 660)}

	forward := MeetingConflicts(a, b)
	backward := MeetingConflicts(b, a)
	assert.Equal(t, len(forward), len(backward))
	require.Len(t, forward, 1)
	assert.Equal(t, "TUE", forward[0].Day)
}

func TestMeetingConflictsAsyncSectionsNeverConflict(t *testing.T) {
	candidate := []models.MeetingTime{meeting("sec-2", "MON", 540, 600)}

	assert.Empty(t, MeetingConflicts(nil, candidate))
	assert.Empty(t, MeetingConflicts(candidate, nil))
	assert.Empty(t, MeetingConflicts(nil, nil))
}

func TestMeetingConflictsMultipleSharedDays(t *testing.T) {
	existing := []models.MeetingTime{meeting("sec-1", "MON,WED", 540, 600)}
	candidate := []models.MeetingTime{meeting("sec-2", "MON,WED", 550, 610)}

	conflicts := MeetingConflicts(existing, candidate)
	assert.Len(t, conflicts, 2)
}

func TestCartConflictsReportsBothSides(t *testing.T) {
	meetings := map[string][]models.MeetingTime{
		"sec-1": {meeting("sec-1", "MON", 540, 600)},
		"sec-2": {meeting("sec-2", "MON", 570, 630)},
		"sec-3": {meeting("sec-3", "FRI", 540, 600)},
	}

	out := CartConflicts(meetings, []string{"sec-1", "sec-2", "sec-3"})
	assert.Len(t, out["sec-1"], 1)
	assert.Len(t, out["sec-2"], 1)
	assert.Empty(t, out["sec-3"])
}

func TestCartConflictsCleanCart(t *testing.T) {
	meetings := map[string][]models.MeetingTime{
		"sec-1": {meeting("sec-1", "MON", 540, 600)},
		"sec-2": {meeting("sec-2", "MON", 600, 660)},
	}

	assert.Empty(t, CartConflicts(meetings, []string{"sec-1", "sec-2"}))
}
