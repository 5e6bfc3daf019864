package service

import (
	"github.com/noah-isme/sis-registration-api/internal/models"
)

// MeetingConflict describes one detected overlap between a meeting of an
// existing section and a meeting of a candidate section on a shared day.
type MeetingConflict struct {
	Day                string `json:"day"`
	ExistingSectionID  string `json:"existing_section_id"`
	CandidateSectionID string `json:"candidate_section_id"`
	ExistingStart      int    `json:"existing_start"`
	ExistingEnd        int    `json:"existing_end"`
	CandidateStart     int    `json:"candidate_start"`
	CandidateEnd       int    `json:"candidate_end"`
}

// intervalsOverlap applies the half-open overlap rule to two [start, end)
// windows in minutes since midnight. Touching boundaries do not overlap.
func intervalsOverlap(s1, e1, s2, e2 int) bool {
	return s1 < e2 && s2 < e1
}

// sharedDays returns the intersection of two meetings' day sets.
func sharedDays(a, b models.MeetingTime) []string {
	bDays := make(map[string]struct{})
	for _, d := range b.DayList() {
		bDays[d] = struct{}{}
	}
	var shared []string
	for _, d := range a.DayList() {
		if _, ok := bDays[d]; ok {
			shared = append(shared, d)
		}
	}
	return shared
}

// MeetingConflicts compares every candidate meeting against every existing
// meeting and returns one conflict per overlapping (meeting pair, day).
// Sections without meeting times are fully asynchronous and never conflict.
func MeetingConflicts(existing, candidate []models.MeetingTime) []MeetingConflict {
	var conflicts []MeetingConflict
	for _, e := range existing {
		for _, c := range candidate {
			if !intervalsOverlap(e.StartMinutes, e.EndMinutes, c.StartMinutes, c.EndMinutes) {
				continue
			}
			for _, day := range sharedDays(e, c) {
				conflicts = append(conflicts, MeetingConflict{
					Day:                day,
					ExistingSectionID:  e.SectionID,
					CandidateSectionID: c.SectionID,
					ExistingStart:      e.StartMinutes,
					ExistingEnd:        e.EndMinutes,
					CandidateStart:     c.StartMinutes,
					CandidateEnd:       c.EndMinutes,
				})
			}
		}
	}
	return conflicts
}

// CartConflicts performs the pairwise conflict check among cart sections,
// returning detected conflicts keyed by section ID. A conflicting pair is
// reported on both sides.
func CartConflicts(meetingsBySection map[string][]models.MeetingTime, sectionIDs []string) map[string][]MeetingConflict {
	out := make(map[string][]MeetingConflict)
	for i := 0; i < len(sectionIDs); i++ {
		for j := i + 1; j < len(sectionIDs); j++ {
			a, b := sectionIDs[i], sectionIDs[j]
			found := MeetingConflicts(meetingsBySection[a], meetingsBySection[b])
			if len(found) == 0 {
				continue
			}
			out[a] = append(out[a], found...)
			out[b] = append(out[b], found...)
		}
	}
	return out
}
