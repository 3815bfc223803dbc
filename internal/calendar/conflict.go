package calendar

import (
	"github.com/noah-isme/course-calendar-api/internal/models"
)

// overlaps applies the half-open [start, end) test. Back-to-back intervals
// (existing.End == candidate.Start) do not overlap.
func overlaps(existing, candidate Interval) bool {
	if existing.Day != candidate.Day {
		return false
	}
	startsAcross := existing.Start <= candidate.Start && existing.End > candidate.Start
	endsAcross := existing.Start < candidate.End && existing.End >= candidate.End
	contained := existing.Start >= candidate.Start && existing.End <= candidate.End
	return startsAcross || endsAcross || contained
}

// FindConflict returns the first slot in existing that overlaps candidate on the
// same weekday. The slot with ID excludeSlotID is skipped so an update does not
// collide with itself. Existing slots failing ParseSlot are ignored. An invalid
// candidate never conflicts; callers validate it first.
func FindConflict(candidate models.WeeklyTimeSlot, existing []models.WeeklyTimeSlot, excludeSlotID string) (*models.WeeklyTimeSlot, bool) {
	want, err := ParseSlot(candidate)
	if err != nil {
		return nil, false
	}
	for i := range existing {
		slot := existing[i]
		if excludeSlotID != "" && slot.ID == excludeSlotID {
			continue
		}
		if slot.DayOfWeek != want.Day {
			continue
		}
		have, err := ParseSlot(slot)
		if err != nil {
			continue
		}
		if overlaps(have, want) {
			return &slot, true
		}
	}
	return nil, false
}

// HasConflict reports whether candidate overlaps any slot in existing.
func HasConflict(candidate models.WeeklyTimeSlot, existing []models.WeeklyTimeSlot, excludeSlotID string) bool {
	_, found := FindConflict(candidate, existing, excludeSlotID)
	return found
}

// OverlappingPair is two stored slots that violate the non-overlap invariant.
type OverlappingPair struct {
	First  models.WeeklyTimeSlot
	Second models.WeeklyTimeSlot
}

// FindOverlaps scans a stored slot set for pairs that overlap each other.
// Each pair is reported once, in input order.
func FindOverlaps(slots []models.WeeklyTimeSlot) []OverlappingPair {
	var pairs []OverlappingPair
	for i := range slots {
		for j := i + 1; j < len(slots); j++ {
			if slots[i].DayOfWeek != slots[j].DayOfWeek {
				continue
			}
			if HasConflict(slots[j], slots[i:i+1], "") {
				pairs = append(pairs, OverlappingPair{First: slots[i], Second: slots[j]})
			}
		}
	}
	return pairs
}
