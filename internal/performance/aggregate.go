// Package performance turns per-student assessment records into flag and
// status classifications. Everything here is pure; callers fetch and scope
// the records (one term at a time) before calling in.
package performance

import (
	"math"
	"sort"
)

// Status labels derived from the average percentage.
const (
	StatusOnTrack    = "On Track"
	StatusAtRisk     = "At Risk"
	StatusStruggling = "Struggling"
)

const (
	strugglingBelow = 70.0
	atRiskBelow     = 80.0
	maxFlags        = 3
)

// Record is the slice of an assessment the aggregator needs.
type Record struct {
	StudentID  uint
	ClassID    uint
	TermID     uint
	Percentage float64
	IsLowPoint bool
}

// Summary is the flag classification for a set of records.
type Summary struct {
	TotalGrades       int     `json:"total_grades"`
	LowPoints         int     `json:"low_points"`
	FlagCount         int     `json:"flag_count"`
	AveragePercentage float64 `json:"average_percentage"`
	Status            string  `json:"status"`
}

// StudentSummary is a Summary attributed to one student.
type StudentSummary struct {
	StudentID uint `json:"student_id"`
	Summary
}

// FlagCount maps a low-point count onto the 0..3 flag scale.
func FlagCount(lowPoints int) int {
	switch {
	case lowPoints >= 5:
		return maxFlags
	case lowPoints == 4:
		return 2
	case lowPoints == 3:
		return 1
	default:
		return 0
	}
}

// StatusFor classifies an unrounded average. A student with no grades is On Track.
func StatusFor(totalGrades int, average float64) string {
	if totalGrades == 0 {
		return StatusOnTrack
	}
	switch {
	case average < strugglingBelow:
		return StatusStruggling
	case average < atRiskBelow:
		return StatusAtRisk
	default:
		return StatusOnTrack
	}
}

// Aggregate summarises records without filtering them.
func Aggregate(records []Record) Summary {
	summary := Summary{TotalGrades: len(records)}

	var total float64
	for _, record := range records {
		total += record.Percentage
		if record.IsLowPoint {
			summary.LowPoints++
		}
	}

	if summary.TotalGrades > 0 {
		summary.AveragePercentage = total / float64(summary.TotalGrades)
	}

	summary.FlagCount = FlagCount(summary.LowPoints)
	summary.Status = StatusFor(summary.TotalGrades, summary.AveragePercentage)

	return summary
}

// GroupByStudent buckets records per student, keeping input order inside each bucket.
func GroupByStudent(records []Record) map[uint][]Record {
	grouped := make(map[uint][]Record)
	for _, record := range records {
		grouped[record.StudentID] = append(grouped[record.StudentID], record)
	}
	return grouped
}

// PerStudent aggregates each student's records separately, ordered by student id.
func PerStudent(records []Record) []StudentSummary {
	grouped := GroupByStudent(records)

	summaries := make([]StudentSummary, 0, len(grouped))
	for studentID, items := range grouped {
		summaries = append(summaries, StudentSummary{StudentID: studentID, Summary: Aggregate(items)})
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].StudentID < summaries[j].StudentID })
	return summaries
}

// Flagged returns students carrying at least one flag, most flagged first.
// Flags are attributed per student before the rollup, never counted across the pool.
func Flagged(records []Record) []StudentSummary {
	flagged := make([]StudentSummary, 0)
	for _, summary := range PerStudent(records) {
		if summary.FlagCount >= 1 {
			flagged = append(flagged, summary)
		}
	}

	sort.SliceStable(flagged, func(i, j int) bool {
		if flagged[i].FlagCount != flagged[j].FlagCount {
			return flagged[i].FlagCount > flagged[j].FlagCount
		}
		if flagged[i].LowPoints != flagged[j].LowPoints {
			return flagged[i].LowPoints > flagged[j].LowPoints
		}
		return flagged[i].StudentID < flagged[j].StudentID
	})

	return flagged
}

// RoundPercent rounds an average to a whole percent for display only.
func RoundPercent(average float64) int {
	return int(math.Round(average))
}
