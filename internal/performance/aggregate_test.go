package performance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlagCountStepFunction(t *testing.T) {
	expected := map[int]int{0: 0, 1: 0, 2: 0, 3: 1, 4: 2, 5: 3, 6: 3, 12: 3}
	for lowPoints, flags := range expected {
		require.Equal(t, flags, FlagCount(lowPoints), "low points %d", lowPoints)
	}

	previous := 0
	for lowPoints := 0; lowPoints < 20; lowPoints++ {
		current := FlagCount(lowPoints)
		require.GreaterOrEqual(t, current, previous)
		require.LessOrEqual(t, current, 3)
		previous = current
	}
}

func TestAggregateEmptyIsOnTrack(t *testing.T) {
	summary := Aggregate(nil)
	require.Equal(t, 0, summary.TotalGrades)
	require.Equal(t, 0.0, summary.AveragePercentage)
	require.Equal(t, StatusOnTrack, summary.Status)
	require.Equal(t, 0, summary.FlagCount)
}

func TestAggregateMixedRecords(t *testing.T) {
	records := []Record{
		{Percentage: 90},
		{Percentage: 65, IsLowPoint: true},
		{Percentage: 60, IsLowPoint: true},
		{Percentage: 55, IsLowPoint: true},
	}

	summary := Aggregate(records)
	require.Equal(t, 4, summary.TotalGrades)
	require.Equal(t, 3, summary.LowPoints)
	require.Equal(t, 1, summary.FlagCount)
	require.InDelta(t, 67.5, summary.AveragePercentage, 1e-9)
	require.Equal(t, StatusStruggling, summary.Status)
}

func TestStatusUsesUnroundedAverage(t *testing.T) {
	// 69.6 displays as 70 but is still below the struggling threshold.
	summary := Aggregate([]Record{{Percentage: 69.2}, {Percentage: 70.0}})
	require.Equal(t, 70, RoundPercent(summary.AveragePercentage))
	require.Equal(t, StatusStruggling, summary.Status)

	require.Equal(t, StatusAtRisk, StatusFor(1, 70))
	require.Equal(t, StatusAtRisk, StatusFor(1, 79.99))
	require.Equal(t, StatusOnTrack, StatusFor(1, 80))
}

func TestStatusIndependentOfFlags(t *testing.T) {
	records := []Record{
		{Percentage: 95, IsLowPoint: true},
		{Percentage: 95, IsLowPoint: true},
		{Percentage: 95, IsLowPoint: true},
		{Percentage: 95, IsLowPoint: true},
		{Percentage: 95, IsLowPoint: true},
	}

	summary := Aggregate(records)
	require.Equal(t, 3, summary.FlagCount)
	require.Equal(t, StatusOnTrack, summary.Status)
}

func TestFlaggedGroupsPerStudentBeforeRollup(t *testing.T) {
	// Four low points spread over two students: pooled they would read as two
	// flags, per student neither reaches the threshold.
	records := []Record{
		{StudentID: 1, ClassID: 10, Percentage: 50, IsLowPoint: true},
		{StudentID: 1, ClassID: 11, Percentage: 50, IsLowPoint: true},
		{StudentID: 2, ClassID: 10, Percentage: 50, IsLowPoint: true},
		{StudentID: 2, ClassID: 11, Percentage: 50, IsLowPoint: true},
		{StudentID: 3, ClassID: 10, Percentage: 40, IsLowPoint: true},
		{StudentID: 3, ClassID: 10, Percentage: 40, IsLowPoint: true},
		{StudentID: 3, ClassID: 11, Percentage: 40, IsLowPoint: true},
		{StudentID: 3, ClassID: 11, Percentage: 40, IsLowPoint: true},
		{StudentID: 4, ClassID: 11, Percentage: 40, IsLowPoint: true},
		{StudentID: 4, ClassID: 11, Percentage: 40, IsLowPoint: true},
		{StudentID: 4, ClassID: 11, Percentage: 40, IsLowPoint: true},
	}

	flagged := Flagged(records)
	require.Len(t, flagged, 2)
	require.Equal(t, uint(3), flagged[0].StudentID)
	require.Equal(t, 2, flagged[0].FlagCount)
	require.Equal(t, uint(4), flagged[1].StudentID)
	require.Equal(t, 1, flagged[1].FlagCount)
}

func TestPerStudentOrdersByStudent(t *testing.T) {
	summaries := PerStudent([]Record{
		{StudentID: 9, Percentage: 80},
		{StudentID: 2, Percentage: 60},
		{StudentID: 9, Percentage: 100},
	})
	require.Len(t, summaries, 2)
	require.Equal(t, uint(2), summaries[0].StudentID)
	require.Equal(t, uint(9), summaries[1].StudentID)
	require.InDelta(t, 90.0, summaries[1].AveragePercentage, 1e-9)
}
