package dto

import "github.com/noah-isme/gema-school-api/internal/performance"

// PerformanceFigures are the aggregator outputs plus a display-rounded average.
type PerformanceFigures struct {
	TotalGrades       int     `json:"total_grades"`
	LowPoints         int     `json:"low_points"`
	FlagCount         int     `json:"flag_count"`
	AveragePercentage float64 `json:"average_percentage"`
	AverageDisplay    int     `json:"average_display"`
	Status            string  `json:"status"`
}

// NewPerformanceFigures converts an aggregator summary.
func NewPerformanceFigures(summary performance.Summary) PerformanceFigures {
	return PerformanceFigures{
		TotalGrades:       summary.TotalGrades,
		LowPoints:         summary.LowPoints,
		FlagCount:         summary.FlagCount,
		AveragePercentage: summary.AveragePercentage,
		AverageDisplay:    performance.RoundPercent(summary.AveragePercentage),
		Status:            summary.Status,
	}
}

// StudentPerformanceResponse is one student's standing in a term.
type StudentPerformanceResponse struct {
	Term        TermRef            `json:"term"`
	StudentID   uint               `json:"student_id"`
	StudentName string             `json:"student_name"`
	Performance PerformanceFigures `json:"performance"`
	CacheHit    bool               `json:"cache_hit"`
}

// StudentProgress is a student row inside a class view.
type StudentProgress struct {
	StudentID   uint               `json:"student_id"`
	StudentName string             `json:"student_name"`
	Performance PerformanceFigures `json:"performance"`
}

// ClassProgressResponse lists every enrolled student's standing in one class.
type ClassProgressResponse struct {
	Term      TermRef            `json:"term"`
	ClassID   uint               `json:"class_id"`
	ClassName string             `json:"class_name"`
	Overall   PerformanceFigures `json:"overall"`
	Students  []StudentProgress  `json:"students"`
	CacheHit  bool               `json:"cache_hit"`
}

// ClassPerformance summarises one class for a teacher overview.
type ClassPerformance struct {
	ClassID         uint               `json:"class_id"`
	ClassName       string             `json:"class_name"`
	StudentCount    int                `json:"student_count"`
	FlaggedStudents int                `json:"flagged_students"`
	Overall         PerformanceFigures `json:"overall"`
}

// TeacherClassesResponse lists per-class aggregates for a teacher.
type TeacherClassesResponse struct {
	Term      TermRef            `json:"term"`
	TeacherID uint               `json:"teacher_id"`
	Classes   []ClassPerformance `json:"classes"`
	CacheHit  bool               `json:"cache_hit"`
}

// ClassRef names a class a flagged student has grades in.
type ClassRef struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// FlaggedStudent is a student carrying at least one flag.
type FlaggedStudent struct {
	StudentID   uint               `json:"student_id"`
	StudentName string             `json:"student_name"`
	Classes     []ClassRef         `json:"classes"`
	Performance PerformanceFigures `json:"performance"`
}

// FlagReportResponse lists flagged students for a scope and term.
type FlagReportResponse struct {
	Term         TermRef          `json:"term"`
	Scope        string           `json:"scope"`
	ScopeID      uint             `json:"scope_id,omitempty"`
	TotalFlagged int              `json:"total_flagged"`
	Students     []FlaggedStudent `json:"students"`
	CacheHit     bool             `json:"cache_hit"`
}
