package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-school-api/internal/dto"
	"github.com/noah-isme/gema-school-api/internal/models"
	"github.com/noah-isme/gema-school-api/internal/observability"
	"github.com/noah-isme/gema-school-api/internal/performance"
	"github.com/noah-isme/gema-school-api/internal/repository"
)

// ErrStudentNotFound indicates the student does not exist.
var ErrStudentNotFound = errors.New("student not found")

// ErrClassNotFound indicates the class does not exist.
var ErrClassNotFound = errors.New("class not found")

// ErrTeacherNotFound indicates the teacher profile does not exist.
var ErrTeacherNotFound = errors.New("teacher not found")

// ErrPerformanceForbidden indicates a teacher asked for a class or student they do not teach.
var ErrPerformanceForbidden = errors.New("insufficient permissions for performance data")

// Cache scopes for performance aggregates.
const (
	ScopeStudent        = "student"
	ScopeClass          = "class"
	ScopeTeacherClasses = "teacher_classes"
	ScopeTeacherFlagged = "teacher_flagged"
	ScopeSchool         = "school"
)

// CacheTarget names the aggregates touched by a new assessment.
type CacheTarget struct {
	StudentID uint
	ClassID   uint
	TeacherID uint
	TermID    uint
}

// PerformanceService computes flag and status aggregates for one term at a time.
type PerformanceService interface {
	StudentSummary(ctx context.Context, studentID uint, term models.Term, actor ActivityActor) (dto.StudentPerformanceResponse, error)
	ClassProgress(ctx context.Context, classID uint, term models.Term, actor ActivityActor) (dto.ClassProgressResponse, error)
	TeacherClasses(ctx context.Context, teacherID uint, term models.Term, actor ActivityActor) (dto.TeacherClassesResponse, error)
	TeacherFlagged(ctx context.Context, teacherID uint, term models.Term, actor ActivityActor) (dto.FlagReportResponse, error)
	FlagReport(ctx context.Context, term models.Term) (dto.FlagReportResponse, error)
	Invalidate(ctx context.Context, target CacheTarget)
}

// PerformanceRepositories groups the stores the performance service reads.
type PerformanceRepositories struct {
	Assessments repository.AssessmentRepository
	Classes     repository.ClassRepository
	Students    repository.StudentRepository
	Teachers    repository.TeacherRepository
}

type performanceService struct {
	assessments repository.AssessmentRepository
	classes     repository.ClassRepository
	students    repository.StudentRepository
	teachers    repository.TeacherRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewPerformanceService constructs the performance service. A nil cache disables caching.
func NewPerformanceService(repos PerformanceRepositories, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) PerformanceService {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &performanceService{
		assessments: repos.Assessments,
		classes:     repos.Classes,
		students:    repos.Students,
		teachers:    repos.Teachers,
		cache:       cache,
		cacheTTL:    ttl,
		logger:      logger.With().Str("component", "performance_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-school-api/internal/service/performance"),
	}
}

// PerformanceCacheKey builds the cache key for a scope, subject and term.
func PerformanceCacheKey(scope string, id, termID uint) string {
	return fmt.Sprintf("performance:%s:%d:term:%d", scope, id, termID)
}

func (s *performanceService) StudentSummary(ctx context.Context, studentID uint, term models.Term, actor ActivityActor) (dto.StudentPerformanceResponse, error) {
	key := PerformanceCacheKey(ScopeStudent, studentID, term.ID)
	ctx, span := s.startSpan(ctx, "performance.student", key)
	defer span.End()

	var response dto.StudentPerformanceResponse
	if !actor.IsAdmin() {
		// unknown ids are forbidden as well, hiding which students exist
		teaches, err := s.classes.TeachesStudent(ctx, actor.TeacherID, studentID)
		if err != nil {
			return response, s.fail(span, err, "ownership_lookup_failed")
		}
		if actor.TeacherID == 0 || !teaches {
			return response, s.fail(span, ErrPerformanceForbidden, "forbidden")
		}
	}
	if s.readCache(ctx, span, ScopeStudent, key, &response) {
		response.CacheHit = true
		return response, nil
	}

	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response, s.fail(span, ErrStudentNotFound, "student_not_found")
		}
		return response, s.fail(span, err, "student_lookup_failed")
	}

	records, err := s.assessments.RecordsForStudent(ctx, studentID, term.ID)
	if err != nil {
		return response, s.fail(span, err, "list_records_failed")
	}

	response = dto.StudentPerformanceResponse{
		Term:        dto.NewTermRef(term),
		StudentID:   student.ID,
		StudentName: student.Name,
		Performance: dto.NewPerformanceFigures(performance.Aggregate(records)),
	}
	span.SetAttributes(attribute.Int("performance.record_count", len(records)))

	s.writeCache(ctx, span, key, response)
	return response, nil
}

func (s *performanceService) ClassProgress(ctx context.Context, classID uint, term models.Term, actor ActivityActor) (dto.ClassProgressResponse, error) {
	key := PerformanceCacheKey(ScopeClass, classID, term.ID)
	ctx, span := s.startSpan(ctx, "performance.class", key)
	defer span.End()

	var response dto.ClassProgressResponse

	class, err := s.classes.GetByID(ctx, classID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response, s.fail(span, ErrClassNotFound, "class_not_found")
		}
		return response, s.fail(span, err, "class_lookup_failed")
	}
	if !actor.IsAdmin() && class.TeacherID != actor.TeacherID {
		return response, s.fail(span, ErrPerformanceForbidden, "forbidden")
	}

	if s.readCache(ctx, span, ScopeClass, key, &response) {
		response.CacheHit = true
		return response, nil
	}

	enrolled, err := s.classes.ListStudents(ctx, classID)
	if err != nil {
		return response, s.fail(span, err, "list_students_failed")
	}

	records, err := s.assessments.RecordsForClass(ctx, classID, term.ID)
	if err != nil {
		return response, s.fail(span, err, "list_records_failed")
	}

	names, err := s.studentNames(ctx, enrolled, records)
	if err != nil {
		return response, s.fail(span, err, "list_students_failed")
	}

	grouped := performance.GroupByStudent(records)
	ids := make([]uint, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if names[ids[i]] != names[ids[j]] {
			return names[ids[i]] < names[ids[j]]
		}
		return ids[i] < ids[j]
	})

	students := make([]dto.StudentProgress, 0, len(ids))
	for _, id := range ids {
		students = append(students, dto.StudentProgress{
			StudentID:   id,
			StudentName: names[id],
			Performance: dto.NewPerformanceFigures(performance.Aggregate(grouped[id])),
		})
	}

	response = dto.ClassProgressResponse{
		Term:      dto.NewTermRef(term),
		ClassID:   class.ID,
		ClassName: class.Name,
		Overall:   dto.NewPerformanceFigures(performance.Aggregate(records)),
		Students:  students,
	}
	span.SetAttributes(attribute.Int("performance.student_count", len(students)))

	s.writeCache(ctx, span, key, response)
	return response, nil
}

func (s *performanceService) TeacherClasses(ctx context.Context, teacherID uint, term models.Term, actor ActivityActor) (dto.TeacherClassesResponse, error) {
	key := PerformanceCacheKey(ScopeTeacherClasses, teacherID, term.ID)
	ctx, span := s.startSpan(ctx, "performance.teacher_classes", key)
	defer span.End()

	var response dto.TeacherClassesResponse
	if err := s.authorizeTeacher(ctx, span, teacherID, actor); err != nil {
		return response, err
	}

	if s.readCache(ctx, span, ScopeTeacherClasses, key, &response) {
		response.CacheHit = true
		return response, nil
	}

	classes, err := s.classes.ListByTeacher(ctx, teacherID)
	if err != nil {
		return response, s.fail(span, err, "list_classes_failed")
	}

	classIDs := make([]uint, 0, len(classes))
	for _, class := range classes {
		classIDs = append(classIDs, class.ID)
	}

	records, err := s.assessments.RecordsForClasses(ctx, classIDs, term.ID)
	if err != nil {
		return response, s.fail(span, err, "list_records_failed")
	}

	counts, err := s.classes.CountStudents(ctx, classIDs)
	if err != nil {
		return response, s.fail(span, err, "count_students_failed")
	}

	byClass := make(map[uint][]performance.Record, len(classes))
	for _, record := range records {
		byClass[record.ClassID] = append(byClass[record.ClassID], record)
	}

	summaries := make([]dto.ClassPerformance, 0, len(classes))
	for _, class := range classes {
		classRecords := byClass[class.ID]
		summaries = append(summaries, dto.ClassPerformance{
			ClassID:         class.ID,
			ClassName:       class.Name,
			StudentCount:    counts[class.ID],
			FlaggedStudents: len(performance.Flagged(classRecords)),
			Overall:         dto.NewPerformanceFigures(performance.Aggregate(classRecords)),
		})
	}

	response = dto.TeacherClassesResponse{
		Term:      dto.NewTermRef(term),
		TeacherID: teacherID,
		Classes:   summaries,
	}
	span.SetAttributes(attribute.Int("performance.class_count", len(summaries)))

	s.writeCache(ctx, span, key, response)
	return response, nil
}

func (s *performanceService) TeacherFlagged(ctx context.Context, teacherID uint, term models.Term, actor ActivityActor) (dto.FlagReportResponse, error) {
	key := PerformanceCacheKey(ScopeTeacherFlagged, teacherID, term.ID)
	ctx, span := s.startSpan(ctx, "performance.teacher_flagged", key)
	defer span.End()

	var response dto.FlagReportResponse
	if err := s.authorizeTeacher(ctx, span, teacherID, actor); err != nil {
		return response, err
	}

	if s.readCache(ctx, span, ScopeTeacherFlagged, key, &response) {
		response.CacheHit = true
		return response, nil
	}

	classes, err := s.classes.ListByTeacher(ctx, teacherID)
	if err != nil {
		return response, s.fail(span, err, "list_classes_failed")
	}

	classIDs := make([]uint, 0, len(classes))
	for _, class := range classes {
		classIDs = append(classIDs, class.ID)
	}

	records, err := s.assessments.RecordsForClasses(ctx, classIDs, term.ID)
	if err != nil {
		return response, s.fail(span, err, "list_records_failed")
	}

	students, err := s.flaggedStudents(ctx, records, classes)
	if err != nil {
		return response, s.fail(span, err, "resolve_flagged_failed")
	}

	response = dto.FlagReportResponse{
		Term:         dto.NewTermRef(term),
		Scope:        ScopeTeacherFlagged,
		ScopeID:      teacherID,
		TotalFlagged: len(students),
		Students:     students,
	}
	span.SetAttributes(attribute.Int("performance.flagged_count", len(students)))

	s.writeCache(ctx, span, key, response)
	return response, nil
}

func (s *performanceService) FlagReport(ctx context.Context, term models.Term) (dto.FlagReportResponse, error) {
	key := PerformanceCacheKey(ScopeSchool, 0, term.ID)
	ctx, span := s.startSpan(ctx, "performance.flag_report", key)
	defer span.End()

	var response dto.FlagReportResponse
	if s.readCache(ctx, span, ScopeSchool, key, &response) {
		response.CacheHit = true
		return response, nil
	}

	records, err := s.assessments.RecordsForTerm(ctx, term.ID)
	if err != nil {
		return response, s.fail(span, err, "list_records_failed")
	}

	students, err := s.flaggedStudents(ctx, records, nil)
	if err != nil {
		return response, s.fail(span, err, "resolve_flagged_failed")
	}

	response = dto.FlagReportResponse{
		Term:         dto.NewTermRef(term),
		Scope:        ScopeSchool,
		TotalFlagged: len(students),
		Students:     students,
	}
	span.SetAttributes(attribute.Int("performance.flagged_count", len(students)))

	s.writeCache(ctx, span, key, response)
	return response, nil
}

// Invalidate drops every cached aggregate the target contributes to.
func (s *performanceService) Invalidate(ctx context.Context, target CacheTarget) {
	if s.cache == nil {
		return
	}

	keys := []string{
		PerformanceCacheKey(ScopeSchool, 0, target.TermID),
	}
	if target.StudentID > 0 {
		keys = append(keys, PerformanceCacheKey(ScopeStudent, target.StudentID, target.TermID))
	}
	if target.ClassID > 0 {
		keys = append(keys, PerformanceCacheKey(ScopeClass, target.ClassID, target.TermID))
	}
	if target.TeacherID > 0 {
		keys = append(keys,
			PerformanceCacheKey(ScopeTeacherClasses, target.TeacherID, target.TermID),
			PerformanceCacheKey(ScopeTeacherFlagged, target.TeacherID, target.TermID),
		)
	}

	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Strs("keys", keys).Msg("failed to invalidate performance cache")
	}
}

func (s *performanceService) authorizeTeacher(ctx context.Context, span trace.Span, teacherID uint, actor ActivityActor) error {
	if !actor.IsAdmin() && teacherID != actor.TeacherID {
		return s.fail(span, ErrPerformanceForbidden, "forbidden")
	}

	if _, err := s.teachers.GetByID(ctx, teacherID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.fail(span, ErrTeacherNotFound, "teacher_not_found")
		}
		return s.fail(span, err, "teacher_lookup_failed")
	}
	return nil
}

// studentNames merges enrolled students with anyone graded in the class.
func (s *performanceService) studentNames(ctx context.Context, enrolled []models.Student, records []performance.Record) (map[uint]string, error) {
	names := make(map[uint]string, len(enrolled))
	for _, student := range enrolled {
		names[student.ID] = student.Name
	}

	missing := make([]uint, 0)
	for _, record := range records {
		if _, ok := names[record.StudentID]; !ok {
			names[record.StudentID] = ""
			missing = append(missing, record.StudentID)
		}
	}
	if len(missing) == 0 {
		return names, nil
	}

	extra, err := s.students.ListByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, student := range extra {
		names[student.ID] = student.Name
	}
	return names, nil
}

// flaggedStudents rolls records up per student and attaches names and the
// classes each flagged student was graded in. knownClasses may be nil.
func (s *performanceService) flaggedStudents(ctx context.Context, records []performance.Record, knownClasses []models.Class) ([]dto.FlaggedStudent, error) {
	flagged := performance.Flagged(records)
	if len(flagged) == 0 {
		return []dto.FlaggedStudent{}, nil
	}

	studentIDs := make([]uint, 0, len(flagged))
	wanted := make(map[uint]bool, len(flagged))
	for _, entry := range flagged {
		studentIDs = append(studentIDs, entry.StudentID)
		wanted[entry.StudentID] = true
	}

	studentClasses := make(map[uint][]uint, len(flagged))
	classSet := make(map[uint]bool)
	for _, record := range records {
		if !wanted[record.StudentID] {
			continue
		}
		if !containsUint(studentClasses[record.StudentID], record.ClassID) {
			studentClasses[record.StudentID] = append(studentClasses[record.StudentID], record.ClassID)
		}
		classSet[record.ClassID] = true
	}

	classNames := make(map[uint]string, len(classSet))
	for _, class := range knownClasses {
		classNames[class.ID] = class.Name
	}
	lookup := make([]uint, 0)
	for id := range classSet {
		if _, ok := classNames[id]; !ok {
			lookup = append(lookup, id)
		}
	}
	if len(lookup) > 0 {
		classes, err := s.classes.ListByIDs(ctx, lookup)
		if err != nil {
			return nil, err
		}
		for _, class := range classes {
			classNames[class.ID] = class.Name
		}
	}

	students, err := s.students.ListByIDs(ctx, studentIDs)
	if err != nil {
		return nil, err
	}
	names := make(map[uint]string, len(students))
	for _, student := range students {
		names[student.ID] = student.Name
	}

	result := make([]dto.FlaggedStudent, 0, len(flagged))
	for _, entry := range flagged {
		ids := studentClasses[entry.StudentID]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		refs := make([]dto.ClassRef, 0, len(ids))
		for _, id := range ids {
			refs = append(refs, dto.ClassRef{ID: id, Name: classNames[id]})
		}
		result = append(result, dto.FlaggedStudent{
			StudentID:   entry.StudentID,
			StudentName: names[entry.StudentID],
			Classes:     refs,
			Performance: dto.NewPerformanceFigures(entry.Summary),
		})
	}
	return result, nil
}

func (s *performanceService) startSpan(ctx context.Context, name, key string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name)
	span.SetAttributes(attribute.String("performance.cache_key", key))
	return ctx, span
}

func (s *performanceService) readCache(ctx context.Context, span trace.Span, scope, key string, target interface{}) bool {
	if s.cache == nil {
		return false
	}

	cached, err := s.cache.Get(ctx, key).Result()
	if err == nil {
		if unmarshalErr := json.Unmarshal([]byte(cached), target); unmarshalErr == nil {
			observability.PerformanceCache().WithLabelValues(scope, "hit").Inc()
			span.SetAttributes(attribute.Bool("performance.cache_hit", true))
			return true
		}
	} else if err != redis.Nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to read performance cache")
		span.RecordError(err)
	}

	observability.PerformanceCache().WithLabelValues(scope, "miss").Inc()
	return false
}

func (s *performanceService) writeCache(ctx context.Context, span trace.Span, key string, value interface{}) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to store performance cache")
		span.RecordError(err)
	}
}

func (s *performanceService) fail(span trace.Span, err error, status string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, status)
	return err
}

func containsUint(values []uint, target uint) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
