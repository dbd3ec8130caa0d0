package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-school-api/internal/models"
)

const curriculumInsertBatch = 200

// CurriculumEntry is a level-agnostic view of one hierarchy node. ParentID is
// zero for qualifications.
type CurriculumEntry struct {
	ID       uint
	ParentID uint
	Name     string
	NameKey  string
}

// CurriculumRepository reads and bulk-inserts curriculum nodes one level at a time.
type CurriculumRepository interface {
	ListEntries(ctx context.Context, level models.CurriculumLevel, parentIDs []uint) ([]CurriculumEntry, error)
	CreateEntries(ctx context.Context, level models.CurriculumLevel, entries []CurriculumEntry) ([]CurriculumEntry, error)
}

type curriculumRepository struct {
	db *gorm.DB
}

// NewCurriculumRepository constructs the curriculum repository.
func NewCurriculumRepository(db *gorm.DB) CurriculumRepository {
	return &curriculumRepository{db: db}
}

func parentColumn(level models.CurriculumLevel) (string, error) {
	switch level {
	case models.LevelQualification:
		return "", nil
	case models.LevelBoard:
		return "qualification_id", nil
	case models.LevelSubject:
		return "board_id", nil
	case models.LevelTopic:
		return "subject_id", nil
	case models.LevelSubtopic:
		return "topic_id", nil
	default:
		return "", fmt.Errorf("unknown curriculum level %q", level)
	}
}

// ListEntries loads every node of level whose parent is in parentIDs. For
// qualifications parentIDs is ignored and all rows are returned.
func (r *curriculumRepository) ListEntries(ctx context.Context, level models.CurriculumLevel, parentIDs []uint) ([]CurriculumEntry, error) {
	column, err := parentColumn(level)
	if err != nil {
		return nil, err
	}
	if column != "" && len(parentIDs) == 0 {
		return []CurriculumEntry{}, nil
	}

	query := r.db.WithContext(ctx)
	selectParent := "0 AS parent_id"
	if column != "" {
		selectParent = column + " AS parent_id"
		query = query.Where(column+" IN ?", parentIDs)
	}

	var model interface{}
	switch level {
	case models.LevelQualification:
		model = &models.Qualification{}
	case models.LevelBoard:
		model = &models.Board{}
	case models.LevelSubject:
		model = &models.Subject{}
	case models.LevelTopic:
		model = &models.Topic{}
	case models.LevelSubtopic:
		model = &models.Subtopic{}
	}

	entries := make([]CurriculumEntry, 0)
	err = query.Model(model).
		Select("id, " + selectParent + ", name, name_key").
		Order("id ASC").
		Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// CreateEntries inserts entries in one statement per batch and returns them
// with their new ids, in input order.
func (r *curriculumRepository) CreateEntries(ctx context.Context, level models.CurriculumLevel, entries []CurriculumEntry) ([]CurriculumEntry, error) {
	if len(entries) == 0 {
		return []CurriculumEntry{}, nil
	}

	db := r.db.WithContext(ctx)
	created := make([]CurriculumEntry, len(entries))
	copy(created, entries)

	switch level {
	case models.LevelQualification:
		rows := make([]models.Qualification, len(entries))
		for i, entry := range entries {
			rows[i] = models.Qualification{Name: entry.Name, NameKey: entry.NameKey}
		}
		if err := db.CreateInBatches(&rows, curriculumInsertBatch).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			created[i].ID = rows[i].ID
		}
	case models.LevelBoard:
		rows := make([]models.Board, len(entries))
		for i, entry := range entries {
			rows[i] = models.Board{Name: entry.Name, NameKey: entry.NameKey, QualificationID: entry.ParentID}
		}
		if err := db.CreateInBatches(&rows, curriculumInsertBatch).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			created[i].ID = rows[i].ID
		}
	case models.LevelSubject:
		rows := make([]models.Subject, len(entries))
		for i, entry := range entries {
			rows[i] = models.Subject{Name: entry.Name, NameKey: entry.NameKey, BoardID: entry.ParentID}
		}
		if err := db.CreateInBatches(&rows, curriculumInsertBatch).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			created[i].ID = rows[i].ID
		}
	case models.LevelTopic:
		rows := make([]models.Topic, len(entries))
		for i, entry := range entries {
			rows[i] = models.Topic{Name: entry.Name, NameKey: entry.NameKey, SubjectID: entry.ParentID}
		}
		if err := db.CreateInBatches(&rows, curriculumInsertBatch).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			created[i].ID = rows[i].ID
		}
	case models.LevelSubtopic:
		rows := make([]models.Subtopic, len(entries))
		for i, entry := range entries {
			rows[i] = models.Subtopic{Name: entry.Name, NameKey: entry.NameKey, TopicID: entry.ParentID}
		}
		if err := db.CreateInBatches(&rows, curriculumInsertBatch).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			created[i].ID = rows[i].ID
		}
	default:
		return nil, fmt.Errorf("unknown curriculum level %q", level)
	}

	for _, entry := range created {
		if entry.ID == 0 {
			return nil, fmt.Errorf("insert returned no id for %s %q", level, entry.Name)
		}
	}

	return created, nil
}
