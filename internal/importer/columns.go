package importer

import (
	"fmt"
	"sort"
	"strings"
)

// ColumnMap lists accepted header variants per canonical field.
type ColumnMap map[string][]string

// Canonical field names shared by the import flows.
const (
	FieldName          = "name"
	FieldEmail         = "email"
	FieldYearGroup     = "year_group"
	FieldClass         = "class"
	FieldPassword      = "password"
	FieldSubject       = "subject"
	FieldQualification = "qualification"
	FieldBoard         = "board"
	FieldTopic         = "topic"
	FieldSubtopic      = "subtopic"
)

// StudentColumns maps student spreadsheet headers.
var StudentColumns = ColumnMap{
	FieldName:      {"name", "student name", "full name"},
	FieldEmail:     {"email", "email address", "e mail"},
	FieldYearGroup: {"year group", "school year", "year", "grade level"},
	FieldClass:     {"class", "class name", "form", "tutor group"},
}

// TeacherColumns maps teacher spreadsheet headers.
var TeacherColumns = ColumnMap{
	FieldName:     {"name", "teacher name", "full name"},
	FieldEmail:    {"email", "email address", "e mail"},
	FieldPassword: {"password", "temporary password", "initial password"},
	FieldSubject:  {"subject", "department", "subject taught"},
}

// CurriculumColumns maps curriculum hierarchy headers.
var CurriculumColumns = ColumnMap{
	FieldQualification: {"qualification", "qualification name", "qual", "level"},
	FieldBoard:         {"board", "exam board", "board name", "awarding body"},
	FieldSubject:       {"subject", "subject name"},
	FieldTopic:         {"topic", "topic name", "unit"},
	FieldSubtopic:      {"subtopic", "sub topic", "subtopic name", "sub topic name"},
}

// MissingColumnsError reports required fields with no matching header.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// Columns is a ColumnMap resolved against one file's header row.
type Columns struct {
	index map[string]int
}

type headerMatch struct {
	field      string
	header     int
	variantLen int
}

// Resolve binds canonical fields to header positions once per file. Exact
// matches win over substring matches and longer variants win over shorter ones.
func (m ColumnMap) Resolve(headers []string, required ...string) (Columns, error) {
	normalized := make([]string, len(headers))
	for i, header := range headers {
		normalized[i] = normalizeHeader(header)
	}

	fields := make([]string, 0, len(m))
	for field := range m {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	columns := Columns{index: make(map[string]int, len(m))}
	taken := make(map[int]bool, len(headers))

	assign := func(matches []headerMatch) {
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].variantLen > matches[j].variantLen })
		for _, match := range matches {
			if taken[match.header] {
				continue
			}
			if _, done := columns.index[match.field]; done {
				continue
			}
			columns.index[match.field] = match.header
			taken[match.header] = true
		}
	}

	exact := make([]headerMatch, 0)
	for _, field := range fields {
		for _, variant := range m[field] {
			key := normalizeHeader(variant)
			for i, header := range normalized {
				if header == key {
					exact = append(exact, headerMatch{field: field, header: i, variantLen: len(key)})
				}
			}
		}
	}
	assign(exact)

	partial := make([]headerMatch, 0)
	for _, field := range fields {
		if _, done := columns.index[field]; done {
			continue
		}
		for _, variant := range m[field] {
			key := normalizeHeader(variant)
			for i, header := range normalized {
				if key != "" && header != "" && strings.Contains(header, key) {
					partial = append(partial, headerMatch{field: field, header: i, variantLen: len(key)})
				}
			}
		}
	}
	assign(partial)

	missing := make([]string, 0)
	for _, field := range required {
		if _, ok := columns.index[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return columns, &MissingColumnsError{Missing: missing}
	}

	return columns, nil
}

// Has reports whether the field was found in the header row.
func (c Columns) Has(field string) bool {
	_, ok := c.index[field]
	return ok
}

// Value returns the cleaned cell for field, or "" when absent.
func (c Columns) Value(cells []string, field string) string {
	idx, ok := c.index[field]
	if !ok || idx >= len(cells) {
		return ""
	}
	return CleanCell(cells[idx])
}

// Raw returns the untouched cell for field. Used for values such as passwords
// where markup stripping would alter the content.
func (c Columns) Raw(cells []string, field string) string {
	idx, ok := c.index[field]
	if !ok || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

func normalizeHeader(value string) string {
	value = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(value, "\ufeff")))
	value = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(value)
	return strings.Join(strings.Fields(value), " ")
}
