package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFileType indicates the upload is neither CSV nor XLSX.
	ErrUnsupportedFileType = errors.New("unsupported file type, upload a CSV or XLSX file")
	// ErrEmptySheet indicates the file has no header row.
	ErrEmptySheet = errors.New("file contains no rows")
)

// Format identifies a supported spreadsheet encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const xlsxMime = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Row is one non-blank data line with its 1-based position in the file.
type Row struct {
	Line  int
	Cells []string
}

// Table is the parsed content of a spreadsheet: the header row plus data rows in file order.
type Table struct {
	Format  Format
	Headers []string
	Rows    []Row
}

// DetectFormat sniffs the payload and falls back to the file extension.
func DetectFormat(filename string, data []byte) (Format, error) {
	detected := mimetype.Detect(data)
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case detected.Is(xlsxMime):
		return FormatXLSX, nil
	case detected.Is("text/csv"):
		return FormatCSV, nil
	case detected.Is("application/zip") && ext == ".xlsx":
		return FormatXLSX, nil
	case strings.HasPrefix(detected.String(), "text/plain") && (ext == ".csv" || ext == ""):
		return FormatCSV, nil
	default:
		return "", ErrUnsupportedFileType
	}
}

// Parse reads a CSV or XLSX upload into a Table.
func Parse(filename string, data []byte) (Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Table{}, ErrEmptySheet
	}

	format, err := DetectFormat(filename, data)
	if err != nil {
		return Table{}, err
	}

	var records []Row
	switch format {
	case FormatXLSX:
		records, err = readXLSX(data)
	default:
		records, err = readCSV(data)
	}
	if err != nil {
		return Table{}, err
	}

	table := Table{Format: format}
	for _, record := range records {
		if isBlank(record.Cells) {
			continue
		}
		if table.Headers == nil {
			table.Headers = record.Cells
			continue
		}
		table.Rows = append(table.Rows, record)
	}

	if table.Headers == nil {
		return Table{}, ErrEmptySheet
	}

	return table, nil
}

func readCSV(data []byte) ([]Row, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records := make([]Row, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		records = append(records, Row{Line: line, Cells: record})
	}
	return records, nil
}

func readXLSX(data []byte) ([]Row, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid xlsx: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptySheet
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("invalid xlsx: %w", err)
	}

	records := make([]Row, 0, len(rows))
	for i, cells := range rows {
		records = append(records, Row{Line: i + 1, Cells: cells})
	}
	return records, nil
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
