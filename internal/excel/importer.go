package excel

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/reviewalarm/internal/knowledge"
	"github.com/example/reviewalarm/pkg/models"
	"github.com/xuri/excelize/v2"
)

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath       string // Path to the Excel or CSV file
	TitleColumn    string // Column with the item title
	ContentColumn  string // Column with the item content
	CategoryColumn string // Column with the category, optional
	SheetName      string // Name of the sheet to import, the first sheet when empty
	StartRow       int    // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		TitleColumn:    "A",
		ContentColumn:  "B",
		CategoryColumn: "C",
		StartRow:       2, // skip header
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int      `json:"total_processed"`
	Created        int      `json:"created"`
	Skipped        int      `json:"skipped"`
	Errors         []string `json:"errors"`
}

// ItemAdder creates knowledge items and seeds their first review
type ItemAdder interface {
	Add(ctx context.Context, ownerID int64, in knowledge.Input, now time.Time) (*models.KnowledgeItem, *models.ReviewSchedule, error)
}

// Importer loads knowledge items from spreadsheets
type Importer struct {
	items ItemAdder
	now   func() time.Time
}

func NewImporter(items ItemAdder) *Importer {
	return &Importer{items: items, now: time.Now}
}

// ImportFile imports items from an Excel or CSV file, chosen by extension
func (im *Importer) ImportFile(ctx context.Context, ownerID int64, config ImportConfig) (*ImportResult, error) {
	if strings.ToLower(filepath.Ext(config.FilePath)) == ".csv" {
		file, err := os.Open(config.FilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open CSV file: %w", err)
		}
		defer file.Close()
		return im.ImportCSV(ctx, ownerID, file, config)
	}

	f, err := excelize.OpenFile(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()
	return im.importWorkbook(ctx, ownerID, f, config)
}

// ImportExcel imports items from an xlsx stream
func (im *Importer) ImportExcel(ctx context.Context, ownerID int64, r io.Reader, config ImportConfig) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()
	return im.importWorkbook(ctx, ownerID, f, config)
}

func (im *Importer) importWorkbook(ctx context.Context, ownerID int64, f *excelize.File, config ImportConfig) (*ImportResult, error) {
	sheet := config.SheetName
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	result := &ImportResult{Errors: make([]string, 0)}
	for i, row := range rows {
		if i < config.StartRow-1 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		im.processRow(ctx, ownerID, row, config, result, i+1)
	}
	return result, nil
}

// ImportCSV imports items from a CSV stream
func (im *Importer) ImportCSV(ctx context.Context, ownerID int64, r io.Reader, config ImportConfig) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	result := &ImportResult{Errors: make([]string, 0)}
	rowNum := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("error reading CSV: %w", err)
		}
		rowNum++
		if rowNum < config.StartRow {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		im.processRow(ctx, ownerID, row, config, result, rowNum)
	}
	return result, nil
}

func (im *Importer) processRow(ctx context.Context, ownerID int64, row []string, config ImportConfig, result *ImportResult, rowNum int) {
	in := knowledge.Input{
		Title:    cell(row, config.TitleColumn),
		Content:  cell(row, config.ContentColumn),
		Category: cell(row, config.CategoryColumn),
	}
	if strings.TrimSpace(in.Title) == "" && strings.TrimSpace(in.Content) == "" {
		// blank line
		return
	}

	result.TotalProcessed++
	if _, _, err := im.items.Add(ctx, ownerID, in, im.now()); err != nil {
		result.Skipped++
		result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
		return
	}
	result.Created++
}

func cell(row []string, column string) string {
	if column == "" {
		return ""
	}
	if idx := columnToIndex(column); idx >= 0 && idx < len(row) {
		return row[idx]
	}
	return ""
}

// columnToIndex converts an Excel column letter to a zero-based index
func columnToIndex(column string) int {
	column = strings.ToUpper(strings.TrimSpace(column))
	index := 0
	for i := 0; i < len(column); i++ {
		if column[i] < 'A' || column[i] > 'Z' {
			return -1
		}
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}
