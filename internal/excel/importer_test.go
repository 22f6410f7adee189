package excel

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/reviewalarm/internal/knowledge"
	"github.com/example/reviewalarm/pkg/models"
	"github.com/xuri/excelize/v2"
)

type fakeAdder struct {
	added []knowledge.Input
}

func (f *fakeAdder) Add(_ context.Context, ownerID int64, in knowledge.Input, now time.Time) (*models.KnowledgeItem, *models.ReviewSchedule, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, nil, errors.New("content must not be empty")
	}
	f.added = append(f.added, in)
	item := &models.KnowledgeItem{ID: int64(len(f.added)), UserID: ownerID, Title: in.Title}
	return item, &models.ReviewSchedule{KnowledgeItemID: item.ID, DueAt: now}, nil
}

func TestImportCSV(t *testing.T) {
	data := "title,content,category\n" +
		"Go maps,\"hash tables, not ordered\",go\n" +
		",,\n" +
		"Missing content,,go\n" +
		"Consensus,Raft and Paxos\n"

	adder := &fakeAdder{}
	im := NewImporter(adder)
	result, err := im.ImportCSV(context.Background(), 1, strings.NewReader(data), DefaultImportConfig())
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if result.TotalProcessed != 3 || result.Created != 2 || result.Skipped != 1 {
		t.Errorf("result = %+v", result)
	}
	if len(result.Errors) != 1 || !strings.HasPrefix(result.Errors[0], "Row 4:") {
		t.Errorf("errors = %v", result.Errors)
	}
	if adder.added[0].Content != "hash tables, not ordered" || adder.added[0].Category != "go" {
		t.Errorf("first item = %+v", adder.added[0])
	}
	if adder.added[1].Category != "" {
		t.Errorf("short row should have no category, got %q", adder.added[1].Category)
	}
}

func TestImportExcel(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"title", "content", "category"},
		{"TCP handshake", "SYN, SYN-ACK, ACK", "networking"},
		{"Little's law", "L = λW", ""},
	}
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cellName, &row); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}

	adder := &fakeAdder{}
	result, err := NewImporter(adder).ImportExcel(context.Background(), 1, &buf, DefaultImportConfig())
	if err != nil {
		t.Fatalf("ImportExcel: %v", err)
	}
	if result.Created != 2 || result.Skipped != 0 {
		t.Errorf("result = %+v", result)
	}
	if adder.added[1].Title != "Little's law" || adder.added[1].Content != "L = λW" {
		t.Errorf("second item = %+v", adder.added[1])
	}
}

func TestColumnToIndex(t *testing.T) {
	tests := map[string]int{"A": 0, "b": 1, "Z": 25, "AA": 26, "1": -1}
	for in, want := range tests {
		if got := columnToIndex(in); got != want {
			t.Errorf("columnToIndex(%q) = %d, want %d", in, got, want)
		}
	}
}
