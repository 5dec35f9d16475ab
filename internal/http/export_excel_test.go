package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"pulse-gateway/internal/models"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func TestGenerateReadingExport_HeaderAndRows(t *testing.T) {
	history := []models.Reading{
		{Pulse: intPtr(72), BreathingRate: intPtr(15), TimestampMS: 1700000000000},
		{Pulse: intPtr(75), TimestampMS: 1700000005000},
	}

	data, err := GenerateReadingExport(history)
	if err != nil {
		t.Fatalf("generate export: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open generated workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Vital Readings")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	// header + one row per reading
	if len(rows) != len(history)+1 {
		t.Fatalf("expected %d rows, got %d", len(history)+1, len(rows))
	}
	if rows[0][0] != "Time" || rows[0][1] != "Pulse (BPM)" {
		t.Fatalf("unexpected header row: %v", rows[0])
	}

	b2, _ := f.GetCellValue("Vital Readings", "B2")
	if b2 != "72" {
		t.Fatalf("expected pulse 72 in B2, got %q", b2)
	}
	c2, _ := f.GetCellValue("Vital Readings", "C2")
	if c2 != "15" {
		t.Fatalf("expected breathing 15 in C2, got %q", c2)
	}
	// second reading has no breathing value: cell stays empty
	c3, _ := f.GetCellValue("Vital Readings", "C3")
	if c3 != "" {
		t.Fatalf("expected empty C3, got %q", c3)
	}
}

func TestGenerateReadingExport_EmptyHistory(t *testing.T) {
	data, err := GenerateReadingExport(nil)
	if err != nil {
		t.Fatalf("generate empty export: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open generated workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Vital Readings")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected header only, got %d rows", len(rows))
	}
}

func TestExportExcel_HandlerSetsDownloadHeaders(t *testing.T) {
	det := &fakeDetector{history: []models.Reading{{Pulse: intPtr(70), TimestampMS: 1}}}
	h := NewHeartrateHandler(det, zap.NewNop())

	w := httptest.NewRecorder()
	h.ExportExcel(w, httptest.NewRequest(http.MethodGet, "/api/heartrate/export.xlsx", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd == "" {
		t.Fatal("expected attachment disposition")
	}
	if w.Body.Len() == 0 {
		t.Fatal("expected workbook bytes")
	}
}
