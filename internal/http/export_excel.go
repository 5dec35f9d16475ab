package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"pulse-gateway/internal/models"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ReadingExportHeader 读数历史导出表头
var ReadingExportHeader = []string{
	"Time",
	"Pulse (BPM)",
	"Breathing (breaths/min)",
}

// ExportExcel GET /api/heartrate/export.xlsx
func (h *HeartrateHandler) ExportExcel(w http.ResponseWriter, r *http.Request) {
	data, err := GenerateReadingExport(h.detector.History())
	if err != nil {
		h.logger.Error("failed to generate xlsx export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "error", Message: "export failed"})
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="heartrate_history.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GenerateReadingExport 生成读数历史 Excel 文件
// history 为空时只生成表头
func GenerateReadingExport(history []models.Reading) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	sheetName := "Vital Readings"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	// 表头样式
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 写入表头
	for col, header := range ReadingExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	// 列宽
	columnWidths := []float64{22, 14, 24}
	for i := range ReadingExportHeader {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheetName, col, col, columnWidths[i]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	// 写入读数，从第2行开始（第1行是表头）
	for rowIdx, reading := range history {
		row := rowIdx + 2

		ts := time.UnixMilli(reading.TimestampMS).Format("2006-01-02 15:04:05")
		if err := setReadingCell(f, sheetName, 1, row, ts); err != nil {
			f.Close()
			return nil, err
		}
		// 缺失的指标留空
		if reading.Pulse != nil {
			if err := setReadingCell(f, sheetName, 2, row, *reading.Pulse); err != nil {
				f.Close()
				return nil, err
			}
		}
		if reading.BreathingRate != nil {
			if err := setReadingCell(f, sheetName, 3, row, *reading.BreathingRate); err != nil {
				f.Close()
				return nil, err
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func setReadingCell(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("failed to set cell %s: %w", cell, err)
	}
	return nil
}
