package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"adspot/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Заявки"

// ApplicationSource is the slice of storage the exporter reads.
type ApplicationSource interface {
	GetApplicationsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Application, error)
	GetApplicationSlots(ctx context.Context, applicationID int64) ([]models.ApplicationSlot, error)
}

// Exporter builds xlsx reports over applications for the admin surface.
type Exporter struct {
	source ApplicationSource
	logger zerolog.Logger
}

func NewExporter(source ApplicationSource, logger *zerolog.Logger) *Exporter {
	return &Exporter{
		source: source,
		logger: logger.With().Str("component", "export").Logger(),
	}
}

// ApplicationsReport renders all applications created inside the period
// into an xlsx workbook and returns it as an in-memory buffer, ready to
// be served over HTTP.
func (e *Exporter) ApplicationsReport(ctx context.Context, start, end time.Time) (*bytes.Buffer, error) {
	apps, err := e.source.GetApplicationsByDateRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load applications: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	// Заголовок периода
	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Период: %s - %s",
		start.Format("02.01.2006"), end.Format("02.01.2006")))
	_ = f.MergeCell(sheetName, "A1", "H1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headers := []string{"ID", "Заявитель", "Площадка", "Заголовок", "Статус", "Слотов", "Сумма", "Создана"}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, app := range apps {
		row := i + 3
		slots, err := e.source.GetApplicationSlots(ctx, app.ID)
		if err != nil {
			e.logger.Error().Err(err).Int64("application_id", app.ID).Msg("error loading application slots")
		}

		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), app.ID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), app.ApplicantID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), app.Placement)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), app.Title)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), statusLabel(app.Status))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), len(slots))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), float64(app.TotalAmount)/100)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), app.CreatedAt.Format("02.01.2006 15:04"))

		if styleID, err := statusStyle(f, app.Status); err == nil {
			_ = f.SetCellStyle(sheetName, fmt.Sprintf("E%d", row), fmt.Sprintf("E%d", row), styleID)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "B", 12)
	_ = f.SetColWidth(sheetName, "C", "D", 25)
	_ = f.SetColWidth(sheetName, "E", "H", 18)

	_ = f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("error writing workbook: %v", err)
	}

	e.logger.Info().Int("applications", len(apps)).Msg("applications report built")
	return buf, nil
}

// SaveApplicationsReport writes the report to the export directory and
// returns the file path.
func (e *Exporter) SaveApplicationsReport(ctx context.Context, dir string, start, end time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	buf, err := e.ApplicationsReport(ctx, start, end)
	if err != nil {
		return "", err
	}

	fileName := fmt.Sprintf("applications_%s_to_%s.xlsx",
		start.Format(models.DateLayout), end.Format(models.DateLayout))
	filePath := filepath.Join(dir, fileName)

	if err := os.WriteFile(filePath, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}

func statusLabel(status string) string {
	switch status {
	case models.StatusPending:
		return "Ожидает"
	case models.StatusApproved:
		return "Одобрена"
	case models.StatusRejected:
		return "Отклонена"
	case models.StatusCancelled:
		return "Отменена"
	case models.StatusExpired:
		return "Просрочена"
	default:
		return status
	}
}

func statusStyle(f *excelize.File, status string) (int, error) {
	var color string
	switch status {
	case models.StatusApproved:
		color = "#C6EFCE"
	case models.StatusPending:
		color = "#FFEB9C"
	case models.StatusRejected, models.StatusExpired:
		color = "#FFC7CE"
	default:
		color = "#FFFFFF"
	}

	return f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
	})
}
