// Package export renders rental reports as XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"umbrella/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	rentalsSheet = "Sewa"
	summarySheet = "Ringkasan"
	dateLayout   = "02.01.2006"
	timeLayout   = "02.01.2006 15:04"
)

var rentalColumns = []string{
	"ID", "User ID", "Titik Sewa", "Metode Bayar", "Durasi (jam)", "Harga",
	"Denda", "Mulai", "Selesai", "Status", "Total",
}

// RentalReport builds the admin rental workbook: one row per rental plus a
// per-spot summary.
type RentalReport struct {
	dir      string
	location *time.Location
	logger   *zerolog.Logger
}

func NewRentalReport(dir string, loc *time.Location, logger *zerolog.Logger) *RentalReport {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RentalReport{dir: dir, location: loc, logger: logger}
}

type spotTotals struct {
	name    string
	rentals int
	overdue int
	revenue int64
	overage int64
	active  int
}

// Build renders rentals started in [from, to). spotNames maps spot IDs to
// display names; unknown spots fall back to the ID.
func (r *RentalReport) Build(rentals []*models.Rental, spotNames map[string]string, from, to time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(rentalsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(rentalsSheet, "A1", fmt.Sprintf("Periode: %s - %s",
		from.In(r.location).Format(dateLayout), to.In(r.location).Format(dateLayout)))
	lastCol, _ := excelize.ColumnNumberToName(len(rentalColumns))
	_ = f.MergeCell(rentalsSheet, "A1", lastCol+"1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(rentalsSheet, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, title := range rentalColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(rentalsSheet, cell, title)
		_ = f.SetCellStyle(rentalsSheet, cell, cell, headerStyle)
	}

	overdueStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FCE4D6"}, Pattern: 1},
	})

	totals := make(map[string]*spotTotals)
	for i, rental := range rentals {
		row := i + 3
		name := spotNames[rental.SpotID]
		if name == "" {
			name = rental.SpotID
		}

		end := ""
		if rental.EndTime != nil {
			end = rental.EndTime.In(r.location).Format(timeLayout)
		}
		values := []interface{}{
			rental.ID,
			rental.UserID,
			name,
			rental.PaymentMethod.Label(),
			rental.AllowedDurationHours,
			rental.Price,
			rental.ExtraCharge,
			rental.StartTime.In(r.location).Format(timeLayout),
			end,
			string(rental.State()),
			rental.Price + rental.ExtraCharge,
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(rentalsSheet, start, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("error writing row %d: %w", row, err)
		}
		if rental.ExtraCharge > 0 {
			endCell, _ := excelize.CoordinatesToCellName(len(rentalColumns), row)
			_ = f.SetCellStyle(rentalsSheet, start, endCell, overdueStyle)
		}

		t, ok := totals[rental.SpotID]
		if !ok {
			t = &spotTotals{name: name}
			totals[rental.SpotID] = t
		}
		t.rentals++
		t.revenue += rental.Price
		t.overage += rental.ExtraCharge
		if rental.ExtraCharge > 0 {
			t.overdue++
		}
		if rental.Active {
			t.active++
		}
	}

	_ = f.SetColWidth(rentalsSheet, "A", "A", 8)
	_ = f.SetColWidth(rentalsSheet, "B", "B", 38)
	_ = f.SetColWidth(rentalsSheet, "C", lastCol, 18)

	if err := r.writeSummary(f, totals, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

func (r *RentalReport) writeSummary(f *excelize.File, totals map[string]*spotTotals, headerStyle int) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	headers := []interface{}{"Titik Sewa", "Jumlah Sewa", "Terlambat", "Masih Aktif", "Pendapatan", "Denda"}
	if err := f.SetSheetRow(summarySheet, "A1", &headers); err != nil {
		return err
	}
	_ = f.SetCellStyle(summarySheet, "A1", "F1", headerStyle)

	ids := make([]string, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return totals[ids[i]].name < totals[ids[j]].name })

	var all spotTotals
	row := 2
	for _, id := range ids {
		t := totals[id]
		values := []interface{}{t.name, t.rentals, t.overdue, t.active, t.revenue, t.overage}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(summarySheet, cell, &values); err != nil {
			return err
		}
		all.rentals += t.rentals
		all.overdue += t.overdue
		all.active += t.active
		all.revenue += t.revenue
		all.overage += t.overage
		row++
	}

	values := []interface{}{"Total", all.rentals, all.overdue, all.active, all.revenue, all.overage}
	cell, _ := excelize.CoordinatesToCellName(1, row)
	if err := f.SetSheetRow(summarySheet, cell, &values); err != nil {
		return err
	}
	bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	endCell, _ := excelize.CoordinatesToCellName(len(values), row)
	_ = f.SetCellStyle(summarySheet, cell, endCell, bold)
	_ = f.SetColWidth(summarySheet, "A", "A", 25)
	_ = f.SetColWidth(summarySheet, "B", "F", 15)
	return nil
}

// Write streams the workbook to w.
func (r *RentalReport) Write(w io.Writer, rentals []*models.Rental, spotNames map[string]string, from, to time.Time) error {
	f, err := r.Build(rentals, spotNames, from, to)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(w)
	return err
}

// Save writes the workbook into the export directory and returns its path.
func (r *RentalReport) Save(rentals []*models.Rental, spotNames map[string]string, from, to time.Time) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := r.Build(rentals, spotNames, from, to)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fileName := FileName(from, to)
	filePath := filepath.Join(r.dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	r.logger.Info().Str("file_path", filePath).Int("rentals", len(rentals)).Msg("Excel file created")
	return filePath, nil
}

func FileName(from, to time.Time) string {
	return fmt.Sprintf("rentals_%s_to_%s.xlsx", from.Format("2006-01-02"), to.Format("2006-01-02"))
}
