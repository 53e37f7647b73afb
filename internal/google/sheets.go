package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"umbrella/internal/domain"
	"umbrella/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	timeLayout  = "2006-01-02 15:04:05"
	lastColumn  = "L"
	defaultName = "Rentals"
)

var errRowNotFound = errors.New("rental row not found")

var rentalHeaders = []interface{}{
	"ID", "User ID", "Spot ID", "Spot", "Payment Method", "Hours",
	"Price", "Extra Charge", "Start", "End", "Status", "Total",
}

// SheetsLedger mirrors finished rentals into a Google spreadsheet, one row
// per rental keyed by the rental ID in column A.
type SheetsLedger struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	location      *time.Location
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
}

var _ domain.RentalLedgerWriter = (*SheetsLedger)(nil)

func NewSheetsLedger(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, loc *time.Location) (*SheetsLedger, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	ledger := newSheetsLedger(srv, spreadsheetID, sheetName, loc)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = ledger.WarmUpCache(ctx)
	}()

	return ledger, nil
}

func newSheetsLedger(srv *sheets.Service, spreadsheetID, sheetName string, loc *time.Location) *SheetsLedger {
	if sheetName == "" {
		sheetName = defaultName
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SheetsLedger{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		location:      loc,
		rowCache:      make(map[int64]int),
	}
}

// TestConnection reads the header cell to check access to the spreadsheet.
func (s *SheetsLedger) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// ServiceAccountEmail returns the client_email of a credentials file, the
// address the spreadsheet must be shared with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// EnsureHeader writes the header row when the sheet is empty.
func (s *SheetsLedger) EnsureHeader(ctx context.Context) error {
	headerRange := fmt.Sprintf("%s!A1:%s1", s.sheetName, lastColumn)
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return err
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, headerRange, &sheets.ValueRange{
		Values: [][]interface{}{rentalHeaders},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// WarmUpCache loads the row index of every rental ID in column A.
func (s *SheetsLedger) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id := cellID(row[0]); id > 0 {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

// AppendRental writes the rental row, updating it in place when the rental
// is already in the sheet so retried deliveries do not duplicate rows.
func (s *SheetsLedger) AppendRental(ctx context.Context, rental *models.Rental, spotName string) error {
	if rental == nil || rental.ID == 0 {
		return fmt.Errorf("rental id is required")
	}

	rowIdx, err := s.FindRentalRow(ctx, rental.ID)
	switch {
	case err == nil:
		rangeData := fmt.Sprintf("%s!A%d:%s%d", s.sheetName, rowIdx, lastColumn, rowIdx)
		_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
			Values: [][]interface{}{s.rentalRowValues(rental, spotName)},
		}).ValueInputOption("RAW").Context(ctx).Do()
		return err
	case errors.Is(err, errRowNotFound):
	default:
		return err
	}

	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetName+"!A:A", &sheets.ValueRange{
		Values: [][]interface{}{s.rentalRowValues(rental, spotName)},
	}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if row := rowFromRange(resp.Updates.UpdatedRange); row > 0 {
			s.setCachedRow(rental.ID, row)
		}
	}
	return nil
}

// FindRentalRow locates the 1-based row for rentalID in column A.
func (s *SheetsLedger) FindRentalRow(ctx context.Context, rentalID int64) (int, error) {
	if row, ok := s.getCachedRow(rentalID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if cellID(row[0]) == rentalID {
			s.setCachedRow(rentalID, i+1)
			return i + 1, nil
		}
	}
	return 0, errRowNotFound
}

func (s *SheetsLedger) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsLedger) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsLedger) rentalRowValues(r *models.Rental, spotName string) []interface{} {
	if spotName == "" {
		spotName = r.SpotID
	}
	end := ""
	if r.EndTime != nil {
		end = r.EndTime.In(s.location).Format(timeLayout)
	}
	return []interface{}{
		r.ID,
		r.UserID,
		r.SpotID,
		spotName,
		r.PaymentMethod.Label(),
		r.AllowedDurationHours,
		r.Price,
		r.ExtraCharge,
		r.StartTime.In(s.location).Format(timeLayout),
		end,
		string(r.State()),
		r.Price + r.ExtraCharge,
	}
}

func cellID(v interface{}) int64 {
	switch v := v.(type) {
	case float64:
		return int64(v)
	case string:
		id, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return id
	}
	return 0
}

// rowFromRange extracts the first row number from an A1 range such as
// "Rentals!A10:L10".
func rowFromRange(a1 string) int {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	if i := strings.Index(a1, ":"); i >= 0 {
		a1 = a1[:i]
	}
	digits := strings.TrimLeft(a1, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	row, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return row
}
