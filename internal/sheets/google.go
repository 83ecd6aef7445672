package sheets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"secq/internal/logging"
	"secq/internal/retry"
)

// GoogleTable is a Table backed by one worksheet of a Google spreadsheet.
type GoogleTable struct {
	svc           *gsheets.Service
	spreadsheetID string
	sheetID       int64
	title         string
}

// Connect opens worksheet index of spreadsheetID. An out-of-range index
// falls back to the first worksheet. An empty credentialsFile uses
// application default credentials.
func Connect(ctx context.Context, spreadsheetID string, index int, credentialsFile string) (*GoogleTable, error) {
	opts := []option.ClientOption{option.WithScopes(gsheets.SpreadsheetsScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	ss, err := svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet %s: %w", spreadsheetID, Classify(err))
	}
	if len(ss.Sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet %s has no worksheets", spreadsheetID)
	}
	if index < 0 || index >= len(ss.Sheets) {
		logging.SheetsWarn("worksheet index %d out of range (%d sheets), using the first", index, len(ss.Sheets))
		index = 0
	}

	props := ss.Sheets[index].Properties
	logging.Sheets("connected to worksheet %q", props.Title)
	return &GoogleTable{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetID:       props.SheetId,
		title:         props.Title,
	}, nil
}

// Title is the worksheet name.
func (t *GoogleTable) Title() string { return t.title }

func (t *GoogleTable) rangeOf(a1 string) string {
	return "'" + strings.ReplaceAll(t.title, "'", "''") + "'!" + a1
}

func (t *GoogleTable) values(ctx context.Context, a1, major string) ([][]interface{}, error) {
	vr, err := t.svc.Spreadsheets.Values.Get(t.spreadsheetID, t.rangeOf(a1)).
		MajorDimension(major).
		Context(ctx).
		Do()
	if err != nil {
		return nil, Classify(err)
	}
	return vr.Values, nil
}

func flatten(rows [][]interface{}) []string {
	if len(rows) == 0 {
		return nil
	}
	out := make([]string, len(rows[0]))
	for i, v := range rows[0] {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func (t *GoogleTable) ReadColumn(ctx context.Context, col int) ([]string, error) {
	letter := ColumnLetter(col)
	rows, err := t.values(ctx, letter+":"+letter, "COLUMNS")
	if err != nil {
		return nil, err
	}
	return flatten(rows), nil
}

func (t *GoogleTable) ReadRow(ctx context.Context, row int) ([]string, error) {
	r := fmt.Sprint(row)
	rows, err := t.values(ctx, r+":"+r, "ROWS")
	if err != nil {
		return nil, err
	}
	return flatten(rows), nil
}

func (t *GoogleTable) ReadCell(ctx context.Context, row, col int) (string, error) {
	rows, err := t.values(ctx, A1(row, col), "ROWS")
	if err != nil {
		return "", err
	}
	if cells := flatten(rows); len(cells) > 0 {
		return cells[0], nil
	}
	return "", nil
}

// WriteCell sets the cell through a grid-coordinate batch update.
func (t *GoogleTable) WriteCell(ctx context.Context, row, col int, value string) error {
	v := value
	req := &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			UpdateCells: &gsheets.UpdateCellsRequest{
				Start: &gsheets.GridCoordinate{
					SheetId:     t.sheetID,
					RowIndex:    int64(row - 1),
					ColumnIndex: int64(col - 1),
				},
				Rows: []*gsheets.RowData{{
					Values: []*gsheets.CellData{{
						UserEnteredValue: &gsheets.ExtendedValue{StringValue: &v},
					}},
				}},
				Fields: "userEnteredValue",
			},
		}},
	}
	_, err := t.svc.Spreadsheets.BatchUpdate(t.spreadsheetID, req).Context(ctx).Do()
	return Classify(err)
}

// WriteRange sets the cell at an A1 address through the values API.
func (t *GoogleTable) WriteRange(ctx context.Context, a1 string, value string) error {
	vr := &gsheets.ValueRange{Values: [][]interface{}{{value}}}
	_, err := t.svc.Spreadsheets.Values.Update(t.spreadsheetID, t.rangeOf(a1), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return Classify(err)
}

// Classify marks rate-limit, server and network errors as transient.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == 408 || gerr.Code == 429 || gerr.Code >= 500 {
			return retry.Transient(err)
		}
		return err
	}
	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return retry.Transient(err)
	}
	return err
}
