// Package sheets reads requirements from and writes verdicts to the
// questionnaire worksheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"secq/internal/evaluate"
)

// ErrColumnNotFound is returned when a required header is absent.
var ErrColumnNotFound = errors.New("column not found")

// Table is the tabular store. Rows and columns are 1-based.
type Table interface {
	ReadColumn(ctx context.Context, col int) ([]string, error)
	ReadRow(ctx context.Context, row int) ([]string, error)
	ReadCell(ctx context.Context, row, col int) (string, error)
	WriteCell(ctx context.Context, row, col int, value string) error
	WriteRange(ctx context.Context, a1 string, value string) error
}

// Header names accepted for each column.
var (
	RequirementHeaders = []string{"Requirement"}
	VerdictHeaders     = []string{"Compliance Statement", "Compliance_Statement"}
)

// Layout holds the resolved column indexes.
type Layout struct {
	RequirementCol int
	VerdictCol     int
}

// ColumnLetter converts a 1-based column index to its A1 letters.
func ColumnLetter(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

// A1 returns the absolute cell address for row and col.
func A1(row, col int) string {
	return ColumnLetter(col) + strconv.Itoa(row)
}

// FindColumn returns the 1-based index of the header cell matching the
// earliest of names, ignoring case and surrounding space. Zero means absent.
func FindColumn(header []string, names ...string) int {
	for _, name := range names {
		name = strings.TrimSpace(name)
		for i, cell := range header {
			if strings.EqualFold(strings.TrimSpace(cell), name) {
				return i + 1
			}
		}
	}
	return 0
}

// ResolveLayout finds the requirement and verdict columns in header.
func ResolveLayout(header []string) (Layout, error) {
	l := Layout{
		RequirementCol: FindColumn(header, RequirementHeaders...),
		VerdictCol:     FindColumn(header, VerdictHeaders...),
	}
	if l.RequirementCol == 0 {
		return l, fmt.Errorf("%w: %q", ErrColumnNotFound, RequirementHeaders[0])
	}
	if l.VerdictCol == 0 {
		return l, fmt.Errorf("%w: %q", ErrColumnNotFound, VerdictHeaders[0])
	}
	return l, nil
}

// EligibleRequirements pairs the two columns row by row and returns the
// rows below the header with requirement text and no verdict yet.
func EligibleRequirements(requirements, verdicts []string) []evaluate.Requirement {
	n := len(requirements)
	if len(verdicts) > n {
		n = len(verdicts)
	}
	cell := func(col []string, i int) string {
		if i < len(col) {
			return strings.TrimSpace(col[i])
		}
		return ""
	}

	var out []evaluate.Requirement
	for i := 1; i < n; i++ {
		text := cell(requirements, i)
		if text == "" || cell(verdicts, i) != "" {
			continue
		}
		out = append(out, evaluate.Requirement{Row: i + 1, Text: text})
	}
	return out
}

// LoadRequirements reads the header and both columns from t and returns
// the layout and the eligible rows.
func LoadRequirements(ctx context.Context, t Table) (Layout, []evaluate.Requirement, error) {
	header, err := t.ReadRow(ctx, 1)
	if err != nil {
		return Layout{}, nil, fmt.Errorf("failed to read header row: %w", err)
	}
	layout, err := ResolveLayout(header)
	if err != nil {
		return layout, nil, err
	}

	reqs, err := t.ReadColumn(ctx, layout.RequirementCol)
	if err != nil {
		return layout, nil, fmt.Errorf("failed to read requirement column: %w", err)
	}
	verdicts, err := t.ReadColumn(ctx, layout.VerdictCol)
	if err != nil {
		return layout, nil, fmt.Errorf("failed to read verdict column: %w", err)
	}
	return layout, EligibleRequirements(reqs, verdicts), nil
}
