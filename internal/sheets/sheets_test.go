package sheets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/api/googleapi"

	"secq/internal/evaluate"
	"secq/internal/retry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type cellKey struct{ row, col int }

// memTable is an in-memory Table.
type memTable struct {
	mu          sync.Mutex
	cells       map[cellKey]string
	writeErrs   []error // consumed one per WriteCell
	dropWrites  bool    // WriteCell reports success but stores nothing
	writeCalls  int
	rangeWrites []string
}

func newMemTable(rows ...[]string) *memTable {
	t := &memTable{cells: make(map[cellKey]string)}
	for r, row := range rows {
		for c, v := range row {
			if v != "" {
				t.cells[cellKey{r + 1, c + 1}] = v
			}
		}
	}
	return t
}

func (t *memTable) extent() (rows, cols int) {
	for k := range t.cells {
		if k.row > rows {
			rows = k.row
		}
		if k.col > cols {
			cols = k.col
		}
	}
	return rows, cols
}

func (t *memTable) ReadColumn(_ context.Context, col int) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows, _ := t.extent()
	out := make([]string, rows)
	for r := 1; r <= rows; r++ {
		out[r-1] = t.cells[cellKey{r, col}]
	}
	return out, nil
}

func (t *memTable) ReadRow(_ context.Context, row int) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, cols := t.extent()
	out := make([]string, cols)
	for c := 1; c <= cols; c++ {
		out[c-1] = t.cells[cellKey{row, c}]
	}
	return out, nil
}

func (t *memTable) ReadCell(_ context.Context, row, col int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cells[cellKey{row, col}], nil
}

func (t *memTable) WriteCell(_ context.Context, row, col int, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeCalls++
	if len(t.writeErrs) > 0 {
		err := t.writeErrs[0]
		t.writeErrs = t.writeErrs[1:]
		if err != nil {
			return err
		}
	}
	if !t.dropWrites {
		t.cells[cellKey{row, col}] = value
	}
	return nil
}

func (t *memTable) WriteRange(_ context.Context, a1 string, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rangeWrites = append(t.rangeWrites, a1)
	var col, row int
	for _, ch := range a1 {
		switch {
		case ch >= 'A' && ch <= 'Z':
			col = col*26 + int(ch-'A'+1)
		case ch >= '0' && ch <= '9':
			row = row*10 + int(ch-'0')
		}
	}
	t.cells[cellKey{row, col}] = value
	return nil
}

func fastRetry(n int) retry.Policy {
	return retry.Policy{MaxAttempts: n, BaseDelay: time.Millisecond, Factor: 1}
}

func TestColumnLetter(t *testing.T) {
	tests := map[int]string{1: "A", 2: "B", 26: "Z", 27: "AA", 52: "AZ", 53: "BA", 702: "ZZ", 703: "AAA"}
	for col, want := range tests {
		assert.Equal(t, want, ColumnLetter(col), "col %d", col)
	}
	assert.Equal(t, "C7", A1(7, 3))
}

func TestFindColumn(t *testing.T) {
	header := []string{"ID", "  requirement ", "Owner", "Compliance_Statement"}
	assert.Equal(t, 2, FindColumn(header, RequirementHeaders...))
	assert.Equal(t, 4, FindColumn(header, VerdictHeaders...))
	assert.Equal(t, 0, FindColumn(header, "Notes"))
}

func TestFindColumn_NamePriority(t *testing.T) {
	header := []string{"Compliance_Statement", "Compliance Statement"}
	assert.Equal(t, 2, FindColumn(header, VerdictHeaders...), "earlier name wins over earlier column")
	assert.Equal(t, 1, FindColumn(header, "compliance_statement", "Compliance Statement"))
}

func TestResolveLayout_MissingColumn(t *testing.T) {
	_, err := ResolveLayout([]string{"Requirement", "Notes"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrColumnNotFound))
}

func TestEligibleRequirements(t *testing.T) {
	reqs := []string{"Requirement", "Data must be encrypted at rest", "", "Access logs retained 90 days"}
	verdicts := []string{"Compliance Statement", "", "", "Compliant - yes (Reference: soc2.pdf)"}

	got := EligibleRequirements(reqs, verdicts)
	assert.Equal(t, []evaluate.Requirement{{Row: 2, Text: "Data must be encrypted at rest"}}, got)
}

func TestEligibleRequirements_PadsShortColumns(t *testing.T) {
	reqs := []string{"Requirement", "A", "B", "C"}
	verdicts := []string{"Compliance Statement", "done"}

	got := EligibleRequirements(reqs, verdicts)
	assert.Equal(t, []evaluate.Requirement{{Row: 3, Text: "B"}, {Row: 4, Text: "C"}}, got)
	assert.Empty(t, EligibleRequirements([]string{"Requirement"}, nil))
}

func TestLoadRequirements(t *testing.T) {
	table := newMemTable(
		[]string{"#", "Requirement", "Compliance Statement"},
		[]string{"1", "Data must be encrypted at rest", ""},
		[]string{"2", "", ""},
		[]string{"3", "Access logs retained 90 days", "Compliant - x"},
	)

	layout, reqs, err := LoadRequirements(context.Background(), table)
	require.NoError(t, err)
	assert.Equal(t, Layout{RequirementCol: 2, VerdictCol: 3}, layout)
	assert.Equal(t, []evaluate.Requirement{{Row: 2, Text: "Data must be encrypted at rest"}}, reqs)
}

func TestWriter_RetriesTransientFailures(t *testing.T) {
	table := newMemTable([]string{"Requirement", "Compliance Statement"})
	table.writeErrs = []error{retry.Transient(errors.New("503")), retry.Transient(errors.New("503"))}

	w := NewWriter(table, WriterOptions{Retry: fastRetry(5)})
	require.NoError(t, w.Write(context.Background(), 2, 2, "not_found"))

	assert.Equal(t, 3, table.writeCalls)
	assert.Equal(t, "not_found", table.cells[cellKey{2, 2}])
}

func TestWriter_ReconnectsBeforeRetry(t *testing.T) {
	broken := newMemTable()
	broken.writeErrs = []error{retry.Transient(errors.New("connection reset"))}
	fresh := newMemTable()

	reconnects := 0
	w := NewWriter(broken, WriterOptions{
		Retry: fastRetry(3),
		Reconnect: func(context.Context) (Table, error) {
			reconnects++
			return fresh, nil
		},
	})
	require.NoError(t, w.Write(context.Background(), 5, 2, "Compliant - x"))

	assert.Equal(t, 1, reconnects)
	assert.Equal(t, 1, broken.writeCalls)
	assert.Equal(t, "Compliant - x", fresh.cells[cellKey{5, 2}])
}

func TestWriter_PermanentFailureNotRetried(t *testing.T) {
	table := newMemTable()
	table.writeErrs = []error{errors.New("permission denied")}

	w := NewWriter(table, WriterOptions{Retry: fastRetry(5)})
	err := w.Write(context.Background(), 2, 2, "x")
	require.Error(t, err)
	assert.Equal(t, 1, table.writeCalls)
}

func TestWriter_ExhaustsAttempts(t *testing.T) {
	table := newMemTable()
	for i := 0; i < 3; i++ {
		table.writeErrs = append(table.writeErrs, retry.Transient(fmt.Errorf("429 #%d", i)))
	}

	w := NewWriter(table, WriterOptions{Retry: fastRetry(3)})
	err := w.Write(context.Background(), 2, 2, "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, retry.ErrMaxAttempts))
	assert.Equal(t, 3, table.writeCalls)
}

func TestWriter_VerifyFallsBackToRangeWriteOnce(t *testing.T) {
	table := newMemTable()
	table.dropWrites = true

	w := NewWriter(table, WriterOptions{Verify: true, Retry: fastRetry(3)})
	require.NoError(t, w.Write(context.Background(), 4, 3, "Compliant - y"))

	assert.Equal(t, []string{"C4"}, table.rangeWrites)
	assert.Equal(t, "Compliant - y", table.cells[cellKey{4, 3}])
}

func TestWriter_VerifySkipsFallbackWhenPresent(t *testing.T) {
	table := newMemTable()

	w := NewWriter(table, WriterOptions{Verify: true})
	require.NoError(t, w.Write(context.Background(), 4, 3, "Compliant - y"))
	assert.Empty(t, table.rangeWrites)
}

func TestWriter_NoVerifyNoFallback(t *testing.T) {
	table := newMemTable()
	table.dropWrites = true

	w := NewWriter(table, WriterOptions{})
	require.NoError(t, w.Write(context.Background(), 4, 3, "x"))
	assert.Empty(t, table.rangeWrites)
}

func TestWriter_PacingDelay(t *testing.T) {
	w := NewWriter(newMemTable(), WriterOptions{Delay: 30 * time.Millisecond})

	start := time.Now()
	require.NoError(t, w.Write(context.Background(), 2, 2, "x"))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))
	assert.True(t, retry.IsTransient(Classify(&googleapi.Error{Code: 429})))
	assert.True(t, retry.IsTransient(Classify(&googleapi.Error{Code: 503})))
	assert.True(t, retry.IsTransient(Classify(fmt.Errorf("read: %w", io.ErrUnexpectedEOF))))
	assert.False(t, retry.IsTransient(Classify(&googleapi.Error{Code: 403})))
	assert.False(t, retry.IsTransient(Classify(errors.New("bad range"))))
}
