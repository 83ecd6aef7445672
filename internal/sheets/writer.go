package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"secq/internal/logging"
	"secq/internal/retry"
)

// DefaultWriteDelay paces consecutive row writes.
const DefaultWriteDelay = 500 * time.Millisecond

// WriterOptions configures a Writer.
type WriterOptions struct {
	Verify bool
	Delay  time.Duration
	Retry  retry.Policy

	// Reconnect builds a fresh Table before each retry.
	Reconnect func(ctx context.Context) (Table, error)
}

// Writer puts verdicts into the verdict column.
type Writer struct {
	mu    sync.Mutex
	table Table
	opts  WriterOptions
}

func NewWriter(table Table, opts WriterOptions) *Writer {
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}
	opts.Retry.Category = logging.CategorySheets
	w := &Writer{table: table, opts: opts}
	if opts.Reconnect != nil {
		w.opts.Retry.Reconnect = w.reconnect
	}
	return w
}

func (w *Writer) current() Table {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.table
}

func (w *Writer) reconnect(ctx context.Context) error {
	t, err := w.opts.Reconnect(ctx)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.table = t
	w.mu.Unlock()
	logging.SheetsDebug("reconnected to worksheet")
	return nil
}

// Write stores value at (row, col) with retries. When verification is on,
// an empty read-back triggers one range write at the cell's A1 address.
// The pacing delay follows every call.
func (w *Writer) Write(ctx context.Context, row, col int, value string) error {
	defer w.pace(ctx)

	err := retry.Run(ctx, w.opts.Retry, fmt.Sprintf("write row %d", row), func(ctx context.Context) error {
		return w.current().WriteCell(ctx, row, col, value)
	})
	if err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}

	if w.opts.Verify {
		w.verify(ctx, row, col, value)
	}
	logging.SheetsDebug("row %d written", row)
	return nil
}

func (w *Writer) verify(ctx context.Context, row, col int, value string) {
	t := w.current()
	got, err := t.ReadCell(ctx, row, col)
	if err != nil {
		logging.SheetsWarn("could not verify row %d: %v", row, err)
		return
	}
	if strings.TrimSpace(got) != "" {
		return
	}

	addr := A1(row, col)
	logging.SheetsWarn("row %d read back empty, rewriting %s", row, addr)
	if err := t.WriteRange(ctx, addr, value); err != nil {
		logging.SheetsWarn("fallback write of %s failed: %v", addr, err)
	}
}

func (w *Writer) pace(ctx context.Context) {
	if w.opts.Delay <= 0 {
		return
	}
	t := time.NewTimer(w.opts.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
