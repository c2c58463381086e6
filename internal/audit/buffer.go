package audit

import "context"

// Buffer collects entries in memory during an operation so they can be
// flushed inside the enclosing database transaction. Backend calls happen
// before the transaction opens; buffering is what keeps the "audit entry
// never exists for a booking that did not commit" invariant.
type Buffer struct {
	entries []Entry
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Record appends the entry to the buffer. It never fails.
func (b *Buffer) Record(ctx context.Context, entry Entry) error {
	b.entries = append(b.entries, entry)
	return nil
}

// Flush writes all buffered entries through rec, preserving order, and
// clears the buffer.
func (b *Buffer) Flush(ctx context.Context, rec Recorder) error {
	for _, entry := range b.entries {
		if err := rec.Record(ctx, entry); err != nil {
			return err
		}
	}
	b.entries = nil
	return nil
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int { return len(b.entries) }

var _ Recorder = (*Buffer)(nil)
