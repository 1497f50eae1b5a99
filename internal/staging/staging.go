// Package staging holds per-table FIFO queues of records awaiting insert
// into the memory database, split into "new" (not yet applied anywhere)
// and "old" (applied, pending eviction bookkeeping) generations.
package staging

// Record is one row of staged values parsed from CSV, keyed by column
// name. The map carries no column order; binding follows the column list.
type Record struct {
	Values map[string]string
}

// Buffer holds the new/old queues for a single table.
type Buffer struct {
	newQueue []Record
	oldQueue []Record
}

// PushNew appends a record to the new queue.
func (b *Buffer) PushNew(r Record) {
	b.newQueue = append(b.newQueue, r)
}

// DrainNew removes and returns every record currently in the new queue, in
// FIFO order, leaving the new queue empty.
func (b *Buffer) DrainNew() []Record {
	out := b.newQueue
	b.newQueue = nil
	return out
}

// PromoteToOld appends records, already taken off the new queue by
// DrainNew, to the tail of the old queue; it does not touch the new queue.
// Used after a batch has been inserted into the memory database, so the staging
// buffer still knows about them for the eviction accounting pass.
func (b *Buffer) PromoteToOld(records []Record) {
	b.oldQueue = append(b.oldQueue, records...)
}

// OldLen reports the number of records parked in the old queue.
func (b *Buffer) OldLen() int { return len(b.oldQueue) }

// NewLen reports the number of records parked in the new queue.
func (b *Buffer) NewLen() int { return len(b.newQueue) }

// EvictOldest removes up to n records from the head of the old queue and
// returns them. If n exceeds OldLen, all records are returned.
func (b *Buffer) EvictOldest(n int) []Record {
	if n <= 0 {
		return nil
	}
	if n > len(b.oldQueue) {
		n = len(b.oldQueue)
	}
	evicted := b.oldQueue[:n]
	b.oldQueue = b.oldQueue[n:]
	return evicted
}

// Staging is a name-unique collection of per-table Buffers, created
// lazily on first reference.
type Staging struct {
	tables map[string]*Buffer
	order  []string
}

// New returns an empty Staging.
func New() *Staging {
	return &Staging{tables: make(map[string]*Buffer)}
}

// Table returns the Buffer for table, creating one if this is the first
// reference.
func (s *Staging) Table(table string) *Buffer {
	b, ok := s.tables[table]
	if !ok {
		b = &Buffer{}
		s.tables[table] = b
		s.order = append(s.order, table)
	}
	return b
}

// Tables returns the table names referenced so far, in first-reference
// order.
func (s *Staging) Tables() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
