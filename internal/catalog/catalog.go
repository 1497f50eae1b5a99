// Package catalog maps table names to column lists and turns that mapping
// into CREATE TABLE DDL against either of the CEP engine's two databases.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mtsmys/cep-go/internal/column"
)

// Catalog is a name-unique, insertion-ordered mapping of table name to
// column list.
type Catalog struct {
	order  []string
	tables map[string]*column.List
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{tables: make(map[string]*column.List)}
}

// Upsert registers (or replaces) the column list for a table. An empty
// column list is rejected — every table must have at least one column.
func (c *Catalog) Upsert(table string, columns *column.List) error {
	if columns == nil || columns.IsEmpty() {
		return fmt.Errorf("catalog: table %q must have at least one column", table)
	}
	if _, exists := c.tables[table]; !exists {
		c.order = append(c.order, table)
	}
	c.tables[table] = columns
	return nil
}

// Lookup returns the column list registered for a table.
func (c *Catalog) Lookup(table string) (*column.List, bool) {
	l, ok := c.tables[table]
	return l, ok
}

// Tables returns the registered table names in registration order.
func (c *Catalog) Tables() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// CreateAll issues one CREATE TABLE IF NOT EXISTS per registered table
// against db.
func (c *Catalog) CreateAll(ctx context.Context, db *sql.DB) error {
	for _, table := range c.order {
		list := c.tables[table]
		if _, err := db.ExecContext(ctx, createTableSQL(table, list)); err != nil {
			return fmt.Errorf("catalog: create table %q: %w", table, err)
		}
	}
	return nil
}

func createTableSQL(table string, list *column.List) string {
	cols := list.Columns()
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = col.DDL()
	}
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString(")")
	return b.String()
}

// GetTableInfoSQL returns the read-only PRAGMA used by tests to introspect
// a table's column layout.
func GetTableInfoSQL(table string) string {
	return fmt.Sprintf("PRAGMA table_info(%s)", table)
}

// InsertSQL composes the parameterised INSERT statement for a table, in the
// column list's positional order.
func InsertSQL(table string, list *column.List) string {
	cols := list.Columns()
	names := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
		placeholders[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), strings.Join(placeholders, ", "))
}
