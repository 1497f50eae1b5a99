package column

// List is an ordered, name-unique sequence of Column descriptors. Order
// defines the positional layout used when binding CSV fields against a
// table; uniqueness is case-sensitive.
type List struct {
	columns []Column
	index   map[string]int
}

// NewList returns an empty column list.
func NewList() *List {
	return &List{index: make(map[string]int)}
}

// Append adds a column to the tail of the list. If a column with the same
// name already exists, Append is a no-op and returns the existing column
// unchanged — it never replaces or errors.
func (l *List) Append(name string, typ Type, opts ...Option) Column {
	if i, ok := l.index[name]; ok {
		return l.columns[i]
	}
	c := Column{Name: name, Type: typ}
	for _, opt := range opts {
		opt(&c)
	}
	l.index[name] = len(l.columns)
	l.columns = append(l.columns, c)
	return c
}

// Len returns the number of columns in the list.
func (l *List) Len() int {
	return len(l.columns)
}

// IsEmpty reports whether the list has no columns.
func (l *List) IsEmpty() bool {
	return len(l.columns) == 0
}

// Search looks up a column by name, returning ok=false if absent.
func (l *List) Search(name string) (Column, bool) {
	i, ok := l.index[name]
	if !ok {
		return Column{}, false
	}
	return l.columns[i], true
}

// Columns returns the columns in insertion order. The returned slice is a
// copy; mutating it does not affect the list.
func (l *List) Columns() []Column {
	out := make([]Column, len(l.columns))
	copy(out, l.columns)
	return out
}
