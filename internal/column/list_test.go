package column

import "testing"

func TestListAppendRejectsDuplicate(t *testing.T) {
	l := NewList()
	l.Append("id", Integer, WithPrimaryKey())
	dup := l.Append("id", Text, WithUnique())

	if dup.Type != Integer || dup.PrimaryKey != true || dup.Unique {
		t.Fatalf("duplicate append should return the existing column unchanged, got %+v", dup)
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 column, got %d", l.Len())
	}
}

func TestListSearchAndOrder(t *testing.T) {
	l := NewList()
	l.Append("date", DateTime)
	l.Append("name", Text)
	l.Append("value", Real)

	if l.IsEmpty() {
		t.Fatal("list should not be empty")
	}

	got := l.Columns()
	want := []string{"date", "name", "value"}
	if len(got) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Fatalf("column %d: expected %q, got %q", i, name, got[i].Name)
		}
	}

	if _, ok := l.Search("missing"); ok {
		t.Fatal("search for missing column should return ok=false")
	}
	c, ok := l.Search("value")
	if !ok || c.Type != Real {
		t.Fatalf("search for value should find a REAL column, got %+v, ok=%v", c, ok)
	}
}

func TestColumnDDL(t *testing.T) {
	c := Column{Name: "id", Type: Integer}
	c.PrimaryKey = true
	c.AutoIncrement = true
	if got, want := c.DDL(), "id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL"; got != want {
		t.Fatalf("DDL() = %q, want %q", got, want)
	}

	nullable := Column{Name: "note", Type: Text, AllowNull: true}
	if got, want := nullable.DDL(), "note TEXT"; got != want {
		t.Fatalf("DDL() = %q, want %q", got, want)
	}
}

func TestNormalizeType(t *testing.T) {
	cases := map[string]Type{
		"integer": Integer,
		"DOUBLE":  Real,
		"Float":   Real,
		"varchar": Text,
		"char":    Text,
		"blob":    Blob,
		"bool":    Bool,
		"BOOLEAN": Bool,
	}
	for in, want := range cases {
		got, err := NormalizeType(in)
		if err != nil {
			t.Fatalf("NormalizeType(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("NormalizeType(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := NormalizeType("banana"); err == nil {
		t.Fatal("expected error for unrecognized type")
	}
}
