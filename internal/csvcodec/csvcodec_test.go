package csvcodec

import (
	"testing"

	"github.com/mtsmys/cep-go/internal/column"
)

func TestParseBasic(t *testing.T) {
	res, err := Parse("id,name\r\n1,alice\r\n2,bob\r\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Header) != 2 || res.Header[0] != "id" || res.Header[1] != "name" {
		t.Fatalf("unexpected header: %+v", res.Header)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	if res.Rows[0][0] != "1" || res.Rows[0][1] != "alice" {
		t.Fatalf("unexpected row 0: %+v", res.Rows[0])
	}
}

func TestParseAcceptsBareLF(t *testing.T) {
	res, err := Parse("id,name\n1,alice\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
}

func TestParseHeaderOnlyIsNoOp(t *testing.T) {
	res, err := Parse("id,name\r\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("expected 0 rows, got %d", len(res.Rows))
	}
}

func TestValidateRowWidthMismatch(t *testing.T) {
	rows := [][]string{{"1", "alice"}, {"2"}}
	if err := ValidateRowWidth(rows, 2); err == nil {
		t.Fatal("expected error for width mismatch")
	}
}

func TestFormatSelectEmptyReturnsFalse(t *testing.T) {
	_, ok := FormatSelect(SelectResult{OriginNames: []string{"id"}})
	if ok {
		t.Fatal("expected ok=false for empty rows")
	}
}

func TestFormatSelectJoinsWithCRLF(t *testing.T) {
	out, ok := FormatSelect(SelectResult{
		OriginNames: []string{"id", "name"},
		Rows:        [][]string{{"1", "alice"}, {"2", "bob"}},
	})
	if !ok {
		t.Fatal("expected ok=true")
	}
	want := "id,name\r\n1,alice\r\n2,bob\r\n"
	if out != want {
		t.Fatalf("FormatSelect = %q, want %q", out, want)
	}
}

func TestFormatValueTypes(t *testing.T) {
	if got := FormatValue(column.Integer, int64(42)); got != "42" {
		t.Fatalf("integer: got %q", got)
	}
	if got := FormatValue(column.Real, float64(1)); got != "1.000000" {
		t.Fatalf("real: got %q", got)
	}
	if got := FormatValue(column.Text, []byte("hello")); got != "hello" {
		t.Fatalf("text: got %q", got)
	}
	if got := FormatValue(column.Blob, []byte{0xde, 0xad, 0xbe, 0xef}); got != "3q2+7w==" {
		t.Fatalf("blob: got %q", got)
	}
	if got := FormatValue(column.Integer, nil); got != "NULL" {
		t.Fatalf("null: got %q", got)
	}
	if got := FormatValue(column.Bool, int64(1)); got != "1" {
		t.Fatalf("bool true: got %q", got)
	}
	if got := FormatValue(column.Bool, int64(0)); got != "0" {
		t.Fatalf("bool false: got %q", got)
	}
}
