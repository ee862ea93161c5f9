package importer

import (
	"testing"
	"time"
)

func TestParseSniffsSemicolon(t *testing.T) {
	data := []byte("codigo;matricula;data\nINST-01;1234;2024-01-05\n")
	table, err := Parse(data, defaultConfig())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("got %d rows want 1", len(table.Rows))
	}
	if got := table.Get(table.Rows[0], FieldInstrumentCode); got != "INST-01" {
		t.Fatalf("got code %q want INST-01", got)
	}
	if got := table.Get(table.Rows[0], FieldEmployeeBadge); got != "1234" {
		t.Fatalf("got badge %q want 1234", got)
	}
}

func TestParseSniffsPipe(t *testing.T) {
	data := []byte("codigo|matricula|data\nINST-01|1234|2024-01-05\n")
	table, err := Parse(data, defaultConfig())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(table.Header) != 3 {
		t.Fatalf("got %d header columns want 3: %+v", len(table.Header), table.Header)
	}
	if got := table.Get(table.Rows[0], FieldEmployeeBadge); got != "1234" {
		t.Fatalf("got badge %q want 1234", got)
	}
}

func TestParseResolvesAliasesCaseInsensitive(t *testing.T) {
	data := []byte("Tag,Badge,Delivered_At\nA-1,77,02/03/2024\n")
	table, err := Parse(data, defaultConfig())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !table.HasField(FieldInstrumentCode) || !table.HasField(FieldDate) {
		t.Fatalf("aliases not resolved: %+v", table.Header)
	}
}

func TestParseLatin1Fallback(t *testing.T) {
	// "observação" encoded as Latin-1.
	data := []byte("codigo,observa\xe7\xe3o\nA-1,ok\n")
	table, err := Parse(data, defaultConfig())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := table.Get(table.Rows[0], FieldInstrumentCode); got != "A-1" {
		t.Fatalf("got code %q want A-1", got)
	}
}

func TestParseStripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("code,badge\nA-1,5\n")...)
	table, err := Parse(data, defaultConfig())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !table.HasField(FieldInstrumentCode) {
		t.Fatalf("BOM header not normalized: %+v", table.Header)
	}
}

func TestParseDateFormats(t *testing.T) {
	cfg := defaultConfig()
	cases := map[string]time.Time{
		"2024-01-05":          time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		"05/01/2024":          time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		"2024-01-05 08:30:00": time.Date(2024, 1, 5, 8, 30, 0, 0, time.UTC),
	}
	for input, want := range cases {
		got, err := cfg.ParseDate(input)
		if err != nil {
			t.Fatalf("ParseDate(%q): %v", input, err)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseDate(%q) = %v want %v", input, got, want)
		}
	}
	if _, err := cfg.ParseDate("not-a-date"); err == nil {
		t.Fatal("expected error for unparseable date")
	}
}
