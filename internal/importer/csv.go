package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Table is a parsed CSV with alias-resolved column positions.
type Table struct {
	Header []string
	Rows   [][]string

	fields map[string]int
}

// Parse reads CSV data. The delimiter is sniffed from the header line unless
// the config pins one, and non-UTF-8 input falls back to Latin-1.
func Parse(data []byte, cfg Config) (*Table, error) {
	if len(data) == 0 {
		return nil, errors.New("importer: empty file")
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(data) {
		data = decodeLatin1(data)
	}

	delimiter := []rune(cfg.Delimiter)
	if len(delimiter) == 0 {
		delimiter = []rune{sniffDelimiter(data)}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter[0]
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("importer: missing header row")
	}

	table := &Table{
		Header: records[0],
		Rows:   records[1:],
		fields: make(map[string]int),
	}
	for i, raw := range records[0] {
		name := normalizeHeader(raw)
		if name == "" {
			continue
		}
		canonical := name
		for field, aliases := range cfg.Aliases {
			if name == field {
				canonical = field
				break
			}
			for _, alias := range aliases {
				if name == alias {
					canonical = field
					break
				}
			}
		}
		if _, taken := table.fields[canonical]; !taken {
			table.fields[canonical] = i
		}
	}
	return table, nil
}

// Get returns a row's value for a canonical field, trimmed. Missing columns
// and short rows yield "".
func (t *Table) Get(row []string, field string) string {
	index, ok := t.fields[field]
	if !ok || index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[index])
}

// HasField reports whether the header carries a column for the field.
func (t *Table) HasField(field string) bool {
	_, ok := t.fields[field]
	return ok
}

// ParseDate tries the configured layouts in order. Date-only layouts yield
// midnight UTC.
func (c Config) ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("importer: empty date")
	}
	for _, layout := range c.DateFormats {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, errors.New("importer: unparseable date " + value)
}

func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best := ','
	bestCount := bytes.Count(line, []byte{','})
	for _, candidate := range []byte{';', '\t', '|'} {
		if count := bytes.Count(line, []byte{candidate}); count > bestCount {
			best = rune(candidate)
			bestCount = count
		}
	}
	return best
}

func normalizeHeader(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func decodeLatin1(data []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(data))
	for _, b := range data {
		buf.WriteRune(rune(b))
	}
	return buf.Bytes()
}
