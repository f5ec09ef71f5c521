package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
)

// frame is the raw CSV with columns addressable by header.
type frame struct {
	header []string
	index  map[string]int
	lines  []int
	cells  [][]string
}

func (f *frame) has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// set fills the named column with v, appending the column if needed.
func (f *frame) set(name, v string) {
	i, ok := f.index[name]
	if !ok {
		i = len(f.header)
		f.header = append(f.header, name)
		f.index[name] = i
		for r := range f.cells {
			f.cells[r] = append(f.cells[r], "")
		}
	}
	for r := range f.cells {
		f.cells[r][i] = v
	}
}

// fill replaces blank or whitespace-only cells of the named column with v.
func (f *frame) fill(name, v string) {
	i, ok := f.index[name]
	if !ok {
		return
	}
	for r := range f.cells {
		if strings.TrimSpace(f.cells[r][i]) == "" {
			f.cells[r][i] = v
		}
	}
}

func readFrame(data []byte) (*frame, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1

	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyReport
	}
	if err != nil {
		return nil, fmt.Errorf("read report header: %w", err)
	}

	f := &frame{index: make(map[string]int, len(hdr))}
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		h = strings.TrimSpace(h)
		f.header = append(f.header, h)
		// first occurrence wins for duplicated headers
		if _, dup := f.index[h]; !dup {
			f.index[h] = i
		}
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read report: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if len(rec) > len(hdr) {
			return nil, &ParseError{
				Line: line,
				Err:  fmt.Errorf("expected %d fields, saw %d", len(hdr), len(rec)),
			}
		}
		row := make([]string, len(hdr))
		copy(row, rec)
		f.lines = append(f.lines, line)
		f.cells = append(f.cells, row)
	}
	return f, nil
}

// Normalize parses an AppsFlyer partners report and shapes it to Schema.
//
// The decision and "loan decision delivered" metrics are not in the feed and
// are loaded as zero. Reattribution pulls carry no installs, so Installs is
// zeroed and every row is tagged SourceReattribution; otherwise rows are
// tagged SourceAttribution. Blank costs become zero. Feed columns outside
// Schema are dropped; a Schema column missing from the feed is an error.
func Normalize(data []byte, reattr bool) (*Table, error) {
	f, err := readFrame(data)
	if err != nil {
		return nil, err
	}

	for _, h := range synthesized {
		f.set(h, "0")
	}
	if reattr {
		f.set(HeaderInstalls, "0")
		f.set(HeaderSource, SourceReattribution)
	} else {
		f.set(HeaderSource, SourceAttribution)
	}
	f.fill(HeaderTotalCost, "0")

	var missing []string
	for _, c := range Schema {
		if !f.has(c.Source) {
			missing = append(missing, c.Source)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnError{Columns: missing}
	}

	t := &Table{Rows: make([]Row, 0, len(f.cells))}
	for r, cells := range f.cells {
		row := make(Row, NumColumns)
		for i, c := range Schema {
			raw := cells[f.index[c.Source]]
			v, err := convert(c.Type, raw)
			if err != nil {
				return nil, &ParseError{Line: f.lines[r], Column: c.Source, Value: raw, Err: err}
			}
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// convert types a raw cell. Empty cells are NULL. Strings are kept as
// read; dates and numbers ignore surrounding whitespace and are NULL when
// nothing else is left.
func convert(typ FieldType, s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	if typ == TypeString {
		return s, nil
	}
	v := strings.TrimSpace(s)
	if v == "" {
		return nil, nil
	}
	switch typ {
	case TypeDate:
		return civil.ParseDate(v)
	case TypeInteger:
		return parseInteger(v)
	case TypeFloat:
		return strconv.ParseFloat(v, 64)
	default:
		return nil, fmt.Errorf("unknown column type %s", typ)
	}
}

// parseInteger accepts integral floats such as "12.0", which some report
// exports emit for counters.
func parseInteger(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	fv, err := strconv.ParseFloat(s, 64)
	if err != nil || fv != math.Trunc(fv) || math.IsInf(fv, 0) {
		return 0, fmt.Errorf("not an integer")
	}
	if fv < math.MinInt64 || fv >= math.MaxInt64 {
		return 0, fmt.Errorf("integer out of range")
	}
	return int64(fv), nil
}
