package report

// Row holds one value per Schema column, in Schema order. Values are
// civil.Date, string, int64, float64 or nil for NULL.
type Row []any

// Table is a normalized report ready for load.
type Table struct {
	Rows []Row
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Column returns every value of the named warehouse column.
func (t *Table) Column(name string) ([]any, bool) {
	i := ColumnIndex(name)
	if i < 0 {
		return nil, false
	}
	out := make([]any, 0, t.Len())
	for _, r := range t.Rows {
		out = append(out, r[i])
	}
	return out, true
}
