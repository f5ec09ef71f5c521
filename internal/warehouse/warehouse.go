// Package warehouse loads normalized reports into a destination table.
package warehouse

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"appsflyer-sync/internal/report"
)

// WriteMode is how LoadTable treats rows already in the table.
type WriteMode int

const (
	// WriteReplace loads into a table that was just deleted.
	WriteReplace WriteMode = iota
	// WriteAppend keeps existing rows.
	WriteAppend
)

func (m WriteMode) String() string {
	switch m {
	case WriteAppend:
		return "append"
	case WriteReplace:
		return "replace"
	default:
		return fmt.Sprintf("WriteMode(%d)", int(m))
	}
}

// Warehouse is a load destination addressed by dataset and table. The
// table schema is always report.Schema.
type Warehouse interface {
	DeleteTable(ctx context.Context, dataset, table string) error
	LoadTable(ctx context.Context, dataset, table string, t *report.Table, mode WriteMode) error
	Close() error
}

// Loader applies the write-mode policy on top of a Warehouse.
type Loader struct {
	wh  Warehouse
	log zerolog.Logger
}

func NewLoader(wh Warehouse, log zerolog.Logger) *Loader {
	return &Loader{wh: wh, log: log}
}

// Load writes t into dataset.table. Reattribution rows are appended. Any
// other pull is a full rebuild: the table is deleted and then loaded. The
// two steps are not atomic, so a failed load leaves no table behind.
func (l *Loader) Load(ctx context.Context, dataset, table string, t *report.Table, reattr bool) error {
	mode := WriteReplace
	if reattr {
		mode = WriteAppend
	}
	log := l.log.With().
		Str("dataset", dataset).
		Str("table", table).
		Stringer("mode", mode).
		Int("rows", t.Len()).
		Logger()

	if mode == WriteReplace {
		log.Info().Msg("deleting table before full load")
		if err := l.wh.DeleteTable(ctx, dataset, table); err != nil {
			return fmt.Errorf("delete %s.%s: %w", dataset, table, err)
		}
	}

	if err := l.wh.LoadTable(ctx, dataset, table, t, mode); err != nil {
		if mode == WriteReplace {
			log.Warn().Err(err).Msg("load failed after delete; table is empty until the next run")
		}
		return fmt.Errorf("load %s.%s: %w", dataset, table, err)
	}

	log.Info().Msg("table loaded")
	return nil
}
