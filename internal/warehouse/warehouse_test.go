package warehouse

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appsflyer-sync/internal/report"
)

type fakeWarehouse struct {
	calls     []string
	modes     []WriteMode
	loaded    *report.Table
	deleteErr error
	loadErr   error
}

func (f *fakeWarehouse) DeleteTable(_ context.Context, dataset, table string) error {
	f.calls = append(f.calls, "delete "+dataset+"."+table)
	return f.deleteErr
}

func (f *fakeWarehouse) LoadTable(_ context.Context, dataset, table string, t *report.Table, mode WriteMode) error {
	f.calls = append(f.calls, "load "+dataset+"."+table)
	f.modes = append(f.modes, mode)
	f.loaded = t
	return f.loadErr
}

func (f *fakeWarehouse) Close() error { return nil }

func sampleTable() *report.Table {
	return &report.Table{Rows: []report.Row{make(report.Row, report.NumColumns)}}
}

func TestLoader_ReattrAppends(t *testing.T) {
	wh := &fakeWarehouse{}
	tbl := sampleTable()

	err := NewLoader(wh, zerolog.Nop()).Load(context.Background(), "play_tables", "AppsFlyer_DS", tbl, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"load play_tables.AppsFlyer_DS"}, wh.calls)
	assert.Equal(t, []WriteMode{WriteAppend}, wh.modes)
	assert.Same(t, tbl, wh.loaded)
}

func TestLoader_AttrDeletesThenLoads(t *testing.T) {
	wh := &fakeWarehouse{}

	err := NewLoader(wh, zerolog.Nop()).Load(context.Background(), "play_tables", "AppsFlyer_DS", sampleTable(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"delete play_tables.AppsFlyer_DS", "load play_tables.AppsFlyer_DS"}, wh.calls)
	assert.Equal(t, []WriteMode{WriteReplace}, wh.modes)
}

func TestLoader_DeleteErrorSkipsLoad(t *testing.T) {
	wh := &fakeWarehouse{deleteErr: errors.New("permission denied")}

	err := NewLoader(wh, zerolog.Nop()).Load(context.Background(), "d", "t", sampleTable(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, wh.deleteErr)
	assert.Equal(t, []string{"delete d.t"}, wh.calls)
}

func TestLoader_LoadErrorPropagates(t *testing.T) {
	for _, reattr := range []bool{true, false} {
		wh := &fakeWarehouse{loadErr: errors.New("quota exceeded")}

		err := NewLoader(wh, zerolog.Nop()).Load(context.Background(), "d", "t", sampleTable(), reattr)
		require.Error(t, err)
		assert.ErrorIs(t, err, wh.loadErr)
	}
}

func TestWriteMode_String(t *testing.T) {
	assert.Equal(t, "append", WriteAppend.String())
	assert.Equal(t, "replace", WriteReplace.String())
	assert.Equal(t, "WriteMode(7)", WriteMode(7).String())
}
