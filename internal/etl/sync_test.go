package etl

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appsflyer-sync/internal/config"
	"appsflyer-sync/internal/report"
	"appsflyer-sync/internal/warehouse"
)

const partnersCSV = "Date,Agency/PMD (af_prt),Media Source (pid),Campaign (c),Installs,Total Cost," +
	"approve (Unique users),approve (Event counter)," +
	"loandecisiondelivered (Unique users),loandecisiondelivered (Event counter)," +
	"signup (Unique users),signup (Event counter)\n" +
	"2026-10-15,agency,googleadwords_int,fall,12,,1,2,3,4,5,6\n" +
	"2026-10-16,agency,Facebook Ads,fall,8,3.5,0,0,0,0,1,1\n"

type recordingWarehouse struct {
	calls   []string
	modes   []warehouse.WriteMode
	table   *report.Table
	loadErr error
	closed  bool
}

func (r *recordingWarehouse) DeleteTable(_ context.Context, dataset, table string) error {
	r.calls = append(r.calls, "delete "+dataset+"."+table)
	return nil
}

func (r *recordingWarehouse) LoadTable(_ context.Context, dataset, table string, t *report.Table, mode warehouse.WriteMode) error {
	r.calls = append(r.calls, "load "+dataset+"."+table)
	r.modes = append(r.modes, mode)
	r.table = t
	return r.loadErr
}

func (r *recordingWarehouse) Close() error {
	r.closed = true
	return nil
}

type fixture struct {
	sync   *AppsFlyerSync
	wh     *recordingWarehouse
	opened int
	hits   atomic.Int32
	query  string
	status int
	body   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{wh: &recordingWarehouse{}, status: http.StatusOK, body: partnersCSV}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		f.query = r.URL.RawQuery
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("APPSFLYER_API_URL", srv.URL+"/export/app/partners_report/v5?")
	t.Setenv("APPSFLYER_API_TOKEN", "T")

	open := func(context.Context, *config.Config, zerolog.Logger) (warehouse.Warehouse, error) {
		f.opened++
		return f.wh, nil
	}
	nop := zerolog.Nop()
	f.sync = NewAppsFlyerSync(srv.Client(), open)
	f.sync.now = func() time.Time { return time.Date(2026, 10, 17, 9, 30, 0, 0, time.Local) }
	f.sync.logger = &nop
	return f
}

func TestHandle_DefaultEvent(t *testing.T) {
	f := newFixture(t)

	res, err := f.sync.Handle(context.Background(), SyncEvent{})
	require.NoError(t, err)

	assert.Equal(t, "api_token=T&from=2020-01-01&to=2026-10-16&timezone=America/Panama", f.query)
	assert.Equal(t, []string{"delete play_tables.AppsFlyer_DS", "load play_tables.AppsFlyer_DS"}, f.wh.calls)
	assert.Equal(t, []warehouse.WriteMode{warehouse.WriteReplace}, f.wh.modes)
	assert.True(t, f.wh.closed)

	assert.Equal(t, &SyncResult{
		OK:        true,
		Loaded:    true,
		From:      "2020-01-01",
		To:        "2026-10-16",
		Warehouse: config.WarehouseBigQuery,
		Dataset:   "play_tables",
		Table:     "AppsFlyer_DS",
		Rows:      2,
	}, res)

	src, _ := f.wh.table.Column("source")
	assert.Equal(t, []any{"attr", "attr"}, src)
	cost, _ := f.wh.table.Column("Total_Cost")
	assert.Equal(t, []any{0.0, 3.5}, cost)
	installs, _ := f.wh.table.Column("Installs")
	assert.Equal(t, []any{int64(12), int64(8)}, installs)
}

func TestHandle_Reattribution(t *testing.T) {
	f := newFixture(t)
	reattr := true
	dataset, table := "growth", "AppsFlyer_Reattr"

	res, err := f.sync.Handle(context.Background(), SyncEvent{IsReattr: &reattr, BigQueryDataset: &dataset, BigQueryTable: &table})
	require.NoError(t, err)
	assert.True(t, res.Loaded)
	assert.True(t, res.Reattr)

	assert.Equal(t, "api_token=T&from=2020-01-01&to=2026-10-16&timezone=America/Panama&reattr=true", f.query)
	assert.Equal(t, []string{"load growth.AppsFlyer_Reattr"}, f.wh.calls)
	assert.Equal(t, []warehouse.WriteMode{warehouse.WriteAppend}, f.wh.modes)

	src, _ := f.wh.table.Column("source")
	assert.Equal(t, []any{"reattr", "reattr"}, src)
	installs, _ := f.wh.table.Column("Installs")
	assert.Equal(t, []any{int64(0), int64(0)}, installs)
}

func TestHandle_NonOKSkipsLoad(t *testing.T) {
	f := newFixture(t)
	f.status = http.StatusForbidden
	f.body = "Your API calls limit has been reached for report type"

	res, err := f.sync.Handle(context.Background(), SyncEvent{})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.False(t, res.Loaded)
	assert.NotEmpty(t, res.Reason)
	assert.Zero(t, f.opened)
	assert.Empty(t, f.wh.calls)
}

func TestHandle_MissingEnvFailsBeforeFetch(t *testing.T) {
	for _, key := range []string{"APPSFLYER_API_URL", "APPSFLYER_API_TOKEN"} {
		t.Run(key, func(t *testing.T) {
			f := newFixture(t)
			t.Setenv(key, "")

			_, err := f.sync.Handle(context.Background(), SyncEvent{})
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrConfig)
			assert.Zero(t, f.hits.Load())
			assert.Zero(t, f.opened)
		})
	}
}

func TestHandle_MissingColumnAborts(t *testing.T) {
	f := newFixture(t)
	f.body = "Date,Media Source (pid)\n2026-10-16,pid\n"

	_, err := f.sync.Handle(context.Background(), SyncEvent{})
	require.Error(t, err)
	assert.ErrorIs(t, err, report.ErrMissingColumn)
	assert.Zero(t, f.opened)
}

func TestHandle_LoadErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.wh.loadErr = errors.New("quota exceeded")

	_, err := f.sync.Handle(context.Background(), SyncEvent{})
	require.Error(t, err)
	assert.ErrorIs(t, err, f.wh.loadErr)
	assert.Equal(t, []string{"delete play_tables.AppsFlyer_DS", "load play_tables.AppsFlyer_DS"}, f.wh.calls)
	assert.True(t, f.wh.closed)
}

func TestHandle_OpenWarehouseError(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("no credentials")
	f.sync.openWarehouse = func(context.Context, *config.Config, zerolog.Logger) (warehouse.Warehouse, error) {
		return nil, boom
	}

	_, err := f.sync.Handle(context.Background(), SyncEvent{})
	assert.ErrorIs(t, err, boom)
}

func TestHandle_TransportErrorIsFatal(t *testing.T) {
	f := newFixture(t)
	t.Setenv("APPSFLYER_API_URL", "http://127.0.0.1:1/report?")

	_, err := f.sync.Handle(context.Background(), SyncEvent{})
	require.Error(t, err)
	assert.Zero(t, f.opened)
}

func TestInvocationLogger_RequestID(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	f.sync.logger = &l

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "req-42"})
	_, err := f.sync.Handle(ctx, SyncEvent{})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
	assert.NotContains(t, buf.String(), "api_token=T")
}
