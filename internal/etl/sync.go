// Package etl holds the scheduled AppsFlyer sync handler.
package etl

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/rs/zerolog"

	"appsflyer-sync/internal/appsflyer"
	"appsflyer-sync/internal/config"
	"appsflyer-sync/internal/report"
	"appsflyer-sync/internal/warehouse"
)

// WarehouseOpener connects the load backend selected by cfg.
type WarehouseOpener func(ctx context.Context, cfg *config.Config, log zerolog.Logger) (warehouse.Warehouse, error)

// SyncResult is returned to the scheduler.
type SyncResult struct {
	OK        bool   `json:"ok"`
	Loaded    bool   `json:"loaded"`
	Reason    string `json:"reason,omitempty"`
	Reattr    bool   `json:"is_reattr"`
	From      string `json:"from"`
	To        string `json:"to"`
	Warehouse string `json:"warehouse"`
	Dataset   string `json:"dataset"`
	Table     string `json:"table"`
	Rows      int    `json:"rows"`
}

type AppsFlyerSync struct {
	http          *http.Client
	openWarehouse WarehouseOpener
	now           func() time.Time
	// logger overrides the logger built from config.
	logger *zerolog.Logger
}

// NewAppsFlyerSync uses http.DefaultClient when hc is nil.
func NewAppsFlyerSync(hc *http.Client, open WarehouseOpener) *AppsFlyerSync {
	return &AppsFlyerSync{http: hc, openWarehouse: open, now: time.Now}
}

// Handle runs one sync, triggered by the scheduler.
//
// Behavior:
//   - Read config from env (APPSFLYER_API_URL and APPSFLYER_API_TOKEN are
//     required) and fail before any network call when it is incomplete
//   - Fetch the report for ReportStartDate..yesterday
//   - A non-200 answer ends the run successfully with nothing loaded
//   - Otherwise normalize the CSV and load it: reattribution pulls are
//     appended, attribution pulls replace the table
func (h *AppsFlyerSync) Handle(ctx context.Context, ev SyncEvent) (*SyncResult, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	opts := ev.Options()
	from, to := ReportWindow(h.now())
	log := h.invocationLogger(ctx, cfg).With().
		Bool("is_reattr", opts.Reattr).
		Str("dataset", opts.Dataset).
		Str("table", opts.Table).
		Str("from", from).
		Str("to", to).
		Logger()

	res := &SyncResult{
		OK:        true,
		Reattr:    opts.Reattr,
		From:      from,
		To:        to,
		Warehouse: cfg.Warehouse,
		Dataset:   opts.Dataset,
		Table:     opts.Table,
	}

	reportURL := appsflyer.BuildReportURL(cfg.APIURL, cfg.APIToken, from, to, opts.Reattr)
	body, ok, err := appsflyer.NewClient(h.http, log).FetchReport(ctx, reportURL)
	if err != nil {
		return nil, err
	}
	if !ok {
		res.Reason = "appsflyer api returned no data"
		log.Warn().Msg("nothing to load")
		return res, nil
	}

	tbl, err := report.Normalize(body, opts.Reattr)
	if err != nil {
		return nil, fmt.Errorf("normalize report: %w", err)
	}
	log.Info().Int("rows", tbl.Len()).Msg("report normalized")

	wh, err := h.openWarehouse(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open %s warehouse: %w", cfg.Warehouse, err)
	}
	defer func() {
		if err := wh.Close(); err != nil {
			log.Warn().Err(err).Msg("close warehouse")
		}
	}()

	if err := warehouse.NewLoader(wh, log).Load(ctx, opts.Dataset, opts.Table, tbl, opts.Reattr); err != nil {
		return nil, err
	}

	res.Loaded = true
	res.Rows = tbl.Len()
	return res, nil
}

func (h *AppsFlyerSync) invocationLogger(ctx context.Context, cfg *config.Config) zerolog.Logger {
	var base zerolog.Logger
	if h.logger != nil {
		base = *h.logger
	} else {
		base = config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	lc := base.With().Str("warehouse", cfg.Warehouse)
	if lctx, ok := lambdacontext.FromContext(ctx); ok {
		lc = lc.Str("request_id", lctx.AwsRequestID)
	}
	return lc.Logger()
}
