package etl

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/tidwall/gjson"

	"appsflyer-sync/internal/config"
)

const (
	DefaultDataset = "play_tables"
	DefaultTable   = "AppsFlyer_DS"
)

// SyncEvent is the scheduler payload. Every field is optional.
//
// The keys may sit at the top level ({"is_reattr": true}) or, when the rule
// forwards the whole EventBridge envelope, under "detail".
type SyncEvent struct {
	IsReattr        *bool   `json:"is_reattr,omitempty"`
	BigQueryDataset *string `json:"bigquery_dataset,omitempty"`
	BigQueryTable   *string `json:"bigquery_table,omitempty"`
}

// SyncOptions is a SyncEvent with defaults applied.
type SyncOptions struct {
	Reattr  bool
	Dataset string
	Table   string
}

// UnmarshalJSON accepts is_reattr as a JSON boolean or as a "true"/"false"
// string.
func (e *SyncEvent) UnmarshalJSON(b []byte) error {
	if !gjson.ValidBytes(b) {
		return fmt.Errorf("%w: event is not valid json", config.ErrConfig)
	}
	root := gjson.ParseBytes(b)
	if root.Get("detail-type").Exists() {
		var cw events.CloudWatchEvent
		if err := json.Unmarshal(b, &cw); err != nil {
			return fmt.Errorf("%w: eventbridge envelope: %v", config.ErrConfig, err)
		}
		if detail := gjson.ParseBytes(cw.Detail); detail.IsObject() {
			root = detail
		}
	}

	*e = SyncEvent{}
	if v := root.Get("is_reattr"); v.Exists() && v.Type != gjson.Null {
		var reattr bool
		switch v.Type {
		case gjson.True, gjson.False:
			reattr = v.Bool()
		case gjson.String:
			p, err := strconv.ParseBool(strings.TrimSpace(v.Str))
			if err != nil {
				return fmt.Errorf("%w: is_reattr %q is not a boolean", config.ErrConfig, v.Str)
			}
			reattr = p
		default:
			return fmt.Errorf("%w: is_reattr must be a boolean, got %s", config.ErrConfig, v.Raw)
		}
		e.IsReattr = &reattr
	}

	var err error
	if e.BigQueryDataset, err = optionalString(root, "bigquery_dataset"); err != nil {
		return err
	}
	if e.BigQueryTable, err = optionalString(root, "bigquery_table"); err != nil {
		return err
	}
	return nil
}

func optionalString(root gjson.Result, key string) (*string, error) {
	v := root.Get(key)
	if !v.Exists() || v.Type == gjson.Null {
		return nil, nil
	}
	if v.Type != gjson.String {
		return nil, fmt.Errorf("%w: %s must be a string, got %s", config.ErrConfig, key, v.Raw)
	}
	s := v.Str
	return &s, nil
}

// Options applies the defaults: attribution pull into play_tables.AppsFlyer_DS.
// Blank names fall back to the defaults as well.
func (e SyncEvent) Options() SyncOptions {
	o := SyncOptions{Dataset: DefaultDataset, Table: DefaultTable}
	if e.IsReattr != nil {
		o.Reattr = *e.IsReattr
	}
	if e.BigQueryDataset != nil && strings.TrimSpace(*e.BigQueryDataset) != "" {
		o.Dataset = strings.TrimSpace(*e.BigQueryDataset)
	}
	if e.BigQueryTable != nil && strings.TrimSpace(*e.BigQueryTable) != "" {
		o.Table = strings.TrimSpace(*e.BigQueryTable)
	}
	return o
}
