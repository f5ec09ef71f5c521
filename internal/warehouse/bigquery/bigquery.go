// Package bigquery is the BigQuery warehouse backend.
package bigquery

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"appsflyer-sync/internal/report"
	"appsflyer-sync/internal/warehouse"
)

// Options configures the BigQuery client.
type Options struct {
	// ProjectID defaults to detection from the credentials.
	ProjectID string
	// CredentialsJSON is a service account key; empty uses application
	// default credentials.
	CredentialsJSON string
	// ClientOptions are appended after the credentials option.
	ClientOptions []option.ClientOption
}

// Warehouse loads report tables with BigQuery load jobs.
type Warehouse struct {
	client *bigquery.Client
	log    zerolog.Logger
}

var _ warehouse.Warehouse = (*Warehouse)(nil)

func New(ctx context.Context, opt Options, log zerolog.Logger) (*Warehouse, error) {
	project := opt.ProjectID
	if project == "" {
		project = bigquery.DetectProjectID
	}
	var clientOpts []option.ClientOption
	if opt.CredentialsJSON != "" {
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(opt.CredentialsJSON)))
	}
	clientOpts = append(clientOpts, opt.ClientOptions...)

	client, err := bigquery.NewClient(ctx, project, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	return &Warehouse{client: client, log: log}, nil
}

// DeleteTable drops dataset.table. A table that does not exist yet is not
// an error, so the first full load of a new table succeeds.
func (w *Warehouse) DeleteTable(ctx context.Context, dataset, table string) error {
	err := w.client.Dataset(dataset).Table(table).Delete(ctx)
	if isNotFound(err) {
		w.log.Warn().Str("dataset", dataset).Str("table", table).Msg("table to delete does not exist")
		return nil
	}
	if err != nil {
		return fmt.Errorf("bigquery delete table: %w", err)
	}
	return nil
}

// LoadTable runs a load job with the explicit report schema and waits for it.
func (w *Warehouse) LoadTable(ctx context.Context, dataset, table string, t *report.Table, mode warehouse.WriteMode) error {
	data, err := EncodeCSV(t)
	if err != nil {
		return err
	}

	loader := w.client.Dataset(dataset).Table(table).LoaderFrom(NewSource(data))
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = WriteDisposition(mode)

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("bigquery start load job: %w", err)
	}
	w.log.Info().Str("job_id", job.ID()).Str("dataset", dataset).Str("table", table).Msg("bigquery load job started")

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("bigquery wait load job %s: %w", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		for _, e := range status.Errors {
			w.log.Error().Str("job_id", job.ID()).Str("reason", e.Reason).Str("location", e.Location).Msg(e.Message)
		}
		return fmt.Errorf("bigquery load job %s: %w", job.ID(), err)
	}
	return nil
}

func (w *Warehouse) Close() error {
	return w.client.Close()
}

// Schema is report.Schema as a BigQuery schema.
func Schema() bigquery.Schema {
	s := make(bigquery.Schema, 0, report.NumColumns)
	for _, c := range report.Schema {
		s = append(s, &bigquery.FieldSchema{Name: c.Name, Type: fieldType(c.Type)})
	}
	return s
}

func fieldType(t report.FieldType) bigquery.FieldType {
	switch t {
	case report.TypeDate:
		return bigquery.DateFieldType
	case report.TypeInteger:
		return bigquery.IntegerFieldType
	case report.TypeFloat:
		return bigquery.FloatFieldType
	default:
		return bigquery.StringFieldType
	}
}

// NewSource wraps CSV produced by EncodeCSV. The header row is skipped once
// and values for columns outside the schema are ignored.
func NewSource(data []byte) *bigquery.ReaderSource {
	src := bigquery.NewReaderSource(bytes.NewReader(data))
	src.SourceFormat = bigquery.CSV
	src.Schema = Schema()
	src.SkipLeadingRows = 1
	src.IgnoreUnknownValues = true
	return src
}

// WriteDisposition maps a write mode to the job setting. Replace loads run
// after the table was deleted and keep the API default.
func WriteDisposition(mode warehouse.WriteMode) bigquery.TableWriteDisposition {
	if mode == warehouse.WriteAppend {
		return bigquery.WriteAppend
	}
	return ""
}

// EncodeCSV writes t with a header row of warehouse column names. NULL is an
// empty field.
func EncodeCSV(t *report.Table) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(report.ColumnNames()); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	rec := make([]string, report.NumColumns)
	for i, row := range t.Rows {
		for j, v := range row {
			s, err := formatValue(v)
			if err != nil {
				return nil, fmt.Errorf("encode row %d column %s: %w", i, report.Schema[j].Name, err)
			}
			rec[j] = s
		}
		if err := cw.Write(rec); err != nil {
			return nil, fmt.Errorf("encode row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatValue(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case civil.Date:
		return x.String(), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
