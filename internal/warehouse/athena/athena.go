// Package athena is a warehouse backend that keeps the report as Parquet
// files on S3, declared as an external table in the Glue catalog and
// queried with Athena.
//
// Layout: s3://<bucket>/<prefix><dataset>/<table>/part-<time>-<rand>.parquet
package athena

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"appsflyer-sync/internal/report"
	"appsflyer-sync/internal/warehouse"
)

type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

type Options struct {
	Bucket    string
	Prefix    string
	Workgroup string
	// Output is the Athena result location, s3://bucket/prefix/
	Output       string
	MaxWait      time.Duration
	PollInterval time.Duration
}

type Warehouse struct {
	s3     S3Client
	athena QueryClient
	glue   GlueClient
	opt    Options
	log    zerolog.Logger
	now    func() time.Time
}

var _ warehouse.Warehouse = (*Warehouse)(nil)

// New builds the backend from an AWS config.
func New(cfg aws.Config, opt Options, log zerolog.Logger) *Warehouse {
	return NewWithClients(s3.NewFromConfig(cfg), athena.NewFromConfig(cfg), glue.NewFromConfig(cfg), opt, log)
}

func NewWithClients(s3c S3Client, ath QueryClient, gl GlueClient, opt Options, log zerolog.Logger) *Warehouse {
	return &Warehouse{s3: s3c, athena: ath, glue: gl, opt: opt, log: log, now: time.Now}
}

// DataPrefix is the S3 key prefix holding the files of dataset.table.
func (w *Warehouse) DataPrefix(dataset, table string) string {
	return ensureTrailingSlash(w.opt.Prefix) + dataset + "/" + table + "/"
}

// Location is the table LOCATION.
func (w *Warehouse) Location(dataset, table string) string {
	return "s3://" + w.opt.Bucket + "/" + w.DataPrefix(dataset, table)
}

// DeleteTable drops the table definition and every data file under it.
func (w *Warehouse) DeleteTable(ctx context.Context, dataset, table string) error {
	if _, err := RunQuery(ctx, w.athena, DropTableDDL(dataset, table), w.queryOptions()); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}

	prefix := w.DataPrefix(dataset, table)
	deleted := 0
	p := s3.NewListObjectsV2Paginator(w.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(w.opt.Bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("s3 list %s: %w", prefix, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		ids := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, s3types.ObjectIdentifier{Key: obj.Key})
		}
		out, err := w.s3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(w.opt.Bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("s3 delete objects under %s: %w", prefix, err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("s3 delete %s: %s: %s", aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message))
		}
		deleted += len(ids)
	}

	w.log.Info().Str("dataset", dataset).Str("table", table).Int("objects", deleted).Msg("athena table deleted")
	return nil
}

// LoadTable writes t as a new Parquet file under the table location. An
// existing table must match report.Schema; a missing one is created.
func (w *Warehouse) LoadTable(ctx context.Context, dataset, table string, t *report.Table, mode warehouse.WriteMode) error {
	location := w.Location(dataset, table)

	existing, err := LoadTableSchema(ctx, w.glue, dataset, table)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := CheckSchema(existing, location); err != nil {
			return err
		}
	}

	if t.Len() > 0 {
		data, err := writeParquet(t)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%spart-%s-%s.parquet", w.DataPrefix(dataset, table), w.now().UTC().Format("20060102T150405Z"), randHex(4))
		_, err = w.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(w.opt.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/octet-stream"),
			ACL:         s3types.ObjectCannedACLPrivate,
		})
		if err != nil {
			return fmt.Errorf("s3 putobject %s: %w", key, err)
		}
		w.log.Info().Str("key", key).Int("bytes", len(data)).Stringer("mode", mode).Msg("parquet file written")
	}

	if existing == nil {
		qid, err := RunQuery(ctx, w.athena, CreateTableDDL(dataset, table, location), w.queryOptions())
		if err != nil {
			return fmt.Errorf("create table: %w", err)
		}
		w.log.Info().Str("qid", qid).Str("dataset", dataset).Str("table", table).Str("location", location).Msg("athena table created")
	}
	return nil
}

// Close is a no-op; the AWS clients hold no connections of their own.
func (w *Warehouse) Close() error { return nil }

func (w *Warehouse) queryOptions() QueryOptions {
	return QueryOptions{
		Workgroup:      w.opt.Workgroup,
		OutputLocation: w.opt.Output,
		MaxWait:        w.opt.MaxWait,
		PollInterval:   w.opt.PollInterval,
	}
}

func ensureTrailingSlash(s string) string {
	if s == "" {
		return ""
	}
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
