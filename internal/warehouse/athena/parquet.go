package athena

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"cloud.google.com/go/civil"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"appsflyer-sync/internal/report"
)

var epoch = civil.Date{Year: 1970, Month: 1, Day: 1}

// parquetSchema describes report.Schema for the parquet CSV writer. Every
// column is optional so NULL cells survive.
func parquetSchema() []string {
	md := make([]string, 0, report.NumColumns)
	for _, c := range report.Schema {
		var typ string
		switch c.Type {
		case report.TypeDate:
			typ = "type=INT32, convertedtype=DATE"
		case report.TypeInteger:
			typ = "type=INT64"
		case report.TypeFloat:
			typ = "type=DOUBLE"
		default:
			typ = "type=BYTE_ARRAY, convertedtype=UTF8"
		}
		md = append(md, fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", c.Name, typ))
	}
	return md
}

// parquetValue converts a report value to the physical parquet value.
func parquetValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, int64, float64:
		return x, nil
	case civil.Date:
		return int32(x.DaysSince(epoch)), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// writeParquet renders t as one parquet file through a temp file.
func writeParquet(t *report.Table) ([]byte, error) {
	localPath := filepath.Join(os.TempDir(), "appsflyer_"+randHex(8)+".parquet")
	defer func() { _ = os.Remove(localPath) }()

	fw, err := local.NewLocalFileWriter(localPath)
	if err != nil {
		return nil, fmt.Errorf("parquet file writer: %w", err)
	}

	pw, err := writer.NewCSVWriter(parquetSchema(), fw, 1)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("parquet writer: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.PageSize = 8 * 1024
	pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED

	for i, row := range t.Rows {
		// the writer buffers rec until the row group is flushed
		rec := make([]any, report.NumColumns)
		for j, v := range row {
			pv, err := parquetValue(v)
			if err != nil {
				_ = pw.WriteStop()
				_ = fw.Close()
				return nil, fmt.Errorf("parquet row %d column %s: %w", i, report.Schema[j].Name, err)
			}
			rec[j] = pv
		}
		if err := pw.Write(rec); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return nil, fmt.Errorf("parquet write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("parquet write stop: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("parquet close: %w", err)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("read parquet tmp: %w", err)
	}
	return data, nil
}

func randHex(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
