package athena

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"

	"appsflyer-sync/internal/report"
)

type GlueClient interface {
	GetTable(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error)
}

type TableSchema struct {
	Database string
	Table    string
	Location string
	Columns  []Column
}

type Column struct {
	Name string
	Type string
}

// ErrSchemaMismatch is wrapped when a catalog table does not match
// report.Schema.
var ErrSchemaMismatch = errors.New("table schema mismatch")

// LoadTableSchema reads a table definition from the Glue catalog. It returns
// nil and no error when the table does not exist.
func LoadTableSchema(ctx context.Context, c GlueClient, database, table string) (*TableSchema, error) {
	out, err := c.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(database),
		Name:         aws.String(table),
	})
	var nf *gluetypes.EntityNotFoundException
	if errors.As(err, &nf) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("glue GetTable %s.%s: %w", database, table, err)
	}

	ti := out.Table
	schema := &TableSchema{
		Database: database,
		Table:    aws.ToString(ti.Name),
	}
	if sd := ti.StorageDescriptor; sd != nil {
		schema.Location = aws.ToString(sd.Location)
		for _, col := range sd.Columns {
			schema.Columns = append(schema.Columns, Column{
				Name: aws.ToString(col.Name),
				Type: normalizeType(aws.ToString(col.Type)),
			})
		}
	}
	return schema, nil
}

// ReportColumns is report.Schema with Athena types. Glue stores names in
// lower case.
func ReportColumns() []Column {
	cols := make([]Column, 0, report.NumColumns)
	for _, c := range report.Schema {
		cols = append(cols, Column{Name: strings.ToLower(c.Name), Type: athenaType(c.Type)})
	}
	return cols
}

func athenaType(t report.FieldType) string {
	switch t {
	case report.TypeDate:
		return "date"
	case report.TypeInteger:
		return "bigint"
	case report.TypeFloat:
		return "double"
	default:
		return "string"
	}
}

func normalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// CheckSchema compares a catalog table with report.Schema, column by column
// and in order, and with the expected data location.
func CheckSchema(s *TableSchema, location string) error {
	if location != "" && strings.TrimSuffix(s.Location, "/") != strings.TrimSuffix(location, "/") {
		return fmt.Errorf("%w: %s.%s location %q, want %q", ErrSchemaMismatch, s.Database, s.Table, s.Location, location)
	}
	want := ReportColumns()
	if len(s.Columns) != len(want) {
		return fmt.Errorf("%w: %s.%s has %d columns, want %d", ErrSchemaMismatch, s.Database, s.Table, len(s.Columns), len(want))
	}
	for i, w := range want {
		got := s.Columns[i]
		if strings.ToLower(got.Name) != w.Name || got.Type != w.Type {
			return fmt.Errorf("%w: %s.%s column %d is %s %s, want %s %s",
				ErrSchemaMismatch, s.Database, s.Table, i+1, got.Name, got.Type, w.Name, w.Type)
		}
	}
	return nil
}

// CreateTableDDL declares the report table over Parquet files at location.
func CreateTableDDL(database, table, location string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("CREATE EXTERNAL TABLE IF NOT EXISTS `%s`.`%s` (\n", database, table))
	cols := ReportColumns()
	for i, c := range cols {
		comma := ","
		if i == len(cols)-1 {
			comma = ""
		}
		b.WriteString(fmt.Sprintf("  `%s` %s%s\n", c.Name, c.Type, comma))
	}
	b.WriteString(")\n")
	b.WriteString("STORED AS PARQUET\n")
	b.WriteString(fmt.Sprintf("LOCATION '%s'", location))
	return b.String()
}

// DropTableDDL removes the table definition. Data files are untouched.
func DropTableDDL(database, table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS `%s`.`%s`", database, table)
}
