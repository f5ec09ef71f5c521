package etl

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog"

	"appsflyer-sync/internal/config"
	"appsflyer-sync/internal/warehouse"
	"appsflyer-sync/internal/warehouse/athena"
	"appsflyer-sync/internal/warehouse/bigquery"
)

// OpenWarehouse is the production WarehouseOpener.
func OpenWarehouse(ctx context.Context, cfg *config.Config, log zerolog.Logger) (warehouse.Warehouse, error) {
	switch cfg.Warehouse {
	case config.WarehouseBigQuery:
		wh, err := bigquery.New(ctx, bigquery.Options{
			ProjectID:       cfg.BigQuery.ProjectID,
			CredentialsJSON: cfg.BigQuery.CredentialsJSON,
		}, log)
		if err != nil {
			return nil, err
		}
		return wh, nil

	case config.WarehouseAthena:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return athena.New(awsCfg, athena.Options{
			Bucket:    cfg.Athena.Bucket,
			Prefix:    cfg.Athena.Prefix,
			Workgroup: cfg.Athena.Workgroup,
			Output:    cfg.Athena.Output,
		}, log), nil

	default:
		return nil, fmt.Errorf("%w: unknown warehouse %q", config.ErrConfig, cfg.Warehouse)
	}
}
