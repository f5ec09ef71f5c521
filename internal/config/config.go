package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every variable of Config, e.g. APPSFLYER_API_URL.
const EnvPrefix = "appsflyer"

const (
	WarehouseBigQuery = "bigquery"
	WarehouseAthena   = "athena"
)

// ErrConfig marks a missing or invalid setting. It is always returned wrapped.
var ErrConfig = errors.New("configuration error")

// Config holds the environment of one sync invocation.
type Config struct {
	// APIURL is the AppsFlyer report endpoint, already ending in a form that
	// accepts "api_token=..." appended to it (typically with a trailing '?').
	APIURL string `envconfig:"API_URL" required:"true"`

	// APIToken is the AppsFlyer pull API token.
	APIToken string `envconfig:"API_TOKEN" required:"true"`

	// Warehouse selects the load backend: "bigquery" or "athena".
	Warehouse string `envconfig:"WAREHOUSE" default:"bigquery"`

	BigQuery BigQueryConfig `envconfig:"BIGQUERY"`
	Athena   AthenaConfig   `envconfig:"ATHENA"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

type BigQueryConfig struct {
	// ProjectID falls back to GOOGLE_CLOUD_PROJECT, then to detection from
	// the credentials when both are empty.
	ProjectID string `envconfig:"GOOGLE_CLOUD_PROJECT"`

	// CredentialsJSON is a service account key. Empty means application
	// default credentials.
	CredentialsJSON string `envconfig:"CREDENTIALS_JSON"`
}

type AthenaConfig struct {
	Bucket    string `envconfig:"BUCKET"`
	Prefix    string `envconfig:"PREFIX" default:"appsflyer/"`
	Workgroup string `envconfig:"WORKGROUP" default:"primary"`
	// Output is the query result location, s3://bucket/prefix/
	Output string `envconfig:"OUTPUT"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: load .env: %v", ErrConfig, err)
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.APIURL = strings.TrimSpace(c.APIURL)
	c.APIToken = strings.TrimSpace(c.APIToken)
	if c.APIURL == "" {
		return fmt.Errorf("%w: missing env APPSFLYER_API_URL", ErrConfig)
	}
	if c.APIToken == "" {
		return fmt.Errorf("%w: missing env APPSFLYER_API_TOKEN", ErrConfig)
	}

	c.Warehouse = strings.ToLower(strings.TrimSpace(c.Warehouse))
	switch c.Warehouse {
	case WarehouseBigQuery:
	case WarehouseAthena:
		if strings.TrimSpace(c.Athena.Bucket) == "" {
			return fmt.Errorf("%w: missing env APPSFLYER_ATHENA_BUCKET", ErrConfig)
		}
		if !strings.HasPrefix(c.Athena.Output, "s3://") {
			return fmt.Errorf("%w: APPSFLYER_ATHENA_OUTPUT must start with s3://", ErrConfig)
		}
		if c.Athena.Workgroup == "" {
			c.Athena.Workgroup = "primary"
		}
	default:
		return fmt.Errorf("%w: unknown warehouse %q", ErrConfig, c.Warehouse)
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrConfig, c.LogFormat)
	}
	return nil
}
