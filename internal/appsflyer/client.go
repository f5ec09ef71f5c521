package appsflyer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
)

// Client fetches report CSVs. One attempt per call, no retries.
type Client struct {
	http *http.Client
	log  zerolog.Logger
}

// NewClient uses http.DefaultClient when hc is nil.
func NewClient(hc *http.Client, log zerolog.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{http: hc, log: log}
}

// FetchReport issues a GET against reportURL. A 200 returns the body with
// ok=true. Any other status is logged and reported as ok=false with a nil
// error so the caller can skip the load. Transport failures are errors.
func (c *Client) FetchReport(ctx context.Context, reportURL string) ([]byte, bool, error) {
	redacted := RedactToken(reportURL)
	c.log.Info().Str("url", redacted).Msg("fetching appsflyer report")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reportURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build appsflyer request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = redacted
		}
		return nil, false, fmt.Errorf("call appsflyer api: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, res.Body)
		c.log.Error().
			Str("url", redacted).
			Int("status", res.StatusCode).
			Msg("error calling appsflyer api")
		return nil, false, nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read appsflyer response: %w", err)
	}
	c.log.Debug().Int("bytes", len(body)).Msg("appsflyer report received")
	return body, true, nil
}
