package appsflyer

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchReport_OK(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("Date,Installs\n2024-01-01,3\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), zerolog.Nop())
	body, ok, err := c.FetchReport(context.Background(), BuildReportURL(srv.URL+"/report?", "T", "2020-01-01", "2020-01-02", false))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Date,Installs\n2024-01-01,3\n", string(body))
	assert.Equal(t, "api_token=T&from=2020-01-01&to=2020-01-02&timezone=America/Panama", gotQuery)
}

func TestFetchReport_NonOKIsNoData(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusForbidden, http.StatusInternalServerError, http.StatusAccepted} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte("limit reached"))
		}))

		var logs bytes.Buffer
		c := NewClient(srv.Client(), zerolog.New(&logs))
		body, ok, err := c.FetchReport(context.Background(), srv.URL+"/report?api_token=secret&from=a&to=b")
		srv.Close()

		require.NoError(t, err, "status %d", status)
		assert.False(t, ok)
		assert.Nil(t, body)
		assert.Contains(t, logs.String(), "error calling appsflyer api")
		assert.Contains(t, logs.String(), "api_token=REDACTED")
		assert.NotContains(t, logs.String(), "secret")
	}
}

func TestFetchReport_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := NewClient(nil, zerolog.Nop())
	_, ok, err := c.FetchReport(context.Background(), addr+"/report?api_token=T")
	require.Error(t, err)
	assert.False(t, ok)
	assert.NotContains(t, err.Error(), "api_token=T")
}
