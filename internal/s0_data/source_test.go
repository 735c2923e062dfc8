package s0_data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-index/pkg/httputil"
	"github.com/wonny/aegis-index/pkg/logger"
)

const priceFixture = "asset_id,date,close\nAAPL,2024-01-02,185.6\nAAPL,2024-01-03,184.2\nMSFT,2024-01-02,370.9\n"

func TestSource_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(priceFixture), 0o644))

	prices, err := NewSource(nil).Prices(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, prices["AAPL"], 2)
	assert.Len(t, prices["MSFT"], 1)
}

func TestSource_MissingFile(t *testing.T) {
	_, err := NewSource(nil).Shares(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSource_Remote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/prices.csv":
			_, _ = w.Write([]byte(priceFixture))
		case "/spx.csv":
			_, _ = w.Write([]byte("date,value\n2024-01-02,4742.8\n2024-01-03,null\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	src := NewSource(httputil.New(logger.Nop()).DisableRetry())
	ctx := context.Background()

	prices, err := src.Prices(ctx, server.URL+"/prices.csv")
	require.NoError(t, err)
	assert.Len(t, prices, 2)

	bench, err := src.Benchmark(ctx, server.URL+"/spx.csv")
	require.NoError(t, err)
	require.Len(t, bench, 1)
	assert.Equal(t, 4742.8, bench[0].Value)

	_, err = src.Allocations(ctx, server.URL+"/missing.csv")
	assert.Error(t, err)
}

func TestSource_RemoteDisabled(t *testing.T) {
	_, err := NewSource(nil).Prices(context.Background(), "https://example.com/prices.csv")
	assert.ErrorContains(t, err, "remote inputs not enabled")
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.com/a.csv"))
	assert.True(t, IsRemote("http://localhost/a.csv"))
	assert.False(t, IsRemote("./data/a.csv"))
	assert.False(t, IsRemote("/tmp/https.csv"))
}
