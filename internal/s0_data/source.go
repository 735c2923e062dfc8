package s0_data

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/pkg/httputil"
)

// Source opens CSV inputs from a local path or an http(s) URL
type Source struct {
	http *httputil.Client
}

// NewSource creates a source. client may be nil when only local files are read.
func NewSource(client *httputil.Client) *Source {
	return &Source{http: client}
}

// Prices loads an asset_id,date,close[,volume] file
func (s *Source) Prices(ctx context.Context, location string) (map[string][]contracts.PricePoint, error) {
	return readFrom(ctx, s, location, ReadPricesCSV)
}

// Benchmark loads a date,value file
func (s *Source) Benchmark(ctx context.Context, location string) ([]contracts.BenchmarkPoint, error) {
	return readFrom(ctx, s, location, ReadBenchmarkCSV)
}

// Shares loads an asset_id,shares file
func (s *Source) Shares(ctx context.Context, location string) (map[string]float64, error) {
	return readFrom(ctx, s, location, ReadSharesCSV)
}

// Allocations loads a date,asset_id,weight file (latest date only)
func (s *Source) Allocations(ctx context.Context, location string) (contracts.Allocations, error) {
	return readFrom(ctx, s, location, ReadAllocationsCSV)
}

// IsRemote reports whether location is fetched over HTTP
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

func readFrom[T any](ctx context.Context, s *Source, location string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T

	if IsRemote(location) {
		if s.http == nil {
			return zero, fmt.Errorf("%s: remote inputs not enabled", location)
		}
		body, err := s.http.Fetch(ctx, location)
		if err != nil {
			return zero, err
		}
		return parse(bytes.NewReader(body))
	}

	f, err := os.Open(location)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	return parse(f)
}
