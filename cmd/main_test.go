package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Flaque/filet"
	"github.com/UnknownOlympus/waypoint/internal/config"
	"github.com/UnknownOlympus/waypoint/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type place struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// newNominatim serves a tiny gazetteer and counts the requests it receives.
func newNominatim(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()

	gazetteer := map[string][]place{
		"Main St, South Carolina, USA":    {{Lat: "34", Lon: "-81"}},
		"Gervais St, South Carolina, USA": {{Lat: "33.99", Lon: "-81.03"}},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))

		found, ok := gazetteer[r.URL.Query().Get("q")]
		if !ok {
			found = []place{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(found)
	}))
	t.Cleanup(server.Close)

	return server
}

func testApp(baseURL, cachePath string) *app {
	a := &app{}
	a.init(&config.Config{
		Env:     envLocal,
		Workers: 2,
		Region:  "South Carolina, USA",
		Provider: config.ProviderConfig{
			Type:    "nominatim",
			BaseURL: baseURL,
		},
		Client: config.ClientConfig{
			Timeout:     time.Second,
			MaxAttempts: 2,
			BackoffUnit: time.Millisecond,
		},
		Columns: config.ColumnsConfig{Primary: "als", Secondary: "alsb"},
		Cache:   config.CacheConfig{Backend: "sqlite", Path: cachePath},
	})
	return a
}

func TestRunGeocode(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	input := filepath.Join(dir, "calls.csv")
	require.NoError(t, os.WriteFile(input, []byte(`id,als,alsb
1,Main St,Elm St
2,Gervais St,
3,,
4,Main St,
`), 0o600))

	var hits atomic.Int32
	server := newNominatim(t, &hits)
	a := testApp(server.URL, filepath.Join(dir, "geocode_cache.db"))

	summary, err := a.runGeocode(t.Context(), geocodeOptions{input: input, workers: 2}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 3, summary.Resolved)
	assert.Equal(t, 1, summary.ByOutcome[models.OutcomeEmptyAddress])
	assert.Equal(t, 1, summary.ByOutcome[models.OutcomeResolvedTrimmed])

	output, err := os.ReadFile(filepath.Join(dir, "calls_geocoded.csv"))
	require.NoError(t, err)
	assert.Equal(t, `id,als,alsb,latitude,longitude
1,Main St,Elm St,34,-81
2,Gervais St,,33.99,-81.03
3,,,,
4,Main St,,34,-81
`, string(output))

	t.Run("second run is served from the cache", func(t *testing.T) {
		before := hits.Load()
		var stdout bytes.Buffer

		summary, err := a.runGeocode(t.Context(), geocodeOptions{
			input:          input,
			output:         "-",
			workers:        1,
			dropUnresolved: true,
		}, &stdout)
		require.NoError(t, err)

		// Only the two-street address goes out again: misses are never cached.
		assert.Equal(t, int32(1), hits.Load()-before)
		assert.Equal(t, 3, summary.Resolved)
		assert.Equal(t, `id,als,alsb,latitude,longitude
1,Main St,Elm St,34,-81
2,Gervais St,,33.99,-81.03
4,Main St,,34,-81
`, stdout.String())
	})

	t.Run("invalid worker count", func(t *testing.T) {
		_, err := a.runGeocode(t.Context(), geocodeOptions{input: input, workers: 0}, &bytes.Buffer{})
		require.Error(t, err)
	})

	t.Run("missing input", func(t *testing.T) {
		_, err := a.runGeocode(t.Context(), geocodeOptions{input: filepath.Join(dir, "nope.csv"), workers: 1}, &bytes.Buffer{})
		require.Error(t, err)
	})
}

func TestCacheCommands(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	t.Setenv("WAYPOINT_ENV", envLocal)
	t.Setenv("WAYPOINT_CACHE_PATH", filepath.Join(dir, "geocode_cache.db"))

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		root := newRootCmd()
		root.SetArgs(args)
		root.SetOut(&out)
		root.SetErr(&bytes.Buffer{})
		err := root.ExecuteContext(t.Context())
		return out.String(), err
	}

	out, err := run("cache", "init")
	require.NoError(t, err)
	assert.Equal(t, "cache ready (sqlite): 0 entries\n", out)

	out, err = run("cache", "stats")
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)

	_, err = run("cache", "lookup", "Main St, South Carolina, USA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not cached")
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "data/calls_geocoded.csv", outputPath("data/calls.csv"))
	assert.Equal(t, "calls_geocoded", outputPath("calls"))
}

func TestSetupLogger(t *testing.T) {
	for _, env := range []string{envLocal, envDev, envProd, "unknown"} {
		assert.NotNil(t, setupLogger(env), env)
	}
}
