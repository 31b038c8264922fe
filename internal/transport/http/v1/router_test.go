package v1

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/IvanBrykalov/tilewindow/cache"
	"github.com/IvanBrykalov/tilewindow/internal/transport/http/v1/handler"
	"github.com/IvanBrykalov/tilewindow/loader/archive"
	"github.com/IvanBrykalov/tilewindow/loader/httploader"
	"github.com/IvanBrykalov/tilewindow/loader/synth"
	"github.com/IvanBrykalov/tilewindow/model"
	"github.com/IvanBrykalov/tilewindow/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func init() { gin.SetMode(gin.TestMode) }

type fixedSessions int

func (n fixedSessions) Sessions() int { return int(n) }

func newTestServer(t *testing.T, tiles cache.Loader) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "probe_total", Help: "probe"}))
	r := NewRouter(handler.NewHandler(tiles, fixedSessions(3)), http.NotFoundHandler(), reg, logger.Nop(), false)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	return resp, string(b)
}

func TestRouter_Healthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, synth.New(synth.Options{}))
	resp, body := get(t, srv.URL+"/api/v1/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var got struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "ok" || got.Sessions != 3 {
		t.Fatalf("unexpected body %+v", got)
	}
}

func TestRouter_Metrics(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, synth.New(synth.Options{}))
	resp, body := get(t, srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "probe_total") {
		t.Fatalf("metrics must expose the given registry: status=%d", resp.StatusCode)
	}
}

func TestRouter_TileJSON(t *testing.T) {
	t.Parallel()

	src := synth.New(synth.Options{Resolution: 2})
	srv := newTestServer(t, src)

	resp, body := get(t, srv.URL+"/api/v1/tiles/x-1/z4.json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	g, err := model.Decode(strings.NewReader(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if want := src.Geometry(-1, 4); g.Vertices() != want.Vertices() {
		t.Fatalf("vertices want %d, got %d", want.Vertices(), g.Vertices())
	}
}

// A second instance reads tiles from the first through httploader.
func TestRouter_ServesHTTPLoader(t *testing.T) {
	t.Parallel()

	src := synth.New(synth.Options{Resolution: 3, Seed: 7})
	srv := newTestServer(t, src)

	l, err := httploader.New(httploader.Options{BaseURL: srv.URL + "/api/v1/tiles"})
	if err != nil {
		t.Fatalf("httploader: %v", err)
	}
	m, err := l.LoadTile(context.Background(), 2, -3)
	if err != nil {
		t.Fatalf("LoadTile: %v", err)
	}
	defer m.Dispose()

	got, want := m.(*model.Geometry), src.Geometry(2, -3)
	if len(got.Positions) != len(want.Positions) {
		t.Fatalf("positions want %d, got %d", len(want.Positions), len(got.Positions))
	}
	for i := range want.Positions {
		if got.Positions[i] != want.Positions[i] {
			t.Fatalf("position %d differs: want %v, got %v", i, want.Positions[i], got.Positions[i])
		}
	}
}

func TestRouter_TileErrors(t *testing.T) {
	t.Parallel()

	missing := cache.LoaderFunc(func(context.Context, int, int) (cache.Model, error) {
		return nil, archive.ErrTileNotFound
	})
	srv := newTestServer(t, missing)

	cases := []struct {
		path string
		want int
	}{
		{"/api/v1/tiles/x1/z2.json", http.StatusNotFound},
		{"/api/v1/tiles/1/z2.json", http.StatusBadRequest},
		{"/api/v1/tiles/x1/zz.json", http.StatusBadRequest},
		{"/api/v1/tiles/xa/z2.json.gz", http.StatusBadRequest},
	}
	for _, tc := range cases {
		if resp, _ := get(t, srv.URL+tc.path); resp.StatusCode != tc.want {
			t.Fatalf("%s: want %d, got %d", tc.path, tc.want, resp.StatusCode)
		}
	}
}
