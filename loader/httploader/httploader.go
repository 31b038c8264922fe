// Package httploader fetches tile geometry from a map server over HTTP.
package httploader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/IvanBrykalov/tilewindow/cache"
	"github.com/IvanBrykalov/tilewindow/internal/singleflight"
	"github.com/IvanBrykalov/tilewindow/model"
	"github.com/IvanBrykalov/tilewindow/pkg/logger"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/IvanBrykalov/tilewindow/loader/httploader"

// ErrTileNotFound is returned when the server has no tile at the coordinate
// (HTTP 404). Empty areas of a map are common, so callers usually treat it
// as "nothing to draw" rather than as an outage.
var ErrTileNotFound = errors.New("httploader: tile not found")

// PathFunc maps a tile coordinate to a path below Options.BaseURL.
type PathFunc func(x, z int) string

// DefaultPath lays tiles out as x<X>/z<Z>.json.gz.
func DefaultPath(x, z int) string { return fmt.Sprintf("x%d/z%d.json.gz", x, z) }

// Options configures a Loader.
type Options struct {
	// BaseURL is the tile root, e.g. "https://maps.example.org/tiles/world/hires". Required.
	BaseURL string
	// Path defaults to DefaultPath.
	Path PathFunc
	// Client defaults to a client with a 30s timeout.
	Client *http.Client
	// UserAgent is sent with every request when set.
	UserAgent string

	// RequestsPerSecond throttles upstream requests (0 = unlimited); Burst
	// defaults to 1.
	RequestsPerSecond float64
	Burst             int

	// MaxBodyBytes bounds a decompressed tile (default 64 MiB).
	MaxBodyBytes int64

	Registerer prometheus.Registerer // nil => no metrics
	Logger     logger.Logger
}

// Loader implements cache.Loader. One Loader is meant to be shared by every
// manager in a process: concurrent requests for the same tile are coalesced
// into one upstream fetch.
type Loader struct {
	opt     Options
	limiter *rate.Limiter
	group   singleflight.Group[cache.Coord, []byte]
	tracer  trace.Tracer
	log     logger.Logger

	fetches  *prometheus.CounterVec
	latency  prometheus.Histogram
	coalesce prometheus.Counter
}

var _ cache.Loader = (*Loader)(nil)

// New validates opt and returns a Loader.
func New(opt Options) (*Loader, error) {
	if opt.BaseURL == "" {
		return nil, errors.New("httploader: BaseURL is required")
	}
	opt.BaseURL = strings.TrimRight(opt.BaseURL, "/")
	if opt.Path == nil {
		opt.Path = DefaultPath
	}
	if opt.Client == nil {
		opt.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opt.MaxBodyBytes <= 0 {
		opt.MaxBodyBytes = 64 << 20
	}
	if opt.Logger == nil {
		opt.Logger = logger.Nop()
	}

	l := &Loader{
		opt:    opt,
		tracer: otel.Tracer(tracerName),
		log:    opt.Logger,
	}
	if opt.RequestsPerSecond > 0 {
		burst := opt.Burst
		if burst <= 0 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(opt.RequestsPerSecond), burst)
	}

	f := promauto.With(opt.Registerer)
	l.fetches = f.NewCounterVec(prometheus.CounterOpts{
		Name: "tilewindow_http_fetches_total",
		Help: "Upstream tile fetches by result",
	}, []string{"result"})
	l.latency = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilewindow_http_fetch_latency_seconds",
		Help:    "Latency of upstream tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})
	l.coalesce = f.NewCounter(prometheus.CounterOpts{
		Name: "tilewindow_http_coalesced_total",
		Help: "Tile requests served by a fetch already in flight",
	})
	return l, nil
}

// URL returns the address of tile (x, z).
func (l *Loader) URL(x, z int) string {
	return l.opt.BaseURL + "/" + strings.TrimLeft(l.opt.Path(x, z), "/")
}

// LoadTile fetches and decodes tile (x, z). Every caller gets its own
// Geometry, so disposing one never affects another manager.
func (l *Loader) LoadTile(ctx context.Context, x, z int) (cache.Model, error) {
	c := cache.Coord{X: x, Z: z}
	body, err, shared := l.group.Do(ctx, c, func(ctx context.Context) ([]byte, error) {
		return l.fetch(ctx, c)
	})
	if shared {
		l.coalesce.Inc()
	}
	if err != nil {
		return nil, err
	}
	g, err := model.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httploader: tile %s: %w", c, err)
	}
	return g, nil
}

// fetch performs one upstream GET and returns the decompressed body.
func (l *Loader) fetch(ctx context.Context, c cache.Coord) (body []byte, err error) {
	url := l.URL(c.X, c.Z)
	ctx, span := l.tracer.Start(ctx, "tile.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int("tile.x", c.X),
			attribute.Int("tile.z", c.Z),
			attribute.String("url.full", url),
		),
	)
	start := time.Now()
	defer func() {
		l.latency.Observe(time.Since(start).Seconds())
		switch {
		case err == nil:
			l.fetches.WithLabelValues("ok").Inc()
			span.SetStatus(codes.Ok, "")
		case errors.Is(err, ErrTileNotFound):
			l.fetches.WithLabelValues("not_found").Inc()
		default:
			l.fetches.WithLabelValues("error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("httploader: create request: %w", err)
	}
	if l.opt.UserAgent != "" {
		req.Header.Set("User-Agent", l.opt.UserAgent)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	l.log.Debug("fetching tile", "tile", c.String(), "url", url)
	resp, err := l.opt.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httploader: fetch %s: %w", c, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrTileNotFound, c)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("httploader: tile %s: upstream returned status %d", c, resp.StatusCode)
	}

	r, err := l.decompress(resp)
	if err != nil {
		return nil, fmt.Errorf("httploader: tile %s: %w", c, err)
	}
	defer r.Close()

	body, err = io.ReadAll(io.LimitReader(r, l.opt.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("httploader: read tile %s: %w", c, err)
	}
	if int64(len(body)) > l.opt.MaxBodyBytes {
		return nil, fmt.Errorf("httploader: tile %s exceeds %d bytes", c, l.opt.MaxBodyBytes)
	}
	return body, nil
}

// decompress unwraps gzip bodies. Tile servers either mark them with
// Content-Encoding or serve .gz files as-is, so the magic bytes decide.
func (l *Loader) decompress(resp *http.Response) (io.ReadCloser, error) {
	br := bufio.NewReader(resp.Body)
	magic, _ := br.Peek(2)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, nil
	}
	return io.NopCloser(br), nil
}
