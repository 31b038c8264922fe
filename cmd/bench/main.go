// Command bench walks synthetic viewers across a synthetic map and reports
// load throughput. It exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/tilewindow/cache"
	"github.com/IvanBrykalov/tilewindow/loader/synth"
	pmet "github.com/IvanBrykalov/tilewindow/metrics/prom"
	"github.com/IvanBrykalov/tilewindow/scene"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// ---- Flags ----
	var (
		viewers  = flag.Int("viewers", runtime.GOMAXPROCS(0), "number of walking viewers (one manager each)")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		speed    = flag.Float64("speed", 40, "viewer speed in world units per tick")
		tick     = flag.Duration("tick", 20*time.Millisecond, "interval between position updates")

		tileSize     = flag.Float64("tile", 32, "tile size in world units")
		viewDistance = flag.Float64("vd", 256, "view distance in world units")
		maxLoads     = flag.Int("loads", cache.DefaultMaxConcurrentLoads, "max concurrent loads per viewer")

		resolution = flag.Int("res", 16, "heightfield cells per tile edge")
		latency    = flag.Duration("latency", 5*time.Millisecond, "simulated load latency")
		jitter     = flag.Duration("jitter", 5*time.Millisecond, "simulated latency jitter")
		failRate   = flag.Float64("fail", 0, "fraction of loads that fail [0..1]")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "tilewindow", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Shared tile source ----
	src := synth.New(synth.Options{
		Seed:        uint64(*seed),
		Resolution:  *resolution,
		TileSize:    *tileSize,
		Latency:     *latency,
		Jitter:      *jitter,
		FailureRate: *failRate,
	})

	viewersN := *viewers
	if viewersN <= 0 {
		viewersN = 1
	}

	// ---- Walk ----
	var moves, crossings, redraws, peakInFlight atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(viewersN)
	for v := 0; v < viewersN; v++ {
		go func(id int) {
			defer wg.Done()

			vp := scene.NewViewport()
			m, err := cache.New(cache.Options{
				ViewDistance:       *viewDistance,
				TileSize:           cache.Vec2{X: *tileSize, Z: *tileSize},
				Loader:             src,
				Viewport:           vp,
				MaxConcurrentLoads: *maxLoads,
				Metrics:            metrics.Scope(),
			})
			if err != nil {
				log.Fatalf("viewer %d: %v", id, err)
			}
			defer func() { _ = m.Close() }()
			m.Update()

			// Each viewer gets its own RNG (rand.Rand is NOT goroutine-safe).
			r := rand.New(rand.NewSource(*seed + int64(id)*9973))
			heading := r.Float64() * 2 * math.Pi
			var pos cache.Vec3

			t := time.NewTicker(*tick)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-vp.C():
					// A real viewer would render a frame here.
					if vp.TakeDirty() {
						redraws.Add(1)
					}
					continue
				case <-t.C:
				}
				// Drift the heading so viewers curve instead of walking straight lines.
				heading += (r.Float64() - 0.5) * 0.4
				pos.X += math.Cos(heading) * *speed
				pos.Z += math.Sin(heading) * *speed

				before := m.Center()
				m.SetPosition(pos)
				moves.Add(1)
				if m.Center() != before {
					crossings.Add(1)
				}
				for {
					n := int64(m.InFlight())
					p := peakInFlight.Load()
					if n <= p || peakInFlight.CompareAndSwap(p, n) {
						break
					}
				}
			}
		}(v)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	loads := src.Calls()
	fmt.Printf("viewers=%d tile=%.0f vd=%.0f loads/viewer=%d dur=%v seed=%d\n",
		viewersN, *tileSize, *viewDistance, *maxLoads, elapsed, *seed)
	fmt.Printf("moves=%d  center-crossings=%d  redraws=%d\n", moves.Load(), crossings.Load(), redraws.Load())
	fmt.Printf("loads=%d (%.0f loads/s)  peak-in-flight/viewer=%d\n",
		loads, float64(loads)/elapsed.Seconds(), peakInFlight.Load())
}
