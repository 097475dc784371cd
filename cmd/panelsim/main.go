// Command panelsim pretends to be one WLED matrix so panelcast can be run
// without hardware.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/panelcast/internal/layout"
	"github.com/coreman2200/panelcast/internal/sim"
)

func main() {
	var (
		id       = flag.String("id", "sim", "panel id")
		listen   = flag.String("listen", "", "UDP listen address (default :4048 for ddp, :6454 for artnet)")
		httpAddr = flag.String("http", ":8081", "address for the WLED JSON API")
		w        = flag.Int("w", 16, "matrix width")
		h        = flag.Int("h", 16, "matrix height")
		protocol = flag.String("protocol", "ddp", "ddp | artnet")
		universe = flag.Int("universe", 0, "Art-Net base universe")
		dmxStart = flag.Int("dmx-start", 0, "Art-Net DMX start address")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	p := layout.Panel{
		ID:       *id,
		Size:     layout.Size{W: *w, H: *h},
		Protocol: layout.Protocol(*protocol),
		Universe: *universe,
		DMXStart: *dmxStart,
	}
	if p.Size.W <= 0 || p.Size.H <= 0 {
		log.Fatal().Int("w", *w).Int("h", *h).Msg("matrix size must be positive")
	}
	addr := *listen
	if addr == "" {
		addr = ":4048"
		if p.Protocol == layout.ArtNet {
			addr = ":6454"
		}
	}

	s := sim.New(p, nil)
	bound, err := s.Listen(addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", addr).Msg("listen")
	}

	// one summary line per second at most
	frameLog := log.Sample(&zerolog.BurstSampler{Burst: 1, Period: time.Second})
	s.OnFrame = func(rgb []byte) {
		var r, g, b int
		for i := 0; i+2 < len(rgb); i += 3 {
			r += int(rgb[i])
			g += int(rgb[i+1])
			b += int(rgb[i+2])
		}
		n := max(1, len(rgb)/3)
		frameLog.Info().Uint64("frame", s.Frames()).
			Ints("avg", []int{r / n, g / n, b / n}).
			Ints("first", []int{int(rgb[0]), int(rgb[1]), int(rgb[2])}).
			Msg("frame")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := s.Serve(ctx); err != nil {
			log.Fatal().Err(err).Msg("serve")
		}
	}()

	srv := &http.Server{Addr: *httpAddr, Handler: s, ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server crashed")
		}
	}()
	log.Info().Str("udp", bound.String()).Str("http", *httpAddr).Str("protocol", string(p.Protocol)).
		Int("leds", p.Count()).Msg("panel simulator up")

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-ch
	log.Info().Str("signal", sig.String()).Uint64("frames", s.Frames()).Msg("shutting down")
	cancel()
	_ = srv.Close()
}
