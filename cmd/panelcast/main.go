package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/panelcast/internal/app"
	"github.com/coreman2200/panelcast/internal/config"
	"github.com/coreman2200/panelcast/internal/ws"
)

func main() {
	// ---- Flags (explicitly set flags win over config.yaml) ----
	rate := config.DefaultRate
	flag.Var(&rate, "rate", "frame rate, e.g. 60Hz")
	var (
		configPath   = flag.String("config", "panelcast.yaml", "path to the panel layout file")
		addr         = flag.String("addr", ":8080", "HTTP listen address for preview and control")
		brightness   = flag.Float64("brightness", 1, "global brightness 0..1")
		scene        = flag.String("scene", "", "scene to play (solid, grad, sweep)")
		preset       = flag.String("preset", "", "scene preset")
		verify       = flag.Bool("verify", false, "compare each panel's WLED settings against the layout")
		noMetadata   = flag.Bool("no-metadata", false, "skip the WLED size lookup and use configured sizes")
		writeDefault = flag.Bool("write-default", false, "write a default layout to -config and exit")
		debug        = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	if *writeDefault {
		if err := config.Save(*configPath, config.Default()); err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("write default config")
		}
		log.Info().Str("path", *configPath).Msg("default config written")
		return
	}

	// ---- Load config ----
	cfg, err := config.Load(*configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn().Str("path", *configPath).Msg("no config file; using the default 2x2 layout")
		cfg = config.Default()
	case err != nil:
		log.Fatal().Err(err).Str("path", *configPath).Msg("config load failed")
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "rate":
			cfg.Rate = config.Rate{Frequency: rate}
		case "brightness":
			cfg.Brightness = *brightness
		case "scene":
			cfg.Scene, cfg.Program = *scene, nil
		case "preset":
			cfg.Preset = *preset
		case "verify":
			cfg.Metadata.Verify = *verify
		case "no-metadata":
			cfg.Metadata.Enabled = !*noMetadata
		case "addr":
			cfg.HTTPAddr = *addr
		}
	})
	if cfg.Rate.Frequency <= 0 || cfg.Rate.Frequency > 1000*physic.Hertz {
		log.Fatal().Str("rate", cfg.Rate.String()).Msg("rate out of range")
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = *addr
	}

	// ---- Core ----
	core, err := app.InitCore(cfg, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log.Info().Int("panels", len(core.Layout.Panels)).Int("w", core.Layout.Canvas.W).Int("h", core.Layout.Canvas.H).
		Str("rate", cfg.Rate.String()).Msg("layout loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := core.Connect(ctx)
	if st.Connected == 0 {
		log.Warn().Strs("failed", st.Failed).Msg("no panels reachable; send {\"cmd\":\"retry\"} on /control once they are up")
	}

	state := ws.NewState(core, nil)
	go state.Run(ctx)

	if err := core.Start(); err != nil {
		log.Fatal().Err(err).Msg("scheduler start failed")
	}

	// ---- HTTP routes ----
	mux := http.NewServeMux()
	state.Routes(mux)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      withCORS(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server crashed")
		}
	}()

	// ---- Wait for a signal or the end of the show ----
	finished := make(chan struct{})
	go func() {
		core.Sched.Wait()
		close(finished)
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-ch:
		log.Info().Str("signal", s.String()).Msg("shutting down")
	case <-finished:
		log.Info().Msg("show finished")
	}

	_ = srv.Close()
	core.Close()
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
