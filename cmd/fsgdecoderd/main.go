// Command fsgdecoderd runs the fsgdecoder websocket streaming decode
// server: it loads a pronunciation dictionary, a phone inventory, and a set
// of FSM grammars, then serves one decode session per websocket connection
// and, if configured, persists finished utterances to Postgres.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fsgdecoder/core/internal/config"
	"github.com/fsgdecoder/core/internal/observe"
	"github.com/fsgdecoder/core/internal/store/postgres"
	"github.com/fsgdecoder/core/internal/streamserver"
	"github.com/fsgdecoder/core/pkg/decoder"
	"github.com/fsgdecoder/core/pkg/decoder/dict"
	"github.com/fsgdecoder/core/pkg/decoder/dtype"
	"github.com/fsgdecoder/core/pkg/decoder/fsg"
	"github.com/fsgdecoder/core/pkg/decoder/phone"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ───────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "fsgdecoder: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "fsgdecoder: %v\n", err)
		}
		return 1
	}

	// ── Logger ───────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("fsgdecoder starting",
		"config", *configPath,
		"stream_addr", cfg.Stream.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ───────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "fsgdecoder"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Dictionary and phone set ─────────────────────────────────────────────
	wordDict, err := loadDictionary(cfg.Grammar.DictPath)
	if err != nil {
		slog.Error("failed to load dictionary", "err", err)
		return 1
	}

	phoneSet, err := loadPhoneSet(cfg.Grammar.PhonePath)
	if err != nil {
		slog.Error("failed to load phone set", "err", err)
		return 1
	}

	silWID, ok := wordDict.ToID("<sil>")
	if !ok {
		slog.Error("dictionary is missing the required <sil> word")
		return 1
	}

	silProb := probToLogProb(cfg.Decoder.SilProb, cfg.Decoder.LW)
	fillProb := probToLogProb(cfg.Decoder.FillProb, cfg.Decoder.LW)

	// ── Grammar bootstrap ────────────────────────────────────────────────────
	bootstrap := fsg.NewManager(wordDict, silWID, cfg.Decoder.FSGUseFiller, cfg.Decoder.FSGUseAltPron, silProb, fillProb)
	if err := loadGrammars(ctx, bootstrap, cfg); err != nil {
		slog.Error("failed to load grammars", "err", err)
		return 1
	}
	if cfg.Grammar.Default != "" {
		if !bootstrap.Select(cfg.Grammar.Default) {
			slog.Error("default grammar not found among loaded grammars", "grammar", cfg.Grammar.Default)
			return 1
		}
	}

	// ── Persistence (optional) ───────────────────────────────────────────────
	var store *postgres.Store
	if cfg.Store.PostgresDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect to postgres store", "err", err)
			return 1
		}
		defer store.Close()
		slog.Info("utterance persistence enabled")
	}

	decCfg := decoder.Config{
		Beam:           dtype.LogProb(cfg.Decoder.Beam),
		PBeam:          dtype.LogProb(cfg.Decoder.PBeam),
		WBeam:          dtype.LogProb(cfg.Decoder.WBeam),
		MaxHMMPerFrame: cfg.Decoder.MaxHMMPerFrame,
		LW:             cfg.Decoder.LW,
		PIP:            probToLogProb(cfg.Decoder.PIP, cfg.Decoder.LW),
		WIP:            probToLogProb(cfg.Decoder.WIP, cfg.Decoder.LW),
		SilProb:        silProb,
		FillProb:       fillProb,
		AScale:         cfg.Decoder.AScale,
		BestPath:       cfg.Decoder.BestPath,
		FSGUseFiller:   cfg.Decoder.FSGUseFiller,
		FSGUseAltPron:  cfg.Decoder.FSGUseAltPron,
	}

	streamOpts := []streamserver.Option{
		streamserver.WithRecorder(metrics),
		streamserver.WithLogger(logger),
	}
	if store != nil {
		streamOpts = append(streamOpts, streamserver.WithStore(store))
	}
	if cfg.Grammar.Default != "" {
		streamOpts = append(streamOpts, streamserver.WithDefaultGrammar(cfg.Grammar.Default))
	}

	stream := streamserver.NewServer(decCfg, wordDict, phoneSet, bootstrap, phoneSet.NSenone(),
		silWID, cfg.Decoder.FSGUseFiller, cfg.Decoder.FSGUseAltPron, silProb, fillProb, streamOpts...)

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.Handle("/ws", observe.Middleware(metrics)(stream.Handler()))
	mux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:    cfg.Stream.ListenAddr,
		Handler: mux,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("stream server listening", "addr", cfg.Stream.ListenAddr)
		var err error
		if cfg.Server.TLS != nil {
			err = httpSrv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			slog.Error("stream server error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := stream.Close(); err != nil {
		slog.Warn("stream server close error", "err", err)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "err", err)
		return 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}

	slog.Info("goodbye")
	return 0
}

// ── Loading ────────────────────────────────────────────────────────────────

func loadDictionary(path string) (*dict.Static, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()
	return dict.ParseYAML(f)
}

func loadPhoneSet(path string) (*phone.Static, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()
	return phone.ParseYAML(f)
}

// loadGrammars bulk-loads every grammar named in cfg.Grammar.Files, keyed by
// its path exactly as listed, into bootstrap.
func loadGrammars(ctx context.Context, bootstrap *fsg.Manager, cfg *config.Config) error {
	if len(cfg.Grammar.Files) == 0 {
		return nil
	}
	specs := make([]fsg.AddAllSpec, len(cfg.Grammar.Files))
	for i, path := range cfg.Grammar.Files {
		specs[i] = fsg.AddAllSpec{Name: path, Source: path}
	}
	loader := fsg.ReadLoader(
		func(path string) (io.ReadCloser, error) { return os.Open(path) },
		func(name string, r io.Reader) (*fsg.Model, error) { return fsg.ParseYAML(name, r, cfg.Decoder.LW) },
	)
	return bootstrap.AddAll(ctx, specs, loader)
}

// ── Probability conversion ───────────────────────────────────────────────────

// logProbScale puts converted probabilities in the same fixed-point
// log-domain magnitude as the beam widths configured directly in log form
// (decoder.beam et al typically run in the hundreds to low thousands).
const logProbScale = 1000.0

// probToLogProb converts a plain probability into this decoder's log-domain
// [dtype.LogProb], applying the linguistic weight the way pocketsphinx
// applies it to pip/wip/silprob/fillprob: to the log value, not the raw
// probability.
func probToLogProb(p, lw float64) dtype.LogProb {
	if p <= 0 {
		return dtype.LogZero
	}
	return dtype.LogProb(math.Log(p) * lw * logProbScale)
}

// ── Logger ───────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
