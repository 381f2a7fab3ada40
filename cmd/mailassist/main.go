// Command mailassist is a terminal mail client with a cached inbox and a
// writing assistant.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/nhle/mail-assistant/internal/ai"
	"github.com/nhle/mail-assistant/internal/app"
	"github.com/nhle/mail-assistant/internal/auth"
	"github.com/nhle/mail-assistant/internal/credential"
	"github.com/nhle/mail-assistant/internal/mail"
	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/source"
	"github.com/nhle/mail-assistant/internal/source/gmail"
	"github.com/nhle/mail-assistant/internal/source/graph"
	"github.com/nhle/mail-assistant/internal/store"
	appsync "github.com/nhle/mail-assistant/internal/sync"
	"github.com/nhle/mail-assistant/internal/theme"
)

// apiKeyEnv overrides the stored assistant key when set.
const apiKeyEnv = "ANTHROPIC_API_KEY"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mailassist:", err)
		os.Exit(1)
	}
}

func run() error {
	// a missing .env is fine
	_ = godotenv.Load()

	configPath := pflag.String("config", model.DefaultConfigPath(), "path to the config file")
	syncOnly := pflag.Bool("sync", false, "sync the inbox once and exit")
	logConsole := pflag.Bool("log-console", false, "log to stderr instead of the log file")
	pflag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	log, closeLog, err := newLogger(cfg.Log, *logConsole)
	if err != nil {
		return err
	}
	defer closeLog()

	if addr := cfg.Debug.MetricsAddr; addr != "" {
		go serveMetrics(addr, log)
	}

	ctx := context.Background()

	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = model.DefaultDBPath()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Initialize(ctx); err != nil {
		return err
	}

	secrets, err := credential.Open()
	if err != nil {
		return err
	}
	authMgr := auth.NewManager(cfg.Mailbox, secrets, log)

	gateway, err := newGateway(ctx, cfg.Mailbox, authMgr.HTTPClient(), log)
	if err != nil {
		return err
	}
	mailSvc := mail.NewService(s, gateway, log)

	factory, err := ai.NewFactory(cfg.AI, nil)
	if err != nil {
		return err
	}
	assistant := ai.NewAssistant(credential.APIKeyLookup(secrets, apiKeyEnv), factory, cfg.AI.Model, log)

	h := app.NewHandlers(app.Deps{
		Config:     cfg,
		ConfigPath: *configPath,
		Store:      s,
		Mail:       mailSvc,
		Assistant:  assistant,
		Secrets:    secrets,
		Auth:       authMgr,
	}, log)

	if *syncOnly {
		n, err := h.Sync(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("synced %d messages\n", n)
		return nil
	}

	theme.Apply(cfg.Preferences.Theme)
	poller := appsync.New(h, log)
	defer poller.Stop()

	p := tea.NewProgram(app.New(h, poller), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}

// newGateway builds the backend for the configured provider. Both use
// the OAuth client from the auth manager.
func newGateway(ctx context.Context, cfg model.MailboxConfig, client *http.Client, log zerolog.Logger) (source.Gateway, error) {
	switch cfg.Provider {
	case model.ProviderGmail:
		return gmail.New(ctx, client, gmail.Options{QuotaUnitsPerSecond: cfg.RequestsPerSecond}, log)
	case model.ProviderMicrosoft:
		return graph.NewAdapter(cfg.GraphBaseURL, client, log), nil
	default:
		return nil, fmt.Errorf("unknown mailbox provider %q", cfg.Provider)
	}
}

// newLogger writes JSON lines to the log file, or human-readable lines
// to stderr when console is set. The UI owns the terminal otherwise.
func newLogger(cfg model.LogConfig, console bool) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var (
		w       io.Writer
		closeFn = func() {}
	)
	if console {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	} else {
		path := cfg.Path
		if path == "" {
			path = model.DefaultLogPath()
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("opening log file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	}

	log := zerolog.New(w).Level(level).With().Timestamp().Str("app", "mailassist").Logger()
	return log, closeFn, nil
}

func serveMetrics(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn().Err(err).Msg("metrics server stopped")
	}
}
