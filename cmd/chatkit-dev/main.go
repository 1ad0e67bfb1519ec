// ABOUTME: Entry point for the chatkit dev server
// ABOUTME: Serves canned streaming responses for frontend development

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/Tailen/chatkit-ui/internal/config"
	"github.com/Tailen/chatkit-ui/internal/engine"
	"github.com/Tailen/chatkit-ui/internal/server"
	"github.com/Tailen/chatkit-ui/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
      _           _   _    _ _           _
  ___| |__   __ _| |_| | _(_) |_     __| | _____   __
 / __| '_ \ / _' | __| |/ / | __|   / _' |/ _ \ \ / /
| (__| | | | (_| | |_|   <| | |_   | (_| |  __/\ V /
 \___|_| |_|\__,_|\__|_|\_\_|\__|   \__,_|\___| \_/
`

var scenarioHelp = []struct{ keyword, what string }{
	{"(default)", "echoes your message and streams lorem paragraphs"},
	{"widget", "returns a Card widget with a form"},
	{"tool", "returns a pending get_weather client tool call"},
	{"workflow", "plays a 3-task workflow, then a narration"},
	{"notice", "sends info and warning notices first"},
	{"slow", "streams with 500ms chunk delays"},
	{"long", "streams 17 paragraphs for scroll testing"},
	{"annotations", "returns a message with url and file sources"},
	{"error", "terminates the turn with a retryable error"},
}

// getConfigPath returns the config file path. CHATKIT_CONFIG wins; otherwise
// chatkit.yaml in the working directory, which may not exist.
func getConfigPath() string {
	if envPath := os.Getenv("CHATKIT_CONFIG"); envPath != "" {
		return envPath
	}
	return "chatkit.yaml"
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: chatkit-dev <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the dev server")
		fmt.Println("  health   Check dev server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file if present, defaults otherwise.
func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.Default(), "(defaults)", nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context) error {
	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Listen:   %s\n", cfg.Server.Listen)
	green.Print("    ▶ ")
	fmt.Printf("Storage:  %s\n", storageLabel(cfg.Database))
	fmt.Println()

	gray.Println("    Test scenarios (keyword in your message):")
	for _, s := range scenarioHelp {
		cyan.Printf("      %-12s", s.keyword)
		fmt.Println(s.what)
	}
	fmt.Println()

	logger := setupLogger(cfg.Logging)
	logger.Info("starting chatkit-dev",
		"config", configPath,
		"listen", cfg.Server.Listen,
		"storage", cfg.Database.Type,
	)

	st, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	eng := engine.New(st, cfg.Streaming, logger)
	srv := server.New(st, eng, logger)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutDuration)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Type {
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return s, nil
	default:
		return store.NewMemoryStore(), nil
	}
}

func storageLabel(cfg config.DatabaseConfig) string {
	if cfg.Type == "sqlite" {
		return "sqlite (" + cfg.Path + ")"
	}
	return "memory (state lost on restart)"
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	addr := cfg.Server.Listen
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	url := fmt.Sprintf("http://%s/health", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	fmt.Println("healthy")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(&colorHandler{level: level})
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu    sync.Mutex
	level slog.Level
	attrs []slog.Attr
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})
	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{level: h.level, attrs: newAttrs}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	return h
}
