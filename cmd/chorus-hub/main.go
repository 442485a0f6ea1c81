// ABOUTME: Entry point for the chorus-hub reconciliation server
// ABOUTME: Ingests engine events, serves thread state, streams updates

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/chorus/internal/api"
	"github.com/2389/chorus/internal/config"
	"github.com/2389/chorus/internal/history"
	"github.com/2389/chorus/internal/hub"
	"github.com/2389/chorus/internal/schema"
	"github.com/2389/chorus/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
       _                                      _             _
  ___ | |__    ___   _ __  _   _  ___        | |__   _   _ | |__
 / __|| '_ \  / _ \ | '__|| | | |/ __| _____ | '_ \ | | | || '_ \
| (__ | | | || (_) || |   | |_| |\__ \|_____|| | | || |_| || |_) |
 \___||_| |_| \___/ |_|    \__,_||___/       |_| |_| \__,_||_.__/
`

// getConfigPath returns the path to the hub config file.
// Priority: CHORUS_CONFIG env var > ./chorus.yaml > XDG_CONFIG_HOME/chorus/hub.yaml > ~/.config/chorus/hub.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CHORUS_CONFIG"); envPath != "" {
		return envPath
	}

	if _, err := os.Stat("chorus.yaml"); err == nil {
		return "chorus.yaml"
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chorus.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "chorus", "hub.yaml")
}

// getDataPath returns the path to the chorus data directory.
// Priority: XDG_DATA_HOME/chorus > ~/.local/share/chorus
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "chorus")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: chorus-hub <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                  Start the hub server")
		fmt.Println("  init                   Create a new config file interactively")
		fmt.Println("  token --subject NAME   Mint a bearer token for the API")
		fmt.Println("  health                 Check hub health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "token":
		err = runToken()
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

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:    %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Archive: %s\n", cfg.Database.Path)

	// Engine wiring
	byName := cfg.Engines.ByName()
	for _, name := range []string{"codex", "claude", "gemini"} {
		ec := byName[name]
		if ec.HistoryURL == "" && ec.Alias == "" {
			continue
		}
		green.Print("    ▶ ")
		fmt.Printf("Engine:  ")
		cyan.Print(name)
		if ec.HistoryURL != "" {
			gray.Printf(" history=%s", ec.HistoryURL)
		}
		if ec.Alias != "" {
			yellow.Printf(" alias=%s", ec.Alias)
		}
		fmt.Println()
	}

	if cfg.Auth.JWTSecret == "" {
		yellow.Print("    ▶ ")
		fmt.Printf("Auth:    disabled\n")
	}

	fmt.Println()

	logger.Info("starting chorus-hub",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"archive", cfg.Database.Path,
	)

	archive, err := store.NewArchive(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer archive.Close()

	backends := map[schema.Engine]history.SessionBackend{}
	aliases := map[schema.Engine]schema.Engine{}
	for name, ec := range byName {
		engine := schema.Engine(name)
		if ec.HistoryURL != "" {
			backends[engine] = history.NewHTTPBackend(ec.HistoryURL, ec.HistoryToken)
		}
		if ec.Alias != "" {
			aliases[schema.Engine(ec.Alias)] = engine
		}
	}

	h, err := hub.New(hub.Config{
		Archive:          archive,
		Backends:         backends,
		EngineAliases:    aliases,
		DedupeTTL:        cfg.Dedupe.TTL,
		DedupeMaxSize:    cfg.Dedupe.MaxSize,
		CompletionWindow: cfg.Session.CompletionWindow,
		ParityDisabled:   cfg.Parity.Disabled,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("creating hub: %w", err)
	}
	defer h.Close()

	var verifier api.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = api.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	} else {
		logger.Warn("auth.jwt_secret is empty, API authentication is disabled")
	}

	srv := api.NewServer(h, archive, verifier, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
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

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
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
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// runToken mints a bearer token against the configured JWT secret so
// operators can call the API without any other tooling.
func runToken() error {
	// Parse args with explicit error handling
	// Supports both "--subject value" and "--subject=value" formats
	var subject string
	ttl := 30 * 24 * time.Hour

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--subject" || arg == "-s":
			if i+1 >= len(args) {
				return fmt.Errorf("--subject requires a value")
			}
			subject = args[i+1]
			i++
		case strings.HasPrefix(arg, "--subject="):
			subject = strings.TrimPrefix(arg, "--subject=")
		case arg == "--ttl":
			if i+1 >= len(args) {
				return fmt.Errorf("--ttl requires a value")
			}
			d, err := time.ParseDuration(args[i+1])
			if err != nil {
				return fmt.Errorf("parsing --ttl: %w", err)
			}
			ttl = d
			i++
		case strings.HasPrefix(arg, "--ttl="):
			d, err := time.ParseDuration(strings.TrimPrefix(arg, "--ttl="))
			if err != nil {
				return fmt.Errorf("parsing --ttl: %w", err)
			}
			ttl = d
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return fmt.Errorf("--subject flag is required")
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt_secret not configured in %s", configPath)
	}

	verifier := api.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	token, err := verifier.Generate(subject, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	expiresAt := time.Now().Add(ttl).UTC()

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "subject %s, expires %s\n", subject, expiresAt.Format("Jan 02, 2006"))
	return nil
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Make HTTP request to health endpoint with context
	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
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

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("chorus-hub configuration setup")
	fmt.Println("==============================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "hub.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "0.0.0.0:8420")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite archive path", defaultDbPath)

	// Authentication
	fmt.Println("\n--- Authentication ---")
	enableAuth := prompt(reader, "Require bearer tokens?", "yes")
	authEnabled := strings.ToLower(enableAuth) == "yes" || strings.ToLower(enableAuth) == "y"

	var jwtSecret string
	if authEnabled {
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret = base64.StdEncoding.EncodeToString(secretBytes)
	}

	// Engine history backends
	fmt.Println("\n--- Engine History Backends ---")
	fmt.Println("Leave a URL empty to skip history restores for that engine.")
	codexURL := prompt(reader, "codex history URL", "")
	claudeURL := prompt(reader, "claude history URL", "")
	geminiURL := prompt(reader, "gemini history URL", "")

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# chorus-hub configuration\n")
	cfg.WriteString("# Generated by chorus-hub init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	if jwtSecret != "" {
		cfg.WriteString("auth:\n")
		cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
		cfg.WriteString("\n")
	}

	cfg.WriteString("engines:\n")
	for _, e := range []struct {
		name string
		url  string
	}{
		{"codex", codexURL},
		{"claude", claudeURL},
		{"gemini", geminiURL},
	} {
		if e.url == "" {
			cfg.WriteString(fmt.Sprintf("  %s: {}\n", e.name))
			continue
		}
		cfg.WriteString(fmt.Sprintf("  %s:\n", e.name))
		cfg.WriteString(fmt.Sprintf("    history_url: \"%s\"\n", e.url))
	}
	cfg.WriteString("\n")

	cfg.WriteString("dedupe:\n")
	cfg.WriteString("  ttl: \"5m\"\n")
	cfg.WriteString("  max_size: 100000\n")
	cfg.WriteString("\n")

	cfg.WriteString("session:\n")
	cfg.WriteString("  completion_window: \"2s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file. The JWT secret lives inside, so keep it private.
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  chorus-hub serve\n")
	if jwtSecret != "" {
		fmt.Println("\nTo mint an API token:")
		fmt.Printf("  chorus-hub token --subject you@example.com\n")
	}

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
