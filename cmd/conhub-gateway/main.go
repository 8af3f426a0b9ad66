// ABOUTME: Entry point for the conhub-gateway MCP gateway server
// ABOUTME: Terminates agent WebSocket sessions and brokers the backend engine

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/conhub/mcp-gateway/internal/auth"
	"github.com/conhub/mcp-gateway/internal/config"
	"github.com/conhub/mcp-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                     _             _
  ___ ___   _ __  | |__   _   _ | |__
 / __| / _ \ | '_ \ | '_ \ | | | || '_ \
| (__ | (_) || | | || | | || |_| || |_) |
 \___| \___/ |_| |_||_| |_| \__,_||_.__/
`

// getConfigPath returns the path to the gateway config file.
// Priority: CONHUB_CONFIG env var > XDG_CONFIG_HOME/conhub/gateway.yaml > ~/.config/conhub/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CONHUB_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "conhub", "gateway.yaml")
}

// getDataPath returns the path to the conhub data directory.
// Priority: XDG_DATA_HOME/conhub > ~/.local/share/conhub
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "conhub")
}

func main() {
	// No subcommand means serve.
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch command {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "token":
		err = runToken()
	case "health":
		err = runHealth(ctx)
	case "sessions":
		err = runSessions(ctx)
	case "version":
		fmt.Printf("conhub-gateway %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: conhub-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve              Start the gateway server (default)")
	fmt.Println("  init               Create a new config file interactively")
	fmt.Println("  token --user NAME  Mint a client JWT (creates config if missing)")
	fmt.Println("  health [url]       Check gateway health")
	fmt.Println("  sessions           List active sessions (requires an admin token)")
	fmt.Println("  version            Print the version")
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
		return fmt.Errorf("loading config: %w (run \"conhub-gateway init\" to create one)", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Listen:  %s\n", cfg.Server.Addr())
	green.Print("    ▶ ")
	if cfg.Engine.Mode == config.EngineModeSubprocess {
		fmt.Printf("Engine:  subprocess (%s)\n", cfg.Engine.Command)
	} else {
		fmt.Printf("Engine:  http (%s)\n", cfg.Engine.URL)
	}
	green.Print("    ▶ ")
	if cfg.Store.Path != "" {
		fmt.Printf("Store:   %s\n", cfg.Store.Path)
	} else {
		fmt.Printf("Store:   disabled\n")
	}

	if cfg.Server.Debug {
		yellow.Print("    ▶ ")
		fmt.Println("Debug:   anonymous connections allowed")
	}

	fmt.Println()

	logger.Info("starting conhub-gateway",
		"config", configPath,
		"addr", cfg.Server.Addr(),
		"engine_mode", cfg.Engine.Mode,
	)

	// Create and run gateway
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
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
			out:   os.Stdout,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	out    io.Writer
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
	fmt.Fprint(h.out, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		out:    h.out,
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
		out:    h.out,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	// An explicit base URL wins; otherwise the configured listen address.
	var url string
	if len(os.Args) > 2 {
		url = strings.TrimRight(os.Args[2], "/") + "/health"
	} else {
		cfg, err := config.Load(getConfigPath())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		url = fmt.Sprintf("http://%s/health", cfg.Server.Addr())
	}

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

func runSessions(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// The sessions endpoint requires an admin token. Read the one minted
	// by "conhub-gateway token" from the config directory.
	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	token, err := os.ReadFile(tokenPath)
	if err != nil {
		return fmt.Errorf("reading token file: %w (mint one with \"conhub-gateway token --user NAME --admin\")", err)
	}

	url := fmt.Sprintf("http://%s/admin/sessions", cfg.Server.Addr())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(string(token)))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("sessions request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sessions request failed: status %d", resp.StatusCode)
	}

	// Read response body
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	fmt.Println(string(body))
	return nil
}

// runToken mints a client JWT signed with the gateway's secret:
// 1. Creates a config file with a random JWT secret (if not exists)
// 2. Generates a token for the given user, optionally with the admin role
// 3. Saves the token next to the config for CLI commands to read
//
// This is a one-command setup: conhub-gateway token --user "you" --admin
func runToken() error {
	// Parse args with explicit error handling
	// Supports both "--user value" and "--user=value" formats
	var userID string
	var admin bool
	var ttlStr string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--user" || arg == "-u":
			if i+1 >= len(args) {
				return fmt.Errorf("--user requires a value")
			}
			userID = args[i+1]
			i++
		case strings.HasPrefix(arg, "--user="):
			userID = strings.TrimPrefix(arg, "--user=")
		case strings.HasPrefix(arg, "-u="):
			userID = strings.TrimPrefix(arg, "-u=")
		case arg == "--admin":
			admin = true
		case arg == "--ttl":
			if i+1 >= len(args) {
				return fmt.Errorf("--ttl requires a value")
			}
			ttlStr = args[i+1]
			i++
		case strings.HasPrefix(arg, "--ttl="):
			ttlStr = strings.TrimPrefix(arg, "--ttl=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	if userID == "" {
		return fmt.Errorf("--user flag is required")
	}

	// Validate user ID
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user cannot be empty or whitespace only")
	}
	if len(userID) > 100 {
		return fmt.Errorf("user exceeds maximum length of 100 characters")
	}

	// Default TTL: 30 days
	ttl := 30 * 24 * time.Hour
	if ttlStr != "" {
		d, err := time.ParseDuration(ttlStr)
		if err != nil {
			return fmt.Errorf("parsing --ttl: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("--ttl must be positive")
		}
		ttl = d
	}

	configPath := getConfigPath()

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	// Check if config exists, create if not
	var cfg *config.Config

	if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
		jwtSecret, err := randomSecret()
		if err != nil {
			return err
		}

		dataPath := getDataPath()
		dbPath := filepath.Join(dataPath, "gateway.db")

		// Create config directory
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		// Create data directory
		if err := os.MkdirAll(dataPath, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		// Write config file
		configContent := fmt.Sprintf(`# conhub-gateway configuration
# Generated by conhub-gateway token

server:
  host: "0.0.0.0"
  port: 8095

engine:
  mode: "subprocess"
  command: "./conhub-engine"

auth:
  service_url: "http://localhost:3001"
  jwt_secret: "%s"

store:
  path: "%s"

logging:
  level: "info"
  format: "text"
`, jwtSecret, dbPath)

		if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}

		green.Printf("  ✓ Created config: %s\n", configPath)

		// Load the config we just created
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		// Config exists, load it
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// Check JWT secret is configured. Load accepts an empty secret
		// when debug mode is on, but minting still needs one.
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("jwt_secret not configured in %s (required to mint tokens)", configPath)
		}

		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	var roles []string
	if admin {
		roles = []string{"admin"}
	}

	// Generate JWT token
	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	expiresAt := time.Now().Add(ttl).UTC()

	token, err := verifier.Generate(userID, roles, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	// Save token to file for CLI commands to read
	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green.Printf("  ✓ Saved token: %s\n", tokenPath)

	// Print results
	fmt.Println()
	cyan.Println("  Token")
	cyan.Println("  -----")
	fmt.Printf("  User:    %s\n", userID)
	if admin {
		fmt.Printf("  Roles:   admin\n")
	} else {
		fmt.Printf("  Roles:   (none)\n")
	}
	fmt.Printf("  Expires: %s\n", expiresAt.Format("Jan 02, 2006"))
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Println("    conhub-gateway serve       # start the gateway")
	fmt.Println("    conhub-gateway sessions    # list active sessions")
	fmt.Println()

	return nil
}

// randomSecret returns a fresh base64-encoded 256-bit JWT secret.
func randomSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("conhub-gateway configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "gateway.db")

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
	host := prompt(reader, "Listen host", "0.0.0.0")
	portStr := prompt(reader, "Listen port", "8095")
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port: %s", portStr)
	}

	// Engine
	fmt.Println("\n--- Engine Configuration ---")
	mode := strings.ToLower(prompt(reader, "Engine mode (subprocess/http)", config.EngineModeSubprocess))
	var engineCommand, engineURL string
	switch mode {
	case config.EngineModeSubprocess:
		engineCommand = prompt(reader, "Engine command", "./conhub-engine")
	case config.EngineModeHTTP:
		engineURL = prompt(reader, "Engine URL", "http://localhost:3004")
	default:
		return fmt.Errorf("invalid engine mode: %s", mode)
	}

	// Auth
	fmt.Println("\n--- Auth Configuration ---")
	serviceURL := prompt(reader, "Identity service URL", "http://localhost:3001")
	jwtSecret := prompt(reader, "JWT secret (leave empty to generate)", "")
	if jwtSecret == "" {
		jwtSecret, err = randomSecret()
		if err != nil {
			return err
		}
		fmt.Println("Generated a random JWT secret.")
	}

	// Store
	fmt.Println("\n--- Store Configuration ---")
	storePath := prompt(reader, "SQLite audit store path ('none' to disable)", defaultDbPath)
	if strings.EqualFold(storePath, "none") {
		storePath = ""
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "json")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# conhub-gateway configuration\n")
	cfg.WriteString("# Generated by conhub-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  host: \"%s\"\n", host))
	cfg.WriteString(fmt.Sprintf("  port: %d\n", port))
	cfg.WriteString("\n")

	cfg.WriteString("engine:\n")
	cfg.WriteString(fmt.Sprintf("  mode: \"%s\"\n", mode))
	if engineCommand != "" {
		cfg.WriteString(fmt.Sprintf("  command: \"%s\"\n", engineCommand))
	}
	if engineURL != "" {
		cfg.WriteString(fmt.Sprintf("  url: \"%s\"\n", engineURL))
	}
	cfg.WriteString("  request_timeout: \"30s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  service_url: \"%s\"\n", serviceURL))
	cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
	cfg.WriteString("\n")

	if storePath != "" {
		cfg.WriteString("store:\n")
		cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", storePath))
		cfg.WriteString("\n")
	}

	cfg.WriteString("sessions:\n")
	cfg.WriteString("  max_clients: 100\n")
	cfg.WriteString("  idle_timeout: \"60m\"\n")
	cfg.WriteString("  sweep_interval: \"60s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("limits:\n")
	cfg.WriteString("  rate_per_minute: 60\n")
	cfg.WriteString("  burst: 10\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file 0600 since it carries the JWT secret
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	if storePath != "" {
		dataDir := filepath.Dir(storePath)
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		fmt.Printf("\nConfig written to %s\n", outputFile)
		fmt.Printf("Data directory: %s\n", dataDir)
	} else {
		fmt.Printf("\nConfig written to %s\n", outputFile)
	}

	fmt.Println("\nTo start the server:")
	fmt.Printf("  conhub-gateway serve\n")

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
