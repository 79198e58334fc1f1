// ABOUTME: Entry point for smellybot
// ABOUTME: Loads config, opens the store and runs the Matrix bridge; also provides init and migrate

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/FaCsaba/SmellyBot/internal/commands"
	"github.com/FaCsaba/SmellyBot/internal/config"
	"github.com/FaCsaba/SmellyBot/internal/counter"
	"github.com/FaCsaba/SmellyBot/internal/schema"
	"github.com/FaCsaba/SmellyBot/internal/store"
)

const banner = `
                      _ _       _           _
 ___ _ __ ___   ___| | |_   _| |__   ___ | |_
/ __| '_ ' _ \ / _ \ | | | | | '_ \ / _ \| __|
\__ \ | | | | |  __/ | | |_| | |_) | (_) | |_
|___/_| |_| |_|\___|_|_|\__, |_.__/ \___/ \__|
                        |___/
`

func main() {
	var err error
	switch {
	case len(os.Args) > 1 && os.Args[1] == "init":
		err = runInit(os.Stdin)
	case len(os.Args) > 1 && os.Args[1] == "migrate":
		err = runMigrate(context.Background(), os.Args[2:])
	default:
		err = run()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	configPath := config.DefaultPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("Storage:    %s (%s)\n", cfg.Storage.Path, cfg.Storage.Backend)
	green.Print("    ▶ ")
	fmt.Printf("Presence:   %s\n", cfg.Bot.PresenceSource)
	if cfg.Matrix.RecoveryKey != "" {
		green.Print("    ▶ ")
		fmt.Println("Encryption: enabled")
	}
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, flusher, err := openStore(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()

	if flusher != nil && cfg.Storage.FlushInterval > 0 {
		pf := store.NewPeriodicFlusher(flusher, cfg.Storage.FlushInterval, logger)
		done := make(chan struct{})
		go func() {
			defer close(done)
			pf.Run(ctx)
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	machine := counter.New(s, logger)
	admins := make([]schema.UserID, 0, len(cfg.Bot.Admins))
	for _, a := range cfg.Bot.Admins {
		admins = append(admins, schema.UserID(a))
	}
	handler := commands.NewHandler(s, machine, commands.Options{
		Prefix:  cfg.Bot.CommandPrefix,
		Admins:  admins,
		Mention: mention,
	}, logger)

	bridge, err := NewBridge(cfg, machine, handler, logger)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	// Login must happen before crypto setup
	if err := bridge.Login(ctx); err != nil {
		return fmt.Errorf("matrix login: %w", err)
	}

	if cfg.Matrix.RecoveryKey != "" {
		cryptoMgr, err := SetupCrypto(ctx, bridge.matrix, cfg.Matrix.RecoveryKey, config.DataPath(), logger)
		if err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
		defer cryptoMgr.Close()
		bridge.crypto = cryptoMgr
	} else {
		logger.Info("encryption disabled (no recovery key)")
	}

	logger.Info("starting bridge", "user_id", bridge.UserID())
	return bridge.Run(ctx)
}

// openStore opens the configured backend. The returned Flusher is nil for
// backends that are durable on every write without one.
func openStore(cfg config.StorageConfig, logger *slog.Logger) (store.Store, store.Flusher, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	default:
		s, err := store.NewFileStore(cfg.Path, store.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// runMigrate copies the state of a JSON store file into a SQLite database.
// Usage: smellybot migrate <json-path> <sqlite-path>
// The source file is only read. A missing, undecodable or unsupported source
// fails the command.
func runMigrate(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: smellybot migrate <json-path> <sqlite-path>")
	}
	from, to := args[0], args[1]

	info, err := os.Stat(from)
	if err != nil {
		return fmt.Errorf("opening %s: %w", from, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("opening %s: not a regular file", from)
	}

	raw, err := os.ReadFile(from)
	if err != nil {
		return fmt.Errorf("reading %s: %w", from, err)
	}
	st, err := schema.Decode(raw)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", from, err)
	}

	dst, err := store.NewSQLiteStore(to)
	if err != nil {
		return fmt.Errorf("opening %s: %w", to, err)
	}
	defer dst.Close()

	if err := dst.ImportState(ctx, st); err != nil {
		return fmt.Errorf("importing into %s: %w", to, err)
	}

	green := color.New(color.FgGreen)
	green.Printf("    ✓ Migrated %d channels, %d users and %d passwords to %s\n",
		len(st.Channels)+len(st.DecrementChannels), len(st.Users), len(st.Passwords), to)
	return nil
}

func runInit(in io.Reader) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println("    Interactive Setup")
	fmt.Println("    -----------------")
	fmt.Println()

	configPath := config.DefaultPath()
	reader := bufio.NewReader(in)

	prompt := func(label, fallback string) string {
		green.Print("    ▶ ")
		fmt.Print(label)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return fallback
		}
		return answer
	}

	if _, err := os.Stat(configPath); err == nil {
		yellow.Printf("    Config already exists at %s\n", configPath)
		fmt.Print("    Overwrite? [y/N]: ")
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("    Aborted.")
			return nil
		}
		fmt.Println()
	}

	values := initValues{
		Homeserver:  prompt("Matrix homeserver URL [https://matrix.org]: ", "https://matrix.org"),
		Username:    prompt("Matrix username: ", ""),
		Password:    prompt("Matrix password: ", ""),
		RecoveryKey: prompt("Matrix recovery key (optional, for E2EE): ", ""),
		Admin:       prompt("Admin user id (e.g. @you:matrix.org): ", ""),
		StoragePath: prompt("Storage file [db/smelly.db]: ", "db/smelly.db"),
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(values.render()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Println()
	green.Printf("    ✓ Config written to %s\n", configPath)
	fmt.Println()
	fmt.Println("    Next steps:")
	fmt.Println("    1. Invite the bot to your rooms")
	fmt.Println("    2. Run: smellybot")
	fmt.Println("    3. In a room, say !register_smelly_channel")
	fmt.Println()

	return nil
}

// initValues are the answers collected by the init prompt.
type initValues struct {
	Homeserver  string
	Username    string
	Password    string
	RecoveryKey string
	Admin       string
	StoragePath string
}

func (v initValues) render() string {
	var b strings.Builder
	b.WriteString("# smellybot configuration\n# Generated by smellybot init\n\n")
	fmt.Fprintf(&b, "[matrix]\nhomeserver = %q\nusername = %q\npassword = %q\n", v.Homeserver, v.Username, v.Password)
	if v.RecoveryKey != "" {
		fmt.Fprintf(&b, "recovery_key = %q\n", v.RecoveryKey)
	}

	b.WriteString("\n[bot]\ncommand_prefix = \"!\"\n")
	if v.Admin != "" {
		fmt.Fprintf(&b, "admins = [%q]\n", v.Admin)
	} else {
		b.WriteString("admins = []\n")
	}
	b.WriteString("# Only respond in these rooms (empty = all joined rooms)\nallowed_rooms = []\n")
	b.WriteString("# call counts MatrixRTC call joins, membership counts room joins\npresence_source = \"call\"\n")

	fmt.Fprintf(&b, "\n[storage]\nbackend = \"file\"\npath = %q\nflush_interval = \"0s\"\n", v.StoragePath)
	b.WriteString("\n[logging]\nlevel = \"info\"\nformat = \"text\"\n")
	return b.String()
}
