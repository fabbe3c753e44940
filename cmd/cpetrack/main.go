package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/db"
	"github.com/hpungsan/cpetrack/internal/logging"
	"github.com/hpungsan/cpetrack/internal/mcp"
	"github.com/hpungsan/cpetrack/internal/metrics"
	"github.com/hpungsan/cpetrack/internal/ops"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// dirEnv overrides the data directory when --dir is not given.
const dirEnv = "CPETRACK_DIR"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"add": true, "get": true, "update": true, "delete": true,
	"list": true, "purge": true, "clear": true,
	"extract": true, "ingest": true, "progress": true, "report": true,
	"export": true, "import": true, "watch": true, "serve": true,
	"help": true,
}

// commandArg returns the first argument that is not the global --dir flag
// or its value.
func commandArg(args []string) string {
	for i := 1; i < len(args); i++ {
		a := args[i]
		if a == "--dir" {
			i++
			continue
		}
		if strings.HasPrefix(a, "--dir=") {
			continue
		}
		return a
	}
	return ""
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	arg := commandArg(args)
	if arg == "" {
		return false
	}
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	arg := commandArg(args)
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// resolveBaseDir picks the data directory: --dir, then CPETRACK_DIR, then ~/.cpetrack.
func resolveBaseDir(args []string) (string, error) {
	for i := 1; i < len(args); i++ {
		if args[i] == "--dir" && i+1 < len(args) {
			return args[i+1], nil
		}
		if v, ok := strings.CutPrefix(args[i], "--dir="); ok {
			return v, nil
		}
	}
	if v := os.Getenv(dirEnv); v != "" {
		return v, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ops.DataDirName), nil
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
    ___ ___ ___   _                _
   / __| _ \ __| | |_ _ _ __ _ __| |__
  | (__|  _/ _|  |  _| '_/ _' / _| / /
   \___|_| |___|  \__|_| \__,_\__|_\_\

  CPE credit tracker and certificate extractor

  Usage: cpetrack <command> [options]
         cpetrack --help

  MCP server mode requires piped input.`)
}

func main() {
	args := os.Args

	if len(args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Help and version need no database.
	if isHelpOrVersion(args) {
		app := newCLIApp(nil)
		if err := app.Run(args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	baseDir, err := resolveBaseDir(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	database, err := db.Init(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	m := metrics.New()
	x, err := ops.NewExtraction(cfg, m, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.Warn(context.Background(), "unknown tools in disabled_tools", zap.Strings("tools", unknown))
	}

	d := &deps{
		baseDir: baseDir,
		db:      database,
		cfg:     cfg,
		x:       x,
		metrics: m,
		log:     log,
	}

	if isCLIMode(args) {
		app := newCLIApp(d)
		if err := app.Run(args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument on a terminal is a typo, not an MCP client.
	if commandArg(args) != "" && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", commandArg(args))
		fmt.Fprintf(os.Stderr, "Run 'cpetrack --help' for usage.\n")
		os.Exit(1)
	}

	log.Debug(context.Background(), "starting MCP server", zap.String("version", Version))
	if err := mcp.Run(database, cfg, x, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
