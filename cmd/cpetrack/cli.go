package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/cpetrack/internal/config"
	"github.com/hpungsan/cpetrack/internal/entry"
	"github.com/hpungsan/cpetrack/internal/errors"
	"github.com/hpungsan/cpetrack/internal/inbox"
	"github.com/hpungsan/cpetrack/internal/logging"
	"github.com/hpungsan/cpetrack/internal/metrics"
	"github.com/hpungsan/cpetrack/internal/ops"
	"github.com/hpungsan/cpetrack/internal/web"
)

// deps are the services shared by every command. It is nil for --help and --version.
type deps struct {
	baseDir string
	db      *sql.DB
	cfg     *config.Config
	x       *ops.Extraction
	metrics *metrics.Manager
	log     *logging.Logger
}

// stdout and stdin are swapped in tests.
var (
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(d *deps) *cli.App {
	app := &cli.App{
		Name:    "cpetrack",
		Usage:   "CPE credit tracker and certificate extractor",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", EnvVars: []string{dirEnv}, Usage: "Data directory (default: ~/.cpetrack)"},
		},
		Commands: []*cli.Command{
			addCmd(d),
			getCmd(d),
			updateCmd(d),
			deleteCmd(d),
			listCmd(d),
			purgeCmd(d),
			clearCmd(d),
			extractCmd(d),
			ingestCmd(d),
			progressCmd(d),
			reportCmd(d),
			exportCmd(d),
			importCmd(d),
			watchCmd(d),
			serveCmd(d),
		},
	}
	// Errors are returned to main instead of exiting inside Run.
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// entryFlags are the editable entry fields shared by add, update and ingest.
func entryFlags(required bool) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "date", Usage: "Completion date (YYYY-MM-DD)"},
		&cli.Float64Flag{Name: "hours", Aliases: []string{"H"}, Required: required, Usage: "Credit hours"},
		&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Required: required, Usage: "Ethics|Technical|Professional Skills|Business|Other"},
		&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Required: required, Usage: "Course or event description"},
	}
}

// addCmd creates the add command.
func addCmd(d *deps) *cli.Command {
	flags := entryFlags(true)
	flags = append(flags, &cli.StringFlag{Name: "source-file", Usage: "Certificate file the entry came from"})
	return &cli.Command{
		Name:  "add",
		Usage: "Add a CPE entry",
		Flags: flags,
		Action: func(c *cli.Context) error {
			date := c.String("date")
			if date == "" {
				date = time.Now().Format(entry.DateLayout)
			}
			input := ops.AddInput{
				Date:        date,
				Hours:       c.Float64("hours"),
				Category:    c.String("category"),
				Description: c.String("description"),
				SourceFile:  c.String("source-file"),
			}
			if input.SourceFile != "" {
				input.Source = entry.SourceCertificate
			}

			output, err := ops.Add(c.Context, d.db, d.cfg, input)
			if err != nil {
				return outputError(err)
			}
			d.metrics.RecordEntryAdded(string(output.Entry.Source))

			return outputJSON(output)
		},
	}
}

// getCmd creates the get command.
func getCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Get an entry by ID",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted entries"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Get(c.Context, d.db, ops.GetInput{
				ID:             c.Args().First(),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// updateCmd creates the update command. Only flags that are set change.
func updateCmd(d *deps) *cli.Command {
	flags := entryFlags(false)
	flags = append(flags, &cli.StringFlag{Name: "source-file", Usage: "Certificate file the entry came from"})
	return &cli.Command{
		Name:      "update",
		Usage:     "Update an existing entry",
		ArgsUsage: "<id>",
		Flags:     flags,
		Action: func(c *cli.Context) error {
			input := ops.UpdateInput{ID: c.Args().First()}
			input.Date, input.Hours, input.Category, input.Description = overrides(c)
			if c.IsSet("source-file") {
				v := c.String("source-file")
				input.SourceFile = &v
			}

			output, err := ops.Update(c.Context, d.db, d.cfg, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Soft-delete an entry",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Delete(c.Context, d.db, ops.DeleteInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List entries, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "year", Aliases: []string{"y"}, Usage: "Filter by calendar year"},
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Filter by category"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(c.Context, d.db, ops.ListInput{
				Year:     c.Int("year"),
				Category: c.String("category"),
				Limit:    c.Int("limit"),
				Offset:   c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete soft-deleted entries",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge if deleted more than N days ago (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{}
			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = &days
			}

			output, err := ops.Purge(c.Context, d.db, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// clearCmd creates the clear command.
func clearCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Soft-delete every entry",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Usage: "Confirm clearing all entries"},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("yes") {
				return outputError(errors.NewInvalidRequest("clear removes every entry; pass --yes to confirm"))
			}
			output, err := ops.Clear(c.Context, d.db)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// extractCmd creates the extract command. "-" (or no argument with piped
// stdin) extracts from text on stdin.
func extractCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "Extract CPE fields from a certificate without storing it",
		ArgsUsage: "<file|->",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "policy", Aliases: []string{"p"}, Usage: "Acceptance policy: strict|lenient (default from config)"},
			&cli.BoolFlag{Name: "explain", Usage: "Include the per-field match trace"},
		},
		Action: func(c *cli.Context) error {
			x, err := d.x.ForMode(d.cfg, c.String("policy"))
			if err != nil {
				return outputError(err)
			}

			arg := c.Args().First()
			var output *ops.ExtractOutput
			if arg == "-" || (arg == "" && stdinHasData()) {
				text, rerr := readStdin(x.MaxBytes)
				if rerr != nil {
					return outputError(rerr)
				}
				output, err = x.ExtractText(c.Context, ops.ExtractTextInput{Text: text, Explain: c.Bool("explain")})
			} else {
				if arg == "" {
					return outputError(errors.NewInvalidRequest("a certificate file or - for stdin is required"))
				}
				output, err = x.ExtractFile(c.Context, ops.ExtractFileInput{Path: arg, Explain: c.Bool("explain")})
			}
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// ingestCmd creates the ingest command.
func ingestCmd(d *deps) *cli.Command {
	flags := entryFlags(false)
	flags = append(flags, &cli.StringFlag{Name: "policy", Aliases: []string{"p"}, Usage: "Acceptance policy: strict|lenient (default from config)"})
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Extract a certificate and store it as an entry (flags override extracted values)",
		ArgsUsage: "<file>",
		Flags:     flags,
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return outputError(errors.NewInvalidRequest("a certificate file is required"))
			}
			x, err := d.x.ForMode(d.cfg, c.String("policy"))
			if err != nil {
				return outputError(err)
			}

			input := ops.IngestInput{Path: path}
			input.Date, input.Hours, input.Category, input.Description = overrides(c)

			output, err := x.Ingest(c.Context, d.db, d.cfg, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// progressCmd creates the progress command.
func progressCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "progress",
		Usage: "Show progress toward the reporting requirement",
		Action: func(c *cli.Context) error {
			output, err := ops.Progress(c.Context, d.db, d.cfg, ops.ProgressInput{})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// reportCmd creates the report command. It prints Markdown, not JSON.
func reportCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Print a Markdown progress report",
		Action: func(c *cli.Context) error {
			output, err := ops.Report(c.Context, d.db, d.cfg, ops.ReportInput{})
			if err != nil {
				return outputError(err)
			}
			_, err = io.WriteString(stdout, output.Markdown)
			return err
		},
	}
}

// exportCmd creates the export command.
func exportCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export entries to a JSONL or XLSX file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.cpetrack/exports/entries-<timestamp>.<format>)"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "jsonl|xlsx (default: from path, else jsonl)"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted entries (jsonl only)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, d.db, d.cfg, ops.ExportInput{
				Path:           c.String("path"),
				Format:         ops.ExportFormat(c.String("format")),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import entries from a JSONL export",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|replace|rename"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(c.Context, d.db, d.cfg, ops.ImportInput{
				Path: c.String("path"),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// watchCmd creates the watch command. Each handled file is printed as one
// JSON line.
func watchCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Ingest certificates dropped into the inbox directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "inbox", Aliases: []string{"i"}, Usage: "Inbox directory (default: inbox_dir from config)"},
			&cli.BoolFlag{Name: "once", Usage: "Process files already in the inbox and exit"},
		},
		Action: func(c *cli.Context) error {
			dir := c.String("inbox")
			if dir == "" {
				dir = d.cfg.ResolveInbox(d.baseDir)
			}
			w := inbox.New(dir, d.db, d.cfg, d.x, d.log)

			if c.Bool("once") {
				results, err := w.Scan(c.Context)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(results)
			}

			enc := json.NewEncoder(stdout)
			w.OnResult = func(r inbox.Result) { _ = enc.Encode(r) }

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := w.Run(ctx); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(web.Deps{
				DB:         d.db,
				Config:     d.cfg,
				Extraction: d.x,
				Metrics:    d.metrics,
				Logger:     d.log,
			}, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return web.Run(ctx, srv, d.log)
		},
	}
}

// Helper functions

// overrides returns the entry fields whose flags were set.
func overrides(c *cli.Context) (date *string, hours *float64, category, description *string) {
	if c.IsSet("date") {
		v := c.String("date")
		date = &v
	}
	if c.IsSet("hours") {
		v := c.Float64("hours")
		hours = &v
	}
	if c.IsSet("category") {
		v := c.String("category")
		category = &v
	}
	if c.IsSet("description") {
		v := c.String("description")
		description = &v
	}
	return date, hours, category, description
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI. Errors with details, such as the
// decoded text of a certificate that could not be extracted, are also
// written to stdout as JSON.
func outputError(err error) error {
	cErr, ok := errors.As(err)
	if !ok {
		return cli.Exit(err.Error(), 1)
	}
	if cErr.Details != nil && cErr.Code != errors.ErrInternal {
		_ = outputJSON(map[string]any{"error": map[string]any{
			"code":    string(cErr.Code),
			"message": cErr.Message,
			"details": cErr.Details,
		}})
	}
	return cli.Exit(fmt.Sprintf("[%s] %s", cErr.Code, cErr.Message), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	f, ok := stdin.(*os.File)
	if !ok {
		return true
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads stdin, refusing more than max bytes when max > 0.
func readStdin(max int64) (string, error) {
	r := stdin
	if max > 0 {
		r = io.LimitReader(stdin, max+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if max > 0 && int64(len(data)) > max {
		return "", errors.NewFileTooLarge(max, int64(len(data)))
	}
	return strings.TrimSpace(string(data)), nil
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
