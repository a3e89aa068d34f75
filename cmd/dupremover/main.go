package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/luhtaf/dupremover/internal/config"
	"github.com/luhtaf/dupremover/internal/dedupe"
	"github.com/luhtaf/dupremover/internal/log"
	"github.com/luhtaf/dupremover/internal/report"
	"github.com/luhtaf/dupremover/internal/ui"
	"github.com/luhtaf/dupremover/internal/uploader"
	"github.com/luhtaf/dupremover/internal/walker"
)

const (
	exitOK       = 0
	exitFatal    = 1
	exitDeclined = 2
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// execute runs the root command and maps its error to an exit code.
func execute(args []string, stdin *os.File, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdin, stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	defer log.Sync()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.code == exitDeclined {
			fmt.Fprintln(stdout, "Exiting...")
			return exitDeclined
		}
		err = ee.err
	}
	log.L.Errorw("fatal", "event", "fatal", "component", log.Component, "err", err)
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitFatal
}

func newRootCmd(stdin *os.File, stdout, stderr io.Writer) *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "dupremover [flags] <path>",
		Short: "Recursively remove duplicate files under a directory",
		Long: `dupremover walks a directory tree, fingerprints every regular file with
SHA-256 and deletes each file whose content was already seen earlier in the
walk. The first copy of each content is kept.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Scan.Root = args[0]
			}
			if cfg.Scan.Root == "" {
				return errors.New("a path to clean is required")
			}
			level := cfg.Logging.Level
			if cfg.Output.Verbose {
				level = "debug"
			}
			if err := log.InitWithWriter(stderr, level, cfg.Logging.Format); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, stdin, stdout, stderr)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfgPath, "config", os.Getenv("DUPREMOVER_CONFIG"), "path to YAML config file")
	f.BoolP("no-inputs", "n", false, "skip all inputs, assuming the default answer")
	f.BoolP("quiet", "q", false, "do not write the duplicates log")
	f.StringP("output", "o", "", "path of the duplicates log (default "+config.DefaultLogName+")")
	f.BoolP("verbose", "v", false, "print every scanned file and enable debug logging")
	f.Bool("progress", false, "show a progress bar")
	f.Bool("no-color", false, "disable colored output")
	f.Int("workers", 1, "number of files hashed concurrently")
	f.Int("chunk-size", 0, "read buffer size in bytes for hashing (0 uses the default)")
	f.Bool("dry-run", false, "report duplicates without deleting them")
	f.String("log-level", "", "debug|info|warn|error")
	f.String("log-format", "", "json|console")
	f.String("journal", "", "record removals in this SQLite database")

	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd
}

func run(parent context.Context, cfg config.Config, stdin *os.File, stdout, stderr io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	root, err := filepath.Abs(cfg.Scan.Root)
	if err != nil {
		return err
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	if err := walker.ValidateRoot(root); err != nil {
		return err
	}

	ui.Banner(stdout, root, cfg.Output.NoColor)
	if !cfg.Output.NoInputs {
		if err := ui.Confirm(stdin, stdout); err != nil {
			if errors.Is(err, ui.ErrDeclined) {
				return &exitError{code: exitDeclined}
			}
			return err
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	loc := config.ResolveLogPath(cfg.Output, cwd)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	// Sinks outlive a cancelled scan so they can record how far it got.
	sinkCtx := context.WithoutCancel(ctx)

	reporters := []dedupe.Reporter{
		report.NewLogger(log.L),
		report.NewConsole(stdout, report.ConsoleOptions{Verbose: cfg.Output.Verbose, NoColor: cfg.Output.NoColor}),
	}

	// The tool's own outputs may live under root; keep them out of the scan.
	var exclude []string
	var dupLog *report.DuplicatesLog
	display := ""
	if !cfg.Output.Quiet {
		dupLog, err = report.CreateDuplicatesLog(loc.Path)
		if err != nil {
			return fmt.Errorf("create duplicates log: %w", err)
		}
		reporters = append(reporters, dupLog)
		exclude = append(exclude, loc.Path)
		display = loc.Display
	}

	var journal *dedupe.Journal
	if cfg.Journal.Enabled {
		journal, err = dedupe.OpenJournal(cfg.Journal.SQLitePath)
		if err != nil {
			closeLog(dupLog)
			return fmt.Errorf("open journal: %w", err)
		}
		if n, err := journal.GC(sinkCtx, cfg.Journal.RetentionDays); err != nil {
			log.L.Warnw("journal_gc_failed", "event", "journal_gc_failed", "component", log.Component, "err", err)
		} else if n > 0 {
			log.L.Infow("journal_gc", "event", "journal_gc", "component", log.Component, "removed", n)
		}
		reporters = append(reporters, report.NewJournal(sinkCtx, journal))
		exclude = append(exclude, journalFiles(cfg.Journal.SQLitePath)...)
	}

	opts := []dedupe.Option{
		dedupe.WithChunkSize(cfg.Scan.ChunkSize),
		dedupe.WithWorkers(cfg.Scan.Workers),
		dedupe.WithDryRun(cfg.Scan.DryRun),
		dedupe.WithExclude(exclude...),
	}
	if cfg.Output.Progress {
		total, err := walker.Count(root, exclude...)
		if err != nil {
			log.L.Debugw("count_failed", "event", "count_failed", "component", log.Component, "err", err)
		}
		opts = append(opts, dedupe.WithExpectedTotal(total))
		reporters = append(reporters, report.NewProgress(stderr, total))
	}

	ui.Starting(stdout, display)

	eng := dedupe.New(opts...)
	start := time.Now()
	st, runErr := eng.Run(ctx, root, report.Multi(reporters...))
	log.L.Debugw("scan_duration", "event", "scan_duration", "component", log.Component,
		"scan_id", eng.ScanID(), "duration_ms", time.Since(start).Milliseconds())

	closeLog(dupLog)
	if journal != nil {
		if err := journal.Close(); err != nil {
			log.L.Warnw("journal_close_failed", "event", "journal_close_failed", "component", log.Component, "err", err)
		}
	}

	if runErr == nil && cfg.S3.Enabled {
		artifacts := make([]uploader.Artifact, 0, 2)
		if dupLog != nil {
			artifacts = append(artifacts, uploader.Artifact{Path: loc.Path, Kind: "duplicates_log"})
		}
		if journal != nil {
			artifacts = append(artifacts, uploader.Artifact{Path: cfg.Journal.SQLitePath, Kind: "journal"})
		}
		uploadArtifacts(sinkCtx, cfg.S3, eng.ScanID(), root, artifacts)
	}

	if runErr != nil {
		return runErr
	}
	log.L.Infow("done", "event", "done", "component", log.Component,
		"scan_id", eng.ScanID(), "removed", st.DuplicatesRemoved, "failures", st.HashFailures+st.DeleteFailures)
	return nil
}

// journalFiles lists the SQLite database at path and its side files,
// spelled the way the walker yields them.
func journalFiles(path string) []string {
	p, err := filepath.Abs(path)
	if err != nil {
		return nil
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(p)); err == nil {
		p = filepath.Join(dir, filepath.Base(p))
	}
	return []string{p, p + "-wal", p + "-shm", p + "-journal"}
}

func closeLog(d *report.DuplicatesLog) {
	if d == nil {
		return
	}
	if err := d.Close(); err != nil {
		log.L.Warnw("duplicates_log_close_failed", "event", "duplicates_log_close_failed",
			"component", log.Component, "path", d.Path(), "err", err)
	}
}

// uploadArtifacts ships run artifacts to object storage. Failures are
// logged; the clean itself already succeeded.
func uploadArtifacts(ctx context.Context, cfg config.S3Cfg, scanID, root string, artifacts []uploader.Artifact) {
	if len(artifacts) == 0 {
		return
	}
	u, err := uploader.New(cfg)
	if err != nil {
		log.L.Warnw("uploader", "event", "upload_failed", "component", log.Component, "err", err)
		return
	}
	if err := u.EnsureBucket(ctx); err != nil {
		log.L.Warnw("ensure bucket", "event", "upload_failed", "component", log.Component, "bucket", cfg.Bucket, "err", err)
		return
	}
	now := time.Now()
	for _, a := range artifacts {
		a.ScanID = scanID
		a.Root = root
		a.TS = now
		if _, err := u.UploadWithRetry(ctx, a); err != nil {
			log.L.Warnw("upload_failed", "event", "upload_failed", "component", log.Component, "kind", a.Kind, "err", err)
		}
	}
}
