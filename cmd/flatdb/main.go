// Command flatdb inspects and watches a flat-file record store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/lmittmann/tint"
	"github.com/maruel/flatdb/internal/config"
	"github.com/maruel/flatdb/internal/flatdb"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "flatdb: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "usage: flatdb [flags] <command> [table]\n\n")
	fmt.Fprintf(out, "commands:\n")
	fmt.Fprintf(out, "  tables          list the tables\n")
	fmt.Fprintf(out, "  schema <table>  print the table's JSON schema\n")
	fmt.Fprintf(out, "  dump <table>    print the table's records as JSON lines\n")
	fmt.Fprintf(out, "  verify <table>  check every record against the header\n")
	fmt.Fprintf(out, "  watch           report table changes until interrupted\n\n")
	fmt.Fprintf(out, "flags:\n")
	flag.PrintDefaults()
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	delimiter := flag.String("delimiter", flatdb.DefaultDelimiter, "Field delimiter")
	lockTimeout := flag.Duration("lock-timeout", flatdb.DefaultLockTimeout, "Maximum wait for a table lock; negative waits forever")
	location := flag.String("location", "", "IANA time zone for dates (default UTC)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = usage
	flag.Parse()

	if *version {
		printVersion()
		return nil
	}
	if flag.NArg() == 0 {
		flag.Usage()
		return errors.New("missing command")
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	// Flags override the file only when explicitly set.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if set["data-dir"] || *configPath == "" {
		cfg.DataDir = *dataDir
	}
	if set["delimiter"] {
		cfg.Delimiter = *delimiter
	}
	if set["lock-timeout"] {
		cfg.LockTimeout = config.Duration(*lockTimeout)
	}
	if set["location"] {
		cfg.Location = *location
	}
	if set["log-level"] || *configPath == "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	ll := &slog.LevelVar{}
	ll.Set(level)
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:       ll,
		TimeFormat:  "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:     !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: dropEmpty,
	}))
	slog.SetDefault(logger)

	opts, err := cfg.StoreOptions(logger)
	if err != nil {
		return err
	}
	db, err := flatdb.New(cfg.DataDir, opts)
	if err != nil {
		return err
	}
	return run(ctx, db, flag.Args(), os.Stdout)
}

// dropEmpty removes zero-valued attributes from log records.
func dropEmpty(_ []string, a slog.Attr) slog.Attr {
	skip := false
	switch t := a.Value.Any().(type) {
	case string:
		skip = t == ""
	case bool:
		skip = !t
	case uint64:
		skip = t == 0
	case int64:
		skip = t == 0
	case float64:
		skip = t == 0
	case time.Time:
		skip = t.IsZero()
	case time.Duration:
		skip = t == 0
	case nil:
		skip = true
	}
	if skip {
		return slog.Attr{}
	}
	return a
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("flatdb %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
