// Command s4a creates, inspects, and extracts s4a archives.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
)

// command is one subcommand. run receives the arguments after its name.
type command struct {
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = map[string]command{
	"compress":   {"pack a directory into an archive", runCompress},
	"decompress": {"extract files from an archive", runDecompress},
	"cat":        {"write files from an archive to stdout", runCat},
	"ls":         {"list archive entries", runList},
	"verify":     {"check archive layout and content", runVerify},
	"mux":        {"combine an index and blob into one .s4a file", runMux},
	"demux":      {"split a .s4a file into an index and blob", runDemux},
}

// env carries the process streams so commands can be tested in-process.
type env struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches args and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 1
	}
	name := args[0]
	if name == "-h" || name == "--help" || name == "help" {
		usage(stdout)
		return 0
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "s4a: unknown command %q\n\n", name)
		usage(stderr)
		return 1
	}

	e := &env{stdout: stdout, stderr: stderr}
	err := cmd.run(ctx, e, args[1:])
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	default:
		fmt.Fprintf(stderr, "s4a %s: %v\n", name, err)
		return 1
	}
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "usage: s4a <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-11s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "run 's4a <command> -h' for command flags")
}

// newFlagSet returns a FlagSet for the command with the shared logging
// flags registered. Parse errors are returned, not printed twice.
func newFlagSet(e *env, name string) (*flag.FlagSet, *logFlags) {
	fs := flag.NewFlagSet("s4a "+name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	lf := &logFlags{}
	fs.StringVar(&lf.level, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&lf.format, "log-format", "text", "log format: text or json")
	return fs, lf
}

// parse parses args and installs the logger described by the log flags.
func parse(e *env, fs *flag.FlagSet, lf *logFlags, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger, err := lf.logger(e.stderr)
	if err != nil {
		return err
	}
	e.logger = logger
	return nil
}

type logFlags struct {
	level  string
	format string
}

func (lf *logFlags) logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lf.level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", lf.level)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(lf.format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", lf.format)
	}
}

// requireFlag reports a missing required string flag.
func requireFlag(name, value string) error {
	if value == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}
