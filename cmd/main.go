// Command uoclient queries the Newcastle Urban Observatory REST API.
//
// Besides one subcommand per API operation it can run the built-in smoke
// checks against the live service and poll a set of entities on a schedule,
// forwarding new readings to stdout, InfluxDB or TimescaleDB.
//
// Usage:
//
//	uoclient [--config file] <command> [flags]
//
// The commands are:
//
//	timeseries  --entity ID --start T --end T [--format json|text|line]
//	recent      --entity ID
//	info        --entity ID
//	entities    [--page N]
//	entity      --id ID
//	feed        --id ID
//	summary
//	check       run the smoke checks (default)
//	poll        [--once] collect readings on the configured schedule
//	config      print the effective configuration
//
// Times are RFC 3339 or unix seconds. Results go to stdout, logs to stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/tejusbharadwaj/urbanobservatory/internal/api"
	"github.com/tejusbharadwaj/urbanobservatory/internal/config"
	"github.com/tejusbharadwaj/urbanobservatory/internal/sink"
	"github.com/tejusbharadwaj/urbanobservatory/internal/smoke"
)

type command struct {
	usage string
	run   func(ctx context.Context, env *environment, args []string) error
}

var commands = map[string]command{
	"timeseries": {"--entity ID --start T --end T [--format json|text|line]", runTimeseries},
	"recent":     {"--entity ID", runRecent},
	"info":       {"--entity ID", runInfo},
	"entities":   {"[--page N]", runEntities},
	"entity":     {"--id ID", runEntity},
	"feed":       {"--id ID", runFeed},
	"summary":    {"", runSummary},
	"check":      {"", runCheck},
	"poll":       {"[--once]", runPoll},
	"config":     {"", runConfig},
}

// environment carries what every command needs.
type environment struct {
	cfg    *config.Config
	logger *logrus.Logger
	out    io.Writer
	errOut io.Writer
}

func (e *environment) client() (*api.Client, error) {
	return api.NewClient(e.cfg.ClientConfig(), e.logger)
}

var errChecksFailed = errors.New("smoke checks failed")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("uoclient", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.SetInterspersed(false)
	configPath := global.String("config", "", "path to YAML config file")
	global.Usage = func() { usage(stderr, global) }

	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	name := "check"
	rest := global.Args()
	if len(rest) > 0 {
		name, rest = rest[0], rest[1:]
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		usage(stderr, global)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	logger, err := newLogger(cfg.Logging, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to configure logging: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &environment{cfg: cfg, logger: logger, out: stdout, errOut: stderr}
	if err := cmd.run(ctx, env, rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		logger.WithError(err).WithField("command", name).Error("Command failed")
		return 1
	}
	return 0
}

func usage(w io.Writer, global *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: uoclient [--config file] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-11s %s\n", name, commands[name].usage)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	global.PrintDefaults()
}

func newLogger(cfg config.LoggingConfig, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger, nil
}

func newFlagSet(env *environment, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.errOut)
	return fs
}

// parseTime accepts RFC 3339 or unix seconds.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q; use RFC3339 or unix seconds", s)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runTimeseries(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "timeseries")
	entity := fs.String("entity", "", "timeseries or entity id")
	startStr := fs.String("start", "", "start of the window")
	endStr := fs.String("end", "", "end of the window")
	format := fs.String("format", sink.FormatJSON, "output format: json, text or line")
	if err := fs.Parse(args); err != nil {
		return err
	}

	start, err := parseTime(*startStr)
	if err != nil {
		return err
	}
	end, err := parseTime(*endStr)
	if err != nil {
		return err
	}

	w, err := sink.NewWriter(env.out, *format, env.cfg.Influx.Measurement)
	if err != nil {
		return err
	}

	client, err := env.client()
	if err != nil {
		return err
	}
	res, err := client.GetTimeseries(ctx, *entity, start, end)
	if err != nil {
		return err
	}

	env.logger.WithFields(logrus.Fields{
		"entity":   *entity,
		"readings": len(res.Readings),
	}).Debug("Fetched timeseries")
	return w.Write(ctx, *entity, res.Readings)
}

func runRecent(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "recent")
	entity := fs.String("entity", "", "timeseries or entity id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := env.client()
	if err != nil {
		return err
	}
	res, err := client.GetRecentTimeseries(ctx, *entity)
	if err != nil {
		return err
	}
	return printJSON(env.out, res)
}

func runInfo(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "info")
	entity := fs.String("entity", "", "timeseries id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := env.client()
	if err != nil {
		return err
	}
	info, err := client.GetTimeseriesInfo(ctx, *entity)
	if err != nil {
		return err
	}
	return printJSON(env.out, info)
}

func runEntities(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "entities")
	page := fs.Int("page", 0, "page number, starting at 0")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := env.client()
	if err != nil {
		return err
	}
	res, err := client.GetEntities(ctx, *page)
	if err != nil {
		return err
	}
	return printJSON(env.out, res)
}

func runEntity(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "entity")
	id := fs.String("id", "", "entity id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := env.client()
	if err != nil {
		return err
	}
	res, err := client.GetEntity(ctx, *id)
	if err != nil {
		return err
	}
	return printJSON(env.out, res)
}

func runFeed(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "feed")
	id := fs.String("id", "", "feed id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := env.client()
	if err != nil {
		return err
	}
	res, err := client.GetFeed(ctx, *id)
	if err != nil {
		return err
	}
	return printJSON(env.out, res)
}

func runSummary(ctx context.Context, env *environment, args []string) error {
	if err := newFlagSet(env, "summary").Parse(args); err != nil {
		return err
	}

	client, err := env.client()
	if err != nil {
		return err
	}
	res, err := client.GetSummary(ctx)
	if err != nil {
		return err
	}
	return printJSON(env.out, res)
}

func runCheck(ctx context.Context, env *environment, args []string) error {
	if err := newFlagSet(env, "check").Parse(args); err != nil {
		return err
	}

	client, err := env.client()
	if err != nil {
		return err
	}

	report := smoke.Run(ctx, client, env.logger, smoke.DefaultChecks())
	if !report.OK() {
		return fmt.Errorf("%w: %d of %d", errChecksFailed, report.Failed(), len(report.Results))
	}
	env.logger.WithField("checks", len(report.Results)).Info("All checks passed")
	return nil
}

func runConfig(_ context.Context, env *environment, args []string) error {
	if err := newFlagSet(env, "config").Parse(args); err != nil {
		return err
	}

	out, err := env.cfg.YAML()
	if err != nil {
		return err
	}
	_, err = env.out.Write(out)
	return err
}
