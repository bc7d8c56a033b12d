package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"twimngr/config"
	"twimngr/core"
	"twimngr/devices/tca9548a"
)

var (
	configPath = flag.String("config", "", "YAML configuration file (default: simulated bus)")
	backend    = flag.String("backend", "", "Override bus.backend (sim, periph, bridge)")
	verbose    = flag.Bool("verbose", false, "Enable verbose output")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	log := newLogger(os.Stderr, *verbose)

	cfg, err := loadConfig(*configPath, *backend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log, os.Stdout, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "Usage: twimngr [flags] <command> [args]")
	fmt.Fprintln(out, "\nCommands:")
	fmt.Fprintln(out, "  scan                    - Probe 0x08-0x77 with a one byte read")
	fmt.Fprintln(out, "  read ADDR REG N         - Read N bytes starting at REG")
	fmt.Fprintln(out, "  write ADDR REG BYTES... - Write BYTES starting at REG")
	fmt.Fprintln(out, "  temp                    - Read every configured thermometer once")
	fmt.Fprintln(out, "  watch [-interval D] [-count N]")
	fmt.Fprintln(out, "                          - Sample the thermometers at a fixed rate")
	fmt.Fprintln(out, "  leds R G B              - Set the LP5024 bank color")
	fmt.Fprintln(out, "  trace COMMAND...        - Run COMMAND, then dump the dispatcher trace")
	fmt.Fprintln(out, "  bridge-serve            - Answer bridge requests from the serial port on the local bus")
	fmt.Fprintln(out, "\nFlags:")
	flag.PrintDefaults()
}

// newLogger builds the process logger and routes driver debug output into it.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))

	core.SetDebugWriter(func(msg string) {
		log.Debug(strings.TrimSpace(msg), "source", "firmware")
	})
	core.SetDebugEnabled(verbose)
	return log
}

func loadConfig(path, backendOverride string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if backendOverride != "" {
		cfg.Bus.Backend = backendOverride
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// app is one command invocation against an initialized manager.
type app struct {
	cfg  *config.Config
	log  *slog.Logger
	out  io.Writer
	mngr *core.Manager
	mux  *tca9548a.Device // nil without a mux
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, out io.Writer, args []string) error {
	if args[0] == "bridge-serve" {
		return serveBridge(ctx, cfg, log)
	}

	bus, err := openBackend(cfg, log)
	if err != nil {
		return err
	}
	m := core.New(bus, cfg.QueueSize)
	if err := m.Init(cfg.ManagerConfig()); err != nil {
		return err
	}
	defer m.Uninit()

	a := &app{cfg: cfg, log: log, out: out, mngr: m}
	if cfg.MuxAddress != 0 {
		a.mux = tca9548a.New(m, core.Address(cfg.MuxAddress))
	}
	log.Debug("manager ready", "backend", cfg.Bus.Backend, "queue", cfg.QueueSize)
	return a.exec(ctx, args)
}

func (a *app) exec(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "scan":
		return a.scan(ctx)
	case "read":
		return a.read(rest)
	case "write":
		return a.write(rest)
	case "temp":
		return a.temp(ctx)
	case "watch":
		return a.watch(ctx, rest)
	case "leds":
		return a.leds(rest)
	case "trace":
		var err error
		if len(rest) > 0 {
			err = a.exec(ctx, rest)
		}
		a.mngr.DumpTrace(func(line string) {
			fmt.Fprintln(a.out, line)
		})
		return err
	default:
		return fmt.Errorf("unknown command %q (run with -h for help)", cmd)
	}
}

// idle runs while a blocking transfer waits.
func (a *app) idle() {
	time.Sleep(50 * time.Microsecond)
}

// drain waits until every queued transfer completed.
func (a *app) drain() {
	for !a.mngr.IsIdle() || a.mngr.Queued() > 0 {
		a.idle()
	}
}
