package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/mattjoyce/pqd/internal/api"
	"github.com/mattjoyce/pqd/internal/config"
	"github.com/mattjoyce/pqd/internal/dbusapi"
	"github.com/mattjoyce/pqd/internal/dispatch"
	"github.com/mattjoyce/pqd/internal/doctor"
	"github.com/mattjoyce/pqd/internal/gsettings"
	"github.com/mattjoyce/pqd/internal/journal"
	"github.com/mattjoyce/pqd/internal/lock"
	"github.com/mattjoyce/pqd/internal/log"
	"github.com/mattjoyce/pqd/internal/loop"
	"github.com/mattjoyce/pqd/internal/pq"
	"github.com/mattjoyce/pqd/internal/privacy"
	"github.com/mattjoyce/pqd/internal/registry"
	"github.com/mattjoyce/pqd/internal/settings"
	"github.com/mattjoyce/pqd/internal/storage"
)

const version = "0.1.0"

// loopDepth bounds the number of queued setting changes.
const loopDepth = 64

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "replay":
		os.Exit(runReplay(args))
	case "doctor":
		os.Exit(runDoctor(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "version":
		fmt.Printf("pqd version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`pqd - picture-quality daemon

Usage:
  pqd <command> [flags]

Commands:
  start             Run the daemon in the foreground
  replay            Re-apply every stored setting once and exit
  doctor            Check the installation (--json for machine output)
  config get <path> Print one configuration value
  version           Show version information
  help              Show this help message

Flags:
  --config <path>   Configuration file or directory
`)
}

func runConfigNoun(args []string) int {
	if len(args) < 1 || args[0] != "get" {
		fmt.Fprintln(os.Stderr, "Usage: pqd config get <path> [--config <path>] [--json]")
		return 1
	}
	return runConfigGet(args[1:])
}

// core is the state shared by start and replay: the lock, the store and
// an open channel to the PQ service.
type core struct {
	cfg     *config.Config
	lock    *lock.PIDLock
	db      *sql.DB
	store   *settings.Store
	reg     *registry.Registry
	journal *journal.Journal
	handle  *pq.Handle
}

func openCore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*core, error) {
	c := &core{cfg: cfg}

	pidPath := cfg.Service.PIDFile
	if pidPath == "" {
		pidPath = lock.PathFor(cfg.State.Path)
	}
	pidLock, err := lock.AcquirePIDLock(pidPath)
	if err != nil {
		return nil, fmt.Errorf("acquire PID lock %s: %w", pidPath, err)
	}
	c.lock = pidLock
	logger.Info("acquired PID lock", "path", pidPath)

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	c.db = db
	c.store = settings.NewStore(db)
	logger.Info("database opened", "path", cfg.State.Path)

	reg, err := registry.New(cfg.Revision())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("build registry: %w", err)
	}
	c.reg = reg
	c.journal = journal.New(cfg.Journal.Capacity)

	var drv pq.Driver = pq.HWBinder()
	if cfg.Simulated() {
		drv = pq.NewSimulator(reg)
		logger.Warn("using simulated PQ service")
	}
	handle, err := pq.Open(ctx, drv, reg,
		pq.WithDevice(cfg.Binder.Device),
		pq.WithService(cfg.Binder.Service),
		pq.WithInterface(cfg.Binder.Interface),
		pq.WithTimeout(cfg.Binder.CallTimeout),
		pq.WithLogger(log.WithComponent("pq")),
		pq.WithObserver(c.journal.Observe),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("open PQ service: %w", err)
	}
	c.handle = handle
	logger.Info("PQ service connected",
		"device", cfg.Binder.Device,
		"service", cfg.Binder.Service,
		"revision", reg.Revision().String(),
		"digest", reg.Digest(),
	)

	if err := c.store.SetMeta(ctx, settings.MetaRegistryDigest, reg.Digest()); err != nil {
		logger.Warn("failed to record registry digest", "error", err)
	}
	if err := c.store.SetMeta(ctx, settings.MetaRevision, reg.Revision().String()); err != nil {
		logger.Warn("failed to record revision", "error", err)
	}
	return c, nil
}

// Close releases everything openCore acquired, in reverse order.
func (c *core) Close() {
	if c.handle != nil {
		_ = c.handle.Close()
	}
	if c.db != nil {
		_ = c.db.Close()
	}
	if c.lock != nil {
		_ = c.lock.Release()
	}
}

func (c *core) catalog() *gsettings.Catalog {
	catalog := gsettings.DefaultCatalog(c.cfg.Settings.Schema, c.reg.Keys())
	if !c.cfg.Privacy.Enabled {
		catalog = catalog.Only(gsettings.SchemaColor, c.cfg.Settings.Schema)
	}
	return catalog
}

// replayer reads the last applied value from the store first. The
// settings source only fills keys that were never applied, e.g. on first
// boot; its schema is not written back to and may be stale.
func (c *core) replayer(d *dispatch.Dispatcher, source dispatch.Reader) *dispatch.Replayer {
	return dispatch.NewReplayer(d,
		dispatch.Layer{Name: "store", Reader: dispatch.ReaderFunc(c.store.GetInt)},
		dispatch.Layer{Name: "gsettings", Reader: source},
	)
}

func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	return cfg, nil
}

func runStart(args []string) int {
	fs := pflag.NewFlagSet("start", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	logger := log.WithComponent("main")
	logger.Info("pqd starting", "version", version, "config", cfg.Source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := openCore(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer c.Close()

	catalog := c.catalog()
	reader := gsettings.NewReader(catalog, cfg.Settings.Binary)
	d := dispatch.New(c.reg, c.handle, c.store, reader).WithLogger(log.WithComponent("dispatch"))

	if cfg.Privacy.Enabled {
		units := privacy.NewSystemd()
		defer units.Close()
		pc := privacy.DefaultConfig()
		pc.CameraService = cfg.Privacy.CameraService
		pc.GNSSService = cfg.Privacy.GNSSService
		pc.GeoclueUnit = cfg.Privacy.GeoclueUnit
		pc.MixerDevice = cfg.Privacy.MixerDevice
		pc.MixerElement = cfg.Privacy.MixerElement
		for key, fn := range privacy.New(pc, privacy.NewPropTool(), privacy.NewAmixer(), units).Handlers() {
			d.Handle(key, fn)
		}
		logger.Info("privacy toggles enabled")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 3)

	lp := loop.New(loopDepth)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := lp.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("loop: %w", err)
		}
	}()
	// The handle must outlive the loop.
	defer func() {
		cancel()
		<-loopDone
	}()

	replayer := c.replayer(d, reader)
	if !lp.Post(func(ctx context.Context) error {
		sum := replayer.ReplayAll(ctx)
		c.journal.Publish(journal.TypeReplayDone, sum)
		if err := d.PrimeNightLight(ctx); err != nil {
			logger.Warn("night light prime failed", "error", err)
		}
		return nil
	}) {
		logger.Error("failed to queue replay")
		return 1
	}

	if cfg.Settings.Watch {
		watcher := gsettings.NewWatcher(catalog, cfg.Settings.Binary)
		go func() {
			err := watcher.Run(ctx, func(ch gsettings.Change) {
				c.journal.Publish(journal.TypeSettingSeen, ch)
				queued := lp.Post(func(ctx context.Context) error {
					return d.OnChange(ctx, ch.Alias, ch.Value)
				})
				if !queued {
					logger.Warn("dropped setting change, loop busy", "key", ch.Alias, "value", ch.Value)
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("watcher: %w", err)
			}
		}()
		logger.Info("settings watcher started", "schemas", catalog.Schemas())
	}

	if cfg.DBus.Enabled {
		conn, err := dbusapi.Connect(cfg.DBus.Bus)
		if err != nil {
			logger.Warn("D-Bus facade disabled", "bus", cfg.DBus.Bus, "error", err)
		} else {
			defer conn.Close()
			svc := dbusapi.New(c.reg, d, lp, cfg.Binder.CallTimeout+time.Second)
			if err := svc.Export(conn, cfg.DBus.Name); err != nil {
				logger.Warn("D-Bus facade disabled", "name", cfg.DBus.Name, "error", err)
			} else {
				logger.Info("D-Bus facade exported", "bus", cfg.DBus.Bus, "name", cfg.DBus.Name)
			}
		}
	}

	if cfg.API.Enabled {
		apiServer := api.New(api.Config{
			Listen:      cfg.API.Listen,
			CallTimeout: cfg.Binder.CallTimeout + time.Second,
			Tokens:      cfg.API.AuthTokens(),
		}, c.reg, d, lp, c.journal, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen, "tokens", len(cfg.API.Tokens))
	}

	logger.Info("pqd running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		return 1
	}

	logger.Info("pqd stopped")
	return 0
}

func runReplay(args []string) int {
	fs := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Print the replay summary as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	logger := log.WithComponent("main")

	ctx := context.Background()
	c, err := openCore(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Replay failed: %v\n", err)
		return 1
	}
	defer c.Close()

	reader := gsettings.NewReader(c.catalog(), cfg.Settings.Binary)
	d := dispatch.New(c.reg, c.handle, c.store, reader).WithLogger(log.WithComponent("dispatch"))
	sum := c.replayer(d, reader).ReplayAll(ctx)
	if err := d.PrimeNightLight(ctx); err != nil {
		logger.Warn("night light prime failed", "error", err)
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(sum, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("Replayed %d setting(s): %d applied, %d failed, %d skipped\n",
			sum.Total, sum.Applied, sum.Failed, sum.Skipped)
		for _, k := range sum.Keys {
			if k.Error != "" {
				fmt.Printf("  FAIL %s=%d (%s): %s\n", k.Key, k.Value, k.Source, k.Error)
			}
		}
	}

	if sum.Failed > 0 {
		return 1
	}
	return 0
}

func runDoctor(args []string) int {
	fs := pflag.NewFlagSet("doctor", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	strict := fs.Bool("strict", false, "Treat warnings as errors")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	var state doctor.State
	if _, err := os.Stat(cfg.State.Path); err == nil {
		db, err := storage.OpenSQLite(ctx, cfg.State.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "State open error: %v\n", err)
			return 1
		}
		defer db.Close()
		state = settings.NewStore(db)
	}

	result := doctor.New(cfg, state).Validate(ctx)

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if *strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigGet(args []string) int {
	fs := pflag.NewFlagSet("get", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: pqd config get <path> [--json]")
		return 1
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	val, err := cfg.GetPath(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(val, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("%v\n", val)
	}
	return 0
}
