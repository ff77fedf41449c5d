package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"chfs/internal/config"
	"chfs/internal/fs"
	"chfs/internal/logging"
	"chfs/internal/store"
	"chfs/internal/store/couch"
	"chfs/internal/store/memstore"

	"github.com/spf13/pflag"
)

var (
	logger = logging.GetLogger()
)

const connectTimeout = 30 * time.Second

type options struct {
	debug      bool
	allowOther bool
	configPath string
	fixture    string
	couchURL   string
	database   string
	verbose    bool
}

func main() {
	flags := pflag.NewFlagSet("chfs", pflag.ExitOnError)
	var opts options
	flags.BoolVarP(&opts.debug, "debug", "d", false, "Log FUSE protocol messages")
	flags.BoolVarP(&opts.allowOther, "allow-other", "a", false, "Allow other users to access the mount")
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&opts.fixture, "fixture", "", "Serve a YAML fixture instead of CouchDB")
	flags.StringVar(&opts.couchURL, "couchdb", "", "CouchDB server URL")
	flags.StringVar(&opts.database, "database", "", "CouchDB database name")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: chfs [flags] MOUNTPOINT\n\nFlags:\n")
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])

	if flags.NArg() != 1 {
		flags.Usage()
		os.Exit(2)
	}

	if err := run(flags.Arg(0), opts); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
	logger.Info("Clean shutdown complete")
}

func run(mountPoint string, opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	if opts.verbose || opts.debug {
		level = logging.LevelDebug
	}
	logger.SetLevel(level)

	logger.Info("Starting chfs...")
	cleanMount := filepath.Clean(mountPoint)
	logger.Debug("Mount point: %s", cleanMount)

	st, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	logger.Info("Creating virtual filesystem...")
	vfs := fs.NewChFS(fs.NewAdapter(st, fs.OptionsFromConfig(cfg)))

	logger.Debug("Setting up signal handlers...")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR2)
	defer signal.Stop(sigChan)

	done, err := vfs.Mount(cleanMount, fs.MountOptions{
		AllowOther: opts.allowOther,
		Debug:      opts.debug,
	})
	if err != nil {
		return err
	}
	logger.Info("Filesystem mounted and ready")

	for {
		select {
		case sig := <-sigChan:
			logger.Info("Received signal %v", sig)
			if err := vfs.Unmount(cleanMount); err != nil {
				logger.Error("Unmount error: %v", err)
			}
		case err := <-done:
			return err
		}
	}
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if opts.fixture != "" {
		cfg.Store.Driver = config.DriverFixture
		cfg.Store.Fixture = opts.fixture
	}
	if opts.couchURL != "" {
		cfg.Store.URL = opts.couchURL
	}
	if opts.database != "" {
		cfg.Store.Database = opts.database
	}
	return cfg, cfg.Validate()
}

func openStore(sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case config.DriverFixture:
		logger.Info("Loading fixture %s", sc.Fixture)
		return memstore.LoadFixture(sc.Fixture)
	default:
		logger.Info("Connecting to CouchDB database %q", sc.Database)
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		return couch.Open(ctx, couch.Options{URL: sc.URL, Database: sc.Database})
	}
}
