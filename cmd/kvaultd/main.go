// Command kvaultd is radishkv's standalone server: it listens for line
// protocol connections (transport.Server) and durably persists whatever
// dataset a client SELECTs (durability.Store). Flag handling follows the
// teacher's cmd/radishd/main.go in spirit — signal-driven graceful
// shutdown — but the flag names themselves follow spec.md §6 and
// original_source/engine.py's argparse surface literally
// (--database_path, --log_path, --RDB_persistence, ...), since this binary
// is meant to be a drop-in replacement for that CLI. Flags are wired with
// github.com/spf13/cobra/pflag, matching how grafana-k6's cmd package is
// built, plus an optional YAML config file the way edirooss-zmux-server
// layers config on top of its flags.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/radishkv/radishkv/internal/logging"
	"github.com/radishkv/radishkv/session"
	"github.com/radishkv/radishkv/transport"
)

// fileConfig is the YAML shape accepted by --config. Every field is
// optional; anything left unset keeps whatever the command-line flags (or
// their defaults) already set.
type fileConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	DatabasePath    string `yaml:"database_path"`
	LogPath         string `yaml:"log_path"`
	RDBPersistence  *bool  `yaml:"rdb_persistence"`
	RDBTimeout      int    `yaml:"rdb_timeout"`
	AOFPersistence  *bool  `yaml:"aof_persistence"`
	Debug           bool   `yaml:"debug"`
}

func main() {
	var (
		host           string
		port           int
		databasePath   string
		logPath        string
		rdbPersistence bool
		rdbTimeout     int
		aofPersistence bool
		debug          bool
		verbose        bool
		quiet          bool
		configPath     string
	)

	root := &cobra.Command{
		Use:   "kvaultd",
		Short: "radishkv's standalone key/value server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				cfg, err := readConfigFile(configPath)
				if err != nil {
					return err
				}
				applyConfigFile(cfg, &host, &port, &databasePath, &logPath, &rdbPersistence, &rdbTimeout, &aofPersistence, &debug)
			}

			switch {
			case verbose:
				logging.SetLevel(logging.DEBUG)
			case quiet:
				logging.SetLevel(logging.ERROR)
			default:
				logging.SetLevel(logging.NOTICE)
			}

			if err := os.MkdirAll(databasePath, 0755); err != nil {
				return fmt.Errorf("creating database path %s: %w", databasePath, err)
			}
			if err := os.MkdirAll(logPath, 0755); err != nil {
				return fmt.Errorf("creating log path %s: %w", logPath, err)
			}

			// spec.md §9's debug-mode switch: under --debug the
			// --RDB_timeout value counts seconds, not minutes, so a
			// developer iterating locally doesn't wait half an hour to see
			// a snapshot cut.
			unit := time.Minute
			if debug {
				unit = time.Second
			}
			interval := time.Duration(rdbTimeout) * unit

			cfg := session.Config{
				DatabaseDir:      databasePath,
				LogDir:           logPath,
				SnapshotInterval: interval,
				AOFEnabled:       aofPersistence,
				RDBEnabled:       rdbPersistence,
			}

			addr := fmt.Sprintf("%s:%d", host, port)
			srv := transport.New(addr, cfg)

			go handleSignals(srv)

			return srv.ListenAndServe()
		},
	}

	var flags *pflag.FlagSet = root.Flags()
	flags.StringVar(&host, "host", "", "listening host")
	flags.IntVar(&port, "port", 8234, "port to serve at")
	flags.StringVar(&databasePath, "database_path", "databases", "directory holding each dataset's .rdb snapshot")
	flags.StringVar(&logPath, "log_path", "logs", "directory holding each dataset's .log command journal")
	flags.BoolVar(&rdbPersistence, "RDB_persistence", true, "true if RDB (snapshot) persistence is needed")
	flags.IntVar(&rdbTimeout, "RDB_timeout", 30, "save dataset state every x minutes (seconds under --debug)")
	flags.BoolVar(&aofPersistence, "AOF_persistence", true, "true if AOF (command log) persistence is needed")
	flags.BoolVar(&debug, "debug", false, "treat RDB_timeout as seconds, for fast local iteration")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVarP(&quiet, "quiet", "q", false, "log errors only")
	flags.StringVarP(&configPath, "config", "c", "", "optional YAML file overriding the flags above")

	if err := root.Execute(); err != nil {
		logging.Critical(err.Error())
		os.Exit(1)
	}
}

func readConfigFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func applyConfigFile(cfg fileConfig, host *string, port *int, databasePath, logPath *string, rdbPersistence *bool, rdbTimeout *int, aofPersistence *bool, debug *bool) {
	if cfg.Host != "" {
		*host = cfg.Host
	}
	if cfg.Port != 0 {
		*port = cfg.Port
	}
	if cfg.DatabasePath != "" {
		*databasePath = cfg.DatabasePath
	}
	if cfg.LogPath != "" {
		*logPath = cfg.LogPath
	}
	if cfg.RDBPersistence != nil {
		*rdbPersistence = *cfg.RDBPersistence
	}
	if cfg.RDBTimeout != 0 {
		*rdbTimeout = cfg.RDBTimeout
	}
	if cfg.AOFPersistence != nil {
		*aofPersistence = *cfg.AOFPersistence
	}
	if cfg.Debug {
		*debug = true
	}
}

func handleSignals(srv *transport.Server) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	logging.Notice("received shutdown signal")
	if err := srv.Shutdown(); err != nil {
		logging.Errorf("shutdown: %s", err)
	}
}
