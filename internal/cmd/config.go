package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mkarlin14/quizroom/internal/session"
)

const (
	storeMemory = "memory"
	storeNATS   = "nats"

	busInProc = "inproc"
	busNATS   = "nats"
)

// Config holds the server's runtime settings.
type Config struct {
	bind        string
	port        int
	joinBaseURL string

	store   string
	bus     string
	natsURL string

	dbHost     string
	dbPort     int
	dbUser     string
	dbPassword string
	dbName     string
	dbSSLMode  string

	gameConfigPath string
	verbose        bool
}

// dsn returns the Postgres connection URL the pool dials.
func (c *Config) dsn() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.dbUser, c.dbPassword, c.dbHost, c.dbPort, c.dbName, c.dbSSLMode,
	)
}

func (c *Config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.dbPort < 1 || c.dbPort > 65535 {
		return fmt.Errorf("invalid db-port (must be between 1-65535 inclusive): %d", c.dbPort)
	}
	if c.store != storeMemory && c.store != storeNATS {
		return fmt.Errorf("invalid store backing %q (must be %q or %q)", c.store, storeMemory, storeNATS)
	}
	if c.bus != busInProc && c.bus != busNATS {
		return fmt.Errorf("invalid bus backing %q (must be %q or %q)", c.bus, busInProc, busNATS)
	}
	if (c.store == storeNATS || c.bus == busNATS) && c.natsURL == "" {
		return errors.New("--nats-url is required when store or bus uses nats")
	}
	return nil
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUIZROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "quizroom",
		Short:         "Real-time multiplayer trivia session engine.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: QUIZROOM_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: QUIZROOM_PORT)")
	fs.StringVar(&cfg.joinBaseURL, "join-base-url", "http://localhost:8080/join", "public URL prefix encoded into join QR codes (env: QUIZROOM_JOIN_BASE_URL)")
	fs.StringVar(&cfg.store, "store", storeMemory, "live room store backing, memory or nats (env: QUIZROOM_STORE)")
	fs.StringVar(&cfg.bus, "bus", busInProc, "event bus backing, inproc or nats (env: QUIZROOM_BUS)")
	fs.StringVar(&cfg.natsURL, "nats-url", "nats://localhost:4222", "NATS server URL (env: QUIZROOM_NATS_URL)")
	fs.StringVar(&cfg.dbHost, "db-host", "localhost", "Postgres host (env: QUIZROOM_DB_HOST)")
	fs.IntVar(&cfg.dbPort, "db-port", 5432, "Postgres port (env: QUIZROOM_DB_PORT)")
	fs.StringVar(&cfg.dbUser, "db-user", "postgres", "Postgres user (env: QUIZROOM_DB_USER)")
	fs.StringVar(&cfg.dbPassword, "db-password", "postgres", "Postgres password (env: QUIZROOM_DB_PASSWORD)")
	fs.StringVar(&cfg.dbName, "db-name", "quizroom", "Postgres database name (env: QUIZROOM_DB_NAME)")
	fs.StringVar(&cfg.dbSSLMode, "db-sslmode", "disable", "Postgres sslmode (env: QUIZROOM_DB_SSLMODE)")
	fs.StringVar(&cfg.gameConfigPath, "game-config", "", "path to optional game timing config file (env: QUIZROOM_GAME_CONFIG)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "enable debug logging (env: QUIZROOM_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	return cmd
}

// gameConfigFile is the optional YAML override for session timing,
// all values in whole seconds.
type gameConfigFile struct {
	Session struct {
		TimerBufferSec   int `yaml:"timer_buffer_sec"`
		RevealDelaySec   int `yaml:"reveal_delay_sec"`
		FinishedGraceSec int `yaml:"finished_grace_sec"`
		RetryIntervalSec int `yaml:"retry_interval_sec"`
	} `yaml:"session"`
}

// loadSessionConfig returns timing defaults, overridden per-field by
// the YAML file when a path is configured.
func loadSessionConfig(path string) (session.Config, error) {
	cfg := session.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read game config file: %w", err)
	}

	var file gameConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("failed to parse game config: %w", err)
	}

	if file.Session.TimerBufferSec > 0 {
		cfg.TimerBuffer = time.Duration(file.Session.TimerBufferSec) * time.Second
	}
	if file.Session.RevealDelaySec > 0 {
		cfg.RevealDelay = time.Duration(file.Session.RevealDelaySec) * time.Second
	}
	if file.Session.FinishedGraceSec > 0 {
		cfg.FinishedGrace = time.Duration(file.Session.FinishedGraceSec) * time.Second
	}
	if file.Session.RetryIntervalSec > 0 {
		cfg.RetryInterval = time.Duration(file.Session.RetryIntervalSec) * time.Second
	}

	return cfg, nil
}
