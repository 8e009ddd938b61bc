package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kiliankoe/forcerank/internal/config"
	"github.com/kiliankoe/forcerank/internal/game"
	"github.com/kiliankoe/forcerank/internal/storage"
	"github.com/kiliankoe/forcerank/internal/storage/memory"
	"github.com/kiliankoe/forcerank/internal/storage/sqlite"
	"github.com/kiliankoe/forcerank/internal/terms"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type flags struct {
	port      string
	bind      string
	store     string
	termsFile string
	verbose   bool
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "forcerank",
		Short:         "Real-time multiplayer ranking game server.",
		Args:          cobra.ExactArgs(0),
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	pf := cmd.PersistentFlags()
	pf.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	pf.StringVarP(&f.port, "port", "p", "", "port to listen on (env: PORT, default 3000)")
	pf.StringVarP(&f.bind, "bind", "b", "", "address to bind to (env: FORCERANK_BIND)")
	pf.StringVar(&f.store, "store", "", "SQLite database file, in-memory when empty (env: FORCERANK_STORE_PATH)")
	pf.StringVar(&f.termsFile, "terms-file", "", "YAML/JSON/TOML file with the term list (env: FORCERANK_TERMS_FILE)")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(newSeedTermsCmd(&f))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("forcerank {{.Version}}\n")
	return cmd
}

func newSeedTermsCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-terms",
		Short: "Write the term list (from --terms-file or the built-in defaults) to the store.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, *f)
			if err != nil {
				return err
			}
			if cfg.StorePath == "" {
				return fmt.Errorf("seed-terms needs a persistent store, set --store")
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := termList(cfg.TermsFile)
			if err != nil {
				return err
			}
			if err := store.SetTerms(cmd.Context(), list); err != nil {
				return fmt.Errorf("write terms: %w", err)
			}
			log.Info().Int("terms", len(list)).Str("store", cfg.StorePath).Msg("terms seeded")
			return nil
		},
	}
}

// loadConfig reads the environment, applies explicitly set flags and installs the logger.
func loadConfig(cmd *cobra.Command, f flags) (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	fs := cmd.Flags()
	if fs.Changed("port") {
		cfg.Port = f.port
	}
	if fs.Changed("bind") {
		cfg.Bind = f.bind
	}
	if fs.Changed("store") {
		cfg.StorePath = f.store
	}
	if fs.Changed("terms-file") {
		cfg.TermsFile = f.termsFile
	}
	if f.verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if err := setupLogging(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func setupLogging(cfg config.Config) error {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return nil
}

func openStore(cfg config.Config) (storage.Store, error) {
	if cfg.StorePath == "" {
		return memory.New().WithRetries(cfg.TxRetries), nil
	}
	st, err := sqlite.Open(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st.WithRetries(cfg.TxRetries), nil
}

func termList(path string) ([]game.Term, error) {
	if path == "" {
		return terms.Default, nil
	}
	return terms.LoadFile(path)
}

// ensureTerms loads the configured term file, or seeds the defaults into an empty store.
func ensureTerms(ctx context.Context, store storage.TermStore, path string) error {
	if path == "" {
		cur, err := store.Terms(ctx)
		if err != nil {
			return fmt.Errorf("read terms: %w", err)
		}
		if len(cur) > 0 {
			return nil
		}
	}
	list, err := termList(path)
	if err != nil {
		return err
	}
	if err := store.SetTerms(ctx, list); err != nil {
		return fmt.Errorf("write terms: %w", err)
	}
	log.Info().Int("terms", len(list)).Str("file", path).Msg("term list loaded")
	return nil
}
