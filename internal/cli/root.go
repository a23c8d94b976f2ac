package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"kge/config"
	"kge/internal/adapter/fs"
	"kge/internal/logging"
	"kge/internal/usecase"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
	logger  *slog.Logger

	// v overlays KGE_* environment variables and bound flags onto the file config.
	v = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "kge",
	Short: "Knowledge-graph embedding lookup service",
	Long: `kge resolves knowledge-graph entity and relation URIs to precomputed
embeddings. Entity embeddings stay on disk and are located through an
offset index built once at startup; relation embeddings are held in memory.

Example usage:
  kge index                              # Build the companion offset index
  kge serve --port 8080                  # Serve POST /embeddings
  kge lookup http://dbpedia.org/resource/Germany
  kge lookup --remote -r http://dbpedia.org/ontology/capital`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		config.Overlay(cfg, v)
		if !filepath.IsAbs(cfg.Corpus.Root) {
			cfg.Corpus.Root = filepath.Join(rootDir, cfg.Corpus.Root)
		}
		if cfg.Index.Path != "" && !filepath.IsAbs(cfg.Index.Path) {
			cfg.Index.Path = filepath.Join(rootDir, cfg.Index.Path)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger, err = logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./kge.yaml)")
	flags.StringVarP(&rootDir, "dir", "d", "", "base directory for config and relative corpus paths (default is current directory)")
	flags.String("root", "", "corpus root directory")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")

	_ = v.BindPFlag("corpus.root", flags.Lookup("root"))
	_ = v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("logging.format", flags.Lookup("log-format"))
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

func GetLogger() *slog.Logger {
	return logger
}

// runtimeOptions maps the loaded configuration onto the lookup runtime.
func runtimeOptions(cfg *config.Config) usecase.RuntimeOptions {
	opts := usecase.RuntimeOptions{
		Root:      cfg.Corpus.Root,
		Entities:  cfg.Corpus.Entities,
		Relations: cfg.Corpus.Relations,
		Delimiter: cfg.DelimiterByte(),
		HashBits:  cfg.Index.HashBits,
		Reader: fs.ReaderOptions{
			Mmap:           cfg.Index.Mmap,
			MaxRecordBytes: cfg.Corpus.MaxRecordBytes,
		},
		Workers:   cfg.Lookup.Workers,
		CacheSize: cfg.Lookup.CacheSize,
	}
	if cfg.Index.Persist {
		opts.IndexDBPath = cfg.IndexDBPath()
	}
	return opts
}
