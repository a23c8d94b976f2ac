package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kge/internal/server"
	"kge/internal/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve batch embedding lookups over HTTP",
	Long: `Load the entity and relation corpora and serve batch lookups.
Any corpus or index that cannot be loaded aborts startup.

Examples:
  kge serve
  kge serve --host 0.0.0.0 --port 9000 --workers 4 --mmap`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	flags := serveCmd.Flags()
	flags.String("host", "", "listen host")
	flags.Int("port", 0, "listen port")
	flags.String("path", "", "endpoint path")
	flags.Int("workers", 0, "concurrent entity lookups per batch")
	flags.Int("cache-size", 0, "entity record cache entries (0 disables)")
	flags.Bool("mmap", false, "memory-map the entity corpus")

	_ = v.BindPFlag("server.host", flags.Lookup("host"))
	_ = v.BindPFlag("server.port", flags.Lookup("port"))
	_ = v.BindPFlag("server.path", flags.Lookup("path"))
	_ = v.BindPFlag("lookup.workers", flags.Lookup("workers"))
	_ = v.BindPFlag("lookup.cache_size", flags.Lookup("cache-size"))
	_ = v.BindPFlag("index.mmap", flags.Lookup("mmap"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	log := GetLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := usecase.Open(ctx, runtimeOptions(cfg), log)
	if err != nil {
		return err
	}
	defer rt.Close()

	gateway, err := server.NewGateway(rt.Lookup, log)
	if err != nil {
		return err
	}

	srv := server.New(gateway, server.Options{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		Path:              cfg.Server.Path,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		Health:            func() any { return rt.Stats() },
	}, log)

	fmt.Fprintf(cmd.OutOrStdout(), "Serving POST http://%s%s\n", srv.Addr(), cfg.Server.Path)
	return srv.ListenAndServe(ctx)
}
