package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"kge/config"
	"kge/internal/adapter/analyzer"
	"kge/internal/adapter/fs"
	"kge/internal/usecase"
)

var indexOutput string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the companion offset index for the entity corpus",
	Long: `Scan the entity corpus once and store its offset index so that
"kge serve" can start without rescanning. The index is stored in
.kge/index.db under the corpus root unless index.path is set.

Examples:
  kge index
  kge index --root /data/dbpedia --output /var/lib/kge/index.db`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringVarP(&indexOutput, "output", "o", "", "index file (default from config)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	out := cmd.OutOrStdout()

	corpus, err := fs.LocateOne(cfg.Corpus.Root, cfg.Corpus.Entities)
	if err != nil {
		return fmt.Errorf("failed to locate entity corpus: %w", err)
	}

	dbPath := cfg.IndexDBPath()
	if indexOutput != "" {
		dbPath = indexOutput
	}
	if err := config.EnsureIndexDir(dbPath); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	indexUC := usecase.NewIndexUseCase(analyzer.NewFNVHasher(cfg.Index.HashBits), cfg.DelimiterByte(), GetLogger())

	fmt.Fprintf(out, "Scanning %s...\n", corpus.Path)
	bar := newByteBar(out, corpus.Size)

	result, err := indexUC.Build(corpus, func(scanned int64) {
		_ = bar.Set64(scanned)
	})
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	_ = bar.Finish()

	if err := indexUC.Persist(dbPath, corpus, result.Index); err != nil {
		return fmt.Errorf("failed to store index: %w", err)
	}

	stats := result.Stats
	fmt.Fprintf(out, "\nIndexing complete in %s:\n", formatDuration(result.Duration))
	fmt.Fprintf(out, "  Records:          %d\n", stats.Records)
	fmt.Fprintf(out, "  Buckets:          %d\n", stats.Buckets)
	fmt.Fprintf(out, "  Collided buckets: %d (largest holds %d)\n", stats.CollidedBuckets, stats.MaxBucket)
	fmt.Fprintf(out, "  Skipped lines:    %d\n", stats.SkippedLines)
	fmt.Fprintf(out, "  Bytes scanned:    %d\n", stats.BytesScanned)
	fmt.Fprintf(out, "\nIndex stored at: %s\n", dbPath)
	return nil
}

func newByteBar(w io.Writer, total int64) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
