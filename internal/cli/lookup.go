package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"kge/internal/client"
	"kge/internal/domain"
	"kge/internal/usecase"
)

var (
	lookupRelations []string
	lookupRemote    bool
	lookupJSON      bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup [entity-uri...]",
	Short: "Resolve entity and relation URIs",
	Long: `Resolve URIs and print one line per key, in input order.
Without --remote the corpora are loaded in-process; with --remote the keys are
sent to a running server in paced batches.

Examples:
  kge lookup http://dbpedia.org/resource/Germany http://dbpedia.org/resource/France
  kge lookup -r http://dbpedia.org/ontology/capital --json
  kge lookup --remote --url http://10.0.0.5:8080/embeddings http://dbpedia.org/resource/Germany`,
	RunE: runLookup,
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	flags := lookupCmd.Flags()
	flags.StringSliceVarP(&lookupRelations, "relation", "r", nil, "relation URI (repeatable)")
	flags.BoolVar(&lookupRemote, "remote", false, "query a running server instead of loading the corpora")
	flags.BoolVar(&lookupJSON, "json", false, "print the wire response as JSON")
	flags.String("url", "", "server endpoint for --remote")
	flags.Int("batch-size", 0, "keys per request for --remote")

	_ = v.BindPFlag("client.url", flags.Lookup("url"))
	_ = v.BindPFlag("client.batch_size", flags.Lookup("batch-size"))
}

func runLookup(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	log := GetLogger()

	req := domain.BatchRequest{Entities: args, Relations: lookupRelations}
	if req.Entities == nil {
		req.Entities = []string{}
	}
	if req.Relations == nil {
		req.Relations = []string{}
	}
	if len(req.Entities)+len(req.Relations) == 0 {
		return fmt.Errorf("nothing to look up: pass entity URIs as arguments or relations with --relation")
	}

	var (
		res domain.BatchResult
		err error
	)
	if lookupRemote {
		c := client.New(client.Options{
			URL:       cfg.Client.URL,
			BatchSize: cfg.Client.BatchSize,
			Interval:  cfg.Client.Interval,
			Timeout:   cfg.Client.Timeout,
		}, log)
		res, err = c.Lookup(cmd.Context(), req)
	} else {
		var rt *usecase.Runtime
		rt, err = usecase.Open(cmd.Context(), runtimeOptions(cfg), log)
		if err != nil {
			return err
		}
		defer rt.Close()
		res, err = rt.Lookup.Process(cmd.Context(), req)
	}
	if err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}

	if lookupJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(domain.NewBatchResponse(res))
	}
	printResults(cmd.OutOrStdout(), req, res)
	return nil
}

var (
	hitLabel  = color.New(color.FgGreen).SprintFunc()
	missLabel = color.New(color.FgRed).SprintFunc()
	dimLabel  = color.New(color.Faint).SprintFunc()
)

func printResults(w io.Writer, req domain.BatchRequest, res domain.BatchResult) {
	found := 0
	for i, r := range res.Entities {
		if !r.Found {
			fmt.Fprintf(w, "%s entity   %s\n", missLabel("MISS"), req.Entities[i])
			continue
		}
		found++
		fmt.Fprintf(w, "%s entity   %s\n       %s\n", hitLabel("HIT "), req.Entities[i], dimLabel(truncate(r.Record, 160)))
	}
	for i, r := range res.Relations {
		if !r.Found {
			fmt.Fprintf(w, "%s relation %s\n", missLabel("MISS"), req.Relations[i])
			continue
		}
		found++
		fmt.Fprintf(w, "%s relation %s\n       %s\n", hitLabel("HIT "), req.Relations[i],
			dimLabel(fmt.Sprintf("dim=%d", len(r.Embedding.LHSReal))))
	}
	fmt.Fprintf(w, "\n%d of %d keys found\n", found, len(res.Entities)+len(res.Relations))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
