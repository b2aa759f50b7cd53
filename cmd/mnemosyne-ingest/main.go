// mnemosyne-ingest loads curated knowledge into the agent's memory:
// relation triples into the vector store and entities/relations into
// the knowledge graph.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/utakata/mnemosyne/internal/app"
	"github.com/utakata/mnemosyne/internal/config"
	"github.com/utakata/mnemosyne/pkg/types"
)

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "mnemosyne-ingest",
	Short: "Load curated knowledge into the agent's memory",
}

var triplesCmd = &cobra.Command{
	Use:   "triples <file.jsonl>",
	Short: "Ingest relation triples into the vector store",
	Long: `Reads one JSON triple per line, for example
{"subject":"洛天依","relation":"演唱","object":"普通DISCO","category":"song"}
and stores each as a searchable document tagged by subject.`,
	Args: cobra.ExactArgs(1),
	RunE: runTriples,
}

var graphCmd = &cobra.Command{
	Use:   "graph <file.json>",
	Short: "Ingest entities and relations into the knowledge graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraph,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory corpus sizes",
	RunE:  runStats,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "Path to YAML config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	rootCmd.AddCommand(triplesCmd, graphCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func openApp() (*app.App, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, app.Options{}, logger)
}

func runTriples(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	ctx := context.Background()
	added, skipped := 0, 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var triple types.TripleDocument
		if err := json.Unmarshal(line, &triple); err != nil {
			a.Logger.WithError(err).WithField("line", lineNo).Warn("ingest: skipping malformed triple")
			skipped++
			continue
		}
		if triple.Subject == "" || triple.Relation == "" || triple.Object == "" {
			a.Logger.WithField("line", lineNo).Warn("ingest: skipping incomplete triple")
			skipped++
			continue
		}
		if _, err := a.Store.AddDocuments(ctx, []types.Document{triple.Document()}); err != nil {
			return fmt.Errorf("ingest: line %d: %w", lineNo, err)
		}
		added++
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	fmt.Printf("ingested %d triples (%d skipped)\n", added, skipped)
	return nil
}

func runGraph(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var payload struct {
		Entities  []*types.Entity   `json:"entities"`
		Relations []*types.Relation `json:"relations"`
		Aliases   map[string]string `json:"aliases"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("ingest: parse %s: %w", args[0], err)
	}

	for _, e := range payload.Entities {
		if err := a.Graph.AddEntity(e); err != nil {
			return fmt.Errorf("ingest: entity %s: %w", e.ID, err)
		}
	}
	relAdded, relSkipped := 0, 0
	for _, r := range payload.Relations {
		if err := a.Graph.AddRelation(r); err != nil {
			a.Logger.WithError(err).Warn("ingest: skipping relation")
			relSkipped++
			continue
		}
		relAdded++
	}
	for alias, id := range payload.Aliases {
		if err := a.Graph.AddAlias(alias, id); err != nil {
			return fmt.Errorf("ingest: alias %s: %w", alias, err)
		}
	}

	entities, relations := a.Graph.Stats()
	fmt.Printf("graph now has %d entities and %d relations (%d relations skipped)\n",
		entities, relations, relSkipped)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.Store.Count(context.Background())
	if err != nil {
		return err
	}
	entities, relations := a.Graph.Stats()
	fmt.Printf("documents: %d\nentities:  %d\nrelations: %d\n", docs, entities, relations)
	return nil
}
