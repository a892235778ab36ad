package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arguslabs/argus/config"
	"github.com/arguslabs/argus/internal/agent/driver"
	"github.com/arguslabs/argus/internal/agent/supervisor"
	"github.com/arguslabs/argus/internal/checkpoint"
	"github.com/arguslabs/argus/internal/graphdb"
	"github.com/arguslabs/argus/internal/research"
	srv "github.com/arguslabs/argus/internal/server"
	"github.com/arguslabs/argus/internal/telemetry"
	"github.com/arguslabs/argus/provider"
	"github.com/arguslabs/argus/tools/web_scrape"
	"github.com/arguslabs/argus/tools/web_search"
)

// researchCMD runs a single investigation in the foreground and prints the
// report. State is held in memory; Neo4j is still required for the graph
// builder step.
func researchCMD() *cobra.Command {
	var cfgPath string
	var target string
	var targetCtx string
	var objectives []string
	var depth int
	var printGraph bool

	var cmd = &cobra.Command{
		Use:   "research",
		Short: "Run one investigation in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(target) == "" {
				return fmt.Errorf("--target is required")
			}
			cfg := config.LoadConfig(cfgPath)
			ctx := context.Background()

			tel := telemetry.New(cfg.Telemetry)

			if err := cfg.Neo4j.Validate(); err != nil {
				return err
			}
			graph, err := graphdb.New(ctx, cfg.Neo4j, nil)
			if err != nil {
				return fmt.Errorf("neo4j connection failed: %w", err)
			}
			defer func() { _ = graph.Close(context.Background()) }()
			graph.InitSchema(ctx)

			prov, err := provider.NewProvider(provider.OpenAI, provider.Options{
				APIKey:  cfg.LLM.APIKey,
				BaseURL: cfg.LLM.BaseURL,
				Timeout: cfg.LLM.Timeout,
				Headers: cfg.LLM.Headers,
			})
			if err != nil {
				return err
			}
			searcher, err := web_search.NewWebSearcher(cfg.Tools.Search)
			if err != nil {
				return err
			}
			scraper := web_scrape.NewWebScraper(cfg.Tools.Scrape)

			registry := supervisor.NewRegistry()
			ckpt := checkpoint.NewMemoryStore()
			jobs := research.NewMemoryJobStore()
			factory := srv.NewRunnerFactory(cfg, prov, searcher, scraper, graph, ckpt, registry, tel)
			svc := research.NewService(factory, jobs, ckpt, registry, cfg.Research, nil)

			req := research.Request{
				TargetName:    target,
				TargetContext: targetCtx,
				Objectives:    objectives,
			}
			if depth > 0 {
				req.MaxDepth = &depth
			}
			job, err := svc.Start(ctx, req)
			if err != nil {
				return err
			}

			feed, unsubscribe := svc.Stream(job.ID)
			defer unsubscribe()
			for ev := range feed {
				fmt.Printf("[%s] %s %s\n", ev.Timestamp.Format("15:04:05"), ev.Node, ev.Status)
			}
			svc.Wait()

			res, err := svc.Result(ctx, job.ID)
			if err != nil {
				return err
			}
			if res.Status != driver.StatusCompleted {
				return fmt.Errorf("research %s finished with status %s: %s", job.ID, res.Status, res.Error)
			}
			fmt.Println()
			fmt.Println(res.FinalReport)
			fmt.Printf("\ntokens=%d cost=$%.4f facts=%d risk_flags=%d\n",
				res.TotalTokensUsed, res.TotalCostUSD, res.FactsCount, res.RiskFlagsCount)
			if printGraph {
				sub, err := graph.ResearchSubgraph(ctx, job.ID)
				if err != nil {
					return fmt.Errorf("subgraph export failed: %w", err)
				}
				out, err := json.MarshalIndent(sub, "", "  ")
				if err != nil {
					return err
				}
				fmt.Printf("\n%s\n", out)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	cmd.Flags().StringVar(&target, "target", "", "target name to investigate")
	cmd.Flags().StringVar(&targetCtx, "context", "", "disambiguating context for the target")
	cmd.Flags().StringSliceVar(&objectives, "objective", nil, "research objective (repeatable)")
	cmd.Flags().IntVar(&depth, "depth", 0, "number of phases (0 selects dynamic depth)")
	cmd.Flags().BoolVar(&printGraph, "graph", false, "print the entity subgraph as JSON after the report")

	return cmd
}
