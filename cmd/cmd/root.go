/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"litscout/internal/config"
	"litscout/internal/core"
	"litscout/internal/dates"
	"litscout/internal/logger"
	"litscout/internal/pipeline"
	"litscout/internal/render"
	"litscout/internal/sources"
	"litscout/internal/store"
	"litscout/internal/summarize"
	"litscout/internal/tui"
)

var cfgFile string

var validSources = map[string]bool{
	"all":             true,
	"preprints":       true,
	"pubmed":          true,
	"huggingface":     true,
	"openalex":        true,
	"semanticscholar": true,
	"biorxiv":         true,
	"medrxiv":         true,
	"arxiv":           true,
}

var validEmits = map[string]bool{
	"compact": true,
	"json":    true,
	"md":      true,
	"context": true,
	"path":    true,
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "litscout <topic>",
	Short: "Search scientific literature from the last 30 days",
	Long: `Search arXiv, bioRxiv/medRxiv, PubMed, OpenAlex, Semantic Scholar and
HuggingFace for scholarly work from the last 30 days, then score, dedupe
and rank everything into one report.

Example:
  litscout "CRISPR gene editing"
  litscout --sources preprints --deep "protein structure prediction"
  litscout --emit json --refresh "quantum error correction"`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		quick, _ := cmd.Flags().GetBool("quick")
		deep, _ := cmd.Flags().GetBool("deep")
		if quick && deep {
			fmt.Fprintln(os.Stderr, "Error: Cannot use both --quick and --deep")
			os.Exit(1)
		}

		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Error: Please provide a research topic.")
			_ = cmd.Usage()
			os.Exit(1)
		}
		topic := strings.Join(args, " ")

		opts := runOptions{
			selector:   mustFlagChoice(cmd, "sources", validSources),
			emit:       mustFlagChoice(cmd, "emit", validEmits),
			depth:      core.DepthDefault,
			refresh:    flagBool(cmd, "refresh"),
			noProgress: flagBool(cmd, "no-progress"),
			brief:      flagBool(cmd, "brief"),
		}
		if quick {
			opts.depth = core.DepthQuick
		}
		if deep {
			opts.depth = core.DepthDeep
		}

		opts.days, _ = cmd.Flags().GetInt("days")
		if opts.days < 1 {
			fmt.Fprintln(os.Stderr, "Error: --days must be at least 1")
			os.Exit(1)
		}

		opts.outputDir, _ = cmd.Flags().GetString("output-dir")
		if opts.outputDir == "" {
			opts.outputDir = config.GetOutputDirectory()
		}

		if flagBool(cmd, "debug") || config.IsDebugMode() {
			logger.SetDebug(true)
		}

		if err := runResearch(topic, opts); err != nil {
			logger.Error("Research run failed", err)
			os.Exit(1)
		}
	},
}

type runOptions struct {
	selector   string
	emit       string
	depth      core.Depth
	days       int
	refresh    bool
	noProgress bool
	brief      bool
	outputDir  string
}

func flagBool(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}

// mustFlagChoice reads a string flag and exits with a usage error when the
// value is not one of the allowed choices.
func mustFlagChoice(cmd *cobra.Command, name string, valid map[string]bool) string {
	v, _ := cmd.Flags().GetString(name)
	if !valid[strings.ToLower(v)] {
		choices := make([]string, 0, len(valid))
		for choice := range valid {
			choices = append(choices, choice)
		}
		fmt.Fprintf(os.Stderr, "Error: invalid --%s value %q (choose from: %s)\n",
			name, v, strings.Join(sortedChoices(choices), ", "))
		os.Exit(1)
	}
	return strings.ToLower(v)
}

func sortedChoices(choices []string) []string {
	for i := 1; i < len(choices); i++ {
		for j := i; j > 0 && choices[j] < choices[j-1]; j-- {
			choices[j], choices[j-1] = choices[j-1], choices[j]
		}
	}
	return choices
}

func runResearch(topic string, opts runOptions) error {
	ctx := context.Background()

	from, to := dates.Range(opts.days, time.Now())

	// Cache check happens before any network work.
	cacheStore, err := store.NewStore(config.GetCacheDirectory())
	if err != nil {
		logger.Warn("Cache disabled", "error", err.Error())
		cacheStore = nil
	} else {
		defer cacheStore.Close()
	}

	cacheKey := store.CacheKey(topic, from, to, opts.selector)
	if cacheStore != nil && !opts.refresh {
		cached, age, err := cacheStore.GetReport(cacheKey, config.GetCacheTTL())
		if err != nil {
			logger.Warn("Cache lookup failed", "error", err.Error())
		}
		if cached != nil {
			tui.ShowCached(topic, age)
			return emitResult(cached, opts.emit, opts.depth, opts.outputDir)
		}
	}

	runner := pipeline.New(sources.Options{
		NCBIAPIKey: config.GetNCBIAPIKey(),
		S2APIKey:   config.GetS2APIKey(),
		Contact:    config.GetContact(),
	})

	popts := pipeline.Options{
		Selector: opts.selector,
		Depth:    opts.depth,
		From:     from,
		To:       to,
	}

	var rs *core.ResultSet
	if !opts.noProgress && tui.IsInteractive() {
		// The buffer outlasts every event a run can emit, so the
		// pipeline never blocks even if the panel is quit early.
		events := make(chan pipeline.ProgressEvent, 64)
		popts.Progress = func(ev pipeline.ProgressEvent) { events <- ev }

		done := make(chan struct{})
		go func() {
			rs = runner.Run(ctx, topic, popts)
			close(events)
			close(done)
		}()

		if err := tui.Run(topic, events); err != nil {
			logger.Warn("Progress display failed", "error", err.Error())
		}
		<-done
	} else {
		popts.Progress = tui.LogProgress
		rs = runner.Run(ctx, topic, popts)
	}

	if err := render.WriteOutputs(rs, opts.outputDir); err != nil {
		logger.Error("Failed to write report bundle", err)
	}

	if cacheStore != nil {
		if err := cacheStore.SaveReport(cacheKey, rs); err != nil {
			logger.Warn("Failed to cache report", "error", err.Error())
		}
	}

	brief := generateBrief(ctx, topic, rs, opts)

	if err := emitResult(rs, opts.emit, opts.depth, opts.outputDir); err != nil {
		return err
	}
	if brief != "" && opts.emit == "compact" {
		fmt.Printf("\n### Brief\n\n%s\n", brief)
	}
	return nil
}

// generateBrief produces the optional LLM brief and appends it to the
// written markdown report. Any failure just skips the brief.
func generateBrief(ctx context.Context, topic string, rs *core.ResultSet, opts runOptions) string {
	if !opts.brief {
		return ""
	}
	if !config.HasGeminiKey() {
		logger.Warn("Brief requested but no Gemini API key is configured")
		return ""
	}

	client, err := summarize.NewGeminiClient(ctx, config.GetGeminiAPIKey(), config.GetGeminiModel())
	if err != nil {
		logger.Warn("Brief skipped", "error", err.Error())
		return ""
	}
	defer client.Close()

	logger.Info("Generating brief", "model", client.ModelName())
	brief, err := summarize.NewSummarizerWithDefaults(client).Brief(ctx, topic, render.ContextSnippet(rs))
	if err != nil {
		logger.Warn("Brief skipped", "error", err.Error())
		return ""
	}

	if err := render.AppendBrief(opts.outputDir, brief); err != nil {
		logger.Warn("Failed to append brief to report", "error", err.Error())
	}
	return brief
}

func emitResult(rs *core.ResultSet, emit string, depth core.Depth, outputDir string) error {
	switch emit {
	case "compact":
		fmt.Println(render.Compact(rs, render.LimitFor(depth)))
	case "json":
		payload, err := json.MarshalIndent(rs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Println(string(payload))
	case "md":
		fmt.Println(render.Markdown(rs))
	case "context":
		fmt.Println(render.ContextSnippet(rs))
	case "path":
		fmt.Println(render.ContextPath(outputDir))
	}
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.litscout.yaml)")

	rootCmd.Flags().String("sources", "all", "Source filter: all, preprints, or a single source name")
	rootCmd.Flags().String("emit", "compact", "Output mode: compact, json, md, context, path")
	rootCmd.Flags().Bool("quick", false, "Fewer results per source")
	rootCmd.Flags().Bool("deep", false, "More results per source")
	rootCmd.Flags().Int("days", 30, "How many days to look back")
	rootCmd.Flags().Bool("refresh", false, "Bypass cache, fetch fresh results")
	rootCmd.Flags().Bool("no-progress", false, "Disable the animated progress display")
	rootCmd.Flags().Bool("brief", false, "Generate a short LLM brief of the results")
	rootCmd.Flags().Bool("debug", false, "Enable verbose debug logging")
	rootCmd.Flags().String("output-dir", "", "Directory for the report bundle (defaults to config)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
}
