package main

import (
	"strconv"

	"github.com/spf13/cobra"
	"tweetharvest/pkg/logger"
	"tweetharvest/pkg/search"
	"tweetharvest/pkg/storage"
)

func newSearchCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Collect search results into a '|' delimited table",
		Long: `Walk the search results for a query from newest to oldest and write one
row per post. The walk ends when the API returns an empty page or the same
page twice, after --max-pages pages, or on Ctrl-C. Rows already written are kept.`,
		Example: `  # Everything the API still serves for a hashtag
  tweetharvest search "#golang"

  # Ten pages of English results into a custom file
  tweetharvest search golang --lang en --max-pages 10 -o golang.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, g, args[0])
		},
	}

	f := cmd.Flags()
	f.StringP("output-name", "o", "", "tabular output file (default tweets.csv)")
	f.Int("count", 100, "posts per page (1-100)")
	f.Int("max-pages", 0, "stop after this many pages (0 = no limit)")
	f.String("result-type", "recent", "result type (recent, popular, mixed)")
	f.String("lang", "", "restrict results to this language code")
	return cmd
}

func runSearch(cmd *cobra.Command, g *globalOptions, query string) error {
	ctx := cmd.Context()
	a, err := setup(cmd, g)
	if err != nil {
		return err
	}
	cfg := a.cfg

	client, err := a.connect(ctx)
	if err != nil {
		return err
	}

	path := cfg.Output.TabularFile
	if path == "" {
		path = "tweets.csv"
	}
	sink, err := storage.NewTabularWriter(path, storage.Truncate, cfg.Output.Sync)
	if err != nil {
		return err
	}
	defer sink.Close()

	logger.LogComponentStart(a.log, "search", map[string]interface{}{
		"query":     query,
		"output":    path,
		"count":     cfg.Search.Count,
		"max_pages": cfg.Search.MaxPages,
	})

	w := search.New(client, sink, search.Options{
		Count:         cfg.Search.Count,
		MaxPages:      cfg.Search.MaxPages,
		TweetMode:     a.tweetMode(),
		ResultType:    cfg.Search.ResultType,
		Lang:          cfg.Search.Lang,
		RetryInterval: cfg.Hydrate.RetryInterval,
		Policy:        a.retryPolicy(),
		ProgressEvery: cfg.Search.ProgressEvery,
		Logger:        a.log,
		Metrics:       a.metrics,
	})
	res, err := w.Run(ctx, query)

	reason := string(res.Stop)
	if err != nil {
		reason = "failed"
	}
	logger.LogComponentStop(a.log, "search", reason)

	a.console.Summary("Search summary", [][2]string{
		{"Rows", strconv.Itoa(res.Rows)},
		{"Pages", strconv.Itoa(res.Pages)},
		{"Skipped", strconv.Itoa(res.Skipped)},
		{"Output", path},
	})
	return err
}
