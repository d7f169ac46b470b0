package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"tweetharvest/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configFile string
	noColor    bool
}

// newRootCmd builds the command tree. The root command hydrates its input.
func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "tweetharvest [flags] <input>",
		Short: "Fetch posts in bulk from lists of identifiers or a search query",
		Long: `tweetharvest turns lists of post identifiers into full post records
(hydration), and collects search results page by page into a '|' delimited table.

The input holds one identifier per line. With --json-key it holds one JSON
object per line instead, and the named field holds the identifier.

Output files are written next to the input, named after it without its
extension: records found go to <input>_full.json as JSON lines and identifiers
the API did not return to <input>_errors.txt. Use -o and --errors-name to
write elsewhere.

Credentials are read from TWITTER_APP_KEY / TWITTER_APP_SECRET or from a
profile stored with 'tweetharvest auth login'.`,
		Example: `  # Hydrate a list of identifiers
  tweetharvest ids.txt

  # Hydrate from the "tweet_id" field of a JSON lines file, extended text
  tweetharvest -j tweet_id -e dataset.jsonl

  # Continue an interrupted run
  tweetharvest --resume ids.txt

  # Extract identifiers from a records file
  tweetharvest -d -j id_str records_full.json`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.configFile, "config", "c", "", "config file (default is ./.tweetharvest.yaml or $HOME/.config/tweetharvest/config.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	pf.String("log-file", "", "also write JSON logs to this file")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	pf.String("archive-dsn", "", "also upsert fetched records into this Postgres database")
	pf.String("profile", "", "stored credential profile to use")
	pf.BoolP("extended", "e", false, "request extended (untruncated) post text")
	pf.Float64("retry-interval", 30, "seconds to wait before retrying a failed request (at least 1)")
	pf.Int("max-retries", 0, "give up on a batch or page after this many retries (0 = never)")
	pf.String("retry-strategy", "constant", "pause between retries (constant, exponential)")
	pf.BoolVar(&g.noColor, "no-color", false, "disable colored output")

	h := &hydrateOptions{global: g}
	f := rootCmd.Flags()
	f.StringP("output-name", "o", "", "record output file (default <input>_full.json, or <input>_<key>.txt with --dehydrate)")
	f.String("errors-name", "", "failed identifier file (default <input>_errors.txt)")
	f.StringP("json-key", "j", "", "read JSON lines and take the identifier from this key; dotted paths reach nested objects (dehydrate default \"id\")")
	f.BoolVarP(&h.dehydrate, "dehydrate", "d", false, "extract --json-key from every input line instead of fetching")
	f.Float64("interval", 1, "minimum seconds between two lookup calls")
	f.Int("batch-size", 100, "identifiers per lookup call (1-100)")
	f.Bool("resume", false, "append to existing outputs and skip identifiers they already hold")

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if h.dehydrate {
			return runDehydrate(cmd, h, args[0])
		}
		return runHydrate(cmd, h, args[0])
	}

	rootCmd.SetVersionTemplate(`tweetharvest {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(newSearchCmd(g))
	rootCmd.AddCommand(newAuthCmd(g))
	rootCmd.AddCommand(newConfigCmd(g))
	return rootCmd
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.NewConsole(rootCmd.ErrOrStderr()).Error("Error", err)
		return 1
	}
	return 0
}

// changedFlags collects the flags set on the command line, keyed by name,
// in the shape config.MergeCommandLineFlags expects.
func changedFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	cmd.Flags().Visit(func(f *pflag.Flag) {
		value := f.Value.String()
		switch f.Value.Type() {
		case "bool":
			v, err := strconv.ParseBool(value)
			if err == nil {
				flags[f.Name] = v
			}
		case "int":
			v, err := strconv.Atoi(value)
			if err == nil {
				flags[f.Name] = v
			}
		case "float64":
			v, err := strconv.ParseFloat(value, 64)
			if err == nil {
				flags[f.Name] = v
			}
		default:
			flags[f.Name] = value
		}
	})
	return flags
}

func newConsole(cmd *cobra.Command, g *globalOptions) *ui.Console {
	console := ui.NewConsole(cmd.OutOrStdout())
	if g.noColor || os.Getenv("NO_COLOR") != "" {
		console.SetColor(false)
	}
	return console
}
