package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nikolang/niko/internal/config"
	"github.com/nikolang/niko/internal/log"
	"github.com/nikolang/niko/internal/notion"
)

var wordsStatus string

var wordsCmd = &cobra.Command{
	Use:   "words",
	Short: "List vocabulary entries still being studied",
	Long: `Reads the configured Notion word database and prints entries whose
status matches the study filter.`,
	RunE: runWords,
}

func init() {
	wordsCmd.Flags().StringVar(&wordsStatus, "status", config.DefaultWordStatus, "status filter for the word database")
	rootCmd.AddCommand(wordsCmd)
}

func runWords(cmd *cobra.Command, _ []string) error {
	dir, err := config.Dir()
	if err != nil {
		return fmt.Errorf("resolving config dir: %w", err)
	}

	prefs, err := config.NewPrefsStore(dir).Load()
	if err != nil {
		return fmt.Errorf("loading preferences: %w", err)
	}
	if !prefs.Notion.Enabled {
		return fmt.Errorf("notion integration is disabled; enable it via PUT /api/prefs or %s/prefs.json", dir)
	}

	sink := notion.NewSink(log.NewNop())
	target := notion.Target{
		Token:      prefs.Notion.Token,
		DatabaseID: prefs.Notion.WordDatabaseID,
	}

	words, err := sink.ListWords(cmd.Context(), target, wordsStatus)
	if err != nil {
		return fmt.Errorf("listing words: %w", err)
	}

	if len(words) == 0 {
		fmt.Println("no words found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WORD\tMEANING\tEXAMPLE")
	for _, entry := range words {
		fmt.Fprintf(w, "%s\t%s\t%s\n", entry.Word, entry.Meaning, entry.Example)
	}
	return w.Flush()
}
