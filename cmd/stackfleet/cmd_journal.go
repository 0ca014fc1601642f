package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/fortna/stackfleet/wal"
)

var (
	journalDir    string
	journalSince  string
	journalRun    string
	journalOutput string
	journalDays   int
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Read and prune the run journal",
	Long: `The run journal records every remote write of every run, one JSON line
per entry. It is an audit trail only: runs never read it back.`,
}

var journalReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Print journal entries",
	Example: `  stackfleet journal replay --since 24h
  stackfleet journal replay --since 2026-10-01T00:00:00Z --run 3f1c...
  stackfleet journal replay -o json`,
	RunE: runJournalReplay,
}

var journalSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize journal entries per run",
	RunE:  runJournalSummary,
}

var journalPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove journal files older than the retention period",
	RunE:  runJournalPrune,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalReplayCmd, journalSummaryCmd, journalPruneCmd)

	journalCmd.PersistentFlags().StringVar(&journalDir, "dir", "", "Journal directory (default: journal_dir)")
	journalCmd.PersistentFlags().StringVar(&journalSince, "since", "", "Only entries after this duration ago or RFC3339 time")

	journalReplayCmd.Flags().StringVar(&journalRun, "run", "", "Only entries of this run id")
	journalReplayCmd.Flags().StringVarP(&journalOutput, "output", "o", "table", "Output format: table, json")

	journalPruneCmd.Flags().IntVar(&journalDays, "days", wal.DefaultConfig().RetentionDays, "Retention in days")
}

// resolveJournalDir picks --dir, then journal_dir from the config.
func resolveJournalDir() (string, error) {
	if journalDir != "" {
		return journalDir, nil
	}
	cfg, err := loadConfig(false)
	if err != nil {
		return "", err
	}
	if cfg.JournalDir == "" {
		return "", fmt.Errorf("no journal directory: set journal_dir or pass --dir")
	}
	return cfg.JournalDir, nil
}

// parseSince accepts a duration counted back from now or an RFC3339 time.
// Empty means the beginning of time.
func parseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--since %q: want a duration like 24h or an RFC3339 time", s)
	}
	return t, nil
}

func readJournal(runID string) ([]*wal.Entry, error) {
	dir, err := resolveJournalDir()
	if err != nil {
		return nil, err
	}
	since, err := parseSince(journalSince, time.Now())
	if err != nil {
		return nil, err
	}

	var entries []*wal.Entry
	err = wal.Replay(dir, since, func(e *wal.Entry) error {
		if runID == "" || strings.HasPrefix(e.RunID, runID) {
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay journal: %w", err)
	}
	return entries, nil
}

func runJournalReplay(cmd *cobra.Command, _ []string) error {
	if err := checkFormat(journalOutput); err != nil {
		return err
	}
	entries, err := readJournal(journalRun)
	if err != nil {
		return err
	}
	return printEntries(cmd.OutOrStdout(), entries, journalOutput)
}

func printEntries(out io.Writer, entries []*wal.Entry, format string) error {
	if format == formatJSON {
		for _, e := range entries {
			if err := printJSON(out, e); err != nil {
				return err
			}
		}
		return nil
	}

	t := newTable(out, table.Row{"Time", "Run", "Seq", "Type", "Key", "Error"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.Timestamp.Format(time.RFC3339), shortID(e.RunID), e.Sequence, e.Type, e.Key, e.Error})
	}
	t.Render()
	return nil
}

func runJournalSummary(cmd *cobra.Command, _ []string) error {
	entries, err := readJournal("")
	if err != nil {
		return err
	}
	return printSummaries(cmd.OutOrStdout(), wal.Summarize(entries))
}

func printSummaries(out io.Writer, runs []wal.RunSummary) error {
	t := newTable(out, table.Row{"Run", "Started", "Duration", "Status", "Writes", "Errors"})
	for _, r := range runs {
		status := text.FgGreen.Sprint("ok")
		switch {
		case r.Failed:
			status = text.FgRed.Sprint("failed")
		case r.Finished.IsZero():
			status = text.FgYellow.Sprint("incomplete")
		}
		duration := "-"
		if !r.Finished.IsZero() {
			duration = r.Finished.Sub(r.Started).Round(time.Second).String()
		}
		writes := 0
		for _, n := range r.Writes {
			writes += n
		}
		t.AppendRow(table.Row{shortID(r.RunID), r.Started.Format(time.RFC3339), duration, status, writes, r.WriteErrors})
	}
	t.Render()
	return nil
}

func runJournalPrune(cmd *cobra.Command, _ []string) error {
	dir, err := resolveJournalDir()
	if err != nil {
		return err
	}
	cfg := wal.DefaultConfig()
	cfg.RetentionDays = journalDays

	stats, err := wal.Cleanup(dir, cfg)
	if err != nil {
		return fmt.Errorf("prune journal: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d files, freed %s\n", stats.FilesRemoved, humanize.Bytes(uint64(stats.BytesFreed)))
	if stats.FilesRemoved > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Oldest removed: %s\n", humanize.Time(stats.OldestRemoved))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
