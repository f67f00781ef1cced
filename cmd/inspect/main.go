package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/audit"
)

var (
	dbPath  string
	last    int
	jsonOut bool
)

// #region main

var rootCmd = &cobra.Command{
	Use:          "inspect",
	Short:        "Inspect recorded refinements",
	SilenceUsage: true,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent refinements",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		l, closeDB, err := openLog()
		if err != nil {
			return err
		}
		defer closeDB()
		return runListMode(cmd.Context(), l)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <refinement-id>",
	Short: "Show one refinement with its audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, closeDB, err := openLog()
		if err != nil {
			return err
		}
		defer closeDB()
		return runDetailMode(cmd.Context(), l, args[0])
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "refinements.db", "path to the refinement log database")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON instead of table")
	listCmd.Flags().IntVar(&last, "last", 20, "show N most recent refinements")
	rootCmd.AddCommand(listCmd, showCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openLog() (*audit.Log, func(), error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	l, err := audit.NewLog(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return l, func() { db.Close() }, nil
}

// #endregion main

// #region list-mode

func runListMode(ctx context.Context, l *audit.Log) error {
	entries, err := l.List(ctx, last)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no refinements found")
		return nil
	}

	fmt.Printf("%-12s  %-16s  %-7s  %-5s  %-20s  %5s  %6s  %s\n",
		"ID", "Scan", "Gender", "AI", "Fallback", "OOR", "ms", "Time")
	fmt.Printf("%-12s+-%-16s+-%-7s+-%-5s+-%-20s+-%5s+-%6s+-%s\n",
		"------------", "----------------", "-------", "-----", "--------------------", "-----", "------", "--------------------")
	for _, e := range entries {
		fallback := e.FallbackReason
		if fallback == "" {
			fallback = "-"
		}
		fmt.Printf("%-12s  %-16s  %-7s  %-5t  %-20s  %5d  %6d  %s\n",
			shortID(e.ID), shortScan(e.ScanID), e.Gender, e.AIRefine, fallback,
			e.OutOfRangeCount, e.ProcessingMillis, e.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

func runDetailMode(ctx context.Context, l *audit.Log, id string) error {
	e, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(e)
	}

	fmt.Printf("Refinement: %s\n", e.ID)
	fmt.Printf("Scan:       %s (user %s)\n", e.ScanID, e.UserID)
	fmt.Printf("Gender:     %s\n", e.Gender)
	fmt.Printf("Bounds:     %s\n", orDash(e.BoundsVersion))
	fmt.Printf("Model:      %s\n", orDash(e.Model))
	fmt.Printf("AI refine:  %t\n", e.AIRefine)
	if e.FallbackReason != "" {
		fmt.Printf("Fallback:   %s\n", e.FallbackReason)
	}
	fmt.Printf("Confidence: %.2f\n", e.Confidence)
	fmt.Printf("Corrected:  %d\n", e.OutOfRangeCount)
	fmt.Printf("Elapsed:    %dms\n", e.ProcessingMillis)
	fmt.Printf("Created:    %s\n", e.CreatedAt.Format("2006-01-02T15:04:05Z"))

	if len(e.AuditJSON) > 0 {
		var trail struct {
			Records []struct {
				Key       string  `json:"key"`
				Group     string  `json:"group"`
				Original  float64 `json:"original_value"`
				Corrected float64 `json:"corrected_value"`
				Source    string  `json:"source"`
				Priority  int     `json:"priority"`
				Reason    string  `json:"reason"`
			} `json:"records"`
		}
		if err := json.Unmarshal(e.AuditJSON, &trail); err == nil && len(trail.Records) > 0 {
			fmt.Printf("\nCorrections:\n")
			for _, r := range trail.Records {
				fmt.Printf("  p%d %-9s %-5s %-24s %8.4f -> %8.4f  %s\n",
					r.Priority, r.Source, r.Group, r.Key, r.Original, r.Corrected, r.Reason)
			}
		}
	}
	return nil
}

// #endregion detail-mode

// #region helpers

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func shortScan(s string) string {
	if len(s) > 16 {
		return s[:16]
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// #endregion helpers
