package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/bounds"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/logging"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
)

var (
	dbPath   string
	label    string
	activate bool
	listLast int
)

// #region commands

var rootCmd = &cobra.Command{
	Use:          "bounds-import <bounds.json|bounds.yaml>",
	Short:        "Import a bounds document into the SQLite bounds store",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runImport,
}

var listCmd = &cobra.Command{
	Use:   "list <gender>",
	Short: "List stored bound versions for a gender",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

var activateCmd = &cobra.Command{
	Use:   "activate <version-id>",
	Short: "Make a stored version the active set for its gender",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := bounds.NewStore(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Activate(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("activated %s\n", args[0])
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", envOr("REFINER_BOUNDS_DB", "bounds.db"), "path to the bounds database")
	rootCmd.Flags().StringVar(&label, "label", "", "version label (defaults to the file's label)")
	rootCmd.Flags().BoolVar(&activate, "activate", true, "activate the imported versions")
	listCmd.Flags().IntVar(&listLast, "last", 20, "show N most recent versions")
	rootCmd.AddCommand(listCmd, activateCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// #endregion commands

// #region import

func runImport(cmd *cobra.Command, args []string) error {
	logger, err := logging.New(logging.Config{Level: "info", Encoding: "console"})
	if err != nil {
		return err
	}
	defer logger.Sync()

	fileLabel, sets, err := bounds.LoadFile(args[0])
	if err != nil {
		return err
	}
	if label == "" {
		label = fileLabel
	}

	store, err := bounds.NewStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	genders := make([]string, 0, len(sets))
	for g := range sets {
		genders = append(genders, string(g))
	}
	sort.Strings(genders)

	ctx := cmd.Context()
	for _, gs := range genders {
		g := params.Gender(gs)
		b := sets[g]
		id, err := store.Import(ctx, g, label, b)
		if err != nil {
			return fmt.Errorf("import %s: %w", g, err)
		}
		if activate {
			if err := store.Activate(ctx, id); err != nil {
				return fmt.Errorf("activate %s: %w", g, err)
			}
		}
		logger.Info("imported bounds",
			zap.String("gender", gs),
			zap.String("version_id", id),
			zap.String("label", label),
			zap.Int("db_shape_keys", len(b.DB.Shape)),
			zap.Int("db_limb_keys", len(b.DB.Limb)),
			zap.Int("k5_keys", len(b.K5.Shape)+len(b.K5.Limb)),
			zap.Bool("active", activate))
	}
	return nil
}

// #endregion import

// #region list

func runList(cmd *cobra.Command, args []string) error {
	g, err := params.ParseGender(args[0])
	if err != nil {
		return err
	}
	store, err := bounds.NewStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	versions, err := store.ListVersions(cmd.Context(), g, listLast)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(os.Stderr, "no versions found")
		return nil
	}
	fmt.Printf("%-36s  %-6s  %-20s  %-20s  %s\n", "Version", "Active", "Label", "Created", "Archetypes")
	for _, v := range versions {
		active := ""
		if v.Active {
			active = "*"
		}
		fmt.Printf("%-36s  %-6s  %-20s  %-20s  %s\n",
			v.VersionID, active, v.Label, v.CreatedAt.Format("2006-01-02T15:04:05Z"), strings.Join(v.Archetypes, ","))
	}
	return nil
}

// #endregion list

// #region helpers

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
