package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexburke/dupfinder/internal/vecstore"
)

var (
	similarThreshold float64
	similarTop       int
)

var similarCmd = &cobra.Command{
	Use:   "similar <owner/repo#number>",
	Short: "Find duplicates of an already-indexed issue",
	Long: `Similar looks up an indexed issue's stored embedding and searches for
its nearest neighbors, excluding the issue itself. Unlike check, it never
calls the embedding model.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimilar,
}

func init() {
	similarCmd.Flags().Float64Var(&similarThreshold, "threshold", 0, "similarity threshold in [0,1] (default from config)")
	similarCmd.Flags().IntVar(&similarTop, "top", 0, "maximum number of results (default from config)")
	rootCmd.AddCommand(similarCmd)
}

func runSimilar(cmd *cobra.Command, args []string) error {
	owner, repo, number, err := parseIssueRef(args[0])
	if err != nil {
		return err
	}

	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()

	c, err := initComponents(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Store.Close()

	threshold, k := resolveQueryParams(cfg, similarThreshold, similarTop)
	collection := vecstore.CollectionName(owner + "/" + repo)

	duplicates, err := c.Detector.FindDuplicatesByNumber(ctx, collection, number, threshold, k)
	if err != nil {
		return err
	}

	fmt.Printf("Issue: %s/%s#%d\n", owner, repo, number)
	printDuplicates(duplicates)
	return nil
}
