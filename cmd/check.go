package cmd

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/alexburke/dupfinder/internal/config"
	"github.com/alexburke/dupfinder/internal/detector"
	"github.com/alexburke/dupfinder/internal/vecstore"
)

var (
	checkTitle     string
	checkBody      string
	checkThreshold float64
	checkTop       int
)

var checkCmd = &cobra.Command{
	Use:   "check <owner/repo>",
	Short: "Check new issue text for duplicates",
	Long: `Check embeds the given issue text and searches the repository's index
for likely duplicates. Provide --title (and optionally --body), or pipe the
raw text on stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkTitle, "title", "", "issue title")
	checkCmd.Flags().StringVar(&checkBody, "body", "", "issue body")
	checkCmd.Flags().Float64Var(&checkThreshold, "threshold", 0, "similarity threshold in [0,1] (default from config)")
	checkCmd.Flags().IntVar(&checkTop, "top", 0, "maximum number of results (default from config)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	owner, repo, err := parseRepoArg(args[0])
	if err != nil {
		return err
	}

	text := checkTitle
	if checkBody != "" {
		text = checkTitle + ". " + checkBody
	}
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading issue text from stdin: %w", err)
		}
		text = string(data)
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

	threshold, k := resolveQueryParams(cfg, checkThreshold, checkTop)
	collection := vecstore.CollectionName(owner + "/" + repo)

	duplicates, err := c.Detector.FindDuplicates(ctx, collection, text, threshold, k)
	if err != nil {
		return err
	}

	printDuplicates(duplicates)
	return nil
}

// resolveQueryParams applies config defaults for unset flags.
func resolveQueryParams(cfg *config.Config, threshold float64, top int) (float32, int) {
	t := float32(cfg.Defaults.SimilarityThreshold)
	k := cfg.Defaults.TopK
	if threshold > 0 {
		t = float32(threshold)
	}
	if top > 0 {
		k = top
	}
	return t, k
}

func printDuplicates(duplicates []detector.Duplicate) {
	if len(duplicates) == 0 {
		fmt.Println("No duplicates found")
		return
	}

	fmt.Printf("Potential duplicates (%d):\n", len(duplicates))
	for _, d := range duplicates {
		pct := int(math.Round(float64(d.Similarity) * 100))
		fmt.Printf("  #%d (%d%% similar) %s\n      %s\n", d.Number, pct, d.Title, d.URL)
	}
}
