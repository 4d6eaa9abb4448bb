package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	gh "github.com/alexburke/dupfinder/internal/github"
	"github.com/alexburke/dupfinder/internal/ingest"
	"github.com/alexburke/dupfinder/internal/vecstore"
)

var (
	indexFile   string
	indexLimit  int
	indexUpdate bool
)

var indexCmd = &cobra.Command{
	Use:   "index <owner/repo>",
	Short: "Build the duplicate-detection index for a repository",
	Long: `Index fetches a repository's issues (or loads them from a JSON file),
embeds each one, and stores the vectors in a named collection.

By default the collection is rebuilt from scratch, destroying any prior
contents. Pass --update to append new issues without touching existing ones.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexFile, "file", "", "load issues from a JSON file instead of the GitHub API")
	indexCmd.Flags().IntVar(&indexLimit, "limit", 0, "maximum number of issues to index (0 = all)")
	indexCmd.Flags().BoolVar(&indexUpdate, "update", false, "append to the existing collection instead of rebuilding")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	owner, repo, err := parseRepoArg(args[0])
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

	var issues []gh.Issue
	if indexFile != "" {
		issues, err = gh.LoadIssuesFile(indexFile, indexLimit)
		if err != nil {
			return err
		}
	} else {
		fmt.Fprintf(os.Stderr, "Fetching issues from %s/%s...\n", owner, repo)
		issues, err = gh.FetchIssues(ctx, c.GHClient, owner, repo, indexLimit)
		if err != nil {
			return err
		}
	}

	if len(issues) == 0 {
		fmt.Println("No issues found.")
		return nil
	}
	fmt.Fprintf(os.Stderr, "Indexing %d issues...\n", len(issues))

	collection := vecstore.CollectionName(owner + "/" + repo)

	var report *ingest.Report
	if indexUpdate {
		report, err = c.Indexer.Update(ctx, collection, issues)
	} else {
		report, err = c.Indexer.Rebuild(ctx, collection, issues)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %d/%d issues into %q\n", report.Indexed, report.Total, collection)
	for _, f := range report.Failures {
		fmt.Printf("  #%d failed: %v\n", f.Number, f.Err)
	}
	if len(report.Failures) > 0 {
		return fmt.Errorf("%d issues failed to index", len(report.Failures))
	}
	return nil
}
