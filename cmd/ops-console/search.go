// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base",
	Long: `Search runs the two-tier retrieval pipeline: a direct substring match
against titles, summaries, content, and tags, falling back to token
scoring when the direct pass finds nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	includeArchived, _ := cmd.Flags().GetBool("include-archived")

	articles, err := store.Search(context.Background(), args[0], limit, includeArchived)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(articles)
	}

	if len(articles) == 0 {
		fmt.Println("No matching articles.")
		return nil
	}
	formatArticleTable(articles)
	return nil
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question and get a cited answer",
	Long: `Ask retrieves the best-matching articles for a question and composes
an answer from the top hit, with citations naming the article and the
version the answer is based on.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	answer, err := store.Ask(context.Background(), args[0], limit)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}

	fmt.Println(answer.Answer)
	fmt.Printf("\nConfidence: %.2f\n", answer.Confidence)
	if len(answer.Citations) > 0 {
		fmt.Println("Citations:")
		for _, c := range answer.Citations {
			fmt.Printf("  %s v%d  %s\n", c.ArticleID, c.Version, c.Title)
		}
	}
	return nil
}

var recommendCmd = &cobra.Command{
	Use:   "recommend [context]",
	Short: "Recommend articles for an operational context",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecommend,
}

func runRecommend(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	articles, err := store.Recommendations(context.Background(), args[0], limit)
	if err != nil {
		return err
	}

	if len(articles) == 0 {
		fmt.Println("No recommendations.")
		return nil
	}
	for i, a := range articles {
		fmt.Printf("%d. %s (%s, severity %s)\n", i+1, a.Title, a.ID, a.Severity)
		if a.Summary != "" {
			fmt.Printf("   %s\n", strings.TrimSpace(a.Summary))
		}
	}
	return nil
}

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Show retrieval quality metrics against their gates",
	RunE:  runQuality,
}

func runQuality(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	report := store.Metrics().Snapshot()

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("Search hit ratio:    %.2f (gate %.2f, %d searches)\n",
		report.SearchHitRatio, report.MinSearchHitRatio, report.Searches)
	fmt.Printf("Ask citation ratio:  %.2f (gate %.2f, %d asks)\n",
		report.AskCitationRatio, report.MinAskCitationRatio, report.Asks)
	fmt.Printf("Review latency p95:  %s (gate %s, %d actions)\n",
		report.ReviewLatencyP95, report.MaxReviewLatencyP95, report.ReviewActions)
	return nil
}

func init() {
	searchCmd.Flags().Int("limit", 0, "maximum results (0 = default)")
	searchCmd.Flags().Bool("include-archived", false, "include archived articles")
	searchCmd.Flags().Bool("json", false, "output as JSON")

	askCmd.Flags().Int("limit", 0, "maximum citations (0 = default)")
	askCmd.Flags().Bool("json", false, "output as JSON")

	recommendCmd.Flags().Int("limit", 0, "maximum recommendations (0 = default)")

	qualityCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(qualityCmd)
}
