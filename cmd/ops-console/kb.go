// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ops-console/internal/kb"
	"github.com/pdiddy/ops-console/pkg/types"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage knowledge base articles and the review workflow",
	Long: `Kb manages the versioned article store. Use subcommands to create,
inspect, update, list, review, and roll back articles. Every content
change appends an immutable version; every lifecycle call appends a
review record.`,
}

// --- create subcommand ---

var kbCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a draft article",
	RunE:  runKbCreate,
}

func runKbCreate(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	article, err := store.CreateArticle(context.Background(), inputFromFlags(cmd))
	if err != nil {
		return err
	}
	fmt.Printf("Created %s (version %d, status %s)\n", article.ID, article.CurrentVersion, article.Status)
	return nil
}

// --- get subcommand ---

var kbGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show an article with its versions, reviews, and references",
	Args:  cobra.ExactArgs(1),
	RunE:  runKbGet,
}

func runKbGet(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	article, err := store.GetArticle(context.Background(), args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(article)
}

// --- update subcommand ---

var kbUpdateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Append a new version to an article",
	Long: `Update appends a new content version and advances the version pointer.
Flags left empty keep the stored values; supplying --tag replaces the
tag set wholesale.`,
	Args: cobra.ExactArgs(1),
	RunE: runKbUpdate,
}

func runKbUpdate(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	article, err := store.UpdateArticle(context.Background(), args[0], inputFromFlags(cmd))
	if err != nil {
		return err
	}
	fmt.Printf("Updated %s to version %d\n", article.ID, article.CurrentVersion)
	return nil
}

// --- list subcommand ---

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List articles with filters and paging",
	RunE:  runKbList,
}

func runKbList(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	status, _ := cmd.Flags().GetString("status")
	severity, _ := cmd.Flags().GetString("severity")
	tag, _ := cmd.Flags().GetString("tag")
	page, _ := cmd.Flags().GetInt("page")
	pageSize, _ := cmd.Flags().GetInt("page-size")
	includeArchived, _ := cmd.Flags().GetBool("include-archived")
	queryText, _ := cmd.Flags().GetString("query")

	articles, total, err := store.ListArticles(context.Background(), kb.ListQuery{
		Query:           queryText,
		Status:          types.ArticleStatus(status),
		Severity:        types.Severity(severity),
		Tag:             tag,
		Page:            page,
		PageSize:        pageSize,
		IncludeArchived: includeArchived,
	})
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(articles)
	}

	formatArticleTable(articles)
	fmt.Printf("\n%d of %d articles\n", len(articles), total)
	return nil
}

// --- review subcommands ---

var kbReviewCmd = &cobra.Command{
	Use:   "review [id] [action]",
	Short: "Apply a lifecycle action: submit, approve, reject, or archive",
	Args:  cobra.ExactArgs(2),
	RunE:  runKbReview,
}

func runKbReview(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	operator, _ := cmd.Flags().GetString("operator")
	comment, _ := cmd.Flags().GetString("comment")

	article, err := store.ApplyAction(context.Background(), args[0],
		types.ReviewAction(args[1]), operator, comment)
	if err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", article.ID, article.Status)
	return nil
}

var kbPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List articles awaiting editorial attention",
	RunE:  runKbPending,
}

func runKbPending(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	articles, err := store.PendingReviews(context.Background(), limit)
	if err != nil {
		return err
	}

	if len(articles) == 0 {
		fmt.Println("Nothing pending.")
		return nil
	}
	formatArticleTable(articles)
	return nil
}

// --- rollback subcommand ---

var kbRollbackCmd = &cobra.Command{
	Use:   "rollback [id] [version]",
	Short: "Restore an old version by appending a copy of it",
	Args:  cobra.ExactArgs(2),
	RunE:  runKbRollback,
}

func runKbRollback(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	var target int
	if _, err := fmt.Sscanf(args[1], "%d", &target); err != nil {
		return fmt.Errorf("version must be a number: %q", args[1])
	}

	operator, _ := cmd.Flags().GetString("operator")
	comment, _ := cmd.Flags().GetString("comment")

	article, err := store.RollbackArticle(context.Background(), args[0], target, operator, comment)
	if err != nil {
		return err
	}
	fmt.Printf("Rolled %s back to the content of version %d (now version %d)\n",
		article.ID, target, article.CurrentVersion)
	return nil
}

// --- shared helpers ---

func inputFromFlags(cmd *cobra.Command) kb.ArticleInput {
	title, _ := cmd.Flags().GetString("title")
	summary, _ := cmd.Flags().GetString("summary")
	category, _ := cmd.Flags().GetString("category")
	severity, _ := cmd.Flags().GetString("severity")
	content, _ := cmd.Flags().GetString("content")
	contentFile, _ := cmd.Flags().GetString("content-file")
	tags, _ := cmd.Flags().GetStringSlice("tag")
	operator, _ := cmd.Flags().GetString("operator")
	note, _ := cmd.Flags().GetString("note")

	if content == "" && contentFile != "" {
		if data, err := os.ReadFile(contentFile); err == nil {
			content = string(data)
		} else {
			fmt.Fprintf(os.Stderr, "warning: could not read %s: %v\n", contentFile, err)
		}
	}

	return kb.ArticleInput{
		Title:      title,
		Summary:    summary,
		Category:   category,
		Severity:   types.Severity(severity),
		Content:    content,
		Tags:       tags,
		Actor:      operator,
		ChangeNote: note,
	}
}

func formatArticleTable(articles []types.Article) {
	fmt.Printf("%-26s  %-40s  %-10s  %-8s  %-4s  %-6s  %s\n",
		"ID", "Title", "Status", "Severity", "Ver", "Review", "Tags")
	fmt.Println(strings.Repeat("-", 110))

	for _, a := range articles {
		title := a.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		review := ""
		if a.NeedsReview {
			review = "stale"
		}
		fmt.Printf("%-26s  %-40s  %-10s  %-8s  %-4d  %-6s  %s\n",
			a.ID, title, a.Status, a.Severity, a.CurrentVersion, review,
			strings.Join(a.Tags, ","))
	}
}

func init() {
	for _, c := range []*cobra.Command{kbCreateCmd, kbUpdateCmd} {
		c.Flags().String("title", "", "article title")
		c.Flags().String("summary", "", "short abstract")
		c.Flags().String("category", "", "category (default general)")
		c.Flags().String("severity", "", "severity: low, medium, high")
		c.Flags().String("content", "", "Markdown content")
		c.Flags().String("content-file", "", "read Markdown content from a file")
		c.Flags().StringSlice("tag", nil, "tag (repeatable)")
		c.Flags().String("operator", "", "acting operator")
		c.Flags().String("note", "", "change note")
	}

	kbListCmd.Flags().String("query", "", "free-text filter")
	kbListCmd.Flags().String("status", "", "filter by status")
	kbListCmd.Flags().String("severity", "", "filter by severity")
	kbListCmd.Flags().String("tag", "", "filter by tag")
	kbListCmd.Flags().Int("page", 1, "page number (1-indexed)")
	kbListCmd.Flags().Int("page-size", 0, "page size (0 = default)")
	kbListCmd.Flags().Bool("include-archived", false, "include archived articles")
	kbListCmd.Flags().Bool("json", false, "output as JSON")

	kbReviewCmd.Flags().String("operator", "", "acting operator")
	kbReviewCmd.Flags().String("comment", "", "review comment")

	kbPendingCmd.Flags().Int("limit", 0, "maximum articles (0 = default)")

	kbRollbackCmd.Flags().String("operator", "", "acting operator")
	kbRollbackCmd.Flags().String("comment", "", "review comment")

	kbCmd.AddCommand(kbCreateCmd)
	kbCmd.AddCommand(kbGetCmd)
	kbCmd.AddCommand(kbUpdateCmd)
	kbCmd.AddCommand(kbListCmd)
	kbCmd.AddCommand(kbReviewCmd)
	kbCmd.AddCommand(kbPendingCmd)
	kbCmd.AddCommand(kbRollbackCmd)

	rootCmd.AddCommand(kbCmd)
}
