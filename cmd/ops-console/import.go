// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ops-console/internal/kb"
	"github.com/pdiddy/ops-console/pkg/types"
)

var importCmd = &cobra.Command{
	Use:   "import [dir]",
	Short: "Import a Markdown docs tree into the knowledge base",
	Long: `Import walks a directory tree and creates or updates one article per
Markdown file. Re-running the import against the same tree is
idempotent: unchanged files update in place instead of duplicating.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	operator, _ := cmd.Flags().GetString("operator")
	summary, err := store.ImportDocs(context.Background(), args[0], operator, os.Stdout)
	if err != nil {
		return err
	}

	if summary.Imported == 0 && summary.Updated == 0 && summary.Skipped == 0 {
		fmt.Println("No Markdown files found.")
	}
	return nil
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump articles with full content to data/export.yaml or export.json",
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	status, _ := cmd.Flags().GetString("status")
	includeArchived, _ := cmd.Flags().GetBool("include-archived")
	format, _ := cmd.Flags().GetString("format")

	q := kb.ListQuery{
		Status:          types.ArticleStatus(status),
		IncludeArchived: includeArchived,
	}

	switch format {
	case "yaml":
		err = store.ExportYAML(context.Background(), q)
	case "json":
		err = store.ExportJSON(context.Background(), q)
	default:
		return fmt.Errorf("unknown format %q (want yaml or json)", format)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Exported to export.%s\n", format)
	return nil
}

func init() {
	importCmd.Flags().String("operator", "importer", "operator recorded on imported articles")

	exportCmd.Flags().String("status", "", "filter by status")
	exportCmd.Flags().Bool("include-archived", false, "include archived articles")
	exportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
}
