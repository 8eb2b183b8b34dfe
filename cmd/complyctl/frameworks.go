package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/opencomply/comply-server/pkg/framework"
)

var frameworksCmd = &cobra.Command{
	Use:   "frameworks",
	Short: "Manage compliance frameworks",
}

var frameworksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List frameworks",
	RunE:  runFrameworksList,
}

var frameworksImportCmd = &cobra.Command{
	Use:   "import <payload.json>",
	Short: "Import a framework from a nested JSON payload",
	Args:  cobra.ExactArgs(1),
	RunE:  runFrameworksImport,
}

var frameworksImportRowsCmd = &cobra.Command{
	Use:   "import-rows <header.json> <rows.csv>",
	Short: "Import a framework from flattened CSV rows plus a JSON header",
	Long: `Import a framework from a spreadsheet export: a JSON file with the
framework header fields (name, description, hierarchy) and a CSV file with
the flattened rows (level,title,description,order_no,summary,questions,
evidence_examples). Questions and evidence examples are semicolon-separated
within their cells.`,
	Args: cobra.ExactArgs(2),
	RunE: runFrameworksImportRows,
}

var frameworksTreeCmd = &cobra.Command{
	Use:   "tree <framework-id>",
	Short: "Show a framework's full structure tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runFrameworksTree,
}

var frameworksDeleteCmd = &cobra.Command{
	Use:   "delete <framework-id>",
	Short: "Delete a framework (blocked while attached to any project)",
	Args:  cobra.ExactArgs(1),
	RunE:  runFrameworksDelete,
}

func init() {
	frameworksCmd.AddCommand(frameworksListCmd)
	frameworksCmd.AddCommand(frameworksImportCmd)
	frameworksCmd.AddCommand(frameworksImportRowsCmd)
	frameworksCmd.AddCommand(frameworksTreeCmd)
	frameworksCmd.AddCommand(frameworksDeleteCmd)
}

func runFrameworksList(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp struct {
		Frameworks []framework.Framework `json:"frameworks"`
		TotalSize  int                   `json:"totalSize"`
	}
	if err := client.getJSON("/api/v1/frameworks", &resp); err != nil {
		return fmt.Errorf("failed to list frameworks: %w", err)
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(resp)
	}

	headers := []string{"ID", "Name", "Version", "Hierarchy", "Org", "Description"}
	rows := make([][]string, 0, len(resp.Frameworks))
	for _, f := range resp.Frameworks {
		org := "no"
		if f.Organizational {
			org = "yes"
		}
		rows = append(rows, []string{
			f.ID,
			f.Name,
			f.Version,
			string(f.HierarchyType),
			org,
			truncate(f.Description, 50),
		})
	}

	printTable(headers, rows)
	return nil
}

func runFrameworksImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read payload file: %w", err)
	}

	var payload framework.ImportPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse payload file: %w", err)
	}

	client := newClient()
	var result framework.ImportResult
	if err := client.postJSON("/api/v1/frameworks", payload, &result); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(result)
	}

	fmt.Printf("Imported framework %s (%d items created)\n", result.FrameworkID, result.ItemsCreated)
	return nil
}

func runFrameworksImportRows(cmd *cobra.Command, args []string) error {
	headerData, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read header file: %w", err)
	}

	var ri framework.RowImport
	if err := json.Unmarshal(headerData, &ri); err != nil {
		return fmt.Errorf("parse header file: %w", err)
	}

	csvFile, err := os.Open(args[1])
	if err != nil {
		return fmt.Errorf("open rows file: %w", err)
	}
	defer csvFile.Close()

	ri.Rows, err = framework.ParseCSVRows(csvFile)
	if err != nil {
		return fmt.Errorf("parse rows file: %w", err)
	}

	client := newClient()
	var result framework.ImportResult
	if err := client.postJSON("/api/v1/frameworks/rows", ri, &result); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(result)
	}

	fmt.Printf("Imported framework %s (%d items created)\n", result.FrameworkID, result.ItemsCreated)
	return nil
}

func runFrameworksTree(cmd *cobra.Command, args []string) error {
	client := newClient()

	var tree framework.Tree
	if err := client.getJSON("/api/v1/frameworks/"+args[0]+"/tree", &tree); err != nil {
		return fmt.Errorf("failed to get tree: %w", err)
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(tree)
	}

	headers := []string{"Level", "Order", "Title"}
	var rows [][]string
	for _, l1 := range tree.Structure {
		rows = append(rows, []string{"1", strconv.Itoa(l1.Node.OrderNo), l1.Node.Title})
		for _, l2 := range l1.Items {
			rows = append(rows, []string{"2", strconv.Itoa(l2.Node.OrderNo), "  " + l2.Node.Title})
			for _, l3 := range l2.Items {
				rows = append(rows, []string{"3", strconv.Itoa(l3.OrderNo), "    " + l3.Title})
			}
		}
	}

	printTable(headers, rows)
	return nil
}

func runFrameworksDelete(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp map[string]string
	if err := client.deleteJSON("/api/v1/frameworks/"+args[0], &resp); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	fmt.Printf("Deleted framework %s\n", args[0])
	return nil
}
