package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	implStatus        string
	implOwner         string
	implReviewer      string
	implApprover      string
	implDueDate       string
	implClearDueDate  bool
	implDetails       string
	implRisksToAdd    []string
	implRisksToRemove []string
)

var implementationsCmd = &cobra.Command{
	Use:     "implementations",
	Aliases: []string{"impl"},
	Short:   "Manage implementation records",
}

var implementationsGetCmd = &cobra.Command{
	Use:   "get <record-id>",
	Short: "Show an implementation record with its risks and participants",
	Args:  cobra.ExactArgs(1),
	RunE:  runImplementationsGet,
}

var implementationsUpdateCmd = &cobra.Command{
	Use:   "update <record-id>",
	Short: "Patch an implementation record",
	Long: `Patch an implementation record. Only the given flags are sent; fields not
flagged are left untouched. --clear-due-date sends an explicit null.`,
	Args: cobra.ExactArgs(1),
	RunE: runImplementationsUpdate,
}

func init() {
	implementationsUpdateCmd.Flags().StringVar(&implStatus, "status", "", "New status")
	implementationsUpdateCmd.Flags().StringVar(&implOwner, "owner", "", "Owner user id")
	implementationsUpdateCmd.Flags().StringVar(&implReviewer, "reviewer", "", "Reviewer user id")
	implementationsUpdateCmd.Flags().StringVar(&implApprover, "approver", "", "Approver user id")
	implementationsUpdateCmd.Flags().StringVar(&implDueDate, "due-date", "", "Due date (RFC 3339)")
	implementationsUpdateCmd.Flags().BoolVar(&implClearDueDate, "clear-due-date", false, "Clear the due date")
	implementationsUpdateCmd.Flags().StringVar(&implDetails, "details", "", "Implementation details text")
	implementationsUpdateCmd.Flags().StringSliceVar(&implRisksToAdd, "add-risk", nil, "Risk id to link (repeatable)")
	implementationsUpdateCmd.Flags().StringSliceVar(&implRisksToRemove, "remove-risk", nil, "Risk id to unlink (repeatable)")

	implementationsCmd.AddCommand(implementationsGetCmd)
	implementationsCmd.AddCommand(implementationsUpdateCmd)
}

func runImplementationsGet(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp map[string]any
	if err := client.getJSON("/api/v1/implementations/"+args[0], &resp); err != nil {
		return fmt.Errorf("failed to get record: %w", err)
	}

	return printJSON(resp)
}

func runImplementationsUpdate(cmd *cobra.Command, args []string) error {
	patch := map[string]any{}
	if cmd.Flags().Changed("status") {
		patch["status"] = implStatus
	}
	if cmd.Flags().Changed("owner") {
		patch["owner"] = implOwner
	}
	if cmd.Flags().Changed("reviewer") {
		patch["reviewer"] = implReviewer
	}
	if cmd.Flags().Changed("approver") {
		patch["approver"] = implApprover
	}
	if implClearDueDate {
		patch["due_date"] = nil
	} else if cmd.Flags().Changed("due-date") {
		patch["due_date"] = implDueDate
	}
	if cmd.Flags().Changed("details") {
		patch["implementation_details"] = implDetails
	}
	if len(implRisksToAdd) > 0 {
		patch["risks_to_add"] = implRisksToAdd
	}
	if len(implRisksToRemove) > 0 {
		patch["risks_to_remove"] = implRisksToRemove
	}

	if len(patch) == 0 {
		return fmt.Errorf("nothing to update: pass at least one of --status, --owner, --reviewer, --approver, --due-date, --clear-due-date, --details, --add-risk, --remove-risk")
	}

	client := newClient()
	var updated map[string]any
	if err := client.patchJSON("/api/v1/implementations/"+args[0], patch, &updated); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(updated)
	}

	changed := make([]string, 0, len(patch))
	for k := range patch {
		changed = append(changed, k)
	}
	fmt.Printf("Updated record %s (%s)\n", args[0], strings.Join(changed, ", "))
	return nil
}
