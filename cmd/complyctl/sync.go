package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	syncBaseURL     string
	syncWorkspaceID string
	syncEmail       string
	syncAPIToken    string
	syncDeployment  string
	syncSchemaID    string
	syncObjectType  string
	syncEnabled     bool
	syncInterval    int
	syncRunsLimit   int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Manage JIRA Assets synchronization",
}

var syncConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the sync configuration (the token is never returned)",
	RunE:  runSyncConfigGet,
}

var syncConfigSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Save the sync configuration",
	Long: `Save the tenant's sync configuration. On an existing configuration an
omitted --api-token keeps the stored token.`,
	RunE: runSyncConfigSet,
}

var syncTriggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Enqueue a sync run",
	RunE:  runSyncTrigger,
}

var syncRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List sync run history, newest first",
	RunE:  runSyncRuns,
}

var syncTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Probe the configured Assets instance",
	RunE:  runSyncTest,
}

func init() {
	syncConfigSetCmd.Flags().StringVar(&syncBaseURL, "base-url", "", "JIRA base URL")
	syncConfigSetCmd.Flags().StringVar(&syncWorkspaceID, "workspace-id", "", "Assets workspace id (cloud)")
	syncConfigSetCmd.Flags().StringVar(&syncEmail, "email", "", "Account email (cloud basic auth)")
	syncConfigSetCmd.Flags().StringVar(&syncAPIToken, "api-token", "", "API token (stored encrypted)")
	syncConfigSetCmd.Flags().StringVar(&syncDeployment, "deployment", "cloud", "Deployment type: cloud or datacenter")
	syncConfigSetCmd.Flags().StringVar(&syncSchemaID, "schema-id", "", "Object schema id")
	syncConfigSetCmd.Flags().StringVar(&syncObjectType, "object-type-id", "", "Object type id to sync")
	syncConfigSetCmd.Flags().BoolVar(&syncEnabled, "enable", false, "Enable interval syncing")
	syncConfigSetCmd.Flags().IntVar(&syncInterval, "interval-minutes", 60, "Sync interval in minutes")

	syncRunsCmd.Flags().IntVar(&syncRunsLimit, "limit", 20, "Maximum runs to list")

	syncConfigCmd.AddCommand(syncConfigSetCmd)
	syncCmd.AddCommand(syncConfigCmd)
	syncCmd.AddCommand(syncTriggerCmd)
	syncCmd.AddCommand(syncRunsCmd)
	syncCmd.AddCommand(syncTestCmd)
}

func runSyncConfigGet(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp map[string]any
	if err := client.getJSON("/api/v1/assets/config", &resp); err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}

	return printJSON(resp)
}

func runSyncConfigSet(cmd *cobra.Command, args []string) error {
	body := map[string]any{
		"base_url":              syncBaseURL,
		"workspace_id":          syncWorkspaceID,
		"email":                 syncEmail,
		"api_token":             syncAPIToken,
		"deployment_type":       syncDeployment,
		"schema_id":             syncSchemaID,
		"object_type_id":        syncObjectType,
		"sync_enabled":          syncEnabled,
		"sync_interval_minutes": syncInterval,
	}

	client := newClient()
	var resp map[string]any
	if err := client.putJSON("/api/v1/assets/config", body, &resp); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println("Configuration saved")
	return nil
}

func runSyncTrigger(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp struct {
		JobID         string `json:"jobId"`
		AlreadyQueued bool   `json:"alreadyQueued"`
	}
	if err := client.postJSON("/api/v1/assets/sync", nil, &resp); err != nil {
		return fmt.Errorf("failed to trigger sync: %w", err)
	}

	if resp.AlreadyQueued {
		fmt.Printf("Sync already pending (job %s)\n", resp.JobID)
	} else {
		fmt.Printf("Sync enqueued (job %s)\n", resp.JobID)
	}
	return nil
}

func runSyncRuns(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp struct {
		Runs []struct {
			ID             string `json:"ID"`
			Status         string `json:"Status"`
			ObjectsFetched int    `json:"ObjectsFetched"`
			ObjectsCreated int    `json:"ObjectsCreated"`
			ObjectsUpdated int    `json:"ObjectsUpdated"`
			ObjectsDeleted int    `json:"ObjectsDeleted"`
			StartedAt      string `json:"StartedAt"`
			Error          string `json:"Error"`
		} `json:"runs"`
	}
	path := "/api/v1/assets/sync/runs?limit=" + strconv.Itoa(syncRunsLimit)
	if err := client.getJSON(path, &resp); err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(resp)
	}

	headers := []string{"ID", "Status", "Fetched", "Created", "Updated", "Deleted", "Started", "Error"}
	rows := make([][]string, 0, len(resp.Runs))
	for _, r := range resp.Runs {
		rows = append(rows, []string{
			r.ID,
			r.Status,
			strconv.Itoa(r.ObjectsFetched),
			strconv.Itoa(r.ObjectsCreated),
			strconv.Itoa(r.ObjectsUpdated),
			strconv.Itoa(r.ObjectsDeleted),
			r.StartedAt,
			truncate(r.Error, 40),
		})
	}

	printTable(headers, rows)
	return nil
}

func runSyncTest(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp map[string]any
	if err := client.postJSON("/api/v1/assets/test", nil, &resp); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}

	fmt.Println("Connection OK")
	return nil
}
