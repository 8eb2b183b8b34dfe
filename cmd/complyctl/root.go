package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
	tenant    string
)

var rootCmd = &cobra.Command{
	Use:   "complyctl",
	Short: "CLI for the comply server",
	Long: `complyctl manages compliance frameworks, project attachments, and JIRA
Assets synchronization over the comply server's HTTP API.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Comply server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVarP(&tenant, "tenant", "t", "", "Tenant for multi-tenant servers (default: from COMPLY_TENANT env)")

	rootCmd.AddCommand(frameworksCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(implementationsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(healthCmd)
}

// resolvedTenant returns the effective tenant.
// Priority: --tenant flag > COMPLY_TENANT env var > server default.
func resolvedTenant() string {
	if tenant != "" {
		return tenant
	}
	return os.Getenv("COMPLY_TENANT")
}
