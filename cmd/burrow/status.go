package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon health",
	Long: `Show the daemon's health report: overall status plus each
dependency check (store, gateway, peers). Exits non-zero when the
daemon is unhealthy.`,
	RunE: runStatus,
}

func init() {
	clientFlags(statusCmd)
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	report, err := newClient(cmd).Health()
	if err != nil {
		return err
	}

	fmt.Printf("Daemon: %s", report.Status)
	if report.Version != "" {
		fmt.Printf(" (version %s)", report.Version)
	}
	fmt.Println()

	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := report.Checks[name]
		mark := "✓"
		if !check.Healthy {
			mark = "✗"
		}
		fmt.Printf("  %s %-32s %s\n", mark, name, check.Message)
	}

	if report.Status != "healthy" {
		return fmt.Errorf("daemon is %s", report.Status)
	}
	return nil
}
