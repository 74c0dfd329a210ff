package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/types"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and cancel publish jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		jobs, err := newClient(cmd).Jobs(limit)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No jobs")
			return nil
		}
		for _, job := range jobs {
			fmt.Printf("%s  %-10s %3d%%  %s\n",
				job.JobID, job.Status, job.Progress,
				job.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := newClient(cmd).Job(args[0])
		if err != nil {
			return err
		}
		printJob(job)
		return nil
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel ID",
	Short: "Cancel a queued or running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient(cmd).CancelJob(args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Job cancelled: %s\n", args[0])
		return nil
	},
}

func init() {
	jobsListCmd.Flags().Int("limit", 20, "Maximum jobs to list")
	clientFlags(jobsListCmd)
	clientFlags(jobsGetCmd)
	clientFlags(jobsCancelCmd)

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsGetCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	rootCmd.AddCommand(jobsCmd)
}

func printJob(job *types.Job) {
	fmt.Printf("Job: %s\n", job.JobID)
	fmt.Printf("  Status: %s (%d%%)\n", job.Status, job.Progress)
	if job.CurrentStep != "" {
		fmt.Printf("  Step: %s\n", job.CurrentStep)
	}
	if job.Error != "" {
		fmt.Printf("  Error: %s\n", job.Error)
	}
	if job.Result != nil {
		fmt.Printf("  Result: %s", job.Result.Status)
		if job.Result.DID != "" {
			fmt.Printf(" %s", job.Result.DID)
		}
		fmt.Println()
	}
}
