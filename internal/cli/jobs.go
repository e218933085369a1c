package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [document-id]",
	Short: "List processing jobs or inspect one document's job",
	Long: `List all processing jobs or show the latest job for a document.

Examples:
  ragpipe jobs            # List all jobs
  ragpipe jobs ab12cd34   # Show the latest job for document ab12cd34`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	a, err := getApp(false)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		job, ok := a.jobs.Get(args[0])
		if !ok {
			return fmt.Errorf("no job for document %s", args[0])
		}
		fmt.Printf("Job:       %s\n", job.ID)
		fmt.Printf("Document:  %s\n", job.DocumentID)
		fmt.Printf("Stage:     %s\n", job.Stage)
		fmt.Printf("Progress:  %d%%\n", job.Progress)
		if job.Error != "" {
			fmt.Printf("Error:     %s\n", job.Error)
		}
		fmt.Printf("Started:   %s\n", job.StartedAt.Format("2006-01-02 15:04:05"))
		if job.CompletedAt != nil {
			fmt.Printf("Completed: %s\n", job.CompletedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	}

	jobs := a.jobs.List()
	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-10s %-10s %-12s %-9s %s\n", "ID", "DOCUMENT", "STAGE", "PROGRESS", "STARTED")
	fmt.Println("------------------------------------------------------")
	for _, job := range jobs {
		fmt.Printf("%-10s %-10s %-12s %8d%% %s\n",
			job.ID, job.DocumentID, job.Stage, job.Progress, job.StartedAt.Format("15:04:05"))
	}
	return nil
}
