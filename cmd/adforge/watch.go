package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/adforge/internal/app"
	"github.com/ternarybob/adforge/internal/models"
)

var watchBackendURL string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Start a campaign-analysis agent job and stream its decision log",
	Long: `Starts a job on the agent backend (in-process unless --backend-url is set)
and prints each new log entry until the job completes or fails.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchBackendURL, "backend-url", "", "Remote agent backend (overrides agent.backend_url)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchBackendURL != "" {
		config.Agent.BackendURL = watchBackendURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	updates, cancel := application.Reconciler.Subscribe()
	defer cancel()

	jobID, err := application.Reconciler.StartJob(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Watching job %s\n\n", jobID)

	printed := 0
	for {
		select {
		case <-ctx.Done():
			application.Reconciler.Stop()
			fmt.Println("\nStopped watching")
			return nil
		case session, ok := <-updates:
			if !ok {
				return nil
			}
			if session.JobID != jobID {
				continue
			}

			// The log is replaced wholesale on every poll; print only what is new
			if len(session.LogEntries) < printed {
				printed = 0
			}
			for _, entry := range session.LogEntries[printed:] {
				printEntry(entry)
			}
			printed = len(session.LogEntries)

			if session.Status.IsTerminal() {
				fmt.Printf("\nJob %s: %s (%.0f%%)\n", jobID, session.Status, session.Progress)
				if session.Error != "" {
					fmt.Printf("Error: %s\n", session.Error)
				}
				if session.Status == models.SessionStatusError {
					return fmt.Errorf("job %s failed", jobID)
				}
				return nil
			}
		}
	}
}

func printEntry(entry models.LogEntry) {
	step := string(entry.Step)
	if entry.StepNumber != nil {
		step = fmt.Sprintf("%s #%d", step, *entry.StepNumber)
	}
	if entry.SubStep != "" {
		step += "/" + entry.SubStep
	}
	fmt.Printf("%s  %-28s %s\n", entry.Timestamp, step, entry.Message)
}
