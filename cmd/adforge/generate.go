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
	"github.com/ternarybob/adforge/internal/report"
)

var (
	generateProduct   string
	generateAudiences string
	generateReport    string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one campaign per audience and render their images",
	Example: `  adforge generate --product "A smart mug that keeps coffee hot" \
    --audiences "Remote Workers, Students" --report campaign.html`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateProduct, "product", "", "Product description")
	generateCmd.Flags().StringVar(&generateAudiences, "audiences", "", "Target audiences (comma-separated)")
	generateCmd.Flags().StringVar(&generateReport, "report", "", "Write an HTML report to this path")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	req := models.GenerateRequest{ProductDescription: generateProduct, Audiences: generateAudiences}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid input: %s", models.ValidationMessage(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	fmt.Println("Drafting campaigns...")
	run, err := application.Orchestrator.RunGeneration(ctx, req.ProductDescription, req.Audiences)
	if err != nil {
		return err
	}

	fmt.Printf("%d campaigns drafted, rendering images...\n", len(run.Drafted().Items))

	snapshot, err := run.Wait(ctx)
	if err != nil {
		return err
	}

	printRun(snapshot)

	if generateReport != "" {
		page, err := report.RenderHTML(snapshot)
		if err != nil {
			return err
		}
		if err := os.WriteFile(generateReport, page, 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Printf("\nReport written to %s\n", generateReport)
	}

	return nil
}

func printRun(snapshot models.RunSnapshot) {
	_, ready, failed := snapshot.Counts()
	fmt.Printf("\nRun %d: %s (%d ready, %d failed)\n", snapshot.Token, snapshot.Status, ready, failed)

	for i, item := range snapshot.Items {
		fmt.Printf("\n[%d] %s\n", i+1, item.Audience)
		fmt.Printf("    Script: %s\n", item.Script)
		switch item.Image.Status {
		case models.ImageStatusReady:
			fmt.Printf("    Image:  ready (%d bytes)\n", len(item.Image.Ref))
		case models.ImageStatusFailed:
			fmt.Printf("    Image:  failed - %s\n", item.Image.Error)
		default:
			fmt.Printf("    Image:  pending\n")
		}
	}
}
