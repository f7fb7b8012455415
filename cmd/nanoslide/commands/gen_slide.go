package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nanoslide/nanoslide/cmd/nanoslide/ui"
	"github.com/nanoslide/nanoslide/internal/domain"
)

var genSlideCmd = &cobra.Command{
	Use:   "gen-slide <pdf>",
	Short: "Render slide images and assemble the presentation",
	Long: `Render one image per slide of the committed plan and pack the results
into a presentation file. Slides that are already rendered for the current
plan are skipped; failed slides are reported and can be filled in by
rerunning the command.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenSlide,
}

func init() {
	rootCmd.AddCommand(genSlideCmd)
}

func runGenSlide(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, orch, err := setup()
	if err != nil {
		return err
	}

	doc, err := resolveDocument(ctx, orch, args[0])
	if err != nil {
		return stageError(domain.StageSlides, err)
	}

	status, err := orch.Status(doc.ID)
	if err != nil {
		return stageError(domain.StageSlides, err)
	}

	var bar *ui.ProgressBar
	if status.HasPlan && status.SlideCount > 0 {
		bar = ui.NewProgressBar(int64(status.SlideCount), "Rendering slides")
		orch.OnProgress(func(stage domain.Stage, unit int) {
			if stage == domain.StageSlides {
				bar.Add(1)
			}
		})
	}

	reports, err := orch.RenderSlides(ctx, doc)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return stageError(domain.StageSlides, err)
	}

	for _, r := range reports {
		printReport(r)
	}
	return failedUnitsError(reports...)
}
