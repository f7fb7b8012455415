package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nanoslide/nanoslide/cmd/nanoslide/ui"
	"github.com/nanoslide/nanoslide/internal/domain"
)

var genVideoCmd = &cobra.Command{
	Use:   "gen-video <pdf>",
	Short: "Render transition videos between consecutive slides",
	Long: `Render one transition clip per consecutive slide pair of the committed
plan. Each segment needs both of its endpoint slides rendered; segments with
missing endpoints fail independently and succeed on a later run once the
slides exist.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenVideo,
}

func init() {
	rootCmd.AddCommand(genVideoCmd)
}

func runGenVideo(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, orch, err := setup()
	if err != nil {
		return err
	}

	doc, err := resolveDocument(ctx, orch, args[0])
	if err != nil {
		return stageError(domain.StageVideo, err)
	}

	status, err := orch.Status(doc.ID)
	if err != nil {
		return stageError(domain.StageVideo, err)
	}

	var bar *ui.ProgressBar
	if segments := status.SlideCount - 1; status.HasPlan && segments > 0 {
		bar = ui.NewProgressBar(int64(segments), "Rendering transitions")
		orch.OnProgress(func(stage domain.Stage, unit int) {
			if stage == domain.StageVideo {
				bar.Add(1)
			}
		})
	}

	report, err := orch.RenderVideo(ctx, doc)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return stageError(domain.StageVideo, err)
	}

	printReport(report)
	return failedUnitsError(report)
}
