package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nanoslide/nanoslide/cmd/nanoslide/ui"
	"github.com/nanoslide/nanoslide/internal/domain"
)

var fuseCmd = &cobra.Command{
	Use:   "fuse <pdf>",
	Short: "Concatenate transition videos into the final video",
	Long: `Concatenate the complete, ordered set of transition segments into one
video with ffmpeg. Fusion refuses to run with gaps in the segment set and
names the missing segments instead of producing a silently shortened video.`,
	Args: cobra.ExactArgs(1),
	RunE: runFuse,
}

func init() {
	rootCmd.AddCommand(fuseCmd)
}

func runFuse(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, orch, err := setup()
	if err != nil {
		return err
	}

	doc, err := resolveDocument(ctx, orch, args[0])
	if err != nil {
		return stageError(domain.StageFused, err)
	}

	spin := ui.NewSpinner("Fusing segments...")
	spin.Start()
	report, err := orch.Fuse(ctx, doc)
	spin.Stop()
	if err != nil {
		return stageError(domain.StageFused, err)
	}

	printReport(report)
	if report.Expected > 0 && len(report.Produced)+len(report.Reused) > 0 {
		key := orch.Store().Path(fusedStoreKey(doc.ID))
		ui.Message("Fused video: %s", key)
	}
	return nil
}
