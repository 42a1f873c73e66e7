package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KyungWonPark/DiscountGLM/internal/bids"
	"github.com/KyungWonPark/DiscountGLM/internal/design"
	"github.com/KyungWonPark/DiscountGLM/internal/report"
)

var (
	subjectsOutputDir string
	subjectsHPFilter  float64
)

var subjectsCmd = &cobra.Command{
	Use:   "subjects",
	Short: "Screen every subject and write the list of usable ones",
	Args:  cobra.NoArgs,
	RunE:  runSubjects,
}

func init() {
	subjectsCmd.Flags().StringVar(&subjectsOutputDir, "output-dir", "", "directory to save the status tables")
	subjectsCmd.Flags().Float64Var(&subjectsHPFilter, "hp-filter", 0, "high-pass filter cutoff (Hz), defaults to the config value")

	_ = subjectsCmd.MarkFlagRequired("output-dir")
}

func runSubjects(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	hp := subjectsHPFilter
	if !cmd.Flags().Changed("hp-filter") {
		hp = cfg.HPFilterCutoff
	}

	subids, err := bids.SubjectIDs(cfg.FmriprepDir)
	if err != nil {
		return err
	}
	logger.Info("Found subjects", zap.Int("count", len(subids)))

	subjects, statuses, err := design.NewBuilder(cfg, logger).BuildMatrices(cmd.Context(), subids, cfg.TR, hp)
	if err != nil {
		return err
	}

	paths, err := report.Write(subjectsOutputDir, statuses)
	if err != nil {
		return err
	}

	logger.Info("Screening done",
		zap.Int("included", len(subjects)),
		zap.Int("excluded", len(statuses)-len(subjects)),
		zap.String("good_subids", paths.GoodSubjects),
		zap.String("status", paths.Workbook))

	return nil
}
