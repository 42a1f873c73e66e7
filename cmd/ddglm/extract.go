package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KyungWonPark/DiscountGLM/internal/calc"
	"github.com/KyungWonPark/DiscountGLM/internal/fmri"
	"github.com/KyungWonPark/DiscountGLM/internal/io"
)

var (
	extractInput    string
	extractOut      string
	extractMaskType string
	extractROIMask  string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Dump unscaled estimate maps under a mask as a numpy array",
	Args:  cobra.NoArgs,
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&extractInput, "input", "", "beta or contrast image")
	extractCmd.Flags().StringVar(&extractOut, "out", "", "output .npy file (volumes x voxels)")
	extractCmd.Flags().StringVar(&extractMaskType, "mask-type", fmri.MaskBrain, "brain or roi")
	extractCmd.Flags().StringVar(&extractROIMask, "roi-mask", "", "ROI mask file name under masks_dir")

	_ = extractCmd.MarkFlagRequired("input")
	_ = extractCmd.MarkFlagRequired("out")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	loader := fmri.NewLoader(cfg, calc.Init(cfg.Workers), logger)
	data, masker, err := loader.LoadEstimates(extractInput, extractMaskType, extractROIMask)
	if err != nil {
		return err
	}

	if err := io.Mat64toNpy(extractOut, data); err != nil {
		return err
	}

	rows, _ := data.Dims()
	logger.Info("Extracted estimates",
		zap.String("input", extractInput),
		zap.Int("volumes", rows),
		zap.Int("voxels", masker.Len()),
		zap.String("out", extractOut))
	return nil
}
