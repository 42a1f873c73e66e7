package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KyungWonPark/DiscountGLM/internal/calc"
	"github.com/KyungWonPark/DiscountGLM/internal/config"
	"github.com/KyungWonPark/DiscountGLM/internal/design"
	"github.com/KyungWonPark/DiscountGLM/internal/fmri"
	"github.com/KyungWonPark/DiscountGLM/internal/glm"
	"github.com/KyungWonPark/DiscountGLM/internal/provenance"
)

var (
	// ErrBadSubjectID is returned for subject ids not of the form s###
	ErrBadSubjectID = errors.New("subject id must look like s###")
	// ErrExcluded is returned when the requested subject fails screening
	ErrExcluded = errors.New("subject excluded")

	subIDPattern = regexp.MustCompile(`^s\d+$`)
)

var (
	lsaSubID         string
	lsaOutputDir     string
	lsaHPFilter      float64
	lsaMaskType      string
	lsaROIMask       string
	lsaAddDerivative bool
)

var lsaCmd = &cobra.Command{
	Use:   "lsa",
	Short: "Estimate one beta map per trial for a single subject",
	Long: `Runs the least-squares-all model for one subject:
  1. screen the subject and build its design matrix
  2. load the BOLD run and scale its in-brain grand mean to 100
  3. estimate OLS betas for every voxel
  4. write the trial beta series, its labels, the design matrix and a provenance file`,
	Args: cobra.NoArgs,
	RunE: runLSA,
}

func init() {
	lsaCmd.Flags().StringVar(&lsaSubID, "subid", "", "subject id (format: s###)")
	lsaCmd.Flags().StringVar(&lsaOutputDir, "output-dir", "", "directory to save outputs")
	lsaCmd.Flags().Float64Var(&lsaHPFilter, "hp-filter", config.DefaultHPFilterCutoff, "high-pass filter cutoff (Hz), defaults to the config value")
	lsaCmd.Flags().StringVar(&lsaMaskType, "mask-type", fmri.MaskBrain, "brain or roi")
	lsaCmd.Flags().StringVar(&lsaROIMask, "roi-mask", "", "ROI mask file name under masks_dir")
	lsaCmd.Flags().BoolVar(&lsaAddDerivative, "add-derivative", false, "add HRF time-derivative regressors")

	_ = lsaCmd.MarkFlagRequired("subid")
	_ = lsaCmd.MarkFlagRequired("output-dir")
}

func validateSubID(subID string) error {
	if !subIDPattern.MatchString(subID) {
		return fmt.Errorf("%w: %q", ErrBadSubjectID, subID)
	}
	return nil
}

func runLSA(cmd *cobra.Command, args []string) error {
	if err := validateSubID(lsaSubID); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	hp := lsaHPFilter
	if !cmd.Flags().Changed("hp-filter") {
		hp = cfg.HPFilterCutoff
	}

	log := logger.With(zap.String("sub_id", lsaSubID))
	ctx := cmd.Context()

	builder := design.NewBuilder(cfg, logger)
	builder.AddDerivative = lsaAddDerivative

	subjects, statuses, err := builder.BuildMatrices(ctx, []string{lsaSubID}, cfg.TR, hp)
	if err != nil {
		return err
	}
	if len(subjects) == 0 {
		return fmt.Errorf("sub-%s: %w: %s", lsaSubID, ErrExcluded, statuses[0].Reason)
	}
	dm := subjects[0].Design
	log.Info("Design matrix ready", zap.Strings("columns", dm.Columns))

	pl := calc.Init(cfg.Workers)
	loader := fmri.NewLoader(cfg, pl, logger)

	log.Info("Loading data", zap.String("bold", subjects[0].BoldPath), zap.String("mask_type", lsaMaskType))
	data, masker, err := loader.LoadAndScale(lsaSubID, lsaMaskType, lsaROIMask)
	if err != nil {
		return err
	}

	log.Info("Computing betas", zap.Int("voxels", masker.Len()))
	betas, err := glm.ComputeBetas(dm.X, data, pl)
	if err != nil {
		return fmt.Errorf("sub-%s: %w", lsaSubID, err)
	}

	log.Info("Saving")
	series, err := glm.SaveBetaSeries(betas, dm, masker, lsaSubID, lsaOutputDir)
	if err != nil {
		return err
	}
	log.Info("Saved beta series", zap.String("file", series.BetaFile))
	log.Info("Saved labels", zap.String("file", series.LabelsFile))

	prefix := filepath.Join(lsaOutputDir, fmt.Sprintf("sub-%s_design_matrix", lsaSubID))
	if err := dm.WriteCSV(prefix + ".csv"); err != nil {
		return err
	}
	if err := dm.WriteNpy(prefix + ".npy"); err != nil {
		return err
	}

	path, err := provenance.Write(ctx, lsaOutputDir, "lsa", map[string]any{
		"subid":          lsaSubID,
		"hp_filter":      hp,
		"tr":             cfg.TR,
		"mask_type":      lsaMaskType,
		"roi_mask":       lsaROIMask,
		"add_derivative": lsaAddDerivative,
		"n_betas":        len(series.Labels),
		"config":         configPath,
	})
	if err != nil {
		return err
	}
	log.Debug("Wrote provenance", zap.String("file", path))

	return nil
}
