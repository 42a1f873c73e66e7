package fmri

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/gonum/matrix/mat64"
	"go.uber.org/zap"

	"github.com/KyungWonPark/DiscountGLM/internal/bids"
	"github.com/KyungWonPark/DiscountGLM/internal/calc"
	"github.com/KyungWonPark/DiscountGLM/internal/config"
)

// Mask types
const (
	MaskBrain = "brain"
	MaskROI   = "roi"
)

// GrandMeanTarget is the value the in-brain grand mean is scaled to
const GrandMeanTarget = 100.0

var (
	// ErrUnknownMaskType is returned for mask types other than brain and roi
	ErrUnknownMaskType = errors.New("unknown mask type")
	// ErrROIRequired is returned when an roi mask type comes without a mask name
	ErrROIRequired = errors.New("roi mask name must be provided for mask type roi")
	// ErrBadGrandMean is returned when the in-brain mean cannot be scaled
	ErrBadGrandMean = errors.New("grand mean is zero or not finite")
)

// Loader loads subject BOLD runs and estimate maps under brain or ROI masks
type Loader struct {
	cfg    *config.Config
	pl     *calc.PipeLine
	logger *zap.Logger
}

// NewLoader returns a Loader; a nil pipeline uses one worker per CPU and a
// nil logger discards output
func NewLoader(cfg *config.Config, pl *calc.PipeLine, logger *zap.Logger) *Loader {
	if pl == nil {
		pl = calc.Init(cfg.Workers)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{cfg: cfg, pl: pl, logger: logger}
}

// GrandMeanScale masks the subject's BOLD run with its fmriprep brain mask and
// scales it so that the mean over all masked samples is 100. It returns the
// scale factor, the scaled (time x voxel) data and the brain masker.
func (l *Loader) GrandMeanScale(subID string) (float64, *mat64.Dense, *Masker, error) {
	bold, err := l.openBold(subID)
	if err != nil {
		return 0, nil, nil, err
	}
	return l.grandMeanScale(subID, bold)
}

func (l *Loader) grandMeanScale(subID string, bold *Volume) (float64, *mat64.Dense, *Masker, error) {
	maskFile, err := bids.ResolveFile(l.cfg, subID, bids.Mask)
	if err != nil {
		return 0, nil, nil, err
	}
	brainMask, err := Open(maskFile)
	if err != nil {
		return 0, nil, nil, err
	}
	masker, err := NewMasker(brainMask, brainMask.Header)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%s: %w", maskFile, err)
	}

	data, err := masker.Transform(bold, l.pl.Workers())
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%s: %w", bold.Path, err)
	}

	factor, err := l.ScaleToGrandMean(data)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("sub-%s: %w", subID, err)
	}

	l.logger.Debug("Grand mean scaled",
		zap.String("sub_id", subID),
		zap.Int("voxels", masker.Len()),
		zap.Float64("scale_factor", factor))

	return factor, data, masker, nil
}

// ScaleToGrandMean scales data in place to a grand mean of 100 and returns
// the factor applied
func (l *Loader) ScaleToGrandMean(data *mat64.Dense) (float64, error) {
	mean := l.pl.Mean(data)
	if mean == 0 || math.IsNaN(mean) || math.IsInf(mean, 0) {
		return 0, fmt.Errorf("%w: %g", ErrBadGrandMean, mean)
	}

	factor := GrandMeanTarget / mean
	if err := l.pl.Scale(data, data, factor); err != nil {
		return 0, err
	}
	return factor, nil
}

// LoadAndScale returns the subject's grand-mean scaled BOLD data under the
// brain mask or a named ROI mask. ROI data use the scale factor of the whole
// brain.
func (l *Loader) LoadAndScale(subID, maskType, roiName string) (*mat64.Dense, *Masker, error) {
	roiFile, err := l.maskFile(maskType, roiName)
	if err != nil {
		return nil, nil, err
	}

	bold, err := l.openBold(subID)
	if err != nil {
		return nil, nil, err
	}

	factor, scaled, brainMasker, err := l.grandMeanScale(subID, bold)
	if err != nil {
		return nil, nil, err
	}
	if maskType == MaskBrain {
		return scaled, brainMasker, nil
	}

	roiMasker, err := l.resampledMasker(roiFile, bold)
	if err != nil {
		return nil, nil, err
	}
	data, err := roiMasker.Transform(bold, l.pl.Workers())
	if err != nil {
		return nil, nil, err
	}
	if err := l.pl.Scale(data, data, factor); err != nil {
		return nil, nil, err
	}

	l.logger.Debug("Loaded ROI data",
		zap.String("sub_id", subID),
		zap.String("roi", roiName),
		zap.Int("voxels", roiMasker.Len()))

	return data, roiMasker, nil
}

// LoadEstimates returns unscaled estimate maps (betas, contrasts) as a
// (volume x voxel) matrix under the group brain mask or a named ROI mask
func (l *Loader) LoadEstimates(file, maskType, roiName string) (*mat64.Dense, *Masker, error) {
	if _, err := os.Stat(file); err != nil {
		return nil, nil, fmt.Errorf("estimate file: %w", err)
	}

	var maskFile string
	switch maskType {
	case MaskBrain:
		maskFile = l.cfg.BrainMaskFile()
		if _, err := os.Stat(maskFile); err != nil {
			return nil, nil, fmt.Errorf("brain mask: %w", err)
		}
	default:
		var err error
		if maskFile, err = l.maskFile(maskType, roiName); err != nil {
			return nil, nil, err
		}
	}

	estimates, err := Open(file)
	if err != nil {
		return nil, nil, err
	}

	var masker *Masker
	if maskType == MaskBrain {
		mask, err := Open(maskFile)
		if err != nil {
			return nil, nil, err
		}
		if masker, err = NewMasker(mask, mask.Header); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", maskFile, err)
		}
	} else if masker, err = l.resampledMasker(maskFile, estimates); err != nil {
		return nil, nil, err
	}

	data, err := masker.Transform(estimates, l.pl.Workers())
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", file, err)
	}
	return data, masker, nil
}

// maskFile validates the mask type and returns the ROI mask path, empty for
// the brain mask
func (l *Loader) maskFile(maskType, roiName string) (string, error) {
	switch maskType {
	case MaskBrain:
		return "", nil
	case MaskROI:
		if roiName == "" {
			return "", ErrROIRequired
		}
		path := filepath.Join(l.cfg.MasksDir, roiName)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("roi mask: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMaskType, maskType)
}

func (l *Loader) resampledMasker(maskFile string, target *Volume) (*Masker, error) {
	roi, err := Open(maskFile)
	if err != nil {
		return nil, err
	}
	grid, err := ResampleNearest(roi, roi.Header, target.Header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", maskFile, err)
	}
	masker, err := NewMasker(grid, target.Header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", maskFile, err)
	}
	return masker, nil
}

func (l *Loader) openBold(subID string) (*Volume, error) {
	boldFile, err := bids.ResolveFile(l.cfg, subID, bids.Bold)
	if err != nil {
		return nil, err
	}
	return Open(boldFile)
}
