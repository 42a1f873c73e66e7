package design

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KyungWonPark/DiscountGLM/internal/bids"
	"github.com/KyungWonPark/DiscountGLM/internal/config"
	"github.com/KyungWonPark/DiscountGLM/internal/io"
)

// PassedReason is the status reason of an included subject
const PassedReason = "Passed all checks"

// Subject is a subject that passed screening
type Subject struct {
	ID       string
	BoldPath string
	Design   *Matrix
}

// Status records why a subject was included or skipped
type Status struct {
	SubID   string
	Include bool
	Reason  string
}

// Builder screens subjects and builds their design matrices
type Builder struct {
	cfg    *config.Config
	logger *zap.Logger

	// AddDerivative adds HRF time-derivative regressors
	AddDerivative bool
}

// NewBuilder returns a Builder; a nil logger discards output
func NewBuilder(cfg *config.Config, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{cfg: cfg, logger: logger}
}

// BuildMatrices screens each subject and builds first-level design matrices
// for the ones that pass. Statuses come back in input order, one per subject.
func (b *Builder) BuildMatrices(ctx context.Context, subids []string, tr, hpCutoff float64) ([]Subject, []Status, error) {
	exclusions, err := bids.LoadExclusions(b.cfg)
	if err != nil {
		return nil, nil, err
	}

	results := make([]*Subject, len(subids))
	statuses := make([]Status, len(subids))

	workers := b.cfg.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, subid := range subids {
		i, subid := i, subid
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i], statuses[i] = b.screen(subid, exclusions, tr, hpCutoff)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var valid []Subject
	for _, s := range results {
		if s != nil {
			valid = append(valid, *s)
		}
	}

	return valid, statuses, nil
}

func (b *Builder) screen(subid string, exclusions *bids.Exclusions, tr, hpCutoff float64) (*Subject, Status) {
	log := b.logger.With(zap.String("sub_id", subid))
	log.Info("Processing subject")

	skip := func(reason string) (*Subject, Status) {
		log.Info("Skipping subject", zap.String("reason", reason))
		return nil, Status{SubID: subid, Include: false, Reason: reason}
	}

	behavFile, err := bids.ResolveFile(b.cfg, subid, bids.Behav)
	if err != nil {
		return skip(fmt.Sprintf("behav missing: %v", err))
	}
	events, err := bids.LoadEvents(behavFile)
	if err != nil {
		return skip(fmt.Sprintf("behav missing: %v", err))
	}

	if met := exclusions.Criteria(subid); len(met) > 0 {
		return skip("met suggested_exclusion.csv criteria: " + strings.Join(met, ", "))
	}

	numSS := events.Count(bids.SmallerSooner)
	numLL := events.Count(bids.LargerLater)
	if numSS == 0 || numLL == 0 {
		return skip(fmt.Sprintf("singular response: %d smaller sooner / %d larger later", numSS, numLL))
	}

	boldFile, err := bids.ResolveFile(b.cfg, subid, bids.Bold)
	if err != nil {
		return skip(fmt.Sprintf("BOLD missing: %v", err))
	}

	hdr, err := io.ReadHeader(boldFile)
	if err != nil {
		return skip(fmt.Sprintf("cannot read BOLD header: %v", err))
	}
	nScans := io.Volumes(hdr)
	scanDuration := float64(nScans) * tr

	trials, kept, dropped := TrialEvents(events)
	if dropped > 0 {
		log.Info("Removing trials with negative onsets", zap.Int("count", dropped))
	}

	if maxOnset := kept.MaxOnset(); len(kept) > 0 && maxOnset > scanDuration {
		return skip(fmt.Sprintf("onset beyond scan duration: max onset=%.2fs, scan duration=%.2fs", maxOnset, scanDuration))
	}

	dm, err := Build(trials, BuildOptions{
		HPFilterCutoff: hpCutoff,
		Oversampling:   b.cfg.Oversampling,
		TR:             tr,
		NumTRs:         nScans,
		AddDerivative:  b.AddDerivative,
	})
	if err != nil {
		return skip(fmt.Sprintf("design matrix error: %v", err))
	}

	_, nCols := dm.Dims()
	log.Debug("Built design matrix", zap.Int("num_trs", nScans), zap.Int("regressors", nCols))

	return &Subject{ID: subid, BoldPath: boldFile, Design: dm},
		Status{SubID: subid, Include: true, Reason: PassedReason}
}

// TrialEvents drops trials with negative onsets and names every remaining
// responded trial <choice>_<1-based trial number in the file>. It returns the
// named trials, all kept rows and the number of dropped rows.
func TrialEvents(events bids.Events) ([]Event, bids.Events, int) {
	var trials []Event
	var kept bids.Events
	dropped := 0

	for i, e := range events {
		if e.Onset < 0 {
			dropped++
			continue
		}
		kept = append(kept, e)

		if !e.Responded() {
			continue
		}
		trials = append(trials, Event{
			Onset:     e.Onset,
			Duration:  e.Duration,
			TrialType: e.Choice + "_" + strconv.Itoa(i+1),
		})
	}

	return trials, kept, dropped
}
