// Package detector orchestrates one duplicate-detection run over a batch.
//
// A run preprocesses raw rows, removes invoice/reversal pairs, groups the
// remaining records once per scenario and finally merges the scenario
// outputs in the cross-scenario deduplicator. Scenarios run concurrently;
// deduplication starts only after every scenario has finished.
//
// Example usage:
//
//	d, err := detector.NewDetector(detector.DefaultConfig(), nil)
//	if err != nil {
//		return err
//	}
//	d.AddProgressCallback(func(p detector.Progress) {
//		fmt.Printf("%.0f%% %s\n", p.PercentComplete, p.CurrentStep)
//	})
//	result, err := d.Run(ctx, rawInvoices, scenarios)
package detector

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"golang-invoice-dedup-service/internal/dedup"
	"golang-invoice-dedup-service/internal/grouping"
	"golang-invoice-dedup-service/internal/models"
	"golang-invoice-dedup-service/internal/preprocess"
	"golang-invoice-dedup-service/internal/reversal"
	"golang-invoice-dedup-service/internal/similarity"
	apperrors "golang-invoice-dedup-service/pkg/errors"
	"golang-invoice-dedup-service/pkg/logger"
)

// Config contains the configuration of every stage of a run.
type Config struct {
	// MaxScenarioWorkers bounds how many scenarios are grouped at once.
	MaxScenarioWorkers int `mapstructure:"max_scenario_workers"`

	// VerifyInvariants re-checks the final group set before returning it.
	VerifyInvariants bool `mapstructure:"verify_invariants"`

	// MatchReversals enables the reversal pre-filter.
	MatchReversals bool `mapstructure:"match_reversals"`

	Preprocessing *preprocess.Config `mapstructure:"preprocessing"`
	Reversal      *reversal.Config   `mapstructure:"reversal"`
	Similarity    *similarity.Config `mapstructure:"similarity"`
	Grouping      *grouping.Config   `mapstructure:"grouping"`
}

// DefaultConfig returns the default run configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxScenarioWorkers: runtime.GOMAXPROCS(0),
		VerifyInvariants:   true,
		MatchReversals:     true,
		Preprocessing:      preprocess.DefaultConfig(),
		Reversal:           reversal.DefaultConfig(),
		Similarity:         similarity.DefaultConfig(),
		Grouping:           grouping.DefaultConfig(),
	}
}

// Validate validates the configuration parameters
func (c *Config) Validate() error {
	if c.MaxScenarioWorkers < 1 {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "max_scenario_workers", c.MaxScenarioWorkers,
			fmt.Errorf("must be at least 1"))
	}
	if c.Similarity != nil {
		if err := c.Similarity.Validate(); err != nil {
			return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "similarity", nil, err)
		}
	}
	if c.Grouping != nil {
		if err := c.Grouping.Validate(); err != nil {
			return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "grouping", nil, err)
		}
	}
	if c.Preprocessing != nil {
		if err := c.Preprocessing.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ScenarioFailure reports a scenario that could not run. Other scenarios
// are unaffected.
type ScenarioFailure struct {
	ScenarioID int                      `json:"scenario_id"`
	Name       string                   `json:"name"`
	Message    string                   `json:"error"`
	Err        *apperrors.DetectorError `json:"-"`
}

// RunResult is everything one run produced.
type RunResult struct {
	RunID           string                  `json:"run_id"`
	Groups          []models.DuplicateGroup `json:"groups"`
	Rows            []models.DuplicateRow   `json:"rows"`
	ReversalMatches []models.ReversalMatch  `json:"reversal_matches"`
	ReversalStats   reversal.Stats          `json:"reversal_stats"`
	Reports         []*grouping.Report      `json:"scenario_reports"`
	Failures        []ScenarioFailure       `json:"failures,omitempty"`
	DedupStats      dedup.Stats             `json:"dedup_stats"`
	Removed         []dedup.Removal         `json:"removed_groups,omitempty"`
	Preprocess      *preprocess.Result      `json:"preprocess,omitempty"`
	StartedAt       time.Time               `json:"started_at"`
	Duration        time.Duration           `json:"duration"`
}

// Progress describes where a run currently is.
type Progress struct {
	TotalSteps      int           `json:"total_steps"`
	CompletedSteps  int           `json:"completed_steps"`
	CurrentStep     string        `json:"current_step"`
	PercentComplete float64       `json:"percent_complete"`
	ElapsedTime     time.Duration `json:"elapsed_time"`
	ScenariosDone   int           `json:"scenarios_done"`
	ScenariosTotal  int           `json:"scenarios_total"`
}

// ProgressCallback receives a snapshot of the run progress.
type ProgressCallback func(Progress)

const totalSteps = 5

// Detector runs detection batches. A Detector may be reused for several
// runs but runs must not overlap if progress callbacks are registered.
type Detector struct {
	config       *Config
	preprocessor *preprocess.Preprocessor
	matcher      *reversal.Matcher
	grouper      *grouping.Grouper
	deduplicator *dedup.Deduplicator
	logger       logger.Logger

	progressCallbacks []ProgressCallback
	progress          Progress
	progressStart     time.Time
	progressMutex     sync.Mutex
}

// NewDetector builds every stage from config. classifier may be nil.
func NewDetector(config *Config, classifier preprocess.NameClassifier) (*Detector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	pre, err := preprocess.NewPreprocessor(config.Preprocessing, classifier)
	if err != nil {
		return nil, err
	}

	return &Detector{
		config:       config,
		preprocessor: pre,
		matcher:      reversal.NewMatcher(config.Reversal),
		grouper:      grouping.NewGrouper(config.Grouping),
		deduplicator: dedup.NewDeduplicator(),
		logger:       logger.GetGlobalLogger().WithComponent("detector"),
	}, nil
}

// AddProgressCallback registers a progress callback.
func (d *Detector) AddProgressCallback(callback ProgressCallback) {
	d.progressCallbacks = append(d.progressCallbacks, callback)
}

// Run preprocesses raw rows and detects duplicates among them.
func (d *Detector) Run(ctx context.Context, raws []*models.RawInvoice, scenarios []models.Scenario) (*RunResult, error) {
	d.startProgress()
	d.updateProgress("Preprocessing", 0)

	pre := d.preprocessor.Process(raws)
	result, err := d.detect(ctx, pre.Records, scenarios)
	if result != nil {
		result.Preprocess = pre
	}
	return result, err
}

// DetectRecords runs detection on records that are already preprocessed.
func (d *Detector) DetectRecords(ctx context.Context, records []*models.InvoiceRecord, scenarios []models.Scenario) (*RunResult, error) {
	d.startProgress()
	return d.detect(ctx, records, scenarios)
}

func (d *Detector) detect(ctx context.Context, records []*models.InvoiceRecord, scenarios []models.Scenario) (*RunResult, error) {
	result := &RunResult{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}
	op := logger.NewOperationLogger("duplicate_detection", d.logger).
		WithField("run_id", result.RunID).
		WithField("records", len(records)).
		WithField("scenarios", len(scenarios))

	if err := checkPrimaryKeys(records); err != nil {
		op.Error(err, "Input records rejected")
		return nil, err
	}

	d.updateProgress("Matching reversals", 1)
	if d.config.MatchReversals {
		rev := d.matcher.Match(records)
		records = rev.Records
		result.ReversalMatches = rev.Matches
		result.ReversalStats = rev.Stats
		op.Step("reversal_matching", logger.Fields{
			"matched":   rev.Stats.Matched,
			"ambiguous": rev.Stats.Ambiguous,
			"remaining": len(records),
		})
	}

	d.updateProgress("Compiling scenarios", 2)
	compiled, failures, err := d.compileScenarios(scenarios)
	if err != nil {
		op.Error(err, "No scenario to run")
		return nil, err
	}
	result.Failures = failures
	for _, f := range failures {
		op.Warning("Scenario skipped", logger.Fields{"scenario_id": f.ScenarioID, "error": f.Message})
	}

	d.updateProgress("Grouping scenarios", 3)
	d.setScenarioTotal(len(compiled))
	groups, reports, err := d.runScenarios(ctx, compiled, records)
	if err != nil {
		op.Error(err, "Scenario grouping failed")
		return nil, err
	}
	result.Reports = reports
	op.Step("grouping", logger.Fields{"groups": len(groups)})

	d.updateProgress("Deduplicating", 4)
	deduped, err := d.deduplicator.Deduplicate(groups)
	if err != nil {
		op.Error(err, "Deduplication failed")
		return nil, err
	}
	if d.config.VerifyInvariants {
		if err := dedup.VerifyInvariants(deduped.Groups); err != nil {
			op.Error(err, "Invariant check failed")
			return nil, err
		}
	}

	result.Groups = deduped.Groups
	result.Rows = deduped.FilterRows(dedup.Rows(groups))
	result.DedupStats = deduped.Stats
	result.Removed = deduped.Removed
	result.Duration = time.Since(result.StartedAt)

	d.updateProgress("Completed", totalSteps)
	op.Success("Duplicate detection completed", logger.Fields{
		"groups":          len(result.Groups),
		"rows":            len(result.Rows),
		"failed":          len(result.Failures),
		"exact_removed":   result.DedupStats.ExactDuplicatesRemoved,
		"subsets_removed": result.DedupStats.SubsetsRemoved,
	})

	return result, nil
}

// compileScenarios resolves every enabled scenario. Scenarios that fail to
// compile, or that reuse an id, become failures; the run only fails when
// no scenario was given at all.
func (d *Detector) compileScenarios(scenarios []models.Scenario) ([]*grouping.CompiledScenario, []ScenarioFailure, error) {
	if len(scenarios) == 0 {
		return nil, nil, apperrors.ConfigurationError(apperrors.CodeMissingConfig, "scenarios", nil, nil).
			WithSuggestion("Provide at least one scenario")
	}

	var compiled []*grouping.CompiledScenario
	var failures []ScenarioFailure
	seen := make(map[int]struct{}, len(scenarios))

	for _, s := range scenarios {
		if s.Disabled {
			d.logger.WithField("scenario_id", s.ScenarioID).Debug("Scenario disabled")
			continue
		}
		if _, dup := seen[s.ScenarioID]; dup {
			failures = append(failures, newFailure(s, apperrors.ConfigurationError(apperrors.CodeDuplicateConfig,
				"scenario_id", s.ScenarioID, nil)))
			continue
		}
		seen[s.ScenarioID] = struct{}{}

		cs, err := grouping.Compile(s, d.config.Similarity)
		if err != nil {
			de, ok := apperrors.AsDetectorError(err)
			if !ok {
				de = apperrors.Wrap(err, apperrors.CategoryConfiguration, apperrors.CodeInvalidConfig, "scenario compilation failed")
			}
			failures = append(failures, newFailure(s, de))
			continue
		}
		compiled = append(compiled, cs)
	}

	sort.Slice(compiled, func(i, j int) bool {
		return compiled[i].Scenario.ScenarioID < compiled[j].Scenario.ScenarioID
	})
	return compiled, failures, nil
}

func newFailure(s models.Scenario, err *apperrors.DetectorError) ScenarioFailure {
	return ScenarioFailure{
		ScenarioID: s.ScenarioID,
		Name:       s.Name,
		Message:    err.Error(),
		Err:        err,
	}
}

// runScenarios groups every compiled scenario concurrently and waits for
// all of them. Outputs are returned in scenario order.
func (d *Detector) runScenarios(ctx context.Context, compiled []*grouping.CompiledScenario, records []*models.InvoiceRecord) ([]models.DuplicateGroup, []*grouping.Report, error) {
	perScenario := make([][]models.DuplicateGroup, len(compiled))
	reports := make([]*grouping.Report, len(compiled))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.MaxScenarioWorkers)

	for i, cs := range compiled {
		g.Go(func() error {
			groups, report, err := d.grouper.Group(gctx, cs, records)
			if err != nil {
				if _, ok := apperrors.AsDetectorError(err); ok {
					return err
				}
				return apperrors.InternalError(apperrors.CodeUnexpectedError,
					fmt.Sprintf("grouping scenario %d", cs.Scenario.ScenarioID), err)
			}
			perScenario[i] = groups
			reports[i] = report
			d.scenarioDone()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var all []models.DuplicateGroup
	for _, groups := range perScenario {
		all = append(all, groups...)
	}
	return all, reports, nil
}

// checkPrimaryKeys rejects batches whose primary keys are not unique.
func checkPrimaryKeys(records []*models.InvoiceRecord) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.PrimaryKey]; dup {
			return apperrors.InvariantViolation(apperrors.CodeKeyNotUnique,
				fmt.Sprintf("primary key %q occurs more than once in the batch", r.PrimaryKey))
		}
		seen[r.PrimaryKey] = struct{}{}
	}
	return nil
}

func (d *Detector) startProgress() {
	d.progressMutex.Lock()
	defer d.progressMutex.Unlock()
	d.progress = Progress{TotalSteps: totalSteps}
	d.progressStart = time.Now()
}

func (d *Detector) updateProgress(step string, completed int) {
	d.progressMutex.Lock()
	defer d.progressMutex.Unlock()

	d.progress.CurrentStep = step
	d.progress.CompletedSteps = completed
	d.progress.ElapsedTime = time.Since(d.progressStart)
	d.progress.PercentComplete = float64(completed) / float64(d.progress.TotalSteps) * 100
	d.notify()
}

func (d *Detector) setScenarioTotal(n int) {
	d.progressMutex.Lock()
	defer d.progressMutex.Unlock()
	d.progress.ScenariosTotal = n
	d.progress.ScenariosDone = 0
}

func (d *Detector) scenarioDone() {
	d.progressMutex.Lock()
	defer d.progressMutex.Unlock()
	d.progress.ScenariosDone++
	d.progress.ElapsedTime = time.Since(d.progressStart)
	d.notify()
}

// notify must be called with progressMutex held.
func (d *Detector) notify() {
	for _, callback := range d.progressCallbacks {
		callback(d.progress)
	}
}
