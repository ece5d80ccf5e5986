// Package grouping turns pairwise similarity decisions into duplicate
// groups for one scenario. Records are bucketed on the scenario's grouping
// columns and only compared within a bucket, so the comparison cost is the
// sum of squared bucket sizes rather than the square of the batch size.
package grouping

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"golang-invoice-dedup-service/internal/models"
	apperrors "golang-invoice-dedup-service/pkg/errors"
	"golang-invoice-dedup-service/pkg/logger"
)

// Config controls bucket fan-out.
type Config struct {
	// MaxBucketWorkers bounds concurrent bucket comparisons per scenario.
	MaxBucketWorkers int `mapstructure:"max_bucket_workers"`

	// SkipHistoricalPairs skips pairs in which neither record is current
	// data, so every group contains at least one current record. Off by
	// default: records built without IsCurrentData still group.
	SkipHistoricalPairs bool `mapstructure:"skip_historical_pairs"`

	// ProgressInterval is how often comparison progress is logged.
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
}

// DefaultConfig returns the default grouping configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxBucketWorkers:    runtime.GOMAXPROCS(0),
		SkipHistoricalPairs: false,
		ProgressInterval:    5 * time.Second,
	}
}

// Validate validates the configuration parameters
func (c *Config) Validate() error {
	if c.MaxBucketWorkers < 1 {
		return fmt.Errorf("max bucket workers must be at least 1, got %d", c.MaxBucketWorkers)
	}
	return nil
}

// Report summarises the grouping of one scenario.
type Report struct {
	ScenarioID      int            `json:"scenario_id"`
	Buckets         int            `json:"buckets"`
	Comparisons     int64          `json:"comparisons"`
	Edges           int            `json:"edges"`
	Groups          int            `json:"groups"`
	ExcludedRecords int            `json:"excluded_records"`
	ExcludedBy      map[string]int `json:"excluded_by,omitempty"`
	Duration        time.Duration  `json:"duration"`
}

// Grouper builds duplicate groups for compiled scenarios.
type Grouper struct {
	config *Config
	logger logger.Logger
}

// NewGrouper creates a grouper; a nil config selects DefaultConfig.
func NewGrouper(config *Config) *Grouper {
	if config == nil {
		config = DefaultConfig()
	}
	return &Grouper{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("grouper"),
	}
}

type bucket struct {
	index   int
	members []*models.InvoiceRecord
}

type bucketOutcome struct {
	index       int
	groups      []models.DuplicateGroup
	comparisons int64
	edges       int
}

// Group runs one scenario over records. Records missing a grouping or
// comparison value are excluded from this scenario only.
func (g *Grouper) Group(ctx context.Context, cs *CompiledScenario, records []*models.InvoiceRecord) ([]models.DuplicateGroup, *Report, error) {
	start := time.Now()
	log := g.logger.WithField("scenario_id", cs.Scenario.ScenarioID)
	report := &Report{ScenarioID: cs.Scenario.ScenarioID, ExcludedBy: make(map[string]int)}

	buckets, totalPairs := g.partition(cs, records, report, log)
	report.Buckets = len(buckets)

	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation:   fmt.Sprintf("scenario %d comparisons", cs.Scenario.ScenarioID),
		Total:       totalPairs,
		LogInterval: g.config.ProgressInterval,
		Logger:      log,
	})

	p := pool.NewWithResults[bucketOutcome]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(g.config.MaxBucketWorkers)

	for _, b := range buckets {
		p.Go(func(ctx context.Context) (bucketOutcome, error) {
			if err := ctx.Err(); err != nil {
				return bucketOutcome{}, err
			}
			out := g.groupBucket(cs, b)
			progress.Add(out.comparisons)
			return out, nil
		})
	}

	outcomes, err := p.Wait()
	if err != nil {
		return nil, report, err
	}
	progress.Complete()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].index < outcomes[j].index })

	var groups []models.DuplicateGroup
	for _, out := range outcomes {
		report.Comparisons += out.comparisons
		report.Edges += out.edges
		groups = append(groups, out.groups...)
	}

	for _, grp := range groups {
		if grp.Size() < 2 {
			return nil, report, apperrors.InvariantViolation(apperrors.CodeGroupTooSmall,
				fmt.Sprintf("scenario %d produced group %s with %d member(s)", grp.ScenarioID, grp.GroupID, grp.Size()))
		}
	}

	report.Groups = len(groups)
	report.Duration = time.Since(start)

	log.WithFields(logger.Fields{
		"buckets":     report.Buckets,
		"comparisons": report.Comparisons,
		"edges":       report.Edges,
		"groups":      report.Groups,
		"excluded":    report.ExcludedRecords,
		"duration":    report.Duration.String(),
	}).Info("Scenario grouping completed")

	return groups, report, nil
}

// partition assigns records to buckets in first-seen order and returns the
// number of candidate pairs.
func (g *Grouper) partition(cs *CompiledScenario, records []*models.InvoiceRecord, report *Report, log logger.Logger) ([]*bucket, int64) {
	byKey := make(map[string]*bucket)
	var buckets []*bucket

	for _, r := range records {
		key, missing := cs.bucketKey(r)
		if missing != "" {
			report.ExcludedRecords++
			report.ExcludedBy[missing]++
			log.WithError(apperrors.DataQualityError(apperrors.CodeMissingMandatory, r.PrimaryKey, missing)).
				Debug("Record excluded from scenario")
			continue
		}
		b, ok := byKey[key]
		if !ok {
			b = &bucket{index: len(buckets)}
			byKey[key] = b
			buckets = append(buckets, b)
		}
		b.members = append(b.members, r)
	}

	var pairs int64
	kept := buckets[:0]
	for _, b := range buckets {
		if len(b.members) < 2 {
			continue
		}
		n := int64(len(b.members))
		pairs += n * (n - 1) / 2
		kept = append(kept, b)
	}

	if report.ExcludedRecords > 0 {
		log.WithFields(logger.Fields{
			"excluded":    report.ExcludedRecords,
			"excluded_by": report.ExcludedBy,
		}).Warn("Records excluded from scenario due to missing values")
	}

	return kept, pairs
}

// groupBucket compares every pair of one bucket and extracts its groups.
func (g *Grouper) groupBucket(cs *CompiledScenario, b *bucket) bucketOutcome {
	out := bucketOutcome{index: b.index}
	graph := NewGraph()

	values := make([]string, len(b.members))
	for i, r := range b.members {
		values[i] = cs.compare(r)
	}

	for i := 0; i < len(b.members); i++ {
		for j := i + 1; j < len(b.members); j++ {
			a, c := b.members[i], b.members[j]
			if g.config.SkipHistoricalPairs && !a.IsCurrentData && !c.IsCurrentData {
				continue
			}
			out.comparisons++
			if !cs.suppliersMatch(a, c) {
				continue
			}
			res := cs.engine.Compare(values[i], values[j])
			if !res.Similar {
				continue
			}
			graph.AddEdge(models.SimilarityEdge{SourceKey: a.PrimaryKey, DestKey: c.PrimaryKey, Score: res.Score})
			out.edges++
		}
	}

	for _, comp := range graph.Components() {
		if len(comp.Keys) < 2 {
			continue
		}
		out.groups = append(out.groups, models.DuplicateGroup{
			GroupID:    uuid.New().String(),
			ScenarioID: cs.Scenario.ScenarioID,
			MemberKeys: comp.Keys,
			RiskScore:  comp.MeanScore(),
		})
	}

	return out
}
