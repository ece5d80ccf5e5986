// Package dedup merges the groups produced by all scenarios into one
// non-redundant set.
//
// The passes run in a fixed order so that the output is deterministic:
//
//  1. signatures are computed for every group
//  2. groups with identical member sets are collapsed, keeping the one with
//     the lowest (scenario_id, group_id)
//  3. survivors are sorted by (size DESC, scenario_id ASC, group_id ASC)
//  4. a group is dropped when it is a subset of an already kept, strictly
//     larger group
//  5. retained groups are numbered densely from 1 in
//     (scenario_id ASC, sorted member keys ASC) order
//
// Running the deduplicator on its own output removes nothing further.
package dedup

import (
	"fmt"
	"sort"
	"strings"

	"golang-invoice-dedup-service/internal/models"
	apperrors "golang-invoice-dedup-service/pkg/errors"
	"golang-invoice-dedup-service/pkg/logger"
)

// RemovalReason says why a group did not survive deduplication.
type RemovalReason string

const (
	RemovedExactDuplicate RemovalReason = "exact_duplicate"
	RemovedSubset         RemovalReason = "subset"
)

// Removal records one dropped group and the retained group that covers it.
type Removal struct {
	ScenarioID     int           `json:"scenario_id"`
	GroupID        string        `json:"group_id"`
	Reason         RemovalReason `json:"reason"`
	KeptScenarioID int           `json:"kept_scenario_id"`
	KeptGroupID    string        `json:"kept_group_id"`
}

// Stats counts what each pass did.
type Stats struct {
	Input                  int `json:"input"`
	ExactDuplicatesRemoved int `json:"exact_duplicates_removed"`
	HashCollisions         int `json:"hash_collisions"`
	SubsetsRemoved         int `json:"subsets_removed"`
	Retained               int `json:"retained"`
}

// GroupRef identifies a group across scenarios.
type GroupRef struct {
	ScenarioID int
	GroupID    string
}

// Result is the retained group set in dense-number order.
type Result struct {
	Groups  []models.DuplicateGroup
	Removed []Removal
	Stats   Stats

	numbers map[GroupRef]int
}

// Number returns the dense number of a retained group.
func (r *Result) Number(scenarioID int, groupID string) (int, bool) {
	n, ok := r.numbers[GroupRef{ScenarioID: scenarioID, GroupID: groupID}]
	return n, ok
}

// Deduplicator runs the cross-scenario passes.
type Deduplicator struct {
	logger logger.Logger
}

// NewDeduplicator creates a deduplicator logging through the global logger.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{logger: logger.GetGlobalLogger().WithComponent("deduplicator")}
}

// WithLogger replaces the deduplicator's logger.
func (d *Deduplicator) WithLogger(l logger.Logger) *Deduplicator {
	d.logger = l.WithComponent("deduplicator")
	return d
}

// Deduplicate must only be called once every scenario has finished. The
// input slice is not modified.
func (d *Deduplicator) Deduplicate(groups []models.DuplicateGroup) (*Result, error) {
	res := &Result{numbers: make(map[GroupRef]int)}
	res.Stats.Input = len(groups)

	byRef := make(map[GroupRef]models.DuplicateGroup, len(groups))
	sigs := make([]models.GroupSignature, 0, len(groups))
	for _, g := range groups {
		ref := GroupRef{ScenarioID: g.ScenarioID, GroupID: g.GroupID}
		if _, dup := byRef[ref]; dup {
			return nil, apperrors.InvariantViolation(apperrors.CodeKeyNotUnique,
				fmt.Sprintf("group %s appears twice in scenario %d", g.GroupID, g.ScenarioID))
		}
		byRef[ref] = g
		sigs = append(sigs, NewSignature(g))
	}

	survivors := d.removeExactDuplicates(sigs, res)

	sort.Slice(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]
		if a.Size != b.Size {
			return a.Size > b.Size
		}
		if a.ScenarioID != b.ScenarioID {
			return a.ScenarioID < b.ScenarioID
		}
		return a.GroupID < b.GroupID
	})

	kept := d.removeSubsets(survivors, res)

	sort.Slice(kept, func(i, j int) bool {
		return lessForNumbering(kept[i], kept[j])
	})

	res.Groups = make([]models.DuplicateGroup, 0, len(kept))
	for i, sig := range kept {
		ref := GroupRef{ScenarioID: sig.ScenarioID, GroupID: sig.GroupID}
		g := byRef[ref]
		g.MemberKeys = sig.SortedKeys
		res.Groups = append(res.Groups, g)
		res.numbers[ref] = i + 1
	}
	res.Stats.Retained = len(res.Groups)

	d.logger.WithFields(logger.Fields{
		"input":                    res.Stats.Input,
		"exact_duplicates_removed": res.Stats.ExactDuplicatesRemoved,
		"subsets_removed":          res.Stats.SubsetsRemoved,
		"retained":                 res.Stats.Retained,
	}).Info("Cross-scenario deduplication completed")

	return res, nil
}

// removeExactDuplicates keeps the lowest (scenario_id, group_id) of every
// distinct member set. Signatures sharing a hash are still compared key by
// key before one is dropped.
func (d *Deduplicator) removeExactDuplicates(sigs []models.GroupSignature, res *Result) []models.GroupSignature {
	buckets := make(map[string][]models.GroupSignature)
	var order []string
	for _, s := range sigs {
		if _, ok := buckets[s.Hash]; !ok {
			order = append(order, s.Hash)
		}
		buckets[s.Hash] = append(buckets[s.Hash], s)
	}

	out := make([]models.GroupSignature, 0, len(sigs))
	for _, h := range order {
		candidates := buckets[h]
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].ScenarioID != candidates[j].ScenarioID {
				return candidates[i].ScenarioID < candidates[j].ScenarioID
			}
			return candidates[i].GroupID < candidates[j].GroupID
		})

		var keptHere []models.GroupSignature
	next:
		for _, c := range candidates {
			for _, k := range keptHere {
				if sameSet(c, k) {
					res.Stats.ExactDuplicatesRemoved++
					res.Removed = append(res.Removed, Removal{
						ScenarioID:     c.ScenarioID,
						GroupID:        c.GroupID,
						Reason:         RemovedExactDuplicate,
						KeptScenarioID: k.ScenarioID,
						KeptGroupID:    k.GroupID,
					})
					d.logger.WithFields(logger.Fields{
						"scenario_id":      c.ScenarioID,
						"group_id":         c.GroupID,
						"kept_scenario_id": k.ScenarioID,
						"kept_group_id":    k.GroupID,
					}).Debug("Exact duplicate group removed")
					continue next
				}
			}
			if len(keptHere) > 0 {
				res.Stats.HashCollisions++
				d.logger.WithField("hash", h).Warn("Distinct groups share a signature hash")
			}
			keptHere = append(keptHere, c)
		}
		out = append(out, keptHere...)
	}
	return out
}

// removeSubsets walks signatures in (size DESC, scenario, group) order and
// only tests a candidate against kept groups that are strictly larger and
// contain its smallest key.
func (d *Deduplicator) removeSubsets(sorted []models.GroupSignature, res *Result) []models.GroupSignature {
	var kept []models.GroupSignature
	byKey := make(map[string][]int)

	for _, c := range sorted {
		if container, ok := findContainer(c, kept, byKey); ok {
			res.Stats.SubsetsRemoved++
			res.Removed = append(res.Removed, Removal{
				ScenarioID:     c.ScenarioID,
				GroupID:        c.GroupID,
				Reason:         RemovedSubset,
				KeptScenarioID: container.ScenarioID,
				KeptGroupID:    container.GroupID,
			})
			d.logger.WithFields(logger.Fields{
				"scenario_id":      c.ScenarioID,
				"group_id":         c.GroupID,
				"size":             c.Size,
				"kept_scenario_id": container.ScenarioID,
				"kept_group_id":    container.GroupID,
			}).Debug("Subset group removed")
			continue
		}
		idx := len(kept)
		kept = append(kept, c)
		for _, k := range c.SortedKeys {
			byKey[k] = append(byKey[k], idx)
		}
	}
	return kept
}

func findContainer(c models.GroupSignature, kept []models.GroupSignature, byKey map[string][]int) (models.GroupSignature, bool) {
	if c.Size == 0 {
		return models.GroupSignature{}, false
	}
	for _, idx := range byKey[c.SortedKeys[0]] {
		k := kept[idx]
		if k.Size > c.Size && isSubset(c, k) {
			return k, true
		}
	}
	return models.GroupSignature{}, false
}

func lessForNumbering(a, b models.GroupSignature) bool {
	if a.ScenarioID != b.ScenarioID {
		return a.ScenarioID < b.ScenarioID
	}
	for i := 0; i < len(a.SortedKeys) && i < len(b.SortedKeys); i++ {
		if a.SortedKeys[i] != b.SortedKeys[i] {
			return a.SortedKeys[i] < b.SortedKeys[i]
		}
	}
	if len(a.SortedKeys) != len(b.SortedKeys) {
		return len(a.SortedKeys) < len(b.SortedKeys)
	}
	return a.GroupID < b.GroupID
}

// Rows expands groups into one row per (record, group) membership.
func Rows(groups []models.DuplicateGroup) []models.DuplicateRow {
	var rows []models.DuplicateRow
	for _, g := range groups {
		for _, k := range g.MemberKeys {
			rows = append(rows, models.DuplicateRow{
				PrimaryKey: k,
				ScenarioID: g.ScenarioID,
				GroupID:    g.GroupID,
				RiskScore:  g.RiskScore,
			})
		}
	}
	return rows
}

// FilterRows keeps the rows of retained groups, stamps their dense group
// number and orders them by (group number, primary key).
func (r *Result) FilterRows(rows []models.DuplicateRow) []models.DuplicateRow {
	out := make([]models.DuplicateRow, 0, len(rows))
	for _, row := range rows {
		n, ok := r.Number(row.ScenarioID, row.GroupID)
		if !ok {
			continue
		}
		row.GroupNumber = n
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].GroupNumber != out[j].GroupNumber {
			return out[i].GroupNumber < out[j].GroupNumber
		}
		return out[i].PrimaryKey < out[j].PrimaryKey
	})
	return out
}

// VerifyInvariants checks a final group set: every group has at least two
// members, group ids are unique per scenario, and no group equals or is
// contained in another.
func VerifyInvariants(groups []models.DuplicateGroup) error {
	seen := make(map[GroupRef]struct{}, len(groups))
	sigs := make([]models.GroupSignature, 0, len(groups))
	byKey := make(map[string][]int)

	for _, g := range groups {
		if g.Size() < 2 {
			return apperrors.InvariantViolation(apperrors.CodeGroupTooSmall,
				fmt.Sprintf("group %s of scenario %d has %d member(s)", g.GroupID, g.ScenarioID, g.Size()))
		}
		ref := GroupRef{ScenarioID: g.ScenarioID, GroupID: g.GroupID}
		if _, dup := seen[ref]; dup {
			return apperrors.InvariantViolation(apperrors.CodeKeyNotUnique,
				fmt.Sprintf("group %s appears twice in scenario %d", g.GroupID, g.ScenarioID))
		}
		seen[ref] = struct{}{}

		idx := len(sigs)
		sig := NewSignature(g)
		sigs = append(sigs, sig)
		for _, k := range sig.SortedKeys {
			byKey[k] = append(byKey[k], idx)
		}
	}

	for i, s := range sigs {
		for _, j := range byKey[s.SortedKeys[0]] {
			if i == j {
				continue
			}
			other := sigs[j]
			switch {
			case sameSet(s, other):
				return apperrors.InvariantViolation(apperrors.CodeDuplicateGroup,
					fmt.Sprintf("groups %s and %s have identical members [%s]",
						s.GroupID, other.GroupID, strings.Join(s.SortedKeys, ",")))
			case isSubset(s, other):
				return apperrors.InvariantViolation(apperrors.CodeSubsetGroup,
					fmt.Sprintf("group %s (scenario %d) is contained in group %s (scenario %d)",
						s.GroupID, s.ScenarioID, other.GroupID, other.ScenarioID))
			}
		}
	}
	return nil
}
