// Package comparator diffs two plan trees for the same logical query,
// typically captured before and after a change. It gates on query-text
// similarity so unrelated plans are rejected rather than diffed into
// nonsense.
package comparator

import (
	"fmt"
	"math"

	"github.com/agnivade/levenshtein"

	"github.com/pglens/pglens/internal/plan"
	"github.com/pglens/pglens/internal/rules"
)

// Options tunes a comparison.
type Options struct {
	// MinSimilarity is the normalized query similarity below which the
	// plans are considered unrelated.
	MinSimilarity float64

	// NoiseThreshold is the relative change below which a delta counts
	// as unchanged.
	NoiseThreshold float64

	// Force skips the similarity gate.
	Force bool
}

// IncomparablePlansError reports that two plans failed the similarity
// gate. Compare still ran the similarity computation; nothing else.
type IncomparablePlansError struct {
	Similarity float64
	Threshold  float64
}

func (e *IncomparablePlansError) Error() string {
	return fmt.Sprintf("plans appear unrelated: query similarity %.2f is below %.2f (use force to compare anyway)",
		e.Similarity, e.Threshold)
}

// Compare diffs before and after. Node matching is a greedy best-match
// over siblings keyed by operation and relation; it is a heuristic, not
// a minimum edit script, and favors stable output over optimality.
func Compare(before, after *plan.Tree, opts Options) (*ComparisonResult, error) {
	if before == nil || before.Root == nil || after == nil || after.Root == nil {
		return nil, fmt.Errorf("compare: both plans are required")
	}

	sim := Similarity(before.QueryText, after.QueryText)
	if !opts.Force && sim < opts.MinSimilarity {
		return nil, &IncomparablePlansError{Similarity: sim, Threshold: opts.MinSimilarity}
	}

	c := &comparison{noise: opts.NoiseThreshold}
	c.diffNodes(before.Root, after.Root)

	res := &ComparisonResult{
		Similarity:  sim,
		PerNodeDiff: c.diffs,

		CostDelta: after.Root.TotalCost - before.Root.TotalCost,
		CostPct:   pctChange(before.Root.TotalCost, after.Root.TotalCost),

		TimeDelta: after.ExecutionTime - before.ExecutionTime,
		TimePct:   pctChange(before.ExecutionTime, after.ExecutionTime),

		RowEstimateDelta: after.Root.PlanRows - before.Root.PlanRows,
	}
	res.CostDir = c.direction(before.Root.TotalCost, after.Root.TotalCost)
	res.TimeDir = c.direction(before.ExecutionTime, after.ExecutionTime)

	for _, d := range c.diffs {
		switch d.ChangeType {
		case Matched:
			res.NodesMatched++
		case Added:
			res.NodesAdded++
		case Removed:
			res.NodesRemoved++
		}
	}

	// Improvement needs the cost to drop and, when both plans carry
	// runtime data, the measured time to drop with it. A flat time is
	// not an improvement.
	res.Improved = res.CostDir == Improved
	if res.Improved && before.HasAnalyze && after.HasAnalyze {
		res.Improved = res.TimeDir == Improved
	}

	switch {
	case res.Improved:
		res.Verdict = "improved"
	case res.CostDir == Regressed || res.TimeDir == Regressed:
		res.Verdict = "regressed"
	default:
		res.Verdict = "unchanged"
	}
	return res, nil
}

// Similarity is a normalized Levenshtein similarity in [0,1] over the
// normalized query shapes, where 1 means identical shapes.
func Similarity(beforeQuery, afterQuery string) float64 {
	a := rules.NormalizeQuery(beforeQuery)
	b := rules.NormalizeQuery(afterQuery)
	if a == "" && b == "" {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

type comparison struct {
	noise float64
	diffs []NodeDiff
}

func (c *comparison) diffNodes(old, new *plan.Node) {
	diff := NodeDiff{
		ChangeType: Matched,
		NodeType:   new.NodeType,
		Relation:   coalesce(old.RelationName, new.RelationName),
		BeforePath: old.Path,
		AfterPath:  new.Path,

		OldCost:   old.TotalCost,
		NewCost:   new.TotalCost,
		CostDelta: new.TotalCost - old.TotalCost,
		CostPct:   pctChange(old.TotalCost, new.TotalCost),

		OldTime: old.ActualTotalTime,
		NewTime: new.ActualTotalTime,

		OldRows: old.PlanRows,
		NewRows: new.PlanRows,
	}
	diff.CostDir = c.direction(old.TotalCost, new.TotalCost)
	diff.TimeDir = c.direction(old.ActualTotalTime, new.ActualTotalTime)
	c.diffs = append(c.diffs, diff)

	c.diffChildren(old.Children, new.Children)
}

// diffChildren pairs siblings greedily: first by operation and relation,
// then by operation alone. Leftover old children are removed, leftover
// new children are added.
func (c *comparison) diffChildren(oldKids, newKids []*plan.Node) {
	used := make([]bool, len(newKids))
	match := make([]int, len(oldKids))

	for i := range match {
		match[i] = -1
	}
	for i, old := range oldKids {
		for j, new := range newKids {
			if !used[j] && old.Op == new.Op && old.RelationName == new.RelationName {
				match[i] = j
				used[j] = true
				break
			}
		}
	}
	for i, old := range oldKids {
		if match[i] != -1 {
			continue
		}
		for j, new := range newKids {
			if !used[j] && old.Op == new.Op {
				match[i] = j
				used[j] = true
				break
			}
		}
	}

	for i, old := range oldKids {
		if match[i] != -1 {
			c.diffNodes(old, newKids[match[i]])
		} else {
			c.markRemoved(old)
		}
	}
	for j, new := range newKids {
		if !used[j] {
			c.markAdded(new)
		}
	}
}

func (c *comparison) markAdded(n *plan.Node) {
	c.diffs = append(c.diffs, NodeDiff{
		ChangeType: Added,
		NodeType:   n.NodeType,
		Relation:   n.RelationName,
		AfterPath:  n.Path,
		NewCost:    n.TotalCost,
		NewTime:    n.ActualTotalTime,
		NewRows:    n.PlanRows,
	})
	for _, child := range n.Children {
		c.markAdded(child)
	}
}

func (c *comparison) markRemoved(n *plan.Node) {
	c.diffs = append(c.diffs, NodeDiff{
		ChangeType: Removed,
		NodeType:   n.NodeType,
		Relation:   n.RelationName,
		BeforePath: n.Path,
		OldCost:    n.TotalCost,
		OldTime:    n.ActualTotalTime,
		OldRows:    n.PlanRows,
	})
	for _, child := range n.Children {
		c.markRemoved(child)
	}
}

func (c *comparison) direction(old, new float64) Direction {
	if old == 0 && new == 0 {
		return Unchanged
	}
	base := math.Abs(old)
	if base == 0 {
		base = math.Abs(new)
	}
	if math.Abs(new-old)/base <= c.noise {
		return Unchanged
	}
	if new < old {
		return Improved
	}
	return Regressed
}

func pctChange(old, new float64) float64 {
	if old == 0 {
		if new == 0 {
			return 0
		}
		return 100
	}
	return ((new - old) / old) * 100
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
