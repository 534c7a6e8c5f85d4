package rules

import (
	"fmt"

	"github.com/pglens/pglens/internal/metrics"
	"github.com/pglens/pglens/internal/plan"
)

// Rule is one independently testable anti-pattern check. Evaluate must be
// a pure function of its inputs: same annotated tree and session, same
// issues, every time.
type Rule interface {
	Name() string
	Evaluate(a *metrics.AnnotatedTree, sess *Session) []Issue
}

// SeqScanRule flags sequential scans over large relations that carry a
// meaningful share of the plan's cost.
type SeqScanRule struct {
	Rows          int64
	CostShare     float64
	HighShare     float64
	CriticalShare float64
}

func (r SeqScanRule) Name() string { return string(SeqScanOnLargeRelation) }

func (r SeqScanRule) Evaluate(a *metrics.AnnotatedTree, _ *Session) []Issue {
	var issues []Issue
	a.Tree.Walk(func(n *plan.Node) {
		if n.Op != plan.OpSeqScan || n.PlanRows <= r.Rows {
			return
		}
		m := a.MetricsFor(n)
		if m.CostShare <= r.CostShare {
			return
		}

		severity := Medium
		switch {
		case m.CostShare > r.CriticalShare:
			severity = Critical
		case m.CostShare > r.HighShare:
			severity = High
		}

		cols := ExtractConditionColumns(n.Filter)
		if len(cols) == 0 {
			cols = ExtractConditionColumns(n.IndexCond)
		}

		issues = append(issues, Issue{
			Kind:     SeqScanOnLargeRelation,
			Severity: severity,
			NodeID:   n.ID,
			NodePath: n.Path,
			Relation: n.RelationName,
			Columns:  cols,
			Evidence: map[string]float64{
				"estimated_rows": float64(n.PlanRows),
				"cost_share":     m.CostShare,
				"total_cost":     n.TotalCost,
			},
			Message: fmt.Sprintf("%s scans an estimated %d rows (%.0f%% of plan cost)",
				n.Label(), n.PlanRows, m.CostShare*100),
		})
	})
	return issues
}

// EstimateMissRule flags nodes where the planner's row estimate diverged
// badly from reality. Needs ANALYZE data; estimate-only plans never
// trigger it.
type EstimateMissRule struct {
	Low      float64
	High     float64
	SevereLo float64
	SevereHi float64
}

func (r EstimateMissRule) Name() string { return string(RowEstimateMiss) }

func (r EstimateMissRule) Evaluate(a *metrics.AnnotatedTree, _ *Session) []Issue {
	if a.EstimateOnly {
		return nil
	}
	var issues []Issue
	a.Tree.Walk(func(n *plan.Node) {
		if !n.HasActual {
			return
		}
		m := a.MetricsFor(n)
		if m.UnboundedEstimate {
			issues = append(issues, Issue{
				Kind:     RowEstimateMiss,
				Severity: High,
				NodeID:   n.ID,
				NodePath: n.Path,
				Relation: n.RelationName,
				Evidence: map[string]float64{
					"estimated_rows": 0,
					"actual_rows":    float64(n.ActualRows),
				},
				Message: fmt.Sprintf("%s: planner estimated 0 rows but %d were produced (unbounded miss)",
					n.Label(), n.ActualRows),
			})
			return
		}
		// Ratio 0 means the node produced nothing against a real estimate:
		// an overestimate, not a gap in the data.
		ratio := m.RowEstimateErrorRatio
		if ratio >= r.Low && ratio <= r.High {
			return
		}
		severity := Medium
		if ratio < r.SevereLo || ratio > r.SevereHi {
			severity = High
		}
		issues = append(issues, Issue{
			Kind:     RowEstimateMiss,
			Severity: severity,
			NodeID:   n.ID,
			NodePath: n.Path,
			Relation: n.RelationName,
			Evidence: map[string]float64{
				"estimated_rows": float64(n.PlanRows),
				"actual_rows":    float64(n.ActualRows),
				"error_ratio":    ratio,
			},
			Message: fmt.Sprintf("%s: estimated %d rows, got %d (ratio %.2fx)",
				n.Label(), n.PlanRows, n.ActualRows, ratio),
		})
	})
	return issues
}

// NPlusOneRule flags a query shape executed repeatedly within the
// caller's session window. One aggregated issue is emitted per shape,
// referencing every occurrence, never one issue per execution.
type NPlusOneRule struct {
	Count int
}

func (r NPlusOneRule) Name() string { return string(NPlusOnePattern) }

func (r NPlusOneRule) Evaluate(a *metrics.AnnotatedTree, sess *Session) []Issue {
	if sess == nil || a.Tree.QueryText == "" {
		return nil
	}
	shape := NormalizeQuery(a.Tree.QueryText)
	count := sess.Count(shape)
	if count <= r.Count {
		return nil
	}
	return []Issue{{
		Kind:     NPlusOnePattern,
		Severity: High,
		NodeID:   a.Tree.Root.ID,
		NodePath: a.Tree.Root.Path,
		Relation: a.Tree.Root.RelationName,
		Evidence: map[string]float64{
			"occurrences": float64(count),
			"threshold":   float64(r.Count),
		},
		Message: fmt.Sprintf("query shape executed %d times in this session; batch it with a join or IN list",
			count),
		Occurrences: sess.OccurrencesOf(shape),
	}}
}

// ParallelismRule flags expensive plans that qualify for parallel scans
// but run entirely serial.
type ParallelismRule struct {
	Cost float64
	Rows int64
}

func (r ParallelismRule) Name() string { return string(MissingParallelism) }

func (r ParallelismRule) Evaluate(a *metrics.AnnotatedTree, _ *Session) []Issue {
	if a.TotalCost <= r.Cost || a.ParallelScanRatio > 0 {
		return nil
	}

	var candidate *plan.Node
	a.Tree.Walk(func(n *plan.Node) {
		if candidate == nil && isScanOp(n.Op) && n.PlanRows >= r.Rows && n.WorkersPlanned == 0 {
			candidate = n
		}
	})
	if candidate == nil {
		return nil
	}

	return []Issue{{
		Kind:     MissingParallelism,
		Severity: Medium,
		NodeID:   candidate.ID,
		NodePath: candidate.Path,
		Relation: candidate.RelationName,
		Evidence: map[string]float64{
			"total_cost":     a.TotalCost,
			"estimated_rows": float64(candidate.PlanRows),
			"parallel_ratio": a.ParallelScanRatio,
		},
		Message: fmt.Sprintf("plan costs %.0f with no parallel workers; %s is large enough to scan in parallel",
			a.TotalCost, candidate.Label()),
	}}
}

func isScanOp(op plan.Op) bool {
	switch op {
	case plan.OpSeqScan, plan.OpIndexScan, plan.OpIndexOnlyScan, plan.OpBitmapScan:
		return true
	}
	return false
}

// BufferIORule flags nodes whose disk reads dwarf their cache hits,
// indicating poor cache locality.
type BufferIORule struct {
	ReadMin   int64
	ReadRatio float64
}

func (r BufferIORule) Name() string { return string(HighBufferIO) }

func (r BufferIORule) Evaluate(a *metrics.AnnotatedTree, _ *Session) []Issue {
	var issues []Issue
	a.Tree.Walk(func(n *plan.Node) {
		if n.SharedReadBlocks < r.ReadMin {
			return
		}
		hits := n.SharedHitBlocks
		if hits == 0 {
			hits = 1
		}
		ratio := float64(n.SharedReadBlocks) / float64(hits)
		if ratio <= r.ReadRatio {
			return
		}
		severity := Medium
		if ratio > r.ReadRatio*10 {
			severity = High
		}
		issues = append(issues, Issue{
			Kind:     HighBufferIO,
			Severity: severity,
			NodeID:   n.ID,
			NodePath: n.Path,
			Relation: n.RelationName,
			Evidence: map[string]float64{
				"shared_read_blocks": float64(n.SharedReadBlocks),
				"shared_hit_blocks":  float64(n.SharedHitBlocks),
				"read_hit_ratio":     ratio,
				"io_intensity":       a.MetricsFor(n).IOIntensity,
			},
			Message: fmt.Sprintf("%s read %d blocks from disk against %d cache hits",
				n.Label(), n.SharedReadBlocks, n.SharedHitBlocks),
		})
	})
	return issues
}
