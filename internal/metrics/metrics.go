// Package metrics derives per-node and aggregate performance metrics
// from a built plan tree. Annotation never mutates the input tree:
// metrics live in a flat arena indexed by node ID, so annotated trees
// stay shareable across goroutines without locks.
package metrics

import (
	"fmt"
	"math"

	"github.com/pglens/pglens/internal/plan"
)

// NodeMetrics is the derived data for one plan node. Computed once per
// tree and never mutated afterward.
type NodeMetrics struct {
	// SelfCost is the node's exclusive cost: its total cost minus the
	// total cost of its children, clamped at zero. The clamp matters:
	// Limit, InitPlan and CTE nodes report a lower total than their
	// children, so parent totals are not always cumulative.
	SelfCost float64

	// CostShare is SelfCost as a fraction of the tree's summed exclusive
	// cost. Shares sum to 1.0 over the whole tree.
	CostShare float64

	// RowEstimateErrorRatio is actual/max(estimated, 1), valid only when
	// the tree carries ANALYZE data.
	RowEstimateErrorRatio float64

	// UnboundedEstimate marks the ratio as meaningless: the planner
	// estimated zero rows but the node produced some.
	UnboundedEstimate bool

	// IOIntensity is the disk fraction of buffer traffic at this node:
	// reads / (hits + reads), 0 when no buffer data.
	IOIntensity float64

	// ParallelRatio is workers launched / workers planned at
	// parallel-aware nodes; 0 elsewhere so tree aggregation stays
	// well-defined for plans with no parallel nodes.
	ParallelRatio float64

	// IsParallelCandidate marks large scans running without workers.
	IsParallelCandidate bool
}

// AnnotatedTree pairs an immutable plan tree with its metrics arena.
type AnnotatedTree struct {
	Tree *plan.Tree

	// Nodes is indexed by plan.Node.ID.
	Nodes []NodeMetrics

	// TotalCost is the root's cumulative cost.
	TotalCost float64

	// ParallelScanRatio aggregates ParallelRatio over all nodes,
	// weighted by nothing: it is the mean contribution, where
	// non-parallel nodes contribute 0.
	ParallelScanRatio float64

	// MaxEstimateError is the largest deviation-from-1 estimate ratio
	// in the tree (only meaningful with ANALYZE data).
	MaxEstimateError float64

	// EstimateOnly is true when the plan lacks ANALYZE data and
	// actual-row metrics are unavailable.
	EstimateOnly bool
}

// MetricsFor returns the metrics for a node.
func (a *AnnotatedTree) MetricsFor(n *plan.Node) NodeMetrics {
	return a.Nodes[n.ID]
}

// ParallelCandidateRows is the default estimated-row threshold used when
// marking parallel candidates during annotation.
const ParallelCandidateRows = 100000

// Options tunes annotation thresholds.
type Options struct {
	// ParallelCandidateRows is the estimated-row threshold above which a
	// serial scan is marked as a parallel candidate. Zero or negative
	// falls back to the package default.
	ParallelCandidateRows int64
}

// Annotate computes metrics for every node with default thresholds.
// It is a pure function of the tree: the input nodes are not touched.
func Annotate(t *plan.Tree) (*AnnotatedTree, error) {
	return AnnotateWithOptions(t, Options{})
}

// AnnotateWithOptions is Annotate with caller-supplied thresholds.
func AnnotateWithOptions(t *plan.Tree, opts Options) (*AnnotatedTree, error) {
	if t == nil || t.Root == nil {
		return nil, fmt.Errorf("annotate: missing plan tree")
	}
	if opts.ParallelCandidateRows <= 0 {
		opts.ParallelCandidateRows = ParallelCandidateRows
	}

	a := &AnnotatedTree{
		Tree:         t,
		Nodes:        make([]NodeMetrics, t.NodeCount),
		TotalCost:    t.Root.TotalCost,
		EstimateOnly: !t.HasAnalyze,
	}

	annotateNode(t.Root, a, opts)

	// Shares are normalized by the summed exclusive cost, not the root's
	// total: a Limit root can report a lower total than its children and
	// would blow the shares past 1.0.
	var selfSum float64
	for id := range a.Nodes {
		selfSum += a.Nodes[id].SelfCost
	}
	if selfSum > 0 {
		for id := range a.Nodes {
			a.Nodes[id].CostShare = a.Nodes[id].SelfCost / selfSum
		}
	}

	var parallelSum float64
	for id := range a.Nodes {
		parallelSum += a.Nodes[id].ParallelRatio
	}
	if t.NodeCount > 0 {
		a.ParallelScanRatio = parallelSum / float64(t.NodeCount)
	}

	return a, nil
}

// annotateNode fills the arena bottom-up: children first, so a parent's
// self cost can subtract already-known child totals.
func annotateNode(n *plan.Node, a *AnnotatedTree, opts Options) {
	for _, child := range n.Children {
		annotateNode(child, a, opts)
	}

	m := NodeMetrics{}

	var childCost float64
	for _, child := range n.Children {
		childCost += child.TotalCost
	}
	m.SelfCost = n.TotalCost - childCost
	if m.SelfCost < 0 {
		m.SelfCost = 0
	}

	if a.Tree.HasAnalyze && n.HasActual {
		if n.PlanRows == 0 && n.ActualRows > 0 {
			m.UnboundedEstimate = true
		} else {
			est := n.PlanRows
			if est < 1 {
				est = 1
			}
			m.RowEstimateErrorRatio = float64(n.ActualRows) / float64(est)
			if dev := deviation(m.RowEstimateErrorRatio); dev > a.MaxEstimateError {
				a.MaxEstimateError = dev
			}
		}
	}

	if total := n.SharedHitBlocks + n.SharedReadBlocks; total > 0 {
		m.IOIntensity = float64(n.SharedReadBlocks) / float64(total)
	}

	if n.ParallelAware && n.WorkersPlanned > 0 {
		m.ParallelRatio = float64(n.WorkersLaunched) / float64(n.WorkersPlanned)
	}

	if isScan(n.Op) && n.PlanRows >= opts.ParallelCandidateRows && n.WorkersPlanned == 0 {
		m.IsParallelCandidate = true
	}

	a.Nodes[n.ID] = m
}

func isScan(op plan.Op) bool {
	switch op {
	case plan.OpSeqScan, plan.OpIndexScan, plan.OpIndexOnlyScan, plan.OpBitmapScan:
		return true
	}
	return false
}

// deviation measures how far a ratio is from the ideal 1.0, symmetric in
// both directions (x10 over and x10 under score the same).
func deviation(ratio float64) float64 {
	if ratio <= 0 {
		return 0
	}
	if ratio < 1 {
		ratio = 1 / ratio
	}
	if math.IsInf(ratio, 0) {
		return math.MaxFloat64
	}
	return ratio
}
