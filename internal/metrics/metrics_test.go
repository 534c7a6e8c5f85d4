package metrics

import (
	"math"
	"testing"

	"github.com/pglens/pglens/internal/plan"
)

func buildTree(t *testing.T, doc string) *plan.Tree {
	t.Helper()
	tree, err := plan.Build([]byte(doc))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return tree
}

const joinPlan = `[{
	"Plan": {
		"Node Type": "Hash Join",
		"Startup Cost": 10.0,
		"Total Cost": 500.0,
		"Plan Rows": 1000,
		"Plan Width": 16,
		"Actual Rows": 1200,
		"Actual Total Time": 40.0,
		"Plans": [
			{
				"Node Type": "Seq Scan",
				"Relation Name": "orders",
				"Startup Cost": 0.0,
				"Total Cost": 300.0,
				"Plan Rows": 20000,
				"Plan Width": 8,
				"Actual Rows": 19000,
				"Actual Total Time": 25.0
			},
			{
				"Node Type": "Hash",
				"Startup Cost": 5.0,
				"Total Cost": 150.0,
				"Plan Rows": 500,
				"Plan Width": 8,
				"Actual Rows": 500,
				"Actual Total Time": 10.0
			}
		]
	},
	"Execution Time": 45.0
}]`

func TestAnnotate_CostSharesSumToOne(t *testing.T) {
	tree := buildTree(t, joinPlan)
	a, err := Annotate(tree)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	var sum float64
	for _, m := range a.Nodes {
		if m.CostShare < 0 {
			t.Errorf("negative cost share %g", m.CostShare)
		}
		sum += m.CostShare
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("cost shares sum to %g, want 1.0", sum)
	}
}

func TestAnnotate_SelfCostExcludesChildren(t *testing.T) {
	tree := buildTree(t, joinPlan)
	a, err := Annotate(tree)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	root := a.MetricsFor(tree.Root)
	// 500 - (300 + 150)
	if math.Abs(root.SelfCost-50.0) > 1e-9 {
		t.Errorf("root SelfCost = %g, want 50", root.SelfCost)
	}
	if math.Abs(root.CostShare-0.1) > 1e-9 {
		t.Errorf("root CostShare = %g, want 0.1", root.CostShare)
	}
}

func TestAnnotate_LimitRootSharesSumToOne(t *testing.T) {
	// A Limit reports a lower total cost than its child, so the root
	// total is useless as a share denominator.
	doc := `[{
		"Plan": {
			"Node Type": "Limit",
			"Startup Cost": 0.0,
			"Total Cost": 0.26,
			"Plan Rows": 10,
			"Plan Width": 16,
			"Plans": [
				{
					"Node Type": "Seq Scan",
					"Relation Name": "orders",
					"Startup Cost": 0.0,
					"Total Cost": 5000.0,
					"Plan Rows": 200000,
					"Plan Width": 16
				}
			]
		}
	}]`
	tree := buildTree(t, doc)
	a, err := Annotate(tree)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	var sum float64
	for _, m := range a.Nodes {
		if m.CostShare < 0 || m.CostShare > 1 {
			t.Errorf("cost share %g outside [0,1]", m.CostShare)
		}
		sum += m.CostShare
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("cost shares sum to %g, want 1.0", sum)
	}
	if got := a.MetricsFor(tree.Root).CostShare; got != 0 {
		t.Errorf("Limit root CostShare = %g, want 0 (all work is in the scan)", got)
	}
	scan := tree.NodeByID(1)
	if got := a.MetricsFor(scan).CostShare; math.Abs(got-1.0) > 1e-9 {
		t.Errorf("scan CostShare = %g, want 1.0", got)
	}
}

func TestAnnotate_EstimateErrorRatio(t *testing.T) {
	tree := buildTree(t, joinPlan)
	a, err := Annotate(tree)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	root := a.MetricsFor(tree.Root)
	if math.Abs(root.RowEstimateErrorRatio-1.2) > 1e-9 {
		t.Errorf("root ratio = %g, want 1.2", root.RowEstimateErrorRatio)
	}
	if a.EstimateOnly {
		t.Error("EstimateOnly = true for an analyzed plan")
	}
}

func TestAnnotate_ZeroEstimateIsUnbounded(t *testing.T) {
	doc := `[{
		"Plan": {
			"Node Type": "Seq Scan",
			"Relation Name": "events",
			"Startup Cost": 0.0,
			"Total Cost": 100.0,
			"Plan Rows": 0,
			"Plan Width": 8,
			"Actual Rows": 5000,
			"Actual Total Time": 12.0
		}
	}]`
	tree := buildTree(t, doc)
	a, err := Annotate(tree)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	m := a.MetricsFor(tree.Root)
	if !m.UnboundedEstimate {
		t.Error("UnboundedEstimate = false for 0 estimated, 5000 actual")
	}
}

func TestAnnotate_EstimateOnlyPlan(t *testing.T) {
	doc := `[{
		"Plan": {
			"Node Type": "Seq Scan",
			"Relation Name": "users",
			"Startup Cost": 0.0,
			"Total Cost": 100.0,
			"Plan Rows": 1000,
			"Plan Width": 8
		}
	}]`
	tree := buildTree(t, doc)
	a, err := Annotate(tree)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	if !a.EstimateOnly {
		t.Error("EstimateOnly = false for a plan without ANALYZE data")
	}
	if a.MetricsFor(tree.Root).RowEstimateErrorRatio != 0 {
		t.Error("estimate ratio computed without actual rows")
	}
}

func TestAnnotate_ParallelRatio(t *testing.T) {
	doc := `[{
		"Plan": {
			"Node Type": "Gather",
			"Startup Cost": 0.0,
			"Total Cost": 900.0,
			"Plan Rows": 100000,
			"Plan Width": 8,
			"Plans": [
				{
					"Node Type": "Seq Scan",
					"Relation Name": "big",
					"Parallel Aware": true,
					"Workers Planned": 4,
					"Workers Launched": 2,
					"Startup Cost": 0.0,
					"Total Cost": 800.0,
					"Plan Rows": 100000,
					"Plan Width": 8
				}
			]
		}
	}]`
	tree := buildTree(t, doc)
	a, err := Annotate(tree)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	scan := tree.NodeByID(1)
	if got := a.MetricsFor(scan).ParallelRatio; math.Abs(got-0.5) > 1e-9 {
		t.Errorf("ParallelRatio = %g, want 0.5", got)
	}
	if got := a.MetricsFor(tree.Root).ParallelRatio; got != 0 {
		t.Errorf("non-parallel node ParallelRatio = %g, want 0", got)
	}
	if a.ParallelScanRatio == 0 {
		t.Error("ParallelScanRatio = 0 for a plan with a parallel scan")
	}
}

func TestAnnotate_ParallelCandidate(t *testing.T) {
	doc := `[{
		"Plan": {
			"Node Type": "Seq Scan",
			"Relation Name": "big",
			"Startup Cost": 0.0,
			"Total Cost": 50000.0,
			"Plan Rows": 200000,
			"Plan Width": 8
		}
	}]`
	tree := buildTree(t, doc)
	a, err := Annotate(tree)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	if !a.MetricsFor(tree.Root).IsParallelCandidate {
		t.Error("large serial scan not marked as parallel candidate")
	}
}

func TestAnnotateWithOptions_ParallelRowThreshold(t *testing.T) {
	doc := `[{
		"Plan": {
			"Node Type": "Seq Scan",
			"Relation Name": "mid",
			"Startup Cost": 0.0,
			"Total Cost": 900.0,
			"Plan Rows": 5000,
			"Plan Width": 8
		}
	}]`
	tree := buildTree(t, doc)

	a, err := AnnotateWithOptions(tree, Options{ParallelCandidateRows: 1000})
	if err != nil {
		t.Fatalf("AnnotateWithOptions failed: %v", err)
	}
	if !a.MetricsFor(tree.Root).IsParallelCandidate {
		t.Error("scan above a lowered threshold not marked as parallel candidate")
	}

	a, err = AnnotateWithOptions(tree, Options{})
	if err != nil {
		t.Fatalf("AnnotateWithOptions failed: %v", err)
	}
	if a.MetricsFor(tree.Root).IsParallelCandidate {
		t.Error("5000-row scan marked as candidate under the default threshold")
	}
}

func TestAnnotate_IOIntensity(t *testing.T) {
	doc := `[{
		"Plan": {
			"Node Type": "Seq Scan",
			"Relation Name": "cold",
			"Startup Cost": 0.0,
			"Total Cost": 100.0,
			"Plan Rows": 1000,
			"Plan Width": 8,
			"Actual Rows": 1000,
			"Actual Total Time": 80.0,
			"Shared Hit Blocks": 100,
			"Shared Read Blocks": 300
		}
	}]`
	tree := buildTree(t, doc)
	a, err := Annotate(tree)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	if got := a.MetricsFor(tree.Root).IOIntensity; math.Abs(got-0.75) > 1e-9 {
		t.Errorf("IOIntensity = %g, want 0.75", got)
	}
}

func TestAnnotate_InputTreeNotMutated(t *testing.T) {
	tree := buildTree(t, joinPlan)
	before := *tree.Root

	if _, err := Annotate(tree); err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	after := *tree.Root
	if before.TotalCost != after.TotalCost || before.PlanRows != after.PlanRows || before.ID != after.ID {
		t.Error("annotation mutated the input tree")
	}
}

func TestAnnotate_NilTree(t *testing.T) {
	if _, err := Annotate(nil); err == nil {
		t.Fatal("expected error for nil tree")
	}
}
