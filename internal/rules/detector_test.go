package rules

import (
	"reflect"
	"testing"

	"github.com/pglens/pglens/internal/config"
	"github.com/pglens/pglens/internal/metrics"
	"github.com/pglens/pglens/internal/plan"
)

func annotate(t *testing.T, doc string) *metrics.AnnotatedTree {
	t.Helper()
	tree, err := plan.Build([]byte(doc))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	a, err := metrics.Annotate(tree)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}
	return a
}

const largeOrdersScan = `[{
	"Plan": {
		"Node Type": "Seq Scan",
		"Relation Name": "orders",
		"Startup Cost": 0.0,
		"Total Cost": 50000.0,
		"Plan Rows": 200000,
		"Plan Width": 16,
		"Filter": "(orders.customer_id = 42)"
	},
	"Query Text": "SELECT * FROM orders WHERE customer_id = 42"
}]`

func TestDetect_LargeSeqScanIsCritical(t *testing.T) {
	a := annotate(t, largeOrdersScan)
	det := NewDetector(config.Default().Rules)

	issues, warnings := det.Detect(a, nil)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	var found *Issue
	for i := range issues {
		if issues[i].Kind == SeqScanOnLargeRelation {
			found = &issues[i]
		}
	}
	if found == nil {
		t.Fatal("no seq scan issue for a 200k-row scan carrying the whole plan cost")
	}
	if found.Severity < Medium {
		t.Errorf("Severity = %v, want at least Medium", found.Severity)
	}
	if found.Severity != Critical {
		t.Errorf("Severity = %v, want Critical for 100%% cost share", found.Severity)
	}
	if found.Relation != "orders" {
		t.Errorf("Relation = %q, want orders", found.Relation)
	}
	if !reflect.DeepEqual(found.Columns, []string{"customer_id"}) {
		t.Errorf("Columns = %v, want [customer_id]", found.Columns)
	}
}

func TestDetect_SmallSeqScanIgnored(t *testing.T) {
	doc := `[{
		"Plan": {
			"Node Type": "Seq Scan",
			"Relation Name": "settings",
			"Startup Cost": 0.0,
			"Total Cost": 5.0,
			"Plan Rows": 20,
			"Plan Width": 16
		}
	}]`
	a := annotate(t, doc)
	det := NewDetector(config.Default().Rules)

	issues, _ := det.Detect(a, nil)
	for _, issue := range issues {
		if issue.Kind == SeqScanOnLargeRelation {
			t.Errorf("seq scan issue for a 20-row table: %+v", issue)
		}
	}
}

func TestDetect_RepeatedShapeAggregatesOnce(t *testing.T) {
	det := NewDetector(config.Default().Rules)
	sess := NewSession()

	var a *metrics.AnnotatedTree
	for i := 0; i < 6; i++ {
		a = annotate(t, `[{
			"Plan": {
				"Node Type": "Index Scan",
				"Relation Name": "orders",
				"Index Name": "orders_user_id_idx",
				"Startup Cost": 0.29,
				"Total Cost": 8.31,
				"Plan Rows": 3,
				"Plan Width": 16
			},
			"Query Text": "SELECT * FROM orders WHERE user_id = `+string(rune('1'+i))+`"
		}]`)
		det.Observe(sess, a)
	}

	issues, _ := det.Detect(a, sess)

	var nplus []Issue
	for _, issue := range issues {
		if issue.Kind == NPlusOnePattern {
			nplus = append(nplus, issue)
		}
	}
	if len(nplus) != 1 {
		t.Fatalf("got %d N+1 issues, want exactly 1 aggregated issue", len(nplus))
	}
	if got := len(nplus[0].Occurrences); got != 6 {
		t.Errorf("Occurrences = %d, want 6", got)
	}
	if nplus[0].Evidence["occurrences"] != 6 {
		t.Errorf("evidence occurrences = %g, want 6", nplus[0].Evidence["occurrences"])
	}
}

func TestDetect_FewRepeatsBelowThreshold(t *testing.T) {
	det := NewDetector(config.Default().Rules)
	sess := NewSession()

	var a *metrics.AnnotatedTree
	for i := 0; i < 3; i++ {
		a = annotate(t, `[{
			"Plan": {
				"Node Type": "Index Scan",
				"Relation Name": "orders",
				"Startup Cost": 0.29,
				"Total Cost": 8.31,
				"Plan Rows": 3,
				"Plan Width": 16
			},
			"Query Text": "SELECT * FROM orders WHERE user_id = 7"
		}]`)
		det.Observe(sess, a)
	}

	issues, _ := det.Detect(a, sess)
	for _, issue := range issues {
		if issue.Kind == NPlusOnePattern {
			t.Errorf("N+1 issue after only 3 observations: %+v", issue)
		}
	}
}

func TestDetect_Idempotent(t *testing.T) {
	det := NewDetector(config.Default().Rules)
	sess := NewSession()
	a := annotate(t, largeOrdersScan)
	det.Observe(sess, a)

	first, _ := det.Detect(a, sess)
	second, _ := det.Detect(a, sess)

	if !reflect.DeepEqual(first, second) {
		t.Error("repeated Detect over the same inputs produced different issues")
	}
}

func TestDetect_EstimateMiss(t *testing.T) {
	doc := `[{
		"Plan": {
			"Node Type": "Index Scan",
			"Relation Name": "events",
			"Startup Cost": 0.29,
			"Total Cost": 100.0,
			"Plan Rows": 10,
			"Plan Width": 16,
			"Actual Rows": 5000,
			"Actual Total Time": 40.0
		}
	}]`
	a := annotate(t, doc)
	det := NewDetector(config.Default().Rules)

	issues, _ := det.Detect(a, nil)
	var found *Issue
	for i := range issues {
		if issues[i].Kind == RowEstimateMiss {
			found = &issues[i]
		}
	}
	if found == nil {
		t.Fatal("no estimate miss issue for a 500x miss")
	}
	if found.Severity != High {
		t.Errorf("Severity = %v, want High for a 500x miss", found.Severity)
	}
}

func TestDetect_SevereOverestimate(t *testing.T) {
	doc := `[{
		"Plan": {
			"Node Type": "Index Scan",
			"Relation Name": "events",
			"Startup Cost": 0.29,
			"Total Cost": 100.0,
			"Plan Rows": 200000,
			"Plan Width": 16,
			"Actual Rows": 0,
			"Actual Total Time": 40.0
		}
	}]`
	a := annotate(t, doc)
	det := NewDetector(config.Default().Rules)

	issues, _ := det.Detect(a, nil)
	var found *Issue
	for i := range issues {
		if issues[i].Kind == RowEstimateMiss {
			found = &issues[i]
		}
	}
	if found == nil {
		t.Fatal("no estimate miss issue for 200k estimated against zero actual rows")
	}
	if found.Severity != High {
		t.Errorf("Severity = %v, want High for a total overestimate", found.Severity)
	}
	if found.Evidence["actual_rows"] != 0 {
		t.Errorf("evidence actual_rows = %g, want 0", found.Evidence["actual_rows"])
	}
}

func TestDetect_EstimateMissSkipsNodesWithoutActuals(t *testing.T) {
	// The child carries no Actual Rows even though the plan was analyzed;
	// its zero must read as absent, not as a miss.
	doc := `[{
		"Plan": {
			"Node Type": "Limit",
			"Startup Cost": 0.0,
			"Total Cost": 10.0,
			"Plan Rows": 10,
			"Plan Width": 16,
			"Actual Rows": 10,
			"Actual Total Time": 1.0,
			"Plans": [
				{
					"Node Type": "Index Scan",
					"Relation Name": "events",
					"Startup Cost": 0.29,
					"Total Cost": 100.0,
					"Plan Rows": 5000,
					"Plan Width": 16
				}
			]
		}
	}]`
	a := annotate(t, doc)
	det := NewDetector(config.Default().Rules)

	issues, _ := det.Detect(a, nil)
	for _, issue := range issues {
		if issue.Kind == RowEstimateMiss && issue.NodeID == 1 {
			t.Errorf("estimate miss issue on a node without actual-row data: %+v", issue)
		}
	}
}

func TestDetect_EstimateMissSkippedWithoutAnalyze(t *testing.T) {
	doc := `[{
		"Plan": {
			"Node Type": "Index Scan",
			"Relation Name": "events",
			"Startup Cost": 0.29,
			"Total Cost": 100.0,
			"Plan Rows": 10,
			"Plan Width": 16
		}
	}]`
	a := annotate(t, doc)
	det := NewDetector(config.Default().Rules)

	issues, _ := det.Detect(a, nil)
	for _, issue := range issues {
		if issue.Kind == RowEstimateMiss {
			t.Errorf("estimate miss issue on an estimate-only plan: %+v", issue)
		}
	}
}

func TestDetect_MissingParallelism(t *testing.T) {
	a := annotate(t, largeOrdersScan)
	det := NewDetector(config.Default().Rules)

	issues, _ := det.Detect(a, nil)
	found := false
	for _, issue := range issues {
		if issue.Kind == MissingParallelism {
			found = true
		}
	}
	if !found {
		t.Error("no parallelism issue for an expensive serial scan of 200k rows")
	}
}

func TestDetect_ParallelPlanNotFlagged(t *testing.T) {
	doc := `[{
		"Plan": {
			"Node Type": "Gather",
			"Startup Cost": 1000.0,
			"Total Cost": 60000.0,
			"Plan Rows": 200000,
			"Plan Width": 16,
			"Plans": [
				{
					"Node Type": "Seq Scan",
					"Relation Name": "orders",
					"Parallel Aware": true,
					"Workers Planned": 2,
					"Workers Launched": 2,
					"Startup Cost": 0.0,
					"Total Cost": 50000.0,
					"Plan Rows": 100000,
					"Plan Width": 16
				}
			]
		}
	}]`
	a := annotate(t, doc)
	det := NewDetector(config.Default().Rules)

	issues, _ := det.Detect(a, nil)
	for _, issue := range issues {
		if issue.Kind == MissingParallelism {
			t.Errorf("parallelism issue on a plan that already runs parallel: %+v", issue)
		}
	}
}

func TestDetect_HighBufferIO(t *testing.T) {
	doc := `[{
		"Plan": {
			"Node Type": "Seq Scan",
			"Relation Name": "cold_table",
			"Startup Cost": 0.0,
			"Total Cost": 1000.0,
			"Plan Rows": 5000,
			"Plan Width": 16,
			"Actual Rows": 5000,
			"Actual Total Time": 200.0,
			"Shared Hit Blocks": 100,
			"Shared Read Blocks": 4000
		}
	}]`
	a := annotate(t, doc)
	det := NewDetector(config.Default().Rules)

	issues, _ := det.Detect(a, nil)
	found := false
	for _, issue := range issues {
		if issue.Kind == HighBufferIO {
			found = true
			if issue.Evidence["shared_read_blocks"] != 4000 {
				t.Errorf("evidence shared_read_blocks = %g, want 4000", issue.Evidence["shared_read_blocks"])
			}
		}
	}
	if !found {
		t.Error("no buffer IO issue for 4000 reads against 100 hits")
	}
}

func TestDetect_IssuesOrderedByNode(t *testing.T) {
	doc := `[{
		"Plan": {
			"Node Type": "Nested Loop",
			"Startup Cost": 0.0,
			"Total Cost": 120000.0,
			"Plan Rows": 1000,
			"Plan Width": 32,
			"Plans": [
				{
					"Node Type": "Seq Scan",
					"Relation Name": "orders",
					"Startup Cost": 0.0,
					"Total Cost": 60000.0,
					"Plan Rows": 200000,
					"Plan Width": 16,
					"Filter": "(orders.status = 'open')"
				},
				{
					"Node Type": "Seq Scan",
					"Relation Name": "items",
					"Startup Cost": 0.0,
					"Total Cost": 50000.0,
					"Plan Rows": 150000,
					"Plan Width": 16
				}
			]
		}
	}]`
	a := annotate(t, doc)
	det := NewDetector(config.Default().Rules)

	issues, _ := det.Detect(a, nil)
	for i := 1; i < len(issues); i++ {
		if issues[i].NodeID < issues[i-1].NodeID {
			t.Errorf("issues out of node order: %d before %d", issues[i-1].NodeID, issues[i].NodeID)
		}
	}
}

type panickingRule struct{}

func (panickingRule) Name() string { return "panicking" }
func (panickingRule) Evaluate(*metrics.AnnotatedTree, *Session) []Issue {
	panic("boom")
}

func TestDetect_PanickingRuleIsolated(t *testing.T) {
	a := annotate(t, largeOrdersScan)
	det := &Detector{rules: []Rule{
		panickingRule{},
		SeqScanRule{Rows: 10000, CostShare: 0.05, HighShare: 0.20, CriticalShare: 0.50},
	}}

	issues, warnings := det.Detect(a, nil)
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(warnings))
	}
	if warnings[0].Rule != "panicking" {
		t.Errorf("warning rule = %q", warnings[0].Rule)
	}
	if len(issues) == 0 {
		t.Error("remaining rules did not run after a rule panicked")
	}
}
