// Package analyzer orchestrates the analysis pipeline: build the tree,
// annotate it with metrics, record the query in the session window, run
// detection, synthesize recommendations. One call analyzes one plan;
// cross-plan state lives entirely in the caller's Session.
package analyzer

import (
	"github.com/pglens/pglens/internal/config"
	"github.com/pglens/pglens/internal/metrics"
	"github.com/pglens/pglens/internal/plan"
	"github.com/pglens/pglens/internal/recommend"
	"github.com/pglens/pglens/internal/rules"
)

// Result is the complete analysis of one plan.
type Result struct {
	Tree      *plan.Tree
	Annotated *metrics.AnnotatedTree

	Issues          []rules.Issue
	Recommendations []recommend.Recommendation

	BuildWarnings []plan.BuildWarning
	RuleWarnings  []rules.RuleWarning

	// EstimateOnly is true when the plan lacked ANALYZE data; issue
	// evidence and benefit scores then rest on planner estimates.
	EstimateOnly bool

	TotalCost     float64
	PlanningTime  float64
	ExecutionTime float64
}

// Analyze runs the full pipeline over a raw EXPLAIN JSON document.
func Analyze(doc []byte, sess *rules.Session, cfg config.Config) (*Result, error) {
	tree, err := plan.Build(doc)
	if err != nil {
		return nil, err
	}
	return AnalyzeTree(tree, sess, cfg)
}

// AnalyzeTree runs the pipeline over an already-built tree. The session
// window is updated exactly once here; repeated detection over the same
// result would yield identical issues.
func AnalyzeTree(tree *plan.Tree, sess *rules.Session, cfg config.Config) (*Result, error) {
	annotated, err := metrics.AnnotateWithOptions(tree, annotateOptions(cfg))
	if err != nil {
		return nil, err
	}
	det := rules.NewDetector(cfg.Rules)
	det.Observe(sess, annotated)
	return finish(tree, annotated, sess, det, cfg)
}

// AnalyzeWithDetector runs detection over a tree whose query the caller
// has already recorded in the session. Batch analysis uses this so every
// plan is observed before any is detected and shape counts cover the
// whole batch.
func AnalyzeWithDetector(tree *plan.Tree, sess *rules.Session, det *rules.Detector, cfg config.Config) (*Result, error) {
	annotated, err := metrics.AnnotateWithOptions(tree, annotateOptions(cfg))
	if err != nil {
		return nil, err
	}
	return finish(tree, annotated, sess, det, cfg)
}

func annotateOptions(cfg config.Config) metrics.Options {
	return metrics.Options{ParallelCandidateRows: cfg.Rules.ParallelRows}
}

func finish(tree *plan.Tree, annotated *metrics.AnnotatedTree, sess *rules.Session, det *rules.Detector, cfg config.Config) (*Result, error) {
	issues, ruleWarnings := det.Detect(annotated, sess)

	return &Result{
		Tree:      tree,
		Annotated: annotated,

		Issues:          issues,
		Recommendations: recommend.Synthesize(issues, annotated, cfg),

		BuildWarnings: tree.Warnings,
		RuleWarnings:  ruleWarnings,

		EstimateOnly:  annotated.EstimateOnly,
		TotalCost:     annotated.TotalCost,
		PlanningTime:  tree.PlanningTime,
		ExecutionTime: tree.ExecutionTime,
	}, nil
}
