// Package llmctx serializes an analysis into a compact digest for an
// external language-model collaborator. It only shapes data that already
// exists in the analysis result; it performs no network I/O and holds no
// credentials.
package llmctx

import (
	"github.com/pglens/pglens/internal/analyzer"
	"github.com/pglens/pglens/internal/plan"
)

// Context is the digest handed to the collaborator.
type Context struct {
	Query   string      `json:"query,omitempty"`
	Plan    PlanSummary `json:"plan"`
	Issues  []IssueCtx  `json:"issues"`
	Advice  []AdviceCtx `json:"recommendations"`
	Omitted int         `json:"omitted_issues,omitempty"`
}

// PlanSummary condenses the tree to what a reviewer needs to orient.
type PlanSummary struct {
	RootOperation string    `json:"root_operation"`
	NodeCount     int       `json:"node_count"`
	TotalCost     float64   `json:"total_cost"`
	ExecutionTime float64   `json:"execution_time_ms,omitempty"`
	PlanningTime  float64   `json:"planning_time_ms,omitempty"`
	EstimateOnly  bool      `json:"estimate_only"`
	Operations    []OpCount `json:"operations"`
}

type OpCount struct {
	Operation string `json:"operation"`
	Count     int    `json:"count"`
}

type IssueCtx struct {
	Kind     string             `json:"kind"`
	Severity string             `json:"severity"`
	NodePath string             `json:"node_path"`
	Relation string             `json:"relation,omitempty"`
	Message  string             `json:"message"`
	Evidence map[string]float64 `json:"evidence"`
}

type AdviceCtx struct {
	Kind       string  `json:"kind"`
	Target     string  `json:"target"`
	Benefit    float64 `json:"estimated_benefit"`
	Rationale  string  `json:"rationale"`
	DDLOrPatch string  `json:"ddl_or_patch,omitempty"`
}

// Build digests a result down to its top limit issues and
// recommendations. Issues and recommendations are already ranked, so the
// digest keeps the head of each list.
func Build(res *analyzer.Result, limit int) *Context {
	if limit <= 0 {
		limit = 5
	}

	ctx := &Context{
		Query: res.Tree.QueryText,
		Plan: PlanSummary{
			RootOperation: res.Tree.Root.NodeType,
			NodeCount:     res.Tree.NodeCount,
			TotalCost:     res.TotalCost,
			ExecutionTime: res.ExecutionTime,
			PlanningTime:  res.PlanningTime,
			EstimateOnly:  res.EstimateOnly,
			Operations:    operationCounts(res.Tree),
		},
	}

	issues := res.Issues
	if len(issues) > limit {
		ctx.Omitted = len(issues) - limit
		issues = issues[:limit]
	}
	for _, issue := range issues {
		ctx.Issues = append(ctx.Issues, IssueCtx{
			Kind:     string(issue.Kind),
			Severity: issue.Severity.String(),
			NodePath: issue.NodePath,
			Relation: issue.Relation,
			Message:  issue.Message,
			Evidence: issue.Evidence,
		})
	}

	recs := res.Recommendations
	if len(recs) > limit {
		recs = recs[:limit]
	}
	for _, rec := range recs {
		ctx.Advice = append(ctx.Advice, AdviceCtx{
			Kind:       string(rec.Kind),
			Target:     rec.TargetObject,
			Benefit:    rec.EstimatedBenefit,
			Rationale:  rec.Rationale,
			DDLOrPatch: rec.DDLOrPatch,
		})
	}
	return ctx
}

// operationCounts tallies node types in first-appearance order so the
// digest is stable for a given tree.
func operationCounts(t *plan.Tree) []OpCount {
	index := make(map[string]int)
	var counts []OpCount
	t.Walk(func(n *plan.Node) {
		if i, ok := index[n.NodeType]; ok {
			counts[i].Count++
			return
		}
		index[n.NodeType] = len(counts)
		counts = append(counts, OpCount{Operation: n.NodeType, Count: 1})
	})
	return counts
}
