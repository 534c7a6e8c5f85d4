// Package recommend turns detected issues into actionable, ranked
// recommendations. Synthesis is deterministic: the same issues in the
// same order always produce the same recommendations.
package recommend

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pglens/pglens/internal/config"
	"github.com/pglens/pglens/internal/metrics"
	"github.com/pglens/pglens/internal/rules"
)

// Kind classifies what a recommendation asks the user to change.
type Kind string

const (
	Index   Kind = "index"
	Rewrite Kind = "rewrite"
	Config  Kind = "config"
	Schema  Kind = "schema"
)

// Recommendation is one ranked suggestion. SupportingIssues holds
// indices into the issue slice the recommendation was synthesized from.
type Recommendation struct {
	Kind         Kind   `json:"kind"`
	TargetObject string `json:"target_object"`
	Rationale    string `json:"rationale"`
	DDLOrPatch   string `json:"ddl_or_patch,omitempty"`

	// EstimatedBenefit is a relative score in [0,1] used for ranking,
	// not a promised speedup.
	EstimatedBenefit float64 `json:"estimated_benefit"`

	SupportingIssues []int `json:"supporting_issues"`

	// EstimateOnly marks recommendations derived from a plan without
	// ANALYZE data, where the benefit score rests on estimates alone.
	EstimateOnly bool `json:"estimate_only,omitempty"`
}

// Synthesize maps issues to recommendations, merges duplicates and ranks
// the result by estimated benefit.
func Synthesize(issues []rules.Issue, a *metrics.AnnotatedTree, cfg config.Config) []Recommendation {
	var recs []Recommendation
	// Dedup key: same target and same action are one recommendation with
	// merged supporting issues.
	index := make(map[string]int)

	add := func(r Recommendation, issueIdx int) {
		key := string(r.Kind) + "\x00" + r.TargetObject + "\x00" + r.DDLOrPatch
		if i, ok := index[key]; ok {
			recs[i].SupportingIssues = append(recs[i].SupportingIssues, issueIdx)
			if r.EstimatedBenefit > recs[i].EstimatedBenefit {
				recs[i].EstimatedBenefit = r.EstimatedBenefit
			}
			return
		}
		r.SupportingIssues = []int{issueIdx}
		r.EstimateOnly = a != nil && a.EstimateOnly
		index[key] = len(recs)
		recs = append(recs, r)
	}

	for i, issue := range issues {
		switch issue.Kind {
		case rules.SeqScanOnLargeRelation:
			if r, ok := indexRecommendation(issue, a, cfg.Ranking); ok {
				add(r, i)
			}
		case rules.NPlusOnePattern:
			add(rewriteRecommendation(issue, cfg.Ranking), i)
		case rules.MissingParallelism:
			add(parallelismRecommendation(issue, cfg.Ranking), i)
		case rules.HighBufferIO:
			add(bufferRecommendation(issue, cfg.Ranking), i)
		case rules.RowEstimateMiss:
			add(statisticsRecommendation(issue, cfg.Ranking), i)
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].EstimatedBenefit != recs[j].EstimatedBenefit {
			return recs[i].EstimatedBenefit > recs[j].EstimatedBenefit
		}
		return maxSeverity(recs[i], issues) > maxSeverity(recs[j], issues)
	})
	return recs
}

func maxSeverity(r Recommendation, issues []rules.Issue) rules.Severity {
	max := rules.Low
	for _, i := range r.SupportingIssues {
		if i < len(issues) && issues[i].Severity > max {
			max = issues[i].Severity
		}
	}
	return max
}

// benefit scores an issue for ranking: a weighted blend of its severity
// (normalized to [0,1]) and the cost share of the node it fired on.
func benefit(issue rules.Issue, w config.RankingConfig) float64 {
	sev := float64(issue.Severity) / float64(rules.Critical)
	share := issue.Evidence["cost_share"]
	score := w.SeverityWeight*sev + w.CostShareWeight*share
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// indexRecommendation proposes a CREATE INDEX for a flagged sequential
// scan. A composite index is proposed only when several columns appear
// together in the same node's predicate; columns from unrelated issues
// are never merged.
func indexRecommendation(issue rules.Issue, a *metrics.AnnotatedTree, w config.RankingConfig) (Recommendation, bool) {
	if issue.Relation == "" {
		return Recommendation{}, false
	}
	cols := issue.Columns
	if len(cols) == 0 {
		return Recommendation{
			Kind:             Index,
			TargetObject:     issue.Relation,
			EstimatedBenefit: benefit(issue, w),
			Rationale: fmt.Sprintf("sequential scan over %s carries %.0f%% of the plan cost; no predicate columns were recoverable, review the query for an indexable condition",
				issue.Relation, issue.Evidence["cost_share"]*100),
		}, true
	}
	ddl := fmt.Sprintf("CREATE INDEX idx_%s_%s ON %s (%s);",
		issue.Relation, strings.Join(cols, "_"), issue.Relation, strings.Join(cols, ", "))
	noun := "an index"
	if len(cols) > 1 {
		noun = "a composite index"
	}
	return Recommendation{
		Kind:             Index,
		TargetObject:     issue.Relation,
		DDLOrPatch:       ddl,
		EstimatedBenefit: benefit(issue, w),
		Rationale: fmt.Sprintf("sequential scan over %s filters on %s and carries %.0f%% of the plan cost; %s should let the planner avoid the full scan",
			issue.Relation, strings.Join(cols, ", "), issue.Evidence["cost_share"]*100, noun),
	}, true
}

func rewriteRecommendation(issue rules.Issue, w config.RankingConfig) Recommendation {
	target := issue.Relation
	if target == "" {
		target = "query"
	}
	return Recommendation{
		Kind:             Rewrite,
		TargetObject:     target,
		EstimatedBenefit: benefit(issue, w),
		Rationale: fmt.Sprintf("the same query shape ran %.0f times in this session; replace the per-row lookups with a single join or IN-list query",
			issue.Evidence["occurrences"]),
	}
}

func parallelismRecommendation(issue rules.Issue, w config.RankingConfig) Recommendation {
	return Recommendation{
		Kind:             Config,
		TargetObject:     "max_parallel_workers_per_gather",
		DDLOrPatch:       "SET max_parallel_workers_per_gather = 4;",
		EstimatedBenefit: benefit(issue, w),
		Rationale: fmt.Sprintf("plan costs %.0f and qualifies for parallel scans but ran serial; check max_parallel_workers_per_gather and the parallel_setup_cost/parallel_tuple_cost settings",
			issue.Evidence["total_cost"]),
	}
}

func bufferRecommendation(issue rules.Issue, w config.RankingConfig) Recommendation {
	target := issue.Relation
	if target == "" {
		target = "shared_buffers"
	}
	return Recommendation{
		Kind:             Config,
		TargetObject:     target,
		EstimatedBenefit: benefit(issue, w),
		Rationale: fmt.Sprintf("%.0f blocks came from disk against %.0f cache hits at %s; consider raising shared_buffers or reducing the working set the node touches",
			issue.Evidence["shared_read_blocks"], issue.Evidence["shared_hit_blocks"], issue.NodePath),
	}
}

func statisticsRecommendation(issue rules.Issue, w config.RankingConfig) Recommendation {
	target := issue.Relation
	if target == "" {
		target = "statistics"
	}
	r := Recommendation{
		Kind:             Schema,
		TargetObject:     target,
		EstimatedBenefit: benefit(issue, w),
	}
	if issue.Relation != "" {
		r.DDLOrPatch = fmt.Sprintf("ANALYZE %s;", issue.Relation)
		r.Rationale = fmt.Sprintf("row estimates for %s are off by %.1fx; refresh statistics with ANALYZE, or add extended statistics if the miss involves correlated columns",
			issue.Relation, deviationOf(issue))
	} else {
		r.Rationale = fmt.Sprintf("row estimates at %s are off by %.1fx; refresh table statistics with ANALYZE",
			issue.NodePath, deviationOf(issue))
	}
	return r
}

func deviationOf(issue rules.Issue) float64 {
	ratio := issue.Evidence["error_ratio"]
	if ratio == 0 {
		if issue.Evidence["actual_rows"] > 0 {
			return issue.Evidence["actual_rows"]
		}
		return 1
	}
	if ratio < 1 {
		return 1 / ratio
	}
	return ratio
}
