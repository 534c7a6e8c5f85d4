// Package rules detects anti-patterns in annotated plan trees. Each rule
// is independent; a rule that fails is skipped with a warning and never
// takes detection down with it.
package rules

import (
	"fmt"
	"sort"

	"github.com/pglens/pglens/internal/config"
	"github.com/pglens/pglens/internal/metrics"
)

// Detector runs an ordered rule registry over an annotated tree.
type Detector struct {
	rules []Rule
}

// NewDetector builds the canonical registry with thresholds from cfg.
// Registration order is part of the contract: it breaks ties when two
// rules fire on the same node.
func NewDetector(cfg config.RuleConfig) *Detector {
	return &Detector{rules: []Rule{
		SeqScanRule{
			Rows:          cfg.SeqScanRows,
			CostShare:     cfg.SeqScanCostShare,
			HighShare:     cfg.SeqScanHighShare,
			CriticalShare: cfg.SeqScanCriticalShare,
		},
		EstimateMissRule{
			Low:      cfg.EstimateMissLow,
			High:     cfg.EstimateMissHigh,
			SevereLo: cfg.EstimateMissSevereLo,
			SevereHi: cfg.EstimateMissSevereHi,
		},
		NPlusOneRule{Count: cfg.NPlusOneCount},
		ParallelismRule{Cost: cfg.ParallelCost, Rows: cfg.ParallelRows},
		BufferIORule{ReadMin: cfg.BufferReadMin, ReadRatio: cfg.BufferReadRatio},
	}}
}

// Observe records the analyzed plan's query in the session window. Kept
// separate from Detect so detection itself stays idempotent: Observe
// once per plan, Detect as often as you like.
func (d *Detector) Observe(sess *Session, a *metrics.AnnotatedTree) {
	if sess == nil || a == nil || a.Tree.QueryText == "" {
		return
	}
	sess.Observe(a.Tree.QueryText)
}

// Detect runs every rule and returns the combined issues in a stable
// order: ascending node ID, then registration order. A panicking rule is
// converted into a RuleWarning and the remaining rules still run.
func (d *Detector) Detect(a *metrics.AnnotatedTree, sess *Session) ([]Issue, []RuleWarning) {
	type tagged struct {
		issue     Issue
		ruleIndex int
	}
	var all []tagged
	var warnings []RuleWarning

	for i, rule := range d.rules {
		issues, err := runRule(rule, a, sess)
		if err != nil {
			warnings = append(warnings, RuleWarning{
				Rule:    rule.Name(),
				Message: err.Error(),
			})
			continue
		}
		for _, issue := range issues {
			all = append(all, tagged{issue: issue, ruleIndex: i})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].issue.NodeID != all[j].issue.NodeID {
			return all[i].issue.NodeID < all[j].issue.NodeID
		}
		return all[i].ruleIndex < all[j].ruleIndex
	})

	out := make([]Issue, len(all))
	for i, t := range all {
		out[i] = t.issue
	}
	return out, warnings
}

// runRule isolates one rule evaluation behind a recover so a defective
// rule cannot abort the whole detection pass.
func runRule(rule Rule, a *metrics.AnnotatedTree, sess *Session) (issues []Issue, err error) {
	defer func() {
		if r := recover(); r != nil {
			issues = nil
			err = fmt.Errorf("rule panicked: %v", r)
		}
	}()
	return rule.Evaluate(a, sess), nil
}
