package rules

// Kind identifies an anti-pattern.
type Kind string

const (
	SeqScanOnLargeRelation Kind = "seq_scan_on_large_relation"
	RowEstimateMiss        Kind = "row_estimate_miss"
	NPlusOnePattern        Kind = "n_plus_one_pattern"
	MissingParallelism     Kind = "missing_parallelism"
	HighBufferIO           Kind = "high_buffer_io"
)

type Severity int

const (
	Low      Severity = 0
	Medium   Severity = 1
	High     Severity = 2
	Critical Severity = 3
)

func (s Severity) String() string {
	switch s {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Medium:
		return "medium"
	default:
		return "low"
	}
}

// Issue is one detected anti-pattern instance. Issues are created by the
// detector and read-only afterwards; NodePath references a position in
// the analyzed tree, it does not own the node.
type Issue struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`

	NodeID   int    `json:"node_id"`
	NodePath string `json:"node_path"`
	Relation string `json:"relation,omitempty"`

	// Columns lists the predicate columns implicated at the node, feeding
	// index-candidate generation downstream.
	Columns []string `json:"columns,omitempty"`

	// Evidence maps metric names to the values that triggered the rule.
	Evidence map[string]float64 `json:"evidence"`

	Message string `json:"message"`

	// Occurrences lists the query occurrences behind an aggregated issue
	// (N+1 only).
	Occurrences []string `json:"occurrences,omitempty"`
}

// RuleWarning records a rule that failed and was skipped; detection
// continues without it.
type RuleWarning struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}
