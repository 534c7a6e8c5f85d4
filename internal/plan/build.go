package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// rawNode mirrors the EXPLAIN (FORMAT JSON) node shape. Required fields
// are pointers so absence can be told apart from a zero value; unknown
// extra fields are ignored by the decoder.
type rawNode struct {
	NodeType    *string  `json:"Node Type"`
	StartupCost *float64 `json:"Startup Cost"`
	TotalCost   *float64 `json:"Total Cost"`

	RelationName string `json:"Relation Name"`
	Alias        string `json:"Alias"`
	IndexName    string `json:"Index Name"`

	PlanRows  int64 `json:"Plan Rows"`
	PlanWidth int   `json:"Plan Width"`

	ActualRows      *int64   `json:"Actual Rows"`
	ActualTotalTime *float64 `json:"Actual Total Time"`
	ActualLoops     int64    `json:"Actual Loops"`

	SharedHitBlocks     int64 `json:"Shared Hit Blocks"`
	SharedReadBlocks    int64 `json:"Shared Read Blocks"`
	SharedDirtiedBlocks int64 `json:"Shared Dirtied Blocks"`
	SharedWrittenBlocks int64 `json:"Shared Written Blocks"`
	TempReadBlocks      int64 `json:"Temp Read Blocks"`
	TempWrittenBlocks   int64 `json:"Temp Written Blocks"`

	ParallelAware   bool `json:"Parallel Aware"`
	WorkersPlanned  int  `json:"Workers Planned"`
	WorkersLaunched int  `json:"Workers Launched"`

	Filter    string   `json:"Filter"`
	IndexCond string   `json:"Index Cond"`
	HashCond  string   `json:"Hash Cond"`
	MergeCond string   `json:"Merge Cond"`
	SortKey   []string `json:"Sort Key"`
	GroupKey  []string `json:"Group Key"`

	Plans []rawNode `json:"Plans"`
}

type rawExplain struct {
	Plan          *rawNode `json:"Plan"`
	QueryText     string   `json:"Query Text"`
	PlanningTime  float64  `json:"Planning Time"`
	ExecutionTime float64  `json:"Execution Time"`
}

// Build parses a raw EXPLAIN (FORMAT JSON) document into an immutable
// Tree. EXPLAIN emits a one-element array per statement; Build analyzes
// the first statement. Documents without ANALYZE data build fine and are
// flagged estimate-only via Tree.HasAnalyze.
func Build(raw []byte) (*Tree, error) {
	trees, err := BuildAll(raw)
	if err != nil {
		return nil, err
	}
	return trees[0], nil
}

// BuildAll parses every statement in the document.
func BuildAll(raw []byte) ([]*Tree, error) {
	outputs, err := decode(raw)
	if err != nil {
		return nil, err
	}

	trees := make([]*Tree, 0, len(outputs))
	for _, out := range outputs {
		t, err := buildOne(out)
		if err != nil {
			return nil, err
		}
		trees = append(trees, t)
	}
	return trees, nil
}

func decode(raw []byte) ([]rawExplain, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, &UnsupportedPlanVersionError{Signature: "<empty>"}
	}
	if trimmed[0] != '[' && trimmed[0] != '{' {
		return nil, &UnsupportedPlanVersionError{Signature: signatureOf(trimmed)}
	}

	var outputs []rawExplain
	if trimmed[0] == '{' {
		var single rawExplain
		if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
			return nil, decodeError(err)
		}
		outputs = []rawExplain{single}
	} else if err := json.Unmarshal([]byte(trimmed), &outputs); err != nil {
		return nil, decodeError(err)
	}

	if len(outputs) == 0 {
		return nil, &UnsupportedPlanVersionError{Signature: "[] (empty EXPLAIN output)"}
	}
	for _, out := range outputs {
		if out.Plan == nil {
			return nil, &UnsupportedPlanVersionError{Signature: topLevelKeys(trimmed)}
		}
	}
	return outputs, nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &MalformedPlanError{
			Field:    typeErr.Field,
			Expected: typeErr.Type.String(),
			Actual:   typeErr.Value,
		}
	}
	return &MalformedPlanError{Expected: "valid JSON", Actual: err.Error()}
}

// signatureOf extracts a short prefix to report for unrecognized input.
func signatureOf(trimmed string) string {
	sig := trimmed
	if idx := strings.IndexAny(sig, "\r\n"); idx >= 0 {
		sig = sig[:idx]
	}
	if len(sig) > 40 {
		sig = sig[:40]
	}
	return sig
}

// topLevelKeys names the document's top-level keys so the caller can see
// what shape was actually received.
func topLevelKeys(trimmed string) string {
	probe := []byte(trimmed)
	var obj map[string]json.RawMessage
	if trimmed[0] == '[' {
		var arr []map[string]json.RawMessage
		if json.Unmarshal(probe, &arr) != nil || len(arr) == 0 {
			return signatureOf(trimmed)
		}
		obj = arr[0]
	} else if json.Unmarshal(probe, &obj) != nil {
		return signatureOf(trimmed)
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "keys: " + strings.Join(keys, ", ")
}

func buildOne(out rawExplain) (*Tree, error) {
	t := &Tree{
		QueryText:     out.QueryText,
		PlanningTime:  out.PlanningTime,
		ExecutionTime: out.ExecutionTime,
		HasAnalyze:    out.Plan.ActualTotalTime != nil || out.Plan.ActualRows != nil,
	}

	nextID := 0
	root, err := buildNode(out.Plan, "0", &nextID, t)
	if err != nil {
		return nil, err
	}
	t.Root = root
	t.NodeCount = nextID
	return t, nil
}

func buildNode(raw *rawNode, path string, nextID *int, t *Tree) (*Node, error) {
	if raw.NodeType == nil {
		return nil, &MalformedPlanError{NodePath: path, Field: "Node Type", Expected: "string"}
	}
	if raw.TotalCost == nil {
		return nil, &MalformedPlanError{NodePath: path, Field: "Total Cost", Expected: "number"}
	}
	if raw.StartupCost == nil {
		return nil, &MalformedPlanError{NodePath: path, Field: "Startup Cost", Expected: "number"}
	}
	if raw.PlanRows < 0 {
		return nil, &MalformedPlanError{
			NodePath: path, Field: "Plan Rows",
			Expected: "non-negative", Actual: fmt.Sprintf("%d", raw.PlanRows),
		}
	}

	op, known := opTable[*raw.NodeType]
	if !known {
		op = OpOther
		t.Warnings = append(t.Warnings, BuildWarning{
			NodePath: path,
			NodeType: *raw.NodeType,
			Message:  fmt.Sprintf("unsupported operation %q treated as Other", *raw.NodeType),
		})
	}

	n := &Node{
		ID:       *nextID,
		Path:     path,
		Op:       op,
		NodeType: *raw.NodeType,

		RelationName: raw.RelationName,
		Alias:        raw.Alias,
		IndexName:    raw.IndexName,

		StartupCost: *raw.StartupCost,
		TotalCost:   *raw.TotalCost,
		PlanRows:    raw.PlanRows,
		PlanWidth:   raw.PlanWidth,

		ActualLoops: raw.ActualLoops,

		SharedHitBlocks:     raw.SharedHitBlocks,
		SharedReadBlocks:    raw.SharedReadBlocks,
		SharedDirtiedBlocks: raw.SharedDirtiedBlocks,
		SharedWrittenBlocks: raw.SharedWrittenBlocks,
		TempReadBlocks:      raw.TempReadBlocks,
		TempWrittenBlocks:   raw.TempWrittenBlocks,

		ParallelAware:   raw.ParallelAware,
		WorkersPlanned:  raw.WorkersPlanned,
		WorkersLaunched: raw.WorkersLaunched,

		Filter:    raw.Filter,
		IndexCond: raw.IndexCond,
		HashCond:  raw.HashCond,
		MergeCond: raw.MergeCond,
		SortKey:   raw.SortKey,
		GroupKey:  raw.GroupKey,
	}
	*nextID++

	if raw.ActualRows != nil {
		if *raw.ActualRows < 0 {
			return nil, &MalformedPlanError{
				NodePath: path, Field: "Actual Rows",
				Expected: "non-negative", Actual: fmt.Sprintf("%d", *raw.ActualRows),
			}
		}
		n.ActualRows = *raw.ActualRows
		n.HasActual = true
		t.HasAnalyze = true
	}
	if raw.ActualTotalTime != nil {
		n.ActualTotalTime = *raw.ActualTotalTime
	}

	for i := range raw.Plans {
		child, err := buildNode(&raw.Plans[i], fmt.Sprintf("%s.%d", path, i), nextID, t)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}

	return n, nil
}
