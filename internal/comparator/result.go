package comparator

type Direction int

const (
	Unchanged Direction = 0
	Improved  Direction = 1
	Regressed Direction = 2
)

func (d Direction) String() string {
	switch d {
	case Improved:
		return "improved"
	case Regressed:
		return "regressed"
	default:
		return "unchanged"
	}
}

type ChangeType int

const (
	Matched ChangeType = 0
	Added   ChangeType = 1
	Removed ChangeType = 2
)

func (c ChangeType) String() string {
	switch c {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "matched"
	}
}

// NodeDiff is one entry of the per-node comparison. Matched entries carry
// both paths; added entries only AfterPath, removed only BeforePath.
type NodeDiff struct {
	ChangeType ChangeType
	NodeType   string
	Relation   string

	BeforePath string
	AfterPath  string

	OldCost   float64
	NewCost   float64
	CostDelta float64
	CostPct   float64
	CostDir   Direction

	OldTime float64
	NewTime float64
	TimeDir Direction

	OldRows int64
	NewRows int64
}

// ComparisonResult summarizes how the after plan differs from the before
// plan. Deltas are after minus before, so negative cost and time deltas
// mean the plan got cheaper.
type ComparisonResult struct {
	Similarity float64

	CostDelta float64
	CostPct   float64
	CostDir   Direction

	TimeDelta float64
	TimePct   float64
	TimeDir   Direction

	// RowEstimateDelta is the change in the root's estimated row count.
	RowEstimateDelta int64

	// Improved is true when total cost dropped beyond the noise
	// threshold and, where both plans carry timing, execution time
	// dropped as well.
	Improved bool

	PerNodeDiff []NodeDiff

	NodesMatched int
	NodesAdded   int
	NodesRemoved int

	Verdict string
}
