package plan

// Op is the closed set of operator kinds pglens reasons about. Vendor
// node-type strings are normalized into it at build time; anything
// unrecognized becomes OpOther and is recorded as a build warning.
type Op int

const (
	OpOther Op = iota
	OpSeqScan
	OpIndexScan
	OpIndexOnlyScan
	OpBitmapScan
	OpNestedLoop
	OpHashJoin
	OpMergeJoin
	OpSort
	OpAggregate
	OpLimit
)

func (op Op) String() string {
	switch op {
	case OpSeqScan:
		return "SeqScan"
	case OpIndexScan:
		return "IndexScan"
	case OpIndexOnlyScan:
		return "IndexOnlyScan"
	case OpBitmapScan:
		return "BitmapScan"
	case OpNestedLoop:
		return "NestedLoop"
	case OpHashJoin:
		return "HashJoin"
	case OpMergeJoin:
		return "MergeJoin"
	case OpSort:
		return "Sort"
	case OpAggregate:
		return "Aggregate"
	case OpLimit:
		return "Limit"
	default:
		return "Other"
	}
}

// opTable maps PostgreSQL "Node Type" strings to the closed enum.
var opTable = map[string]Op{
	"Seq Scan":          OpSeqScan,
	"Index Scan":        OpIndexScan,
	"Index Only Scan":   OpIndexOnlyScan,
	"Bitmap Heap Scan":  OpBitmapScan,
	"Bitmap Index Scan": OpBitmapScan,
	"Nested Loop":       OpNestedLoop,
	"Hash Join":         OpHashJoin,
	"Merge Join":        OpMergeJoin,
	"Sort":              OpSort,
	"Incremental Sort":  OpSort,
	"Aggregate":         OpAggregate,
	"GroupAggregate":    OpAggregate,
	"HashAggregate":     OpAggregate,
	"Limit":             OpLimit,
}

// Node is one operator in the execution tree. Nodes are built once and
// never mutated; derived metrics live in a separate arena keyed by ID.
type Node struct {
	// ID is the node's preorder position, used as its arena address.
	ID int
	// Path is the dotted child-index path from the root ("0", "0.1", ...).
	Path string

	Op       Op
	NodeType string

	RelationName string
	Alias        string
	IndexName    string

	StartupCost float64
	TotalCost   float64
	PlanRows    int64
	PlanWidth   int

	// HasActual is true when the node carried an "Actual Rows" count.
	// With it set, a zero ActualRows is a real measurement of zero rows,
	// not an absent field.
	HasActual bool

	// Present only when the plan was gathered with ANALYZE; see
	// HasActual before trusting zero values here.
	ActualRows      int64
	ActualTotalTime float64
	ActualLoops     int64

	SharedHitBlocks     int64
	SharedReadBlocks    int64
	SharedDirtiedBlocks int64
	SharedWrittenBlocks int64
	TempReadBlocks      int64
	TempWrittenBlocks   int64

	ParallelAware   bool
	WorkersPlanned  int
	WorkersLaunched int

	Filter    string
	IndexCond string
	HashCond  string
	MergeCond string
	SortKey   []string
	GroupKey  []string

	Children []*Node
}

// Label renders the node for messages, e.g. "Seq Scan on orders (o)".
func (n *Node) Label() string {
	label := n.NodeType
	if n.RelationName != "" {
		label += " on " + n.RelationName
		if n.Alias != "" && n.Alias != n.RelationName {
			label += " (" + n.Alias + ")"
		}
	}
	if n.IndexName != "" {
		label += " using " + n.IndexName
	}
	return label
}

// BuildWarning records a non-fatal problem found while building a tree,
// such as an operation name outside the known set.
type BuildWarning struct {
	NodePath string
	NodeType string
	Message  string
}

// Tree is a fully built execution plan. Immutable once returned by Build,
// so it can be shared across goroutines without synchronization.
type Tree struct {
	Root *Node

	QueryText     string
	PlanningTime  float64
	ExecutionTime float64

	// HasAnalyze is true when the document carried runtime statistics
	// (EXPLAIN ANALYZE); without it downstream analysis is estimate-only.
	HasAnalyze bool

	NodeCount int
	Warnings  []BuildWarning
}

// Walk visits every node in preorder, which matches ID order.
func (t *Tree) Walk(fn func(n *Node)) {
	walk(t.Root, fn)
}

func walk(n *Node, fn func(n *Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, child := range n.Children {
		walk(child, fn)
	}
}

// NodeByID resolves an arena address back to its node, or nil.
func (t *Tree) NodeByID(id int) *Node {
	var found *Node
	t.Walk(func(n *Node) {
		if n.ID == id {
			found = n
		}
	})
	return found
}
