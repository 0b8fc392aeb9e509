package record

// GroupMode is the declared multiplicity of a category relative to its
// attachment point. It is decided once during mapping generation, never
// inferred from value shapes at conversion time.
type GroupMode int

const (
	// GroupSingle attaches exactly one row as a singleton field
	GroupSingle GroupMode = iota
	// GroupMultiple attaches rows as an ordered list
	GroupMultiple
)

// String returns the mode name
func (m GroupMode) String() string {
	if m == GroupSingle {
		return "single"
	}
	return "multiple"
}

// Node is one row of a category in hierarchical form. Item order is preserved
// so serialization is stable.
type Node struct {
	Category  string
	Values    map[string]string
	ItemOrder []string

	childOrder []string
	children   map[string]*Group
}

// NewNode creates a node for a category row
func NewNode(category string) *Node {
	return &Node{
		Category: category,
		Values:   make(map[string]string),
		children: make(map[string]*Group),
	}
}

// SetValue records an item value, tracking first-seen order
func (n *Node) SetValue(item, value string) {
	if _, ok := n.Values[item]; !ok {
		n.ItemOrder = append(n.ItemOrder, item)
	}
	n.Values[item] = value
}

// Attach adds a child row under the node. The group's mode is fixed by the
// first attachment.
func (n *Node) Attach(category string, mode GroupMode, child *Node) {
	g, ok := n.children[category]
	if !ok {
		g = &Group{Category: category, Mode: mode}
		n.children[category] = g
		n.childOrder = append(n.childOrder, category)
	}
	g.Rows = append(g.Rows, child)
}

// Child returns the child group for a category, or nil
func (n *Node) Child(category string) *Group {
	return n.children[category]
}

// Children returns child groups in attachment order
func (n *Node) Children() []*Group {
	out := make([]*Group, 0, len(n.childOrder))
	for _, name := range n.childOrder {
		out = append(out, n.children[name])
	}
	return out
}

// Group is a tagged variant holding a category's rows at one attachment
// point: a singleton row or an ordered list.
type Group struct {
	Category string
	Mode     GroupMode
	Rows     []*Node
}

// Single returns the sole row of a singleton group, or nil
func (g *Group) Single() *Node {
	if g.Mode == GroupSingle && len(g.Rows) == 1 {
		return g.Rows[0]
	}
	return nil
}

// TreeBlock is one data block in hierarchical form. Entries are the top-level
// category groups in block declaration order.
type TreeBlock struct {
	Name    string
	Entries []*Group
}

// Entry returns the top-level group for a category, or nil
func (tb *TreeBlock) Entry(category string) *Group {
	for _, g := range tb.Entries {
		if g.Category == category {
			return g
		}
	}
	return nil
}

// Tree is the hierarchical form of a container
type Tree struct {
	Blocks []*TreeBlock
}

// Block returns the named tree block, or nil
func (t *Tree) Block(name string) *TreeBlock {
	for _, b := range t.Blocks {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// NodeCount returns the total number of rows in the tree, counting every
// nesting level. Used to check that orphan demotion conserves records.
func (t *Tree) NodeCount() int {
	total := 0
	for _, b := range t.Blocks {
		for _, g := range b.Entries {
			for _, n := range g.Rows {
				total += countNodes(n)
			}
		}
	}
	return total
}

func countNodes(n *Node) int {
	total := 1
	for _, g := range n.Children() {
		for _, child := range g.Rows {
			total += countNodes(child)
		}
	}
	return total
}
