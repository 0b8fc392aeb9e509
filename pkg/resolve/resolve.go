// Package resolve nests flat records into a hierarchical tree using the
// generated foreign key table.
package resolve

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cifworks/ciftree/pkg/errors"
	"github.com/cifworks/ciftree/pkg/logger"
	"github.com/cifworks/ciftree/pkg/mapping"
	"github.com/cifworks/ciftree/pkg/metrics"
	"github.com/cifworks/ciftree/pkg/record"
)

// keySep joins key tuple components; it cannot occur in item values
const keySep = "\x1f"

// Options controls resolution behavior
type Options struct {
	// Strict raises a relationship error for rows whose parent lookup fails.
	// Permissive demotes them to top level instead.
	Strict bool
}

// Resolver converts flat containers into hierarchical trees. It is stateless
// across calls and safe for concurrent use once constructed.
type Resolver struct {
	mapping *mapping.Mapping
	opts    Options
}

// New creates a resolver. The category-level parent graph is checked for
// cycles here; a cyclic chain indicates malformed metadata and is rejected
// regardless of mode.
func New(m *mapping.Mapping, opts Options) (*Resolver, error) {
	if err := detectCycles(m); err != nil {
		return nil, err
	}
	return &Resolver{mapping: m, opts: opts}, nil
}

// detectCycles walks every parent chain. Chains are category-level and
// bounded by the category count, so a longer walk means a loop.
func detectCycles(m *mapping.Mapping) error {
	for start := range m.Parents {
		seen := map[string]bool{start: true}
		cur := start
		for {
			link := m.Parent(cur)
			if link == nil {
				break
			}
			next := link.ParentCategory
			if seen[next] {
				chain := describeChain(m, start)
				return errors.Newf(errors.ErrorTypeCycle,
					"cyclic parent chain involving category %s", start).
					WithDetail("chain", chain)
			}
			seen[next] = true
			cur = next
		}
	}
	return nil
}

func describeChain(m *mapping.Mapping, start string) string {
	var parts []string
	seen := map[string]bool{}
	cur := start
	for !seen[cur] {
		parts = append(parts, cur)
		seen[cur] = true
		link := m.Parent(cur)
		if link == nil {
			break
		}
		cur = link.ParentCategory
	}
	parts = append(parts, cur)
	return strings.Join(parts, " -> ")
}

// Resolve nests every block of the container. The call is all or nothing:
// on error no partial tree is returned.
func (r *Resolver) Resolve(container *record.Container) (*record.Tree, error) {
	tree := &record.Tree{}
	for _, block := range container.Blocks() {
		tb, err := r.resolveBlock(block)
		if err != nil {
			return nil, err
		}
		tree.Blocks = append(tree.Blocks, tb)
	}
	return tree, nil
}

func (r *Resolver) resolveBlock(block *record.Block) (*record.TreeBlock, error) {
	log := logger.ForBlock(block.Name)

	// Phase one: one node per row, plus a primary key index per category
	nodes := make(map[string][]*record.Node)
	index := make(map[string]map[string]*record.Node)
	for _, cat := range block.Categories() {
		if err := cat.Validate(); err != nil {
			return nil, err
		}
		rows := make([]*record.Node, 0, cat.RowCount())
		keys := r.keysFor(cat.Name)
		idx := make(map[string]*record.Node)
		for i := 0; i < cat.RowCount(); i++ {
			node := record.NewNode(cat.Name)
			for _, item := range cat.Items() {
				v, _ := cat.Value(item, i)
				node.SetValue(item, v)
			}
			rows = append(rows, node)
			if key, ok := keyTuple(node, keys); ok {
				idx[key] = node
			}
		}
		nodes[cat.Name] = rows
		index[cat.Name] = idx
	}

	// Phase two: attach each row under its parent, or mark it top level
	topLevel := make(map[string][]*record.Node)
	var violations []string
	for _, cat := range block.Categories() {
		link := r.mapping.Parent(cat.Name)
		mode := r.modeFor(cat.Name)
		for rowIdx, node := range nodes[cat.Name] {
			if link == nil {
				topLevel[cat.Name] = append(topLevel[cat.Name], node)
				continue
			}
			parent, status := lookupParent(node, link, r.mapping, index)
			switch status {
			case lookupFound:
				parent.Attach(cat.Name, mode, node)
			case lookupNoReference:
				// Null or absent foreign key values carry no reference;
				// the row stands on its own in every mode
				topLevel[cat.Name] = append(topLevel[cat.Name], node)
			case lookupMissingParent:
				if r.opts.Strict {
					violations = append(violations, fmt.Sprintf(
						"%s row %d: no %s row matches foreign key",
						cat.Name, rowIdx, link.ParentCategory))
					continue
				}
				metrics.ResolveOrphansTotal.Inc()
				log.Debug("demoting orphan row to top level",
					zap.String("category", cat.Name), zap.Int("row", rowIdx))
				topLevel[cat.Name] = append(topLevel[cat.Name], node)
			}
		}
	}
	if len(violations) > 0 {
		return nil, errors.Newf(errors.ErrorTypeRelationship,
			"unresolved relationships in block %s", block.Name).
			WithViolations(violations...)
	}

	// Top level entries keep the block's category declaration order. A lone
	// row forms a singleton entry, several rows a list.
	tb := &record.TreeBlock{Name: block.Name}
	for _, cat := range block.Categories() {
		rows := topLevel[cat.Name]
		if len(rows) == 0 {
			continue
		}
		mode := record.GroupMultiple
		if len(rows) == 1 {
			mode = record.GroupSingle
		}
		tb.Entries = append(tb.Entries, &record.Group{
			Category: cat.Name,
			Mode:     mode,
			Rows:     rows,
		})
	}
	return tb, nil
}

type lookupStatus int

const (
	lookupFound lookupStatus = iota
	lookupNoReference
	lookupMissingParent
)

// lookupParent finds the parent row a child references. Foreign key values
// that are null tokens are not data; such rows reference nothing.
func lookupParent(node *record.Node, link *mapping.ParentLink, m *mapping.Mapping,
	index map[string]map[string]*record.Node) (*record.Node, lookupStatus) {

	byParentItem := make(map[string]string, len(link.Pairs))
	for _, p := range link.Pairs {
		v, ok := node.Values[p.ChildItem]
		if !ok || record.IsNull(v) {
			return nil, lookupNoReference
		}
		byParentItem[p.ParentItem] = v
	}

	parentKeys := m.Rule(link.ParentCategory).Keys
	parts := make([]string, 0, len(parentKeys))
	for _, k := range parentKeys {
		v, ok := byParentItem[k]
		if !ok {
			// Foreign key does not span the parent's full key
			return nil, lookupMissingParent
		}
		parts = append(parts, v)
	}

	parent, ok := index[link.ParentCategory][strings.Join(parts, keySep)]
	if !ok {
		return nil, lookupMissingParent
	}
	return parent, lookupFound
}

// keyTuple computes a node's primary key tuple, or reports absence when any
// key value is null or missing.
func keyTuple(node *record.Node, keys []string) (string, bool) {
	if len(keys) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok := node.Values[k]
		if !ok || record.IsNull(v) {
			return "", false
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, keySep), true
}

func (r *Resolver) keysFor(category string) []string {
	if rule := r.mapping.Rule(category); rule != nil {
		return rule.Keys
	}
	return nil
}

func (r *Resolver) modeFor(category string) record.GroupMode {
	if rule := r.mapping.Rule(category); rule != nil {
		return rule.Mode
	}
	return record.GroupMultiple
}
