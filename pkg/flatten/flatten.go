// Package flatten reconstructs flat records from a hierarchical tree,
// back-filling the foreign keys that nesting made implicit.
package flatten

import (
	"github.com/cifworks/ciftree/pkg/errors"
	"github.com/cifworks/ciftree/pkg/mapping"
	"github.com/cifworks/ciftree/pkg/record"
)

// Flattener converts trees to flat containers. Stateless and safe for
// concurrent use.
type Flattener struct {
	mapping *mapping.Mapping
}

// New creates a flattener
func New(m *mapping.Mapping) *Flattener {
	return &Flattener{mapping: m}
}

// Flatten walks the tree depth first and emits one flat row per node. Child
// rows receive their parent's key values through the declared foreign key
// items; a child's own explicit value wins over a back-filled one. The call
// is all or nothing.
func (f *Flattener) Flatten(tree *record.Tree) (*record.Container, error) {
	container := record.NewContainer()
	for _, tb := range tree.Blocks {
		block := record.NewBlock(tb.Name)
		for _, group := range tb.Entries {
			if err := f.flattenGroup(block, group, nil); err != nil {
				return nil, errors.Wrapf(err, errors.TypeOf(err),
					"flattening block %s", tb.Name)
			}
		}
		if err := block.Validate(); err != nil {
			return nil, err
		}
		container.AddBlock(block)
	}
	return container, nil
}

func (f *Flattener) flattenGroup(block *record.Block, group *record.Group, inherited map[string]string) error {
	if group.Mode == record.GroupSingle && len(group.Rows) > 1 {
		return errors.Newf(errors.ErrorTypeData,
			"category %s declared singleton but carries %d rows",
			group.Category, len(group.Rows))
	}
	for _, node := range group.Rows {
		if err := f.flattenNode(block, node, inherited); err != nil {
			return err
		}
	}
	return nil
}

func (f *Flattener) flattenNode(block *record.Block, node *record.Node, inherited map[string]string) error {
	if node.Category == "" {
		return errors.New(errors.ErrorTypeData, "node without category name")
	}

	cat := block.Category(node.Category)
	if cat == nil {
		cat = record.NewCategory(node.Category)
		block.AddCategory(cat)
	}

	row := make(map[string]string, len(node.Values)+len(inherited))
	for item, v := range inherited {
		row[item] = v
	}
	for _, item := range node.ItemOrder {
		row[item] = node.Values[item]
	}
	cat.AppendRow(row)

	for _, child := range node.Children() {
		refs, err := f.childRefs(node.Category, child.Category, row)
		if err != nil {
			return err
		}
		if err := f.flattenGroup(block, child, refs); err != nil {
			return err
		}
	}
	return nil
}

// childRefs computes the foreign key values a nested child inherits: for each
// declared item pair joining the child to this category, the parent row's key
// value. A child nested under a category it has no declared link to inherits
// nothing; its rows must carry their own keys.
func (f *Flattener) childRefs(parentCategory, childCategory string, parentRow map[string]string) (map[string]string, error) {
	link := f.mapping.Parent(childCategory)
	if link == nil || link.ParentCategory != parentCategory {
		return nil, nil
	}
	refs := make(map[string]string, len(link.Pairs))
	for _, p := range link.Pairs {
		v, ok := parentRow[p.ParentItem]
		if !ok || record.IsNull(v) {
			return nil, errors.Newf(errors.ErrorTypeData,
				"%s row lacks key item %s required by nested %s",
				parentCategory, p.ParentItem, childCategory)
		}
		refs[p.ChildItem] = v
	}
	return refs, nil
}
