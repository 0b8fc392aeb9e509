// Package mapping derives conversion rules from parsed metadata: how each
// category serializes to a hierarchical element, and the foreign key table
// that drives nesting and flattening. Generation is deterministic: identical
// metadata yields identical rules regardless of source iteration order.
package mapping

import (
	"sort"

	"go.uber.org/zap"

	"github.com/cifworks/ciftree/pkg/logger"
	"github.com/cifworks/ciftree/pkg/meta"
	"github.com/cifworks/ciftree/pkg/record"
)

// Location places an item in the hierarchical XML form
type Location int

const (
	// LocationAttribute renders the item as an element attribute
	LocationAttribute Location = iota
	// LocationElement renders the item as a child element with text content
	LocationElement
)

// ItemRule is the serialization rule for one item
type ItemRule struct {
	Location Location
	// Numeric items serialize without quoting, locale independent
	Numeric bool
}

// CategoryRule is the serialization and grouping rule for one category
type CategoryRule struct {
	Category string
	// Element is the hierarchical element name for the category
	Element string
	// Keys are the declared primary key items, sorted
	Keys  []string
	Items map[string]ItemRule
	// Mode is the category's multiplicity relative to its resolved parent:
	// single when the foreign key covers the whole primary key, so at most
	// one child row can reference a given parent row
	Mode record.GroupMode
}

// FkKey identifies a child item carrying a foreign key
type FkKey struct {
	Category string
	Item     string
}

// FkTarget is the parent side of a foreign key link
type FkTarget struct {
	Category string
	Item     string
}

// FkMap is the resolved, deduplicated relationship table, child to parent
type FkMap map[FkKey]FkTarget

// Pair is one child item to parent item correspondence
type Pair struct {
	ChildItem  string
	ParentItem string
}

// ParentLink is a category's resolved attachment point: the parent category
// and the item pairs joining them, sorted by child item.
type ParentLink struct {
	ParentCategory string
	Pairs          []Pair
}

// Mapping holds all generated rules
type Mapping struct {
	Categories map[string]*CategoryRule
	// Parents maps each child category to its resolved parent link.
	// Categories absent from this map are top level.
	Parents map[string]*ParentLink
}

// Rule returns the rule for a category, or nil
func (m *Mapping) Rule(category string) *CategoryRule {
	return m.Categories[category]
}

// Parent returns the resolved parent link for a category, or nil
func (m *Mapping) Parent(category string) *ParentLink {
	return m.Parents[category]
}

// IsCategory reports whether the name is a known category
func (m *Mapping) IsCategory(name string) bool {
	_, ok := m.Categories[name]
	return ok
}

// Generate builds the category rules and foreign key table from metadata.
// schema may be nil; placement then falls back to primary key items as
// attributes and everything else as elements.
func Generate(dict *meta.Dictionary, schema *meta.Schema) (*Mapping, FkMap, error) {
	m := &Mapping{
		Categories: make(map[string]*CategoryRule, len(dict.Categories)),
		Parents:    make(map[string]*ParentLink),
	}

	for _, name := range sortedCategoryNames(dict) {
		def := dict.Categories[name]
		rule := &CategoryRule{
			Category: name,
			Element:  name,
			Keys:     append([]string(nil), def.Keys...),
			Items:    make(map[string]ItemRule, len(def.Items)),
			Mode:     record.GroupMultiple,
		}
		sort.Strings(rule.Keys)
		for itemName, item := range def.Items {
			rule.Items[itemName] = ItemRule{
				Location: placeItem(name, itemName, rule.Keys, schema),
				Numeric:  dict.IsNumeric(item.TypeCode),
			}
		}
		m.Categories[name] = rule
	}

	fk := buildFkMap(dict, m)
	resolveParents(m, fk)
	return m, fk, nil
}

// buildFkMap collapses declared links into one entry per child item. A
// specific declaration displaces a general one for the same child item; links
// naming a category outside the mapping are dropped with a warning.
func buildFkMap(dict *meta.Dictionary, m *Mapping) FkMap {
	fk := make(FkMap)
	apply := func(specific bool) {
		for _, l := range dict.Links {
			if l.Specific != specific {
				continue
			}
			if !m.IsCategory(l.ChildCategory) || !m.IsCategory(l.ParentCategory) {
				logger.Warn("dropping link to unknown category",
					zap.String("child", l.ChildCategory+"."+l.ChildItem),
					zap.String("parent", l.ParentCategory+"."+l.ParentItem))
				continue
			}
			fk[FkKey{l.ChildCategory, l.ChildItem}] = FkTarget{l.ParentCategory, l.ParentItem}
		}
	}
	// General declarations first so specific ones win
	apply(false)
	apply(true)
	return fk
}

// resolveParents picks one attachment point per child category. When a child
// links to several parent categories, the parent joined by the most item
// pairs wins, then the lexicographically smallest name. Self links never
// produce an attachment.
func resolveParents(m *Mapping, fk FkMap) {
	byChild := make(map[string]map[string][]Pair)
	for key, target := range fk {
		if key.Category == target.Category {
			continue
		}
		parents, ok := byChild[key.Category]
		if !ok {
			parents = make(map[string][]Pair)
			byChild[key.Category] = parents
		}
		parents[target.Category] = append(parents[target.Category],
			Pair{ChildItem: key.Item, ParentItem: target.Item})
	}

	for child, parents := range byChild {
		var best string
		for parent, pairs := range parents {
			if best == "" ||
				len(pairs) > len(parents[best]) ||
				(len(pairs) == len(parents[best]) && parent < best) {
				best = parent
			}
		}
		pairs := parents[best]
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].ChildItem < pairs[j].ChildItem })
		m.Parents[child] = &ParentLink{ParentCategory: best, Pairs: pairs}

		if rule := m.Categories[child]; rule != nil {
			rule.Mode = multiplicity(rule.Keys, pairs)
		}
	}
}

// multiplicity is single when the foreign key items cover the child's whole
// primary key: the parent key then determines the child row uniquely.
func multiplicity(keys []string, pairs []Pair) record.GroupMode {
	if len(keys) == 0 {
		return record.GroupMultiple
	}
	covered := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		covered[p.ChildItem] = true
	}
	for _, k := range keys {
		if !covered[k] {
			return record.GroupMultiple
		}
	}
	return record.GroupSingle
}

func placeItem(category, item string, keys []string, schema *meta.Schema) Location {
	if schema != nil {
		if def := schema.Category(category); def != nil {
			if def.Attributes[item] {
				return LocationAttribute
			}
			if def.Elements[item] {
				return LocationElement
			}
		}
	}
	for _, k := range keys {
		if k == item {
			return LocationAttribute
		}
	}
	return LocationElement
}

func sortedCategoryNames(dict *meta.Dictionary) []string {
	names := make([]string, 0, len(dict.Categories))
	for name := range dict.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
