// Package export serializes hierarchical trees to JSON and XML documents and
// parses such documents back into trees. Parsing is strict about shape: a
// nested object or list under a key that is not a known category is an error,
// never a guess.
package export

import (
	stdjson "encoding/json"
	"io"
	"sort"
	"strconv"

	"github.com/cifworks/ciftree/pkg/errors"
	"github.com/cifworks/ciftree/pkg/json"
	"github.com/cifworks/ciftree/pkg/mapping"
	"github.com/cifworks/ciftree/pkg/record"
)

// categoryPrefix marks category keys in hierarchical JSON
const categoryPrefix = "_"

// JSONCodec converts trees to and from hierarchical JSON documents
type JSONCodec struct {
	mapping *mapping.Mapping
}

// NewJSONCodec creates a JSON codec bound to generated rules
func NewJSONCodec(m *mapping.Mapping) *JSONCodec {
	return &JSONCodec{mapping: m}
}

// Encode writes the tree as a hierarchical JSON document: block name to block
// object, category keys underscore-prefixed, singleton groups as objects and
// lists otherwise. Items flagged numeric serialize as bare numbers.
func (c *JSONCodec) Encode(w io.Writer, tree *record.Tree) error {
	doc := make(map[string]interface{}, len(tree.Blocks))
	for _, block := range tree.Blocks {
		blockObj := make(map[string]interface{}, len(block.Entries))
		for _, group := range block.Entries {
			blockObj[categoryPrefix+group.Category] = c.encodeGroup(group)
		}
		doc[block.Name] = blockObj
	}
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode JSON document")
	}
	return nil
}

func (c *JSONCodec) encodeGroup(group *record.Group) interface{} {
	if single := group.Single(); single != nil {
		return c.encodeNode(single)
	}
	rows := make([]interface{}, 0, len(group.Rows))
	for _, node := range group.Rows {
		rows = append(rows, c.encodeNode(node))
	}
	return rows
}

func (c *JSONCodec) encodeNode(node *record.Node) map[string]interface{} {
	rule := c.mapping.Rule(node.Category)
	obj := make(map[string]interface{}, len(node.Values))
	for _, item := range node.ItemOrder {
		obj[item] = c.encodeValue(rule, item, node.Values[item])
	}
	for _, child := range node.Children() {
		obj[categoryPrefix+child.Category] = c.encodeGroup(child)
	}
	return obj
}

// encodeValue emits numeric items as bare numbers when their value parses as
// one. Null tokens and non-numeric text stay quoted strings.
func (c *JSONCodec) encodeValue(rule *mapping.CategoryRule, item, value string) interface{} {
	if rule == nil || record.IsNull(value) {
		return value
	}
	if !rule.Items[item].Numeric {
		return value
	}
	if _, err := strconv.ParseFloat(value, 64); err != nil {
		return value
	}
	return stdjson.Number(value)
}

// Decode parses a hierarchical JSON document into a tree. Shape errors are
// structural: a scalar under a category key, or a nested object under a key
// naming no known category, fail the whole call.
func (c *JSONCodec) Decode(r io.Reader) (*record.Tree, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc map[string]map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeStructural, "document is not hierarchical JSON")
	}

	tree := &record.Tree{}
	for _, blockName := range sortedKeys(doc) {
		tb := &record.TreeBlock{Name: blockName}
		blockObj := doc[blockName]
		for _, key := range sortedKeys(blockObj) {
			category, ok := c.categoryFor(key)
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeStructural,
					"block %s: key %q does not name a known category", blockName, key)
			}
			group, err := c.decodeGroup(category, blockObj[key], true)
			if err != nil {
				return nil, err
			}
			tb.Entries = append(tb.Entries, group)
		}
		tree.Blocks = append(tree.Blocks, tb)
	}
	return tree, nil
}

// categoryFor resolves a JSON key to a category name. Keys must be known to
// the mapping; there is no name-based guessing.
func (c *JSONCodec) categoryFor(key string) (string, bool) {
	name := key
	if len(key) > 1 && key[0] == '_' {
		name = key[1:]
	}
	if c.mapping.IsCategory(name) {
		return name, true
	}
	return "", false
}

// decodeGroup accepts an object (one row) or a list of objects. Top level
// groups take their mode from the shape, like the resolver's row count rule;
// nested groups use the declared multiplicity.
func (c *JSONCodec) decodeGroup(category string, value interface{}, topLevel bool) (*record.Group, error) {
	var rows []interface{}
	var shapeMode record.GroupMode
	switch v := value.(type) {
	case map[string]interface{}:
		rows = []interface{}{v}
		shapeMode = record.GroupSingle
	case []interface{}:
		rows = v
		shapeMode = record.GroupMultiple
	default:
		return nil, errors.Newf(errors.ErrorTypeStructural,
			"category %s: expected object or list, got %T", category, value)
	}

	mode := shapeMode
	if !topLevel {
		if rule := c.mapping.Rule(category); rule != nil {
			mode = rule.Mode
		}
	}

	group := &record.Group{Category: category, Mode: mode}
	for _, raw := range rows {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeStructural,
				"category %s: list entry is not an object", category)
		}
		node, err := c.decodeNode(category, obj)
		if err != nil {
			return nil, err
		}
		group.Rows = append(group.Rows, node)
	}
	return group, nil
}

func (c *JSONCodec) decodeNode(category string, obj map[string]interface{}) (*record.Node, error) {
	node := record.NewNode(category)
	for _, key := range sortedKeys(obj) {
		value := obj[key]
		switch v := value.(type) {
		case map[string]interface{}, []interface{}:
			child, ok := c.categoryFor(key)
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeStructural,
					"category %s: nested key %q does not name a known category",
					category, key)
			}
			group, err := c.decodeGroup(child, v, false)
			if err != nil {
				return nil, err
			}
			for _, row := range group.Rows {
				node.Attach(group.Category, group.Mode, row)
			}
		default:
			if len(key) > 1 && key[0] == '_' && c.mapping.IsCategory(key[1:]) {
				return nil, errors.Newf(errors.ErrorTypeStructural,
					"category %s: scalar value under category key %q", category, key)
			}
			node.SetValue(key, scalarToString(v))
		}
	}
	return node, nil
}

func scalarToString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case stdjson.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return record.Unknown
	default:
		return record.Unknown
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
