// Package meta parses dictionary and schema sources into structured metadata
// and caches the result keyed by source identity. Metadata is read-only after
// population and shared across conversions.
package meta

import "strings"

// ItemDef describes one dictionary item
type ItemDef struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	TypeCode    string   `json:"type_code,omitempty"`
	Mandatory   bool     `json:"mandatory,omitempty"`
	Enumeration []string `json:"enumeration,omitempty"`
}

// CategoryDef describes one dictionary category
type CategoryDef struct {
	Name  string              `json:"name"`
	Keys  []string            `json:"keys,omitempty"`
	Items map[string]*ItemDef `json:"items"`
}

// LinkDecl is one declared child to parent relationship. Specific marks
// declarations from the grouped link table, which outrank general ones.
type LinkDecl struct {
	ChildCategory  string `json:"child_category"`
	ChildItem      string `json:"child_item"`
	ParentCategory string `json:"parent_category"`
	ParentItem     string `json:"parent_item"`
	Specific       bool   `json:"specific,omitempty"`
}

// Dictionary is the parsed data dictionary
type Dictionary struct {
	Title        string                  `json:"title,omitempty"`
	Categories   map[string]*CategoryDef `json:"categories"`
	Links        []LinkDecl              `json:"links,omitempty"`
	NumericTypes map[string]bool         `json:"numeric_types,omitempty"`
}

// Category returns the named category definition, or nil
func (d *Dictionary) Category(name string) *CategoryDef {
	return d.Categories[name]
}

// Keys returns the declared primary key items for a category
func (d *Dictionary) Keys(category string) []string {
	if def := d.Categories[category]; def != nil {
		return def.Keys
	}
	return nil
}

// IsNumeric reports whether a type code belongs to the numeric type set
func (d *Dictionary) IsNumeric(typeCode string) bool {
	return d.NumericTypes[typeCode]
}

// ElementDef describes one category element in the XML schema: which item
// names are carried as attributes and which as child elements.
type ElementDef struct {
	Attributes map[string]bool `json:"attributes"`
	Elements   map[string]bool `json:"elements"`
}

// Schema is the parsed XML schema surface used for attribute placement
type Schema struct {
	Categories map[string]*ElementDef `json:"categories"`
}

// Category returns the element definition for a category, or nil
func (s *Schema) Category(name string) *ElementDef {
	return s.Categories[name]
}

// splitItemName splits a qualified item name like "_entity_poly.entity_id"
// into category and item parts.
func splitItemName(qualified string) (category, item string, ok bool) {
	name := strings.TrimPrefix(qualified, "_")
	i := strings.IndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}
