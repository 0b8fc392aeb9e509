// Package record defines the flat data model shared by both conversion
// directions: an ordered container of blocks, each an ordered set of
// categories, each a table of equal-length string columns.
package record

import (
	"github.com/cifworks/ciftree/pkg/errors"
)

// Null tokens. These denote absent data and must never be treated as present
// values during relationship resolution or type inference.
const (
	// Unknown marks a value that exists but was not recorded
	Unknown = "?"
	// Inapplicable marks a value that does not apply to the row
	Inapplicable = "."
)

// IsNull reports whether v is one of the null tokens
func IsNull(v string) bool {
	return v == Unknown || v == Inapplicable
}

// Category is a named table of item columns. All columns share one length,
// the category's row count.
type Category struct {
	Name string

	items   []string
	columns map[string][]string
}

// NewCategory creates an empty category
func NewCategory(name string) *Category {
	return &Category{
		Name:    name,
		columns: make(map[string][]string),
	}
}

// SetColumn installs a full column for an item, replacing any existing one
func (c *Category) SetColumn(item string, values []string) {
	if _, ok := c.columns[item]; !ok {
		c.items = append(c.items, item)
	}
	c.columns[item] = values
}

// AppendRow adds one row. Items absent from values receive the unknown token;
// items seen for the first time are back-filled with the unknown token for all
// earlier rows, preserving the equal-length invariant.
func (c *Category) AppendRow(values map[string]string) {
	n := c.RowCount()
	for item := range values {
		if _, ok := c.columns[item]; !ok {
			c.items = append(c.items, item)
			col := make([]string, n)
			for i := range col {
				col[i] = Unknown
			}
			c.columns[item] = col
		}
	}
	for _, item := range c.items {
		v, ok := values[item]
		if !ok || v == "" {
			v = Unknown
		}
		c.columns[item] = append(c.columns[item], v)
	}
}

// Items returns item names in declaration order
func (c *Category) Items() []string {
	return c.items
}

// HasItem reports whether the category declares the item
func (c *Category) HasItem(item string) bool {
	_, ok := c.columns[item]
	return ok
}

// Column returns the value sequence for an item, or nil
func (c *Category) Column(item string) []string {
	return c.columns[item]
}

// RowCount returns the category's row count
func (c *Category) RowCount() int {
	if len(c.items) == 0 {
		return 0
	}
	return len(c.columns[c.items[0]])
}

// Value returns the i-th value of an item
func (c *Category) Value(item string, i int) (string, bool) {
	col, ok := c.columns[item]
	if !ok || i < 0 || i >= len(col) {
		return "", false
	}
	return col[i], true
}

// Row materializes the i-th horizontal slice of the category
func (c *Category) Row(i int) map[string]string {
	row := make(map[string]string, len(c.items))
	for _, item := range c.items {
		if v, ok := c.Value(item, i); ok {
			row[item] = v
		}
	}
	return row
}

// Validate checks the equal-length column invariant
func (c *Category) Validate() error {
	n := c.RowCount()
	for _, item := range c.items {
		if got := len(c.columns[item]); got != n {
			return errors.Newf(errors.ErrorTypeData,
				"category %s: item %s has %d values, expected %d",
				c.Name, item, got, n)
		}
	}
	return nil
}

// Equal compares two categories ignoring item order
func (c *Category) Equal(other *Category) bool {
	if other == nil || c.Name != other.Name || len(c.items) != len(other.items) {
		return false
	}
	if c.RowCount() != other.RowCount() {
		return false
	}
	for _, item := range c.items {
		oc, ok := other.columns[item]
		if !ok || len(oc) != len(c.columns[item]) {
			return false
		}
		for i, v := range c.columns[item] {
			if v != oc[i] {
				return false
			}
		}
	}
	return true
}

// Block is a named, ordered collection of categories
type Block struct {
	Name string

	order      []string
	categories map[string]*Category
}

// NewBlock creates an empty block
func NewBlock(name string) *Block {
	return &Block{
		Name:       name,
		categories: make(map[string]*Category),
	}
}

// AddCategory installs a category, replacing any previous one with the same name
func (b *Block) AddCategory(cat *Category) {
	if _, ok := b.categories[cat.Name]; !ok {
		b.order = append(b.order, cat.Name)
	}
	b.categories[cat.Name] = cat
}

// Category returns the named category, or nil
func (b *Block) Category(name string) *Category {
	return b.categories[name]
}

// Categories returns categories in declaration order
func (b *Block) Categories() []*Category {
	out := make([]*Category, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.categories[name])
	}
	return out
}

// Len returns the number of categories
func (b *Block) Len() int {
	return len(b.order)
}

// Validate checks every category's invariants
func (b *Block) Validate() error {
	for _, cat := range b.Categories() {
		if err := cat.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Equal compares two blocks ignoring category order
func (b *Block) Equal(other *Block) bool {
	if other == nil || b.Name != other.Name || len(b.order) != len(other.order) {
		return false
	}
	for name, cat := range b.categories {
		oc, ok := other.categories[name]
		if !ok || !cat.Equal(oc) {
			return false
		}
	}
	return true
}

// Container is an ordered collection of blocks, one per logical dataset
type Container struct {
	order  []string
	blocks map[string]*Block
}

// NewContainer creates an empty container
func NewContainer() *Container {
	return &Container{
		blocks: make(map[string]*Block),
	}
}

// AddBlock installs a block. Block names are unique.
func (c *Container) AddBlock(b *Block) {
	if _, ok := c.blocks[b.Name]; !ok {
		c.order = append(c.order, b.Name)
	}
	c.blocks[b.Name] = b
}

// Block returns the named block, or nil
func (c *Container) Block(name string) *Block {
	return c.blocks[name]
}

// Blocks returns blocks in declaration order
func (c *Container) Blocks() []*Block {
	out := make([]*Block, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.blocks[name])
	}
	return out
}

// Len returns the number of blocks
func (c *Container) Len() int {
	return len(c.order)
}

// Validate checks every block's invariants
func (c *Container) Validate() error {
	for _, b := range c.Blocks() {
		if err := b.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Equal compares two containers ignoring block and category order
func (c *Container) Equal(other *Container) bool {
	if other == nil || len(c.order) != len(other.order) {
		return false
	}
	for name, b := range c.blocks {
		ob, ok := other.blocks[name]
		if !ok || !b.Equal(ob) {
			return false
		}
	}
	return true
}
