package record

import (
	"io"
	"sort"

	"github.com/cifworks/ciftree/pkg/errors"
	"github.com/cifworks/ciftree/pkg/json"
)

// Decoder produces a flat container from an external representation. The
// on-disk text codec sits behind this boundary; the core only consumes its
// output as flat records.
type Decoder interface {
	Decode(r io.Reader) (*Container, error)
}

// Encoder writes a flat container to an external representation
type Encoder interface {
	Encode(w io.Writer, c *Container) error
}

// FlatJSON is the flat record interchange codec: block name mapped to
// category name mapped to a list of row objects, every value a string.
type FlatJSON struct{}

type flatDoc = map[string]map[string][]map[string]string

// Decode reads the flat interchange shape into a container. JSON objects
// carry no order, so blocks and categories are installed in sorted name order
// for determinism.
func (FlatJSON) Decode(r io.Reader) (*Container, error) {
	var doc flatDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode flat records")
	}

	container := NewContainer()
	for _, blockName := range sortedKeys(doc) {
		block := NewBlock(blockName)
		cats := doc[blockName]
		for _, catName := range sortedKeys(cats) {
			cat := NewCategory(catName)
			for _, row := range cats[catName] {
				cat.AppendRow(row)
			}
			block.AddCategory(cat)
		}
		container.AddBlock(block)
	}
	if err := container.Validate(); err != nil {
		return nil, err
	}
	return container, nil
}

// Encode writes the container in the flat interchange shape
func (FlatJSON) Encode(w io.Writer, c *Container) error {
	doc := make(flatDoc, c.Len())
	for _, block := range c.Blocks() {
		cats := make(map[string][]map[string]string, block.Len())
		for _, cat := range block.Categories() {
			rows := make([]map[string]string, 0, cat.RowCount())
			for i := 0; i < cat.RowCount(); i++ {
				rows = append(rows, cat.Row(i))
			}
			cats[cat.Name] = rows
		}
		doc[block.Name] = cats
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode flat records")
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
