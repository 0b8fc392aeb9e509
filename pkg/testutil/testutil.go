// Package testutil provides shared fixtures for converter tests
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cifworks/ciftree/pkg/mapping"
	"github.com/cifworks/ciftree/pkg/meta"
	"github.com/cifworks/ciftree/pkg/record"
)

// DictJSON is a small dictionary in flat interchange form covering three
// linked categories: entity (parent), entity_poly (one row per entity) and
// atom_site (many rows per entity_poly).
const DictJSON = `{
  "test_dict": {
    "category": [
      {"id": "entry"},
      {"id": "entity"},
      {"id": "entity_poly"},
      {"id": "atom_site"}
    ],
    "category_key": [
      {"name": "_entry.id"},
      {"name": "_entity.id"},
      {"name": "_entity_poly.entity_id"},
      {"name": "_atom_site.id"}
    ],
    "item": [
      {"name": "_entry.id", "mandatory_code": "yes"},
      {"name": "_entity.id", "mandatory_code": "yes"},
      {"name": "_entity.type", "mandatory_code": "no"},
      {"name": "_entity.formula_weight", "mandatory_code": "no"},
      {"name": "_entity_poly.entity_id", "mandatory_code": "yes"},
      {"name": "_entity_poly.type", "mandatory_code": "no"},
      {"name": "_atom_site.id", "mandatory_code": "yes"},
      {"name": "_atom_site.label_entity_id", "mandatory_code": "no"},
      {"name": "_atom_site.cartn_x", "mandatory_code": "no"}
    ],
    "item_type": [
      {"name": "_entity.formula_weight", "code": "float"},
      {"name": "_atom_site.id", "code": "int"},
      {"name": "_atom_site.cartn_x", "code": "float"}
    ],
    "item_type_list": [
      {"code": "float", "primitive_code": "numb"},
      {"code": "int", "primitive_code": "numb"},
      {"code": "line", "primitive_code": "char"}
    ],
    "item_linked": [
      {"child_name": "_entity_poly.entity_id", "parent_name": "_entity.id"},
      {"child_name": "_atom_site.label_entity_id", "parent_name": "_entity.id"}
    ],
    "pdbx_item_linked_group_list": [
      {"child_name": "_atom_site.label_entity_id", "parent_name": "_entity_poly.entity_id"}
    ]
  }
}`

// Dict parses the fixture dictionary
func Dict(t *testing.T) *meta.Dictionary {
	t.Helper()
	dict, err := meta.ParseDictionary(strings.NewReader(DictJSON))
	require.NoError(t, err)
	return dict
}

// Rules generates the fixture mapping and foreign key table
func Rules(t *testing.T) (*mapping.Mapping, mapping.FkMap) {
	t.Helper()
	m, fk, err := mapping.Generate(Dict(t), nil)
	require.NoError(t, err)
	return m, fk
}

// WriteDictFile writes the fixture dictionary to a file and returns its path
func WriteDictFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "test.dic.json")
	require.NoError(t, os.WriteFile(path, []byte(DictJSON), 0o644))
	return path
}

// Container builds the standard flat fixture: one entry, two entities, one
// polymer description and three atom sites.
func Container(t *testing.T) *record.Container {
	t.Helper()

	block := record.NewBlock("1ABC")

	entry := record.NewCategory("entry")
	entry.AppendRow(map[string]string{"id": "1ABC"})
	block.AddCategory(entry)

	entity := record.NewCategory("entity")
	entity.AppendRow(map[string]string{"id": "1", "type": "polymer", "formula_weight": "10916.4"})
	entity.AppendRow(map[string]string{"id": "2", "type": "water"})
	block.AddCategory(entity)

	poly := record.NewCategory("entity_poly")
	poly.AppendRow(map[string]string{"entity_id": "1", "type": "polypeptide(L)"})
	block.AddCategory(poly)

	atoms := record.NewCategory("atom_site")
	atoms.AppendRow(map[string]string{"id": "1", "label_entity_id": "1", "cartn_x": "10.5"})
	atoms.AppendRow(map[string]string{"id": "2", "label_entity_id": "1", "cartn_x": "11.2"})
	atoms.AppendRow(map[string]string{"id": "3", "label_entity_id": "1", "cartn_x": "-0.8"})
	block.AddCategory(atoms)

	container := record.NewContainer()
	container.AddBlock(block)
	return container
}
