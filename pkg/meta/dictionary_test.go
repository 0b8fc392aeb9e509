package meta

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDict = `{
  "test_dict": {
    "category": [
      {"id": "entity"},
      {"id": "entity_poly"},
      {"id": "atom_site"}
    ],
    "category_key": [
      {"name": "_entity.id"},
      {"name": "_entity_poly.entity_id"},
      {"name": "_atom_site.id"}
    ],
    "item": [
      {"name": "_entity.id", "mandatory_code": "yes"},
      {"name": "_entity.type", "mandatory_code": "no"},
      {"name": "_entity.formula_weight", "mandatory_code": "no"},
      {"name": "_entity_poly.entity_id", "mandatory_code": "yes"},
      {"name": "_entity_poly.type", "mandatory_code": "no"},
      {"name": "_atom_site.id", "mandatory_code": "yes"},
      {"name": "_atom_site.label_entity_id", "mandatory_code": "no"}
    ],
    "item_type": [
      {"name": "_entity.formula_weight", "code": "float"},
      {"name": "_entity.type", "code": "line"},
      {"name": "_atom_site.id", "code": "int"}
    ],
    "item_type_list": [
      {"code": "float", "primitive_code": "numb"},
      {"code": "int", "primitive_code": "numb"},
      {"code": "line", "primitive_code": "char"}
    ],
    "item_enumeration": [
      {"name": "_entity.type", "value": "polymer"},
      {"name": "_entity.type", "value": "non-polymer"},
      {"name": "_entity.type", "value": "water"}
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

func TestParseDictionary(t *testing.T) {
	dict, err := ParseDictionary(strings.NewReader(testDict))
	require.NoError(t, err)

	assert.Equal(t, "test_dict", dict.Title)
	require.Contains(t, dict.Categories, "entity")
	require.Contains(t, dict.Categories, "entity_poly")

	assert.Equal(t, []string{"id"}, dict.Keys("entity"))
	assert.Equal(t, []string{"entity_id"}, dict.Keys("entity_poly"))

	entity := dict.Category("entity")
	require.Contains(t, entity.Items, "type")
	assert.True(t, entity.Items["id"].Mandatory)
	assert.False(t, entity.Items["type"].Mandatory)
	assert.Equal(t, "float", entity.Items["formula_weight"].TypeCode)
	assert.ElementsMatch(t,
		[]string{"polymer", "non-polymer", "water"},
		entity.Items["type"].Enumeration)
}

func TestParseDictionaryNumericTypes(t *testing.T) {
	dict, err := ParseDictionary(strings.NewReader(testDict))
	require.NoError(t, err)

	assert.True(t, dict.IsNumeric("float"))
	assert.True(t, dict.IsNumeric("int"))
	assert.False(t, dict.IsNumeric("line"))
	assert.False(t, dict.IsNumeric(""))
}

func TestParseDictionaryLinks(t *testing.T) {
	dict, err := ParseDictionary(strings.NewReader(testDict))
	require.NoError(t, err)

	var general, specific int
	for _, l := range dict.Links {
		if l.Specific {
			specific++
		} else {
			general++
		}
	}
	assert.Equal(t, 2, general)
	assert.Equal(t, 1, specific)

	assert.Contains(t, dict.Links, LinkDecl{
		ChildCategory:  "entity_poly",
		ChildItem:      "entity_id",
		ParentCategory: "entity",
		ParentItem:     "id",
	})
	assert.Contains(t, dict.Links, LinkDecl{
		ChildCategory:  "atom_site",
		ChildItem:      "label_entity_id",
		ParentCategory: "entity_poly",
		ParentItem:     "entity_id",
		Specific:       true,
	})
}

func TestParseDictionarySkipsMalformedNames(t *testing.T) {
	doc := `{"d": {
      "category": [{"id": "entity"}],
      "category_key": [{"name": "no_dot_here"}, {"name": "_entity.id"}],
      "item_linked": [{"child_name": "?", "parent_name": "_entity.id"}]
    }}`

	dict, err := ParseDictionary(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, dict.Keys("entity"))
	assert.Empty(t, dict.Links)
}

func TestParseDictionaryEmptySource(t *testing.T) {
	_, err := ParseDictionary(strings.NewReader(`{}`))
	require.Error(t, err)
}

func TestSplitItemName(t *testing.T) {
	cat, item, ok := splitItemName("_entity_poly.entity_id")
	require.True(t, ok)
	assert.Equal(t, "entity_poly", cat)
	assert.Equal(t, "entity_id", item)

	_, _, ok = splitItemName("nodot")
	assert.False(t, ok)
	_, _, ok = splitItemName("_trailing.")
	assert.False(t, ok)
}
