package meta

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testXSD = `<?xml version="1.0" encoding="UTF-8"?>
<xsd:schema xmlns:xsd="http://www.w3.org/2001/XMLSchema">
  <xsd:complexType name="entityType">
    <xsd:sequence>
      <xsd:element name="details" minOccurs="0"/>
      <xsd:element name="formula_weight" minOccurs="0"/>
    </xsd:sequence>
    <xsd:attribute name="id" use="required"/>
    <xsd:attribute name="type"/>
  </xsd:complexType>
  <xsd:complexType name="entity_polyType">
    <xsd:all>
      <xsd:element name="pdbx_seq_one_letter_code" minOccurs="0"/>
    </xsd:all>
    <xsd:attribute name="entity_id" use="required"/>
  </xsd:complexType>
</xsd:schema>`

func TestParseSchema(t *testing.T) {
	schema, err := ParseSchema(strings.NewReader(testXSD))
	require.NoError(t, err)

	entity := schema.Category("entity")
	require.NotNil(t, entity)
	assert.True(t, entity.Attributes["id"])
	assert.True(t, entity.Attributes["type"])
	assert.True(t, entity.Elements["details"])
	assert.True(t, entity.Elements["formula_weight"])
	assert.False(t, entity.Attributes["details"])

	poly := schema.Category("entity_poly")
	require.NotNil(t, poly)
	assert.True(t, poly.Attributes["entity_id"])
	assert.True(t, poly.Elements["pdbx_seq_one_letter_code"])
}

func TestParseSchemaRejectsBadXML(t *testing.T) {
	_, err := ParseSchema(strings.NewReader("<unclosed"))
	require.Error(t, err)
}

func TestCategoryFromTypeName(t *testing.T) {
	assert.Equal(t, "entity", categoryFromTypeName("entityType"))
	assert.Equal(t, "atom_site", categoryFromTypeName("atom_siteType"))
	assert.Equal(t, "plain", categoryFromTypeName("plain"))
}
