package meta

import (
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/cifworks/ciftree/pkg/errors"
)

// xsdDoc captures the subset of an XML schema the mapper needs: per complex
// type, which names are attributes and which are child elements. Full
// structural validation of documents against the schema is the validation
// gate's job, not this parser's.
type xsdDoc struct {
	XMLName      xml.Name         `xml:"schema"`
	ComplexTypes []xsdComplexType `xml:"complexType"`
}

type xsdComplexType struct {
	Name       string       `xml:"name,attr"`
	Attributes []xsdNamed   `xml:"attribute"`
	Sequence   *xsdParticle `xml:"sequence"`
	All        *xsdParticle `xml:"all"`
	Choice     *xsdParticle `xml:"choice"`
}

type xsdParticle struct {
	Elements []xsdNamed `xml:"element"`
}

type xsdNamed struct {
	Name string `xml:"name,attr"`
}

// ParseSchema reads the XML schema surface used for item placement
func ParseSchema(r io.Reader) (*Schema, error) {
	var doc xsdDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to parse XML schema")
	}

	schema := &Schema{Categories: make(map[string]*ElementDef)}
	for _, ct := range doc.ComplexTypes {
		category := categoryFromTypeName(ct.Name)
		if category == "" {
			continue
		}
		def := &ElementDef{
			Attributes: make(map[string]bool),
			Elements:   make(map[string]bool),
		}
		for _, a := range ct.Attributes {
			if a.Name != "" {
				def.Attributes[a.Name] = true
			}
		}
		for _, p := range []*xsdParticle{ct.Sequence, ct.All, ct.Choice} {
			if p == nil {
				continue
			}
			for _, e := range p.Elements {
				if e.Name != "" {
					def.Elements[e.Name] = true
				}
			}
		}
		schema.Categories[category] = def
	}
	return schema, nil
}

// ParseSchemaFile reads an XML schema file
func ParseSchemaFile(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeNotFound, "schema %s", path)
	}
	defer f.Close()
	return ParseSchema(f)
}

// categoryFromTypeName maps a complex type name to its category. Row types
// are conventionally named <category>Type.
func categoryFromTypeName(name string) string {
	return strings.TrimSuffix(name, "Type")
}
