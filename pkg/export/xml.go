package export

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/cifworks/ciftree/pkg/errors"
	"github.com/cifworks/ciftree/pkg/mapping"
	"github.com/cifworks/ciftree/pkg/record"
)

const (
	elemDatablock = "datablock"
	elemCategory  = "category"
	elemRow       = "row"
	attrName      = "name"
)

// XMLCodec converts trees to and from hierarchical XML documents. One
// document carries one data block: the root element names the block, category
// elements carry a name attribute, and each row is a child element whose
// items are attributes or child elements per the generated placement rules.
type XMLCodec struct {
	mapping *mapping.Mapping
}

// NewXMLCodec creates an XML codec bound to generated rules
func NewXMLCodec(m *mapping.Mapping) *XMLCodec {
	return &XMLCodec{mapping: m}
}

// Encode writes the tree as one XML document. Trees holding more than one
// block do not fit the document shape and are rejected.
func (c *XMLCodec) Encode(w io.Writer, tree *record.Tree) error {
	if len(tree.Blocks) != 1 {
		return errors.Newf(errors.ErrorTypeData,
			"XML document carries exactly one block, tree has %d", len(tree.Blocks))
	}
	block := tree.Blocks[0]

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: xml.Name{Local: elemDatablock},
		Attr: []xml.Attr{{Name: xml.Name{Local: attrName}, Value: block.Name}},
	}
	if err := enc.EncodeToken(root); err != nil {
		return wrapXML(err)
	}
	for _, group := range block.Entries {
		if err := c.encodeGroup(enc, group); err != nil {
			return err
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return wrapXML(err)
	}
	if err := enc.Flush(); err != nil {
		return wrapXML(err)
	}
	return nil
}

func (c *XMLCodec) encodeGroup(enc *xml.Encoder, group *record.Group) error {
	start := xml.StartElement{
		Name: xml.Name{Local: elemCategory},
		Attr: []xml.Attr{{Name: xml.Name{Local: attrName}, Value: group.Category}},
	}
	if err := enc.EncodeToken(start); err != nil {
		return wrapXML(err)
	}
	for _, node := range group.Rows {
		if err := c.encodeRow(enc, node); err != nil {
			return err
		}
	}
	if err := enc.EncodeToken(start.End()); err != nil {
		return wrapXML(err)
	}
	return nil
}

// encodeRow emits one row element. Null token values are omitted; flattening
// restores them as unknown.
func (c *XMLCodec) encodeRow(enc *xml.Encoder, node *record.Node) error {
	rule := c.mapping.Rule(node.Category)

	start := xml.StartElement{Name: xml.Name{Local: elemRow}}
	var elements []string
	for _, item := range node.ItemOrder {
		v := node.Values[item]
		if record.IsNull(v) {
			continue
		}
		if placementOf(rule, item) == mapping.LocationAttribute {
			start.Attr = append(start.Attr, xml.Attr{
				Name: xml.Name{Local: item}, Value: v,
			})
		} else {
			elements = append(elements, item)
		}
	}
	if err := enc.EncodeToken(start); err != nil {
		return wrapXML(err)
	}
	for _, item := range elements {
		el := xml.StartElement{Name: xml.Name{Local: item}}
		if err := enc.EncodeToken(el); err != nil {
			return wrapXML(err)
		}
		if err := enc.EncodeToken(xml.CharData(node.Values[item])); err != nil {
			return wrapXML(err)
		}
		if err := enc.EncodeToken(el.End()); err != nil {
			return wrapXML(err)
		}
	}
	for _, child := range node.Children() {
		if err := c.encodeGroup(enc, child); err != nil {
			return err
		}
	}
	if err := enc.EncodeToken(start.End()); err != nil {
		return wrapXML(err)
	}
	return nil
}

func placementOf(rule *mapping.CategoryRule, item string) mapping.Location {
	if rule == nil {
		return mapping.LocationAttribute
	}
	return rule.Items[item].Location
}

// Decode parses one XML document into a single block tree
func (c *XMLCodec) Decode(r io.Reader) (*record.Tree, error) {
	dec := xml.NewDecoder(r)

	root, err := nextStart(dec)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeStructural, "document is not XML")
	}
	if root.Name.Local != elemDatablock {
		return nil, errors.Newf(errors.ErrorTypeStructural,
			"unexpected root element %q", root.Name.Local)
	}

	tb := &record.TreeBlock{Name: attrValue(root, attrName)}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapStructural(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != elemCategory {
				return nil, errors.Newf(errors.ErrorTypeStructural,
					"unexpected element %q under datablock", t.Name.Local)
			}
			group, err := c.decodeCategory(dec, t, true)
			if err != nil {
				return nil, err
			}
			tb.Entries = append(tb.Entries, group)
		case xml.EndElement:
			if t.Name.Local == elemDatablock {
				return &record.Tree{Blocks: []*record.TreeBlock{tb}}, nil
			}
		}
	}
	return &record.Tree{Blocks: []*record.TreeBlock{tb}}, nil
}

func (c *XMLCodec) decodeCategory(dec *xml.Decoder, start xml.StartElement, topLevel bool) (*record.Group, error) {
	category := attrValue(start, attrName)
	if !c.mapping.IsCategory(category) {
		return nil, errors.Newf(errors.ErrorTypeStructural,
			"element names unknown category %q", category)
	}

	group := &record.Group{Category: category}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, wrapStructural(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != elemRow {
				return nil, errors.Newf(errors.ErrorTypeStructural,
					"category %s: unexpected element %q, want row", category, t.Name.Local)
			}
			node, err := c.decodeRow(dec, t, category)
			if err != nil {
				return nil, err
			}
			group.Rows = append(group.Rows, node)
		case xml.EndElement:
			if t.Name.Local == elemCategory {
				group.Mode = c.groupMode(category, len(group.Rows), topLevel)
				return group, nil
			}
		}
	}
}

func (c *XMLCodec) groupMode(category string, rows int, topLevel bool) record.GroupMode {
	if topLevel {
		if rows == 1 {
			return record.GroupSingle
		}
		return record.GroupMultiple
	}
	if rule := c.mapping.Rule(category); rule != nil {
		return rule.Mode
	}
	return record.GroupMultiple
}

func (c *XMLCodec) decodeRow(dec *xml.Decoder, start xml.StartElement, category string) (*record.Node, error) {
	node := record.NewNode(category)
	for _, a := range start.Attr {
		node.SetValue(a.Name.Local, a.Value)
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, wrapStructural(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == elemCategory {
				child, err := c.decodeCategory(dec, t, false)
				if err != nil {
					return nil, err
				}
				for _, row := range child.Rows {
					node.Attach(child.Category, child.Mode, row)
				}
				continue
			}
			text, err := elementText(dec, t)
			if err != nil {
				return nil, err
			}
			node.SetValue(t.Name.Local, text)
		case xml.EndElement:
			if t.Name.Local == elemRow {
				return node, nil
			}
		}
	}
}

// elementText consumes a simple element and returns its character content.
// Child elements inside an item element are malformed.
func elementText(dec *xml.Decoder, start xml.StartElement) (string, error) {
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", wrapStructural(err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			return "", errors.Newf(errors.ErrorTypeStructural,
				"item element %q contains nested element %q",
				start.Name.Local, t.Name.Local)
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return strings.TrimSpace(sb.String()), nil
			}
		}
	}
}

func nextStart(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se, nil
		}
	}
}

func attrValue(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func wrapXML(err error) error {
	return errors.Wrap(err, errors.ErrorTypeData, "failed to encode XML document")
}

func wrapStructural(err error) error {
	return errors.Wrap(err, errors.ErrorTypeStructural, "malformed XML document")
}
