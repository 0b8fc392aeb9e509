package meta

import (
	"io"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/cifworks/ciftree/pkg/errors"
	"github.com/cifworks/ciftree/pkg/logger"
	"github.com/cifworks/ciftree/pkg/record"
)

// Dictionary source categories. The dictionary arrives in flat interchange
// form; these are the tables it carries.
const (
	catCategory        = "category"
	catCategoryKey     = "category_key"
	catItem            = "item"
	catItemType        = "item_type"
	catItemTypeList    = "item_type_list"
	catItemEnumeration = "item_enumeration"
	catItemLinked      = "item_linked"
	catLinkedGroupList = "pdbx_item_linked_group_list"
)

// numericPrimitive is the primitive code marking numeric types
const numericPrimitive = "numb"

// ParseDictionary reads a dictionary from flat interchange form
func ParseDictionary(r io.Reader) (*Dictionary, error) {
	container, err := record.FlatJSON{}.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read dictionary source")
	}
	blocks := container.Blocks()
	if len(blocks) == 0 {
		return nil, errors.New(errors.ErrorTypeData, "dictionary source has no data block")
	}
	return parseDictionaryBlock(blocks[0])
}

// ParseDictionaryFile reads a dictionary source file
func ParseDictionaryFile(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeNotFound, "dictionary %s", path)
	}
	defer f.Close()
	return ParseDictionary(f)
}

func parseDictionaryBlock(block *record.Block) (*Dictionary, error) {
	dict := &Dictionary{
		Title:        block.Name,
		Categories:   make(map[string]*CategoryDef),
		NumericTypes: make(map[string]bool),
	}

	log := logger.With(zap.String("dictionary", block.Name))

	if cats := block.Category(catCategory); cats != nil {
		for i := 0; i < cats.RowCount(); i++ {
			id, ok := cats.Value("id", i)
			if !ok || record.IsNull(id) {
				continue
			}
			dict.Categories[id] = &CategoryDef{
				Name:  id,
				Items: make(map[string]*ItemDef),
			}
		}
	}

	if keys := block.Category(catCategoryKey); keys != nil {
		for i := 0; i < keys.RowCount(); i++ {
			name, ok := keys.Value("name", i)
			if !ok || record.IsNull(name) {
				continue
			}
			cat, item, ok := splitItemName(name)
			if !ok {
				log.Warn("skipping malformed category key", zap.String("name", name))
				continue
			}
			def := dict.ensureCategory(cat)
			def.Keys = append(def.Keys, item)
		}
	}

	if items := block.Category(catItem); items != nil {
		for i := 0; i < items.RowCount(); i++ {
			name, ok := items.Value("name", i)
			if !ok || record.IsNull(name) {
				continue
			}
			cat, item, ok := splitItemName(name)
			if !ok {
				log.Warn("skipping malformed item name", zap.String("name", name))
				continue
			}
			def := dict.ensureCategory(cat)
			mandatory, _ := items.Value("mandatory_code", i)
			def.Items[item] = &ItemDef{
				Name:      item,
				Category:  cat,
				Mandatory: mandatory == "yes",
			}
		}
	}

	if types := block.Category(catItemType); types != nil {
		for i := 0; i < types.RowCount(); i++ {
			name, _ := types.Value("name", i)
			code, _ := types.Value("code", i)
			if record.IsNull(name) || record.IsNull(code) {
				continue
			}
			cat, item, ok := splitItemName(name)
			if !ok {
				continue
			}
			dict.ensureItem(cat, item).TypeCode = code
		}
	}

	if typeList := block.Category(catItemTypeList); typeList != nil {
		for i := 0; i < typeList.RowCount(); i++ {
			code, _ := typeList.Value("code", i)
			primitive, _ := typeList.Value("primitive_code", i)
			if !record.IsNull(code) && primitive == numericPrimitive {
				dict.NumericTypes[code] = true
			}
		}
	}

	if enums := block.Category(catItemEnumeration); enums != nil {
		for i := 0; i < enums.RowCount(); i++ {
			name, _ := enums.Value("name", i)
			value, _ := enums.Value("value", i)
			if record.IsNull(name) || record.IsNull(value) {
				continue
			}
			cat, item, ok := splitItemName(name)
			if !ok {
				continue
			}
			def := dict.ensureItem(cat, item)
			def.Enumeration = append(def.Enumeration, value)
		}
	}

	parseLinks(dict, block, log)

	// Key order must not depend on source row order
	for _, def := range dict.Categories {
		sort.Strings(def.Keys)
	}

	return dict, nil
}

// parseLinks reads the general link table and the grouped link table. Both
// orient child item to parent item; grouped declarations are marked specific.
func parseLinks(dict *Dictionary, block *record.Block, log *zap.Logger) {
	if general := block.Category(catItemLinked); general != nil {
		for i := 0; i < general.RowCount(); i++ {
			child, _ := general.Value("child_name", i)
			parent, _ := general.Value("parent_name", i)
			appendLink(dict, child, parent, false, log)
		}
	}

	if grouped := block.Category(catLinkedGroupList); grouped != nil {
		for i := 0; i < grouped.RowCount(); i++ {
			child, _ := grouped.Value("child_name", i)
			parent, _ := grouped.Value("parent_name", i)
			appendLink(dict, child, parent, true, log)
		}
	}
}

func appendLink(dict *Dictionary, child, parent string, specific bool, log *zap.Logger) {
	if record.IsNull(child) || record.IsNull(parent) {
		return
	}
	childCat, childItem, ok := splitItemName(child)
	if !ok {
		log.Warn("skipping malformed link child", zap.String("name", child))
		return
	}
	parentCat, parentItem, ok := splitItemName(parent)
	if !ok {
		log.Warn("skipping malformed link parent", zap.String("name", parent))
		return
	}
	dict.Links = append(dict.Links, LinkDecl{
		ChildCategory:  childCat,
		ChildItem:      childItem,
		ParentCategory: parentCat,
		ParentItem:     parentItem,
		Specific:       specific,
	})
}

func (d *Dictionary) ensureCategory(name string) *CategoryDef {
	def, ok := d.Categories[name]
	if !ok {
		def = &CategoryDef{Name: name, Items: make(map[string]*ItemDef)}
		d.Categories[name] = def
	}
	return def
}

func (d *Dictionary) ensureItem(category, item string) *ItemDef {
	def := d.ensureCategory(category)
	id, ok := def.Items[item]
	if !ok {
		id = &ItemDef{Name: item, Category: category}
		def.Items[item] = id
	}
	return id
}
