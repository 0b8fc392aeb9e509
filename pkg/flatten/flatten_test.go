package flatten

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cifworks/ciftree/pkg/errors"
	"github.com/cifworks/ciftree/pkg/record"
	"github.com/cifworks/ciftree/pkg/resolve"
	"github.com/cifworks/ciftree/pkg/testutil"
)

func fixtures(t *testing.T) (*Flattener, *resolve.Resolver) {
	t.Helper()
	m, _ := testutil.Rules(t)
	r, err := resolve.New(m, resolve.Options{})
	require.NoError(t, err)
	return New(m), r
}

func TestRoundTripReproducesFlatRecords(t *testing.T) {
	f, r := fixtures(t)
	original := testutil.Container(t)

	tree, err := r.Resolve(original)
	require.NoError(t, err)
	back, err := f.Flatten(tree)
	require.NoError(t, err)

	assert.True(t, original.Equal(back),
		"flatten(resolve(x)) must reproduce x")
}

func TestFlattenBackfillsForeignKeys(t *testing.T) {
	f, _ := fixtures(t)

	// entity_poly nested without its own entity_id; the parent key fills it
	parent := record.NewNode("entity")
	parent.SetValue("id", "5")
	child := record.NewNode("entity_poly")
	child.SetValue("type", "polyribonucleotide")
	parent.Attach("entity_poly", record.GroupSingle, child)

	tree := &record.Tree{Blocks: []*record.TreeBlock{{
		Name: "X",
		Entries: []*record.Group{
			{Category: "entity", Mode: record.GroupSingle, Rows: []*record.Node{parent}},
		},
	}}}

	flat, err := f.Flatten(tree)
	require.NoError(t, err)

	poly := flat.Block("X").Category("entity_poly")
	require.NotNil(t, poly)
	assert.Equal(t, []string{"5"}, poly.Column("entity_id"))
}

func TestFlattenExplicitChildKeyWins(t *testing.T) {
	f, _ := fixtures(t)

	parent := record.NewNode("entity")
	parent.SetValue("id", "5")
	child := record.NewNode("entity_poly")
	child.SetValue("entity_id", "5")
	child.SetValue("type", "other")
	parent.Attach("entity_poly", record.GroupSingle, child)

	tree := &record.Tree{Blocks: []*record.TreeBlock{{
		Name: "X",
		Entries: []*record.Group{
			{Category: "entity", Mode: record.GroupSingle, Rows: []*record.Node{parent}},
		},
	}}}

	flat, err := f.Flatten(tree)
	require.NoError(t, err)
	assert.Equal(t, []string{"5"}, flat.Block("X").Category("entity_poly").Column("entity_id"))
}

func TestFlattenListYieldsOneRowPerObject(t *testing.T) {
	f, _ := fixtures(t)

	parent := record.NewNode("entity_poly")
	parent.SetValue("entity_id", "1")
	for _, id := range []string{"1", "2", "3"} {
		atom := record.NewNode("atom_site")
		atom.SetValue("id", id)
		parent.Attach("atom_site", record.GroupMultiple, atom)
	}

	tree := &record.Tree{Blocks: []*record.TreeBlock{{
		Name: "X",
		Entries: []*record.Group{
			{Category: "entity_poly", Mode: record.GroupSingle, Rows: []*record.Node{parent}},
		},
	}}}

	flat, err := f.Flatten(tree)
	require.NoError(t, err)

	atoms := flat.Block("X").Category("atom_site")
	require.NotNil(t, atoms)
	assert.Equal(t, 3, atoms.RowCount())
	assert.Equal(t, []string{"1", "2", "3"}, atoms.Column("id"))
	// every row inherited the parent key
	assert.Equal(t, []string{"1", "1", "1"}, atoms.Column("label_entity_id"))
}

func TestFlattenRowLengthInvariant(t *testing.T) {
	f, _ := fixtures(t)

	// rows with differing item sets still produce equal length columns
	parent := record.NewNode("entity")
	parent.SetValue("id", "1")
	a := record.NewNode("atom_site")
	a.SetValue("id", "1")
	a.SetValue("cartn_x", "0.5")
	b := record.NewNode("atom_site")
	b.SetValue("id", "2")

	tree := &record.Tree{Blocks: []*record.TreeBlock{{
		Name: "X",
		Entries: []*record.Group{
			{Category: "entity", Mode: record.GroupSingle, Rows: []*record.Node{parent}},
			{Category: "atom_site", Mode: record.GroupMultiple, Rows: []*record.Node{a, b}},
		},
	}}}

	flat, err := f.Flatten(tree)
	require.NoError(t, err)

	for _, block := range flat.Blocks() {
		for _, cat := range block.Categories() {
			require.NoError(t, cat.Validate())
		}
	}
	atoms := flat.Block("X").Category("atom_site")
	assert.Equal(t, []string{"0.5", record.Unknown}, atoms.Column("cartn_x"))
}

func TestFlattenSingletonWithManyRowsRejected(t *testing.T) {
	f, _ := fixtures(t)

	tree := &record.Tree{Blocks: []*record.TreeBlock{{
		Name: "X",
		Entries: []*record.Group{{
			Category: "entity_poly",
			Mode:     record.GroupSingle,
			Rows:     []*record.Node{record.NewNode("entity_poly"), record.NewNode("entity_poly")},
		}},
	}}}

	_, err := f.Flatten(tree)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestFlattenParentMissingKeyForNestedChild(t *testing.T) {
	f, _ := fixtures(t)

	parent := record.NewNode("entity")
	// no id set; nested entity_poly cannot be linked
	child := record.NewNode("entity_poly")
	child.SetValue("type", "x")
	parent.Attach("entity_poly", record.GroupSingle, child)

	tree := &record.Tree{Blocks: []*record.TreeBlock{{
		Name: "X",
		Entries: []*record.Group{
			{Category: "entity", Mode: record.GroupSingle, Rows: []*record.Node{parent}},
		},
	}}}

	_, err := f.Flatten(tree)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestFlattenUnlinkedNestingInheritsNothing(t *testing.T) {
	f, _ := fixtures(t)

	// entry is not a declared parent of atom_site
	parent := record.NewNode("entry")
	parent.SetValue("id", "1ABC")
	atom := record.NewNode("atom_site")
	atom.SetValue("id", "1")
	parent.Attach("atom_site", record.GroupMultiple, atom)

	tree := &record.Tree{Blocks: []*record.TreeBlock{{
		Name: "X",
		Entries: []*record.Group{
			{Category: "entry", Mode: record.GroupSingle, Rows: []*record.Node{parent}},
		},
	}}}

	flat, err := f.Flatten(tree)
	require.NoError(t, err)

	atoms := flat.Block("X").Category("atom_site")
	require.NotNil(t, atoms)
	assert.False(t, atoms.HasItem("label_entity_id"))
}
