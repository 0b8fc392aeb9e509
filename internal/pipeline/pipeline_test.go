package pipeline

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cifworks/ciftree/pkg/config"
	"github.com/cifworks/ciftree/pkg/errors"
	"github.com/cifworks/ciftree/pkg/record"
	"github.com/cifworks/ciftree/pkg/testutil"
)

func newPipeline(t *testing.T, strict bool) *Pipeline {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Paths.Dictionary = testutil.WriteDictFile(t, dir)
	cfg.Conversion.Strict = strict

	p, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func flatInput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, record.FlatJSON{}.Encode(&buf, testutil.Container(t)))
	return &buf
}

func TestResolveFlattenRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatXML} {
		t.Run(string(format), func(t *testing.T) {
			p := newPipeline(t, false)

			var doc bytes.Buffer
			require.NoError(t, p.Resolve(context.Background(), flatInput(t), &doc, format))

			var flatOut bytes.Buffer
			require.NoError(t, p.Flatten(context.Background(), bytes.NewReader(doc.Bytes()), &flatOut, format))

			back, err := record.FlatJSON{}.Decode(&flatOut)
			require.NoError(t, err)
			assert.True(t, testutil.Container(t).Equal(back))
		})
	}
}

func TestResolveProducesNestedJSON(t *testing.T) {
	p := newPipeline(t, false)

	var doc bytes.Buffer
	require.NoError(t, p.Resolve(context.Background(), flatInput(t), &doc, FormatJSON))

	out := doc.String()
	assert.Contains(t, out, `"_entity"`)
	assert.Contains(t, out, `"_entity_poly"`)
	assert.Contains(t, out, `"_atom_site"`)
}

func TestFlattenStrictRejectsMalformedShapeBeforeFlattening(t *testing.T) {
	p := newPipeline(t, true)

	doc := `{"B": {"_entity": {"id": "1", "unknown_thing": {"a": "b"}}}}`
	var out bytes.Buffer
	err := p.Flatten(context.Background(), strings.NewReader(doc), &out, FormatJSON)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeStructural))
	assert.Zero(t, out.Len(), "nothing partial may be written")
}

func TestResolveStrictFailsOnOrphans(t *testing.T) {
	p := newPipeline(t, true)

	c := testutil.Container(t)
	c.Block("1ABC").Category("atom_site").
		AppendRow(map[string]string{"id": "9", "label_entity_id": "404"})
	var buf bytes.Buffer
	require.NoError(t, record.FlatJSON{}.Encode(&buf, c))

	var out bytes.Buffer
	err := p.Resolve(context.Background(), &buf, &out, FormatJSON)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRelationship))
	assert.Zero(t, out.Len())
}

func TestResolvePermissiveKeepsOrphans(t *testing.T) {
	p := newPipeline(t, false)

	c := testutil.Container(t)
	c.Block("1ABC").Category("atom_site").
		AppendRow(map[string]string{"id": "9", "label_entity_id": "404"})
	var buf bytes.Buffer
	require.NoError(t, record.FlatJSON{}.Encode(&buf, c))

	var doc bytes.Buffer
	require.NoError(t, p.Resolve(context.Background(), &buf, &doc, FormatJSON))

	// orphan surfaces at top level instead of being dropped
	assert.Contains(t, doc.String(), `"id":9`)
}

func TestPipelineReusesCachedMetadata(t *testing.T) {
	p := newPipeline(t, false)
	require.Equal(t, int64(1), p.Store().ParseCount())

	var doc bytes.Buffer
	require.NoError(t, p.Resolve(context.Background(), flatInput(t), &doc, FormatJSON))
	require.NoError(t, p.Resolve(context.Background(), flatInput(t), &doc, FormatJSON))

	assert.Equal(t, int64(1), p.Store().ParseCount())
}

func TestNewRequiresDictionary(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestResolveUnknownFormat(t *testing.T) {
	p := newPipeline(t, false)

	var out bytes.Buffer
	err := p.Resolve(context.Background(), flatInput(t), &out, Format("yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestEndToEndEntityExample(t *testing.T) {
	p := newPipeline(t, false)

	flat := `{"X": {
	  "entity": [{"id": "1"}],
	  "entity_poly": [{"entity_id": "1", "type": "polypeptide(L)"}]
	}}`

	var doc bytes.Buffer
	require.NoError(t, p.Resolve(context.Background(), strings.NewReader(flat), &doc, FormatJSON))
	assert.Contains(t, doc.String(), `"_entity_poly"`)

	var flatOut bytes.Buffer
	require.NoError(t, p.Flatten(context.Background(), bytes.NewReader(doc.Bytes()), &flatOut, FormatJSON))

	back, err := record.FlatJSON{}.Decode(&flatOut)
	require.NoError(t, err)

	poly := back.Block("X").Category("entity_poly")
	require.NotNil(t, poly)
	assert.Equal(t, []string{"1"}, poly.Column("entity_id"))
	assert.Equal(t, []string{"polypeptide(L)"}, poly.Column("type"))
}
