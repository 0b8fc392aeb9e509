// Package pipeline wires the converter together: metadata store, mapping
// generation, resolver, flattener, validation gates and document codecs. It
// owns the cache lifecycle; callers construct one Pipeline per configuration
// and reuse it across conversions.
package pipeline

import (
	"bytes"
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/cifworks/ciftree/pkg/config"
	"github.com/cifworks/ciftree/pkg/errors"
	"github.com/cifworks/ciftree/pkg/export"
	"github.com/cifworks/ciftree/pkg/flatten"
	"github.com/cifworks/ciftree/pkg/logger"
	"github.com/cifworks/ciftree/pkg/mapping"
	"github.com/cifworks/ciftree/pkg/meta"
	"github.com/cifworks/ciftree/pkg/metrics"
	"github.com/cifworks/ciftree/pkg/record"
	"github.com/cifworks/ciftree/pkg/resolve"
	"github.com/cifworks/ciftree/pkg/validate"
)

// Format selects the hierarchical document format
type Format string

const (
	// FormatJSON is the hierarchical JSON document format
	FormatJSON Format = "json"
	// FormatXML is the hierarchical XML document format
	FormatXML Format = "xml"
)

// Pipeline is the top-level conversion entry point
type Pipeline struct {
	cfg   *config.Config
	store *meta.Store

	mapping   *mapping.Mapping
	resolver  *resolve.Resolver
	flattener *flatten.Flattener

	jsonCodec *export.JSONCodec
	xmlCodec  *export.XMLCodec
	flatCodec record.FlatJSON

	jsonGate validate.Gate
	xmlGate  validate.Gate
}

// New builds a pipeline from configuration: loads the dictionary through the
// metadata store, generates mapping rules, and compiles any configured
// validation schemas. Strict mode without a dictionary is a config error.
func New(cfg *config.Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Paths.Dictionary == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "paths.dictionary is required")
	}

	storeOpts := meta.StoreOptions{
		MemoryEntries: cfg.Cache.MemoryEntries,
		TTL:           cfg.Cache.TTL,
	}
	if cfg.Cache.DiskEnabled {
		storeOpts.Dir = cfg.Paths.CacheDir
	}
	store, err := meta.NewStore(storeOpts)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{cfg: cfg, store: store, jsonGate: validate.Nop{}, xmlGate: validate.Nop{}}
	if err := p.build(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) build() error {
	dict, err := p.store.Dictionary(p.cfg.Paths.Dictionary)
	if err != nil {
		return err
	}

	var schema *meta.Schema
	if p.cfg.Paths.XSDSchema != "" {
		if schema, err = p.store.Schema(p.cfg.Paths.XSDSchema); err != nil {
			return err
		}
	}

	m, _, err := mapping.Generate(dict, schema)
	if err != nil {
		return err
	}
	p.mapping = m

	p.resolver, err = resolve.New(m, resolve.Options{Strict: p.cfg.Conversion.Strict})
	if err != nil {
		return err
	}
	p.flattener = flatten.New(m)
	p.jsonCodec = export.NewJSONCodec(m)
	p.xmlCodec = export.NewXMLCodec(m)

	// Gates only ever run in strict mode; skip compiling schemas otherwise
	if p.cfg.Conversion.Strict {
		if p.cfg.Paths.JSONSchema != "" {
			gate, err := validate.NewJSONSchemaGate(p.cfg.Paths.JSONSchema)
			if err != nil {
				return err
			}
			p.jsonGate = gate
		}
		if p.cfg.Paths.XSDSchema != "" {
			gate, err := validate.NewXSDGate(p.cfg.Paths.XSDSchema)
			if err != nil {
				return err
			}
			p.xmlGate = gate
		}
	}

	logger.Info("pipeline ready",
		zap.String("dictionary", p.cfg.Paths.Dictionary),
		zap.Bool("strict", p.cfg.Conversion.Strict),
		zap.Int("categories", len(m.Categories)))
	return nil
}

// Close releases pipeline resources
func (p *Pipeline) Close() error {
	return p.store.Close()
}

// Store exposes the metadata store, mainly for instrumentation
func (p *Pipeline) Store() *meta.Store {
	return p.store
}

// Resolve reads flat records, nests them, and writes a hierarchical document.
// In strict mode the serialized output must pass the content gate before any
// byte reaches w; nothing partial is ever written. The context carries the
// request-scoped logger; there are no cancellation semantics.
func (p *Pipeline) Resolve(ctx context.Context, r io.Reader, w io.Writer, format Format) (err error) {
	defer observe("resolve", time.Now(), &err)
	log := logger.FromContext(ctx)

	container, err := p.flatCodec.Decode(r)
	if err != nil {
		return err
	}
	tree, err := p.resolver.Resolve(container)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch format {
	case FormatJSON:
		err = p.jsonCodec.Encode(&buf, tree)
	case FormatXML:
		err = p.xmlCodec.Encode(&buf, tree)
	default:
		err = errors.Newf(errors.ErrorTypeConfig, "unknown format %q", format)
	}
	if err != nil {
		return err
	}

	if p.cfg.Conversion.Strict {
		res, gerr := p.gateFor(format).Validate(buf.Bytes())
		if gerr != nil {
			return gerr
		}
		if !res.Valid {
			return errors.New(errors.ErrorTypeContent,
				"resolved output failed content validation").
				WithViolations(res.Errors...)
		}
	}

	log.Debug("resolved flat records",
		zap.Int("blocks", len(tree.Blocks)),
		zap.String("format", string(format)))
	_, err = w.Write(buf.Bytes())
	return err
}

// Flatten reads a hierarchical document and writes flat records. In strict
// mode the raw input must pass the structural gate before any flattening is
// attempted.
func (p *Pipeline) Flatten(ctx context.Context, r io.Reader, w io.Writer, format Format) (err error) {
	defer observe("flatten", time.Now(), &err)
	log := logger.FromContext(ctx)

	raw, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to read input")
	}

	if p.cfg.Conversion.Strict {
		res, gerr := p.gateFor(format).Validate(raw)
		if gerr != nil {
			return gerr
		}
		if !res.Valid {
			return errors.New(errors.ErrorTypeStructural,
				"input failed structural validation").
				WithViolations(res.Errors...)
		}
	}

	var tree *record.Tree
	switch format {
	case FormatJSON:
		tree, err = p.jsonCodec.Decode(bytes.NewReader(raw))
	case FormatXML:
		tree, err = p.xmlCodec.Decode(bytes.NewReader(raw))
	default:
		err = errors.Newf(errors.ErrorTypeConfig, "unknown format %q", format)
	}
	if err != nil {
		return err
	}

	container, err := p.flattener.Flatten(tree)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := p.flatCodec.Encode(&buf, container); err != nil {
		return err
	}
	log.Debug("flattened document",
		zap.Int("blocks", container.Len()),
		zap.String("format", string(format)))
	_, err = w.Write(buf.Bytes())
	return err
}

func (p *Pipeline) gateFor(format Format) validate.Gate {
	if format == FormatXML {
		return p.xmlGate
	}
	return p.jsonGate
}

func observe(direction string, start time.Time, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = "error"
	}
	metrics.ConversionsTotal.WithLabelValues(direction, outcome).Inc()
	metrics.ConversionDuration.WithLabelValues(direction).Observe(time.Since(start).Seconds())
}
