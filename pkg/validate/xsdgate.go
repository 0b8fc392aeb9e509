package validate

import (
	"bytes"
	"context"

	"github.com/jacoelho/xsd"
	"github.com/jacoelho/xsd/xsderrors"

	"github.com/cifworks/ciftree/pkg/errors"
)

// XSDGate validates XML documents against a compiled XML schema
type XSDGate struct {
	schema *xsd.Engine
}

// NewXSDGate compiles the schema at path
func NewXSDGate(path string) (*XSDGate, error) {
	schema, err := xsd.Compile(context.Background(), xsd.File(path))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig,
			"failed to compile XML schema %s", path)
	}
	return &XSDGate{schema: schema}, nil
}

// Validate checks one XML document. Schema violations land in the result's
// error list; only engine-level failures return an error.
func (g *XSDGate) Validate(document []byte) (Result, error) {
	err := g.schema.Validate(context.Background(), bytes.NewReader(document))
	if err == nil {
		return Result{Valid: true}, nil
	}
	if violations, ok := asValidations(err); ok {
		msgs := make([]string, 0, len(violations))
		for i := range violations {
			msgs = append(msgs, violations[i].Error())
		}
		return Result{Valid: false, Errors: msgs}, nil
	}
	return Result{}, errors.Wrap(err, errors.ErrorTypeInternal, "XML validation failed")
}

// asValidations reports whether err consists solely of document validation
// diagnostics, returning them when it does.
func asValidations(err error) ([]error, bool) {
	switch x := err.(type) {
	case xsderrors.Errors:
		for _, e := range x {
			d, ok := e.(*xsderrors.Error)
			if !ok || d.Category != xsderrors.CategoryValidation {
				return nil, false
			}
		}
		return x, true
	case *xsderrors.Error:
		if x.Category == xsderrors.CategoryValidation {
			return []error{x}, true
		}
	}
	return nil, false
}
