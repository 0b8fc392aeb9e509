// Package ciftree converts structured scientific records between a flat,
// column-oriented relational form and nested hierarchical JSON/XML documents.
// The conversion is driven entirely by a formal data dictionary describing
// categories, item types, and declared parent/child key relationships; there
// is no per-category logic anywhere in the converter.
//
// # Architecture
//
// The converter is built from small, independently testable layers:
//
// 1. Metadata (pkg/meta): parses dictionary and XML schema sources into
// structured metadata and caches the result in a two-tier store (in-memory
// LRU plus a zstd-compressed disk tier) keyed by source identity, with
// exclusive per-key population.
//
// 2. Mapping (pkg/mapping): derives category serialization rules and the
// foreign-key relationship table from metadata. Specific grouped link
// declarations outrank general ones, numeric items are flagged for unquoted
// serialization, and multiplicity is fixed here rather than inferred from
// value shapes later.
//
// 3. Data model (pkg/record): containers of blocks of categories, each a
// table of equal-length string columns, plus the hierarchical tree built
// around a tagged single/multiple row group.
//
// 4. Conversion (pkg/resolve, pkg/flatten): the nesting algorithm attaching
// child rows under the parent rows their foreign keys reference, and its
// inverse, which back-fills foreign keys from parent key values while
// walking the tree depth first.
//
// 5. Documents and gates (pkg/export, pkg/validate): hierarchical JSON/XML
// codecs and the structural/content validation gates applied around strict
// mode conversions.
//
// The internal/pipeline package wires these together behind two operations,
// Resolve (flat to hierarchical) and Flatten (hierarchical to flat), both
// all-or-nothing: on any failure no partial output is produced.
//
// # Quick Start
//
//	import (
//	    "github.com/cifworks/ciftree/internal/pipeline"
//	    "github.com/cifworks/ciftree/pkg/config"
//	)
//
//	cfg := config.DefaultConfig()
//	cfg.Paths.Dictionary = "mmcif_pdbx.dic.json"
//
//	p, err := pipeline.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	err = p.Resolve(ctx, flatRecords, hierarchicalOut, pipeline.FormatJSON)
//
// The ciftree command under cmd/ciftree exposes the same operations on the
// command line.
package ciftree
