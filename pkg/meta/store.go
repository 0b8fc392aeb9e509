package meta

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cifworks/ciftree/pkg/errors"
	"github.com/cifworks/ciftree/pkg/json"
	"github.com/cifworks/ciftree/pkg/logger"
	"github.com/cifworks/ciftree/pkg/metrics"
)

const (
	kindDictionary = "dictionary"
	kindSchema     = "schema"
)

// StoreOptions tunes the metadata store
type StoreOptions struct {
	// MemoryEntries caps the in-memory tier
	MemoryEntries int
	// Dir holds the compressed on-disk tier; empty disables it
	Dir string
	// TTL bounds how long a disk entry is trusted; zero means no bound
	TTL time.Duration
}

// Store loads dictionary and schema sources through a two-tier cache. The
// memory tier is an LRU keyed by source identity (path, size, mtime); the
// disk tier persists parsed metadata as zstd-compressed JSON so later
// processes skip the parse. Population of one key is exclusive: concurrent
// callers for the same key share a single parse.
//
// Cache failures never escape. A corrupt or unreadable entry is discarded and
// the source reparsed.
type Store struct {
	opts StoreOptions

	mem   *lru.Cache[string, interface{}]
	group singleflight.Group

	enc *zstd.Encoder
	dec *zstd.Decoder

	parses atomic.Int64
}

// NewStore creates a metadata store
func NewStore(opts StoreOptions) (*Store, error) {
	if opts.MemoryEntries <= 0 {
		opts.MemoryEntries = 64
	}
	mem, err := lru.New[string, interface{}](opts.MemoryEntries)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create memory cache")
	}

	s := &Store{opts: opts, mem: mem}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			// Disk tier is an optimization; fall back to memory only
			logger.Warn("disabling disk cache",
				zap.String("dir", opts.Dir), zap.Error(err))
			s.opts.Dir = ""
		}
	}
	if s.enc, err = zstd.NewWriter(nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create compressor")
	}
	if s.dec, err = zstd.NewReader(nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create decompressor")
	}
	return s, nil
}

// Close releases compressor resources
func (s *Store) Close() error {
	if s.enc != nil {
		if err := s.enc.Close(); err != nil {
			return err
		}
	}
	if s.dec != nil {
		s.dec.Close()
	}
	return nil
}

// ParseCount returns how many full source parses have run. Cache hits do not
// increment it.
func (s *Store) ParseCount() int64 {
	return s.parses.Load()
}

// Dictionary loads a dictionary source through the cache
func (s *Store) Dictionary(path string) (*Dictionary, error) {
	v, err := s.load(kindDictionary, path)
	if err != nil {
		return nil, err
	}
	return v.(*Dictionary), nil
}

// Schema loads an XML schema source through the cache
func (s *Store) Schema(path string) (*Schema, error) {
	v, err := s.load(kindSchema, path)
	if err != nil {
		return nil, err
	}
	return v.(*Schema), nil
}

func (s *Store) load(kind, path string) (interface{}, error) {
	key, err := s.cacheKey(kind, path)
	if err != nil {
		return nil, err
	}

	if v, ok := s.mem.Get(key); ok {
		metrics.MetadataCacheHitsTotal.WithLabelValues("memory").Inc()
		return v, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		// A concurrent caller may have populated the key while we queued
		if v, ok := s.mem.Get(key); ok {
			metrics.MetadataCacheHitsTotal.WithLabelValues("memory").Inc()
			return v, nil
		}
		if v, ok := s.loadDisk(kind, key); ok {
			metrics.MetadataCacheHitsTotal.WithLabelValues("disk").Inc()
			s.mem.Add(key, v)
			return v, nil
		}

		v, err := s.parse(kind, path)
		if err != nil {
			return nil, err
		}
		s.parses.Add(1)
		metrics.MetadataParsesTotal.WithLabelValues(kind).Inc()
		s.mem.Add(key, v)
		s.storeDisk(kind, key, v)
		return v, nil
	})
	return v, err
}

func (s *Store) parse(kind, path string) (interface{}, error) {
	switch kind {
	case kindDictionary:
		return ParseDictionaryFile(path)
	case kindSchema:
		return ParseSchemaFile(path)
	}
	return nil, errors.Newf(errors.ErrorTypeInternal, "unknown metadata kind %q", kind)
}

// cacheKey hashes the source path with its size and modification time, so a
// changed source never serves stale metadata.
func (s *Store) cacheKey(kind, path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrorTypeNotFound, "%s source %s", kind, path)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%d", kind, path, fi.Size(), fi.ModTime().UnixNano())
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Store) diskPath(kind, key string) string {
	return filepath.Join(s.opts.Dir, key+"."+kind+".json.zst")
}

func (s *Store) loadDisk(kind, key string) (interface{}, bool) {
	if s.opts.Dir == "" {
		return nil, false
	}
	path := s.diskPath(kind, key)
	fi, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if s.opts.TTL > 0 && time.Since(fi.ModTime()) > s.opts.TTL {
		s.discard(path, errors.New(errors.ErrorTypeCache, "entry expired"))
		return nil, false
	}

	compressed, err := os.ReadFile(path)
	if err != nil {
		s.discard(path, errors.Wrap(err, errors.ErrorTypeCache, "unreadable cache entry"))
		return nil, false
	}
	data, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		s.discard(path, errors.Wrap(err, errors.ErrorTypeCache, "corrupt cache entry"))
		return nil, false
	}

	var v interface{}
	switch kind {
	case kindDictionary:
		v = &Dictionary{}
	case kindSchema:
		v = &Schema{}
	default:
		return nil, false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.discard(path, errors.Wrap(err, errors.ErrorTypeCache, "corrupt cache entry"))
		return nil, false
	}
	return v, true
}

func (s *Store) storeDisk(kind, key string, v interface{}) {
	if s.opts.Dir == "" {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("failed to serialize cache entry", zap.Error(err))
		return
	}
	compressed := s.enc.EncodeAll(data, nil)

	path := s.diskPath(kind, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		logger.Warn("failed to write cache entry", zap.String("path", path), zap.Error(err))
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		logger.Warn("failed to install cache entry", zap.String("path", path), zap.Error(err))
		_ = os.Remove(tmp)
	}
}

// discard removes a bad disk entry so the source is reparsed. The failure is
// logged and absorbed here; cache errors never reach callers.
func (s *Store) discard(path string, cause error) {
	logger.Warn("discarding cache entry", zap.String("path", path), zap.Error(cause))
	_ = os.Remove(path)
}
