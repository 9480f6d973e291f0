package api

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/segmentio/ksuid"

	"github.com/ssargent/aora/pkg/codec"
	"github.com/ssargent/aora/pkg/config"
	"github.com/ssargent/aora/pkg/storage"
	"github.com/ssargent/aora/pkg/store"
)

// ErrInvalidKey is returned for a key string that cannot name a record
// under the configured key mode
var ErrInvalidKey = errors.New("invalid record key")

// ServiceOptions carries the process-level collaborators of a Service
type ServiceOptions struct {
	Logger   *slog.Logger
	Observer store.Observer
}

// Service is a byte-valued record store whose keys are exchanged as
// strings. The key mode from the configuration decides both how keys are
// assigned and how they are printed:
//
//	sequence  decimal append position
//	blake2b   64 hex digits
//	xxh3      16 hex digits, big-endian
//	ksuid     27 character base62 KSUID
type Service struct {
	records recordStore
	mode    string
}

// recordStore hides the key type of the underlying store
type recordStore interface {
	append(value []byte) (string, error)
	get(key string) ([]byte, bool, error)
	keys(offset, limit int) ([]string, int)
	forEach(fn func(key string, value []byte) error) error
	stats() store.Stats
	recovery() *store.RecoveryResult
	sync() error
	close() error
}

// NewService opens the log file named by cfg
func NewService(cfg *config.Config, opts ServiceOptions) (*Service, error) {
	backend, err := storage.OpenFile(cfg.LogPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open log %s: %w", cfg.LogPath(), err)
	}

	svc, err := OpenService(backend, cfg, opts)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return svc, nil
}

// OpenService builds a service over an already opened backend. On failure
// the backend is left open.
func OpenService(backend storage.Backend, cfg *config.Config, opts ServiceOptions) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	format, err := cfg.FrameFormat()
	if err != nil {
		return nil, err
	}

	var values codec.Codec[[]byte] = codec.Bytes{}
	if cfg.Compression == config.CompressionZstd {
		values = codec.Zstd[[]byte]{Inner: codec.Bytes{}}
	}

	var records recordStore
	switch cfg.Keys {
	case config.KeysSequence:
		records, err = openKeyed(backend, storeOptions[uint64](cfg, format, values, opts, store.SequenceKeys[[]byte]{}),
			formatSequence, parseSequence)
	case config.KeysBlake2b:
		records, err = openKeyed(backend, storeOptions[[32]byte](cfg, format, values, opts, store.Blake2bKeys[[]byte]()),
			formatHash256, codec.ParseHash256)
	case config.KeysXXH3:
		records, err = openKeyed(backend, storeOptions[uint64](cfg, format, values, opts, store.XXH3Keys[[]byte]()),
			formatHash64, parseHash64)
	case config.KeysKSUID:
		records, err = openKeyed(backend, storeOptions[ksuid.KSUID](cfg, format, values, opts, store.KSUIDKeys[[]byte]{}),
			ksuid.KSUID.String, ksuid.Parse)
	default:
		return nil, fmt.Errorf("unknown key mode %q", cfg.Keys)
	}
	if err != nil {
		return nil, err
	}

	return &Service{records: records, mode: cfg.Keys}, nil
}

func storeOptions[K comparable](
	cfg *config.Config,
	format codec.Format,
	values codec.Codec[[]byte],
	opts ServiceOptions,
	keys store.KeyStrategy[K, []byte],
) store.Options[K, []byte] {
	return store.Options[K, []byte]{
		Codec:         values,
		Keys:          keys,
		Format:        format,
		FsyncInterval: cfg.FsyncInterval,
		Logger:        opts.Logger,
		Observer:      opts.Observer,
	}
}

// Append stores value and returns its key
func (s *Service) Append(value []byte) (string, error) {
	return s.records.append(value)
}

// Get returns the value stored under key. Found is false for a well-formed
// key that was never appended; a malformed key yields ErrInvalidKey.
func (s *Service) Get(key string) ([]byte, bool, error) {
	return s.records.get(key)
}

// Keys returns up to limit keys in insertion order starting at offset,
// together with the total number of keys. A limit <= 0 means no limit.
func (s *Service) Keys(offset, limit int) ([]string, int) {
	return s.records.keys(offset, limit)
}

// ForEach calls fn for every record in insertion order
func (s *Service) ForEach(fn func(key string, value []byte) error) error {
	return s.records.forEach(fn)
}

// Stats returns store statistics
func (s *Service) Stats() store.Stats {
	return s.records.stats()
}

// Recovery returns what recovery did when the log was opened
func (s *Service) Recovery() *store.RecoveryResult {
	return s.records.recovery()
}

// KeyMode returns the configured key mode
func (s *Service) KeyMode() string {
	return s.mode
}

// Sync forces appended records to durable storage
func (s *Service) Sync() error {
	return s.records.sync()
}

// Close closes the store and its backend
func (s *Service) Close() error {
	return s.records.close()
}

// keyedStore adapts a Store with key type K to string keys
type keyedStore[K comparable] struct {
	store  *store.Store[K, []byte]
	format func(K) string
	parse  func(string) (K, error)
}

func openKeyed[K comparable](
	backend storage.Backend,
	opts store.Options[K, []byte],
	format func(K) string,
	parse func(string) (K, error),
) (*keyedStore[K], error) {
	s, err := store.Open(backend, opts)
	if err != nil {
		return nil, err
	}
	return &keyedStore[K]{store: s, format: format, parse: parse}, nil
}

func (k *keyedStore[K]) append(value []byte) (string, error) {
	key, err := k.store.Append(value)
	if err != nil {
		return "", err
	}
	return k.format(key), nil
}

func (k *keyedStore[K]) get(key string) ([]byte, bool, error) {
	parsed, err := k.parse(key)
	if err != nil {
		return nil, false, fmt.Errorf("%w %q: %v", ErrInvalidKey, key, err)
	}
	return k.store.Get(parsed)
}

func (k *keyedStore[K]) keys(offset, limit int) ([]string, int) {
	total := k.store.Len()
	var out []string
	i := 0
	for key := range k.store.Keys() {
		if i >= offset {
			if limit > 0 && len(out) >= limit {
				break
			}
			out = append(out, k.format(key))
		}
		i++
	}
	return out, total
}

func (k *keyedStore[K]) forEach(fn func(string, []byte) error) error {
	return k.store.ForEach(func(key K, value []byte) error {
		return fn(k.format(key), value)
	})
}

func (k *keyedStore[K]) stats() store.Stats             { return k.store.Stats() }
func (k *keyedStore[K]) recovery() *store.RecoveryResult { return k.store.Recovery() }
func (k *keyedStore[K]) sync() error                     { return k.store.Sync() }
func (k *keyedStore[K]) close() error                    { return k.store.Close() }

func formatSequence(seq uint64) string {
	return strconv.FormatUint(seq, 10)
}

func parseSequence(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func formatHash256(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

// 64-bit hashes print as the hex of their big-endian bytes so that the
// string sorts like the number
func formatHash64(h uint64) string {
	b := codec.U64BE(h)
	return hex.EncodeToString(b[:])
}

func parseHash64(s string) (uint64, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("want 8 bytes, got %d", len(raw))
	}
	var b [8]byte
	copy(b[:], raw)
	return codec.FromU64BE(b), nil
}
