package kv

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/lazymod/pkg/host"
	"github.com/danmuck/lazymod/pkg/unit"
	"github.com/rs/zerolog/log"
)

// UnitName is the registry name of the in-memory key-value unit.
const UnitName = "edge.kv"

var (
	ErrMissingKey = errors.New("edge.kv: missing key")
	ErrNoSuchKey  = errors.New("edge.kv: no such key")
)

// Store is a temporary in-memory key-value map.
type Store struct {
	mu    sync.RWMutex
	store map[string]string
}

func NewStore() *Store {
	return &Store{store: make(map[string]string)}
}

func (s *Store) Put(key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrMissingKey
	}
	s.mu.Lock()
	s.store[key] = value
	s.mu.Unlock()
	return nil
}

func (s *Store) Get(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrMissingKey
	}
	s.mu.RLock()
	val, ok := s.store[key]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoSuchKey, key)
	}
	return val, nil
}

func (s *Store) Delete(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrMissingKey
	}
	s.mu.Lock()
	delete(s.store, key)
	s.mu.Unlock()
	return nil
}

// List returns keys with prefix in sorted order.
func (s *Store) List(prefix string) []string {
	prefix = strings.TrimSpace(prefix)
	s.mu.RLock()
	keys := make([]string, 0, len(s.store))
	for k := range s.store {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// NewUnit exposes s as a read-only unit: put(key, value), get(key),
// delete(key), list([prefix]).
func NewUnit(s *Store) *unit.Module {
	return unit.NewModule(UnitName, map[string]any{
		"put": unit.Func(func(args ...any) (any, error) {
			key, err := unit.StringArg(args, 0, "key")
			if err != nil {
				return nil, err
			}
			val, err := unit.StringArg(args, 1, "value")
			if err != nil {
				return nil, err
			}
			return nil, s.Put(key, val)
		}),
		"get": unit.Func(func(args ...any) (any, error) {
			key, err := unit.StringArg(args, 0, "key")
			if err != nil {
				return nil, err
			}
			return s.Get(key)
		}),
		"delete": unit.Func(func(args ...any) (any, error) {
			key, err := unit.StringArg(args, 0, "key")
			if err != nil {
				return nil, err
			}
			return nil, s.Delete(key)
		}),
		"list": unit.Func(func(args ...any) (any, error) {
			prefix, err := unit.OptionalStringArg(args, 0, "prefix")
			if err != nil {
				return nil, err
			}
			return s.List(prefix), nil
		}),
	}).Freeze()
}

// Factory builds a fresh store each time the host loads the unit.
func Factory() host.Factory {
	return func() (unit.Unit, error) {
		log.Debug().Str("unit", UnitName).Msg("kv: store created")
		return NewUnit(NewStore()), nil
	}
}
