package valves

import (
	"os"
	"sync/atomic"

	"github.com/chronolens/chronolens/internal/domain"
)

// Store hands out resolved snapshots. The file-default layer is swapped
// atomically, so concurrent resolutions always see a complete layer and
// in-flight runs keep the snapshot they started with.
type Store struct {
	file   atomic.Pointer[map[string]string]
	lookup func(string) (string, bool)
}

// NewStore creates a store resolving against the process environment.
func NewStore() *Store {
	return NewStoreWithLookup(os.LookupEnv)
}

// NewStoreWithLookup creates a store with a custom environment lookup.
func NewStoreWithLookup(lookup func(string) (string, bool)) *Store {
	s := &Store{lookup: lookup}
	empty := map[string]string{}
	s.file.Store(&empty)
	return s
}

// Resolve produces the snapshot for one run. overrides may be nil.
func (s *Store) Resolve(overrides map[string]string) (Valves, error) {
	return resolve(layers{
		overrides: overrides,
		env:       s.lookup,
		file:      *s.file.Load(),
	})
}

// SetFileDefaults replaces the file-default layer. The new layer is validated
// by a trial resolution first; a bad layer is rejected and the previous one
// stays in effect.
func (s *Store) SetFileDefaults(defaults map[string]string) error {
	copied := make(map[string]string, len(defaults))
	for k, v := range defaults {
		if !knownName(k) {
			return domain.NewValveError(k, "unknown valve")
		}
		copied[k] = v
	}
	if _, err := resolve(layers{env: s.lookup, file: copied}); err != nil {
		return err
	}
	s.file.Store(&copied)
	return nil
}

// UpdateDefaults merges partial updates into the file-default layer, with the
// same validate-then-swap semantics as SetFileDefaults.
func (s *Store) UpdateDefaults(updates map[string]string) error {
	current := *s.file.Load()
	merged := make(map[string]string, len(current)+len(updates))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return s.SetFileDefaults(merged)
}

// FileDefaults returns a copy of the current file-default layer.
func (s *Store) FileDefaults() map[string]string {
	current := *s.file.Load()
	out := make(map[string]string, len(current))
	for k, v := range current {
		out[k] = v
	}
	return out
}
