package trigger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Env is what constructors and restorers receive from the registry.
type Env struct {
	// Location is the reference zone for all calendar math.
	Location *time.Location
	// Now is the clock used for construction defaults.
	Now func() time.Time
}

// Constructor returns a default-initialized trigger.
type Constructor func(env Env) Trigger

// Restorer rebuilds a trigger from its blob.
type Restorer func(env Env, blob []byte) (Trigger, error)

type entry struct {
	create  Constructor
	restore Restorer
}

// Registry maps kind tags to constructors and restorers.
// It is safe for concurrent use.
type Registry struct {
	env Env

	mu    sync.RWMutex
	kinds map[Kind]entry
}

type Option func(*Registry)

// WithClock overrides the clock used for construction defaults.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.env.Now = now
		}
	}
}

// NewRegistry returns an empty registry bound to loc (nil means UTC).
func NewRegistry(loc *time.Location, opts ...Option) *Registry {
	if loc == nil {
		loc = time.UTC
	}
	r := &Registry{
		env:   Env{Location: loc, Now: time.Now},
		kinds: map[Kind]entry{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Default returns a registry with every built-in kind registered.
func Default(loc *time.Location, opts ...Option) *Registry {
	r := NewRegistry(loc, opts...)
	_ = r.Register(KindDateTime, newDateTimeDefault, restoreDateTime)
	_ = r.Register(KindDaysLater, newDaysLaterDefault, restoreDaysLater)
	_ = r.Register(KindCron, newCronDefault, restoreCron)
	return r
}

// Location returns the reference zone.
func (r *Registry) Location() *time.Location { return r.env.Location }

func (r *Registry) Register(kind Kind, create Constructor, restore Restorer) error {
	if strings.TrimSpace(string(kind)) == "" {
		return fmt.Errorf("register: empty kind")
	}
	if create == nil || restore == nil {
		return fmt.Errorf("register %s: constructor and restorer required", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.kinds[kind]; ok {
		return fmt.Errorf("register %s: already registered", kind)
	}
	r.kinds[kind] = entry{create: create, restore: restore}
	return nil
}

// Create returns a fresh trigger of kind.
func (r *Registry) Create(kind Kind) (Trigger, error) {
	e, ok := r.lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return e.create(r.env), nil
}

// Restore decodes blob, dispatches on its kind tag and returns the populated trigger.
func (r *Registry) Restore(blob string) (Trigger, error) {
	var head map[string]json.RawMessage
	if err := json.Unmarshal([]byte(blob), &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	raw, ok := head["kind"]
	if !ok {
		return nil, fmt.Errorf("%w: missing \"kind\"", ErrMalformedBlob)
	}
	var kind string
	if err := json.Unmarshal(raw, &kind); err != nil || strings.TrimSpace(kind) == "" {
		return nil, fmt.Errorf("%w: \"kind\" must be a non-empty string", ErrMalformedBlob)
	}
	e, ok := r.lookup(Kind(kind))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return e.restore(r.env, []byte(blob))
}

// Kinds lists registered kinds, sorted.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	out := make([]Kind, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) lookup(kind Kind) (entry, bool) {
	r.mu.RLock()
	e, ok := r.kinds[kind]
	r.mu.RUnlock()
	return e, ok
}
