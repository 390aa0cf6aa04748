// Package persist saves component state to pluggable backends. A Provider
// owns one dotted path inside a backend document; MarkPersistent binds an
// observable to a provider so the value is restored on startup and written
// back, debounced, whenever it changes.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arthur-debert/nanogrid/nanogrid/reactive"
)

// DefaultDebounce delays provider writes
const DefaultDebounce = 250 * time.Millisecond

var (
	// ErrUnknownProvider is returned when no provider type can be resolved
	ErrUnknownProvider = errors.New("unknown persistence provider")
	// ErrPathRequired is returned for options without a path
	ErrPathRequired = errors.New("persistence path is required")
	// ErrServiceUnavailable is returned when the backend a provider needs was
	// not supplied
	ErrServiceUnavailable = errors.New("persistence service unavailable")
)

// Type names a provider backend
type Type string

const (
	TypePref         Type = "pref"
	TypeLocalStorage Type = "localStorage"
	TypeView         Type = "view"
	TypeCustom       Type = "custom"
)

// Options configures a Provider. Type may be left empty when exactly the
// key of one backend is set.
type Options struct {
	Type Type   `json:"type,omitempty" yaml:"type,omitempty"`
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// Debounce delays writes; nil means DefaultDebounce
	Debounce *reactive.DebounceSpec `json:"debounce,omitempty" yaml:"debounce,omitempty"`

	PrefKey         string `json:"prefKey,omitempty" yaml:"prefKey,omitempty"`
	LocalStorageKey string `json:"localStorageKey,omitempty" yaml:"localStorageKey,omitempty"`
	ViewID          string `json:"viewId,omitempty" yaml:"viewId,omitempty"`

	GetData func() (map[string]any, error) `json:"-" yaml:"-"`
	SetData func(map[string]any) error     `json:"-" yaml:"-"`
}

// Merge returns o with its unset fields taken from defaults
func (o Options) Merge(defaults Options) Options {
	if o.Type == "" {
		o.Type = defaults.Type
	}
	if o.Path == "" {
		o.Path = defaults.Path
	}
	if o.Debounce == nil {
		o.Debounce = defaults.Debounce
	}
	if o.PrefKey == "" {
		o.PrefKey = defaults.PrefKey
	}
	if o.LocalStorageKey == "" {
		o.LocalStorageKey = defaults.LocalStorageKey
	}
	if o.ViewID == "" {
		o.ViewID = defaults.ViewID
	}
	if o.GetData == nil {
		o.GetData = defaults.GetData
	}
	if o.SetData == nil {
		o.SetData = defaults.SetData
	}
	return o
}

// ResolveType returns the explicit type or the one implied by the keys set
func (o Options) ResolveType() Type {
	switch {
	case o.Type != "":
		return o.Type
	case o.PrefKey != "":
		return TypePref
	case o.LocalStorageKey != "":
		return TypeLocalStorage
	case o.ViewID != "":
		return TypeView
	case o.GetData != nil || o.SetData != nil:
		return TypeCustom
	}
	return ""
}

// Services are the backends and runtime shared by providers
type Services struct {
	Prefs     *PrefStore
	Local     *LocalStore
	Views     *ViewStore
	Scheduler reactive.Scheduler
	Logger    *slog.Logger
}

func (s *Services) logger() *slog.Logger {
	if s == nil || s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Services) scheduler() reactive.Scheduler {
	if s == nil || s.Scheduler == nil {
		return reactive.RealScheduler{}
	}
	return s.Scheduler
}

// Backend reads and writes the whole document a provider's path lives in
type Backend interface {
	ReadRaw() (map[string]any, error)
	WriteRaw(raw map[string]any) error
	ClearRaw() error
}

// Provider persists state at a dotted path of a backend document
type Provider struct {
	typ       Type
	path      string
	backend   Backend
	logger    *slog.Logger
	debouncer *reactive.Debouncer

	mu        sync.Mutex
	destroyed bool
}

// Create builds the provider described by opts
func Create(opts Options, svc *Services) (*Provider, error) {
	typ := opts.ResolveType()
	if opts.Path == "" {
		return nil, ErrPathRequired
	}
	backend, err := newBackend(typ, opts, svc)
	if err != nil {
		return nil, err
	}

	debounce := reactive.Debounce(DefaultDebounce)
	if opts.Debounce != nil {
		debounce = *opts.Debounce
	}
	p := &Provider{
		typ:     typ,
		path:    opts.Path,
		backend: backend,
		logger:  svc.logger(),
	}
	if !debounce.IsZero() {
		p.debouncer = reactive.NewDebouncer(debounce, svc.scheduler())
	}
	return p, nil
}

func newBackend(typ Type, opts Options, svc *Services) (Backend, error) {
	if svc == nil {
		svc = &Services{}
	}
	switch typ {
	case TypePref:
		if svc.Prefs == nil {
			return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, typ)
		}
		if opts.PrefKey == "" {
			return nil, fmt.Errorf("%w: prefKey is required", ErrUnknownProvider)
		}
		return &prefBackend{store: svc.Prefs, key: opts.PrefKey}, nil
	case TypeLocalStorage:
		if svc.Local == nil {
			return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, typ)
		}
		if opts.LocalStorageKey == "" {
			return nil, fmt.Errorf("%w: localStorageKey is required", ErrUnknownProvider)
		}
		return &localBackend{store: svc.Local, key: opts.LocalStorageKey}, nil
	case TypeView:
		if svc.Views == nil {
			return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, typ)
		}
		if opts.ViewID == "" {
			return nil, fmt.Errorf("%w: viewId is required", ErrUnknownProvider)
		}
		return &viewBackend{store: svc.Views, id: opts.ViewID}, nil
	case TypeCustom:
		if opts.GetData == nil || opts.SetData == nil {
			return nil, fmt.Errorf("%w: custom providers need both GetData and SetData", ErrUnknownProvider)
		}
		return &customBackend{get: opts.GetData, set: opts.SetData}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, typ)
}

// Type returns the backend type
func (p *Provider) Type() Type { return p.typ }

// Path returns the dotted path this provider owns
func (p *Provider) Path() string { return p.path }

// Read returns the state at the provider's path. ok is false when nothing
// has been saved.
func (p *Provider) Read() (value any, ok bool, err error) {
	raw, err := p.backend.ReadRaw()
	if err != nil {
		return nil, false, err
	}
	value, ok = getPath(raw, p.path)
	return value, ok, nil
}

// Write saves data at the provider's path after the debounce interval. data
// is copied immediately. Failures are logged.
func (p *Provider) Write(data any) {
	plain, err := toPlain(data)
	if err != nil {
		p.logger.Error("failed to encode persisted state", "type", p.typ, "path", p.path, "error", err)
		return
	}
	if p.isDestroyed() {
		return
	}
	if p.debouncer == nil {
		p.writeNow(plain)
		return
	}
	p.debouncer.Call(func() { p.writeNow(plain) })
}

func (p *Provider) writeNow(plain any) {
	if err := p.writeInternal(plain); err != nil {
		p.logger.Error("failed to write persisted state", "type", p.typ, "path", p.path, "error", err)
	}
}

func (p *Provider) writeInternal(plain any) error {
	raw, err := p.backend.ReadRaw()
	if err != nil {
		return err
	}
	if raw, err = plainMap(raw); err != nil {
		return err
	}
	setPath(raw, p.path, plain)
	return p.backend.WriteRaw(raw)
}

// Clear removes the state at the provider's path, dropping any write still
// waiting on the debounce
func (p *Provider) Clear() error {
	if p.debouncer != nil {
		p.debouncer.Cancel()
	}
	raw, err := p.backend.ReadRaw()
	if err != nil {
		return err
	}
	if raw, err = plainMap(raw); err != nil {
		return err
	}
	if !unsetPath(raw, p.path) {
		return nil
	}
	return p.backend.WriteRaw(raw)
}

// ClearAll removes the whole backend document, including paths owned by
// other providers
func (p *Provider) ClearAll() error {
	if p.debouncer != nil {
		p.debouncer.Cancel()
	}
	return p.backend.ClearRaw()
}

// Flush runs a pending debounced write now
func (p *Provider) Flush() {
	if p.debouncer != nil {
		p.debouncer.Flush()
	}
}

// Destroy flushes any pending write. Later writes are ignored.
func (p *Provider) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	p.mu.Unlock()
	p.Flush()
}

func (p *Provider) isDestroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

type prefBackend struct {
	store *PrefStore
	key   string
}

func (b *prefBackend) ReadRaw() (map[string]any, error) {
	v, _, err := b.store.Get(b.key)
	if err != nil {
		return nil, err
	}
	return plainMap(v)
}

func (b *prefBackend) WriteRaw(raw map[string]any) error { return b.store.Set(b.key, raw) }
func (b *prefBackend) ClearRaw() error                   { return b.store.Delete(b.key) }

type localBackend struct {
	store *LocalStore
	key   string
}

func (b *localBackend) ReadRaw() (map[string]any, error) {
	v, _, err := b.store.Get(b.key)
	if err != nil {
		return nil, err
	}
	return plainMap(v)
}

func (b *localBackend) WriteRaw(raw map[string]any) error { return b.store.Set(b.key, raw) }
func (b *localBackend) ClearRaw() error                   { return b.store.Remove(b.key) }

type viewBackend struct {
	store *ViewStore
	id    string
}

func (b *viewBackend) ReadRaw() (map[string]any, error) {
	v, err := b.store.Get(context.Background(), b.id)
	if err != nil {
		return nil, err
	}
	return v.Value, nil
}

func (b *viewBackend) WriteRaw(raw map[string]any) error {
	return b.store.Update(context.Background(), b.id, raw)
}

func (b *viewBackend) ClearRaw() error {
	return b.store.Update(context.Background(), b.id, map[string]any{})
}

type customBackend struct {
	get func() (map[string]any, error)
	set func(map[string]any) error
}

func (b *customBackend) ReadRaw() (map[string]any, error) {
	raw, err := b.get()
	if err != nil {
		return nil, err
	}
	return plainMap(raw)
}

func (b *customBackend) WriteRaw(raw map[string]any) error { return b.set(raw) }
func (b *customBackend) ClearRaw() error                   { return b.set(nil) }
