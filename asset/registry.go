package asset

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// LoaderFunc parses raw file bytes into an asset's content.
type LoaderFunc func(data []byte) (any, error)

// StatusFunc observes one asset's lifecycle transition.
type StatusFunc func(path string, old, next Status)

// Registry owns every loaded asset under one root directory. Loaders are
// registered per file extension. Status callbacks fire on the goroutine
// performing the change; with hot reload driven through ProcessEvents,
// that is always the owner's frame thread, never a watcher goroutine.
type Registry struct {
	root    string
	loaders map[string]LoaderFunc
	assets  map[string]*Handle
	subs    []StatusFunc
	watcher *Watcher
}

// NewRegistry creates a registry rooted at dir.
func NewRegistry(dir string) *Registry {
	return &Registry{
		root:    dir,
		loaders: make(map[string]LoaderFunc),
		assets:  make(map[string]*Handle),
	}
}

// RegisterLoader installs the parser for one file extension (".ani").
func (r *Registry) RegisterLoader(ext string, fn LoaderFunc) {
	r.loaders[ext] = fn
}

// Subscribe registers a status callback for every asset in the registry.
func (r *Registry) Subscribe(fn StatusFunc) {
	r.subs = append(r.subs, fn)
}

// Load returns the shared handle for path, bumping its refcount. The
// first load reads and parses the file; a missing or malformed file
// yields a failed handle, which callers treat as not ready.
func (r *Registry) Load(path string) *Handle {
	if h, ok := r.assets[path]; ok {
		h.refs++
		return h
	}
	h := &Handle{path: path, status: StatusLoading, refs: 1}
	r.assets[path] = h
	r.reload(h)
	return h
}

// Release drops one reference. The last release removes the asset.
func (r *Registry) Release(h *Handle) {
	if h == nil {
		return
	}
	h.refs--
	if h.refs > 0 {
		return
	}
	delete(r.assets, h.path)
}

// Inject installs content for path directly, marking it ready. Used by
// tests and tools that build assets in memory instead of loading files.
func (r *Registry) Inject(path string, content any) *Handle {
	h, ok := r.assets[path]
	if !ok {
		h = &Handle{path: path, refs: 1}
		r.assets[path] = h
	}
	old := h.status
	h.content = content
	h.err = nil
	h.status = StatusReady
	r.notify(h.path, old, h.status)
	return h
}

// Invalidate flips path back to loading and tells subscribers, without
// touching the file. Dependent runtime state must be torn down by the
// subscriber. No-op for unknown paths.
func (r *Registry) Invalidate(path string) {
	h, ok := r.assets[path]
	if !ok || h.status == StatusLoading {
		return
	}
	old := h.status
	h.status = StatusLoading
	h.content = nil
	r.notify(path, old, StatusLoading)
}

// Watch starts a filesystem watcher over the registry root. Events are
// queued; call ProcessEvents once per frame to apply them.
func (r *Registry) Watch() error {
	w, err := NewWatcher(r.root)
	if err != nil {
		return fmt.Errorf("asset: watch %s: %w", r.root, err)
	}
	r.watcher = w
	return nil
}

// Close stops the watcher, if any.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Close()
}

// ProcessEvents applies queued file-change events: each changed asset is
// invalidated and reloaded, firing status callbacks on this goroutine.
// Call between frames, never during the parallel update phase.
func (r *Registry) ProcessEvents() {
	if r.watcher == nil {
		return
	}
	for {
		select {
		case changed, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			rel, err := filepath.Rel(r.root, changed)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			h, known := r.assets[rel]
			if !known {
				continue
			}
			r.Invalidate(rel)
			r.reload(h)
		case err, ok := <-r.watcher.Errors:
			if ok && err != nil {
				log.Printf("animation: asset watcher: %v", err)
			}
		default:
			return
		}
	}
}

func (r *Registry) reload(h *Handle) {
	old := h.status
	fn, ok := r.loaders[filepath.Ext(h.path)]
	if !ok {
		h.status = StatusFailed
		h.err = fmt.Errorf("asset: no loader for %s", h.path)
		r.notify(h.path, old, h.status)
		return
	}
	data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(h.path)))
	if err != nil {
		h.status = StatusFailed
		h.err = err
		r.notify(h.path, old, h.status)
		return
	}
	content, err := fn(data)
	if err != nil {
		log.Printf("animation: load %s: %v", h.path, err)
		h.status = StatusFailed
		h.err = err
		r.notify(h.path, old, h.status)
		return
	}
	h.content = content
	h.err = nil
	h.status = StatusReady
	r.notify(h.path, old, h.status)
}

func (r *Registry) notify(path string, old, next Status) {
	if old == next {
		return
	}
	for _, fn := range r.subs {
		fn(path, old, next)
	}
}
