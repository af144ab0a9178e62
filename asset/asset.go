// Package asset loads and tracks animation assets by path. Every asset
// moves through Loading to Ready (or Failed), is reference counted, and
// reports status changes to subscribers, so runtime state that depends on
// an asset (e.g. a live state-machine context) can be created and torn
// down as the asset comes and goes.
package asset

// Status is an asset's lifecycle state.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Handle is a reference to one loaded asset. Handles are shared: loading
// the same path twice yields the same handle with its refcount bumped.
type Handle struct {
	path    string
	status  Status
	content any
	err     error
	refs    int
}

// Path returns the asset's registry path.
func (h *Handle) Path() string {
	if h == nil {
		return ""
	}
	return h.path
}

// Status returns the asset's current lifecycle state.
func (h *Handle) Status() Status {
	if h == nil {
		return StatusFailed
	}
	return h.status
}

// IsReady reports whether the asset loaded successfully and has not been
// invalidated since.
func (h *Handle) IsReady() bool {
	return h != nil && h.status == StatusReady
}

// Content returns the parsed asset, or nil while not ready.
func (h *Handle) Content() any {
	if h == nil || h.status != StatusReady {
		return nil
	}
	return h.content
}

// Err returns the load error for a failed asset.
func (h *Handle) Err() error {
	if h == nil {
		return nil
	}
	return h.err
}
