package expert

import (
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry maps expert uids to their backends. It is populated once at
// process start and treated as read-only afterwards; lookups from any number
// of goroutines need no further synchronization.
type Registry struct {
	experts *xsync.MapOf[string, *Backend]
}

// NewRegistry creates an empty expert registry
func NewRegistry() *Registry {
	return &Registry{
		experts: xsync.NewMapOf[string, *Backend](),
	}
}

// Register adds a backend under its uid. Registering the same uid twice is
// an error.
func (r *Registry) Register(b *Backend) error {
	if b.Uid == "" {
		return fmt.Errorf("expert uid must not be empty")
	}
	if _, loaded := r.experts.LoadOrStore(b.Uid, b); loaded {
		return fmt.Errorf("expert %q is already registered", b.Uid)
	}
	return nil
}

// Get looks up a backend by exact uid match.
func (r *Registry) Get(uid string) (*Backend, bool) {
	return r.experts.Load(uid)
}

// UIDs returns all registered uids in sorted order.
func (r *Registry) UIDs() []string {
	var uids []string
	r.experts.Range(func(uid string, _ *Backend) bool {
		uids = append(uids, uid)
		return true
	})
	sort.Strings(uids)
	return uids
}

// Close shuts down every registered backend's task pools.
func (r *Registry) Close() {
	r.experts.Range(func(_ string, b *Backend) bool {
		b.Close()
		return true
	})
}
