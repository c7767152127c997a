// Package access maps storage paths to privacy layers and decides, per
// viewer, which layers may be read or written. It is pure: no I/O, no
// storage handles. Every document and graph operation consults this
// package before touching the backing store.
package access

import (
	"errors"
	"fmt"
	"strings"
)

// Scope is the five-way access classification derived from a path.
type Scope string

const (
	ScopePublic    Scope = "public"
	ScopePowerpak  Scope = "powerpak_published"
	ScopeTenant    Scope = "tenant"
	ScopeUser      Scope = "user"
	ScopePrivate   Scope = "private"
)

// LayerKind discriminates the Layer variants.
type LayerKind int

const (
	LayerPublic LayerKind = iota
	LayerPowerpak
	LayerTenant
	LayerFounder
)

const (
	publicPrefix   = "public"
	powerpakPrefix = "powerpak-published"
	tenantPrefix   = "renubu-tenant-"
	founderPrefix  = "founder-"
)

// ErrUnknownLayer is returned when an unrecognized layer reaches the path
// builder. It indicates a caller bug, not a recoverable condition.
var ErrUnknownLayer = errors.New("access: unknown layer")

// Layer is a privacy domain. Tenant and Founder layers carry the owning
// tenant or user ID; the other variants ignore ID.
type Layer struct {
	Kind LayerKind
	ID   string
}

func Public() Layer             { return Layer{Kind: LayerPublic} }
func PowerpakPublished() Layer  { return Layer{Kind: LayerPowerpak} }
func Tenant(tenantID string) Layer {
	return Layer{Kind: LayerTenant, ID: tenantID}
}
func Founder(userID string) Layer {
	return Layer{Kind: LayerFounder, ID: userID}
}

// BucketPath returns the storage-path prefix for the layer. It is the exact
// inverse of LayerFromPath for every valid layer.
func (l Layer) BucketPath() (string, error) {
	switch l.Kind {
	case LayerPublic:
		return publicPrefix, nil
	case LayerPowerpak:
		return powerpakPrefix, nil
	case LayerTenant:
		if l.ID == "" {
			return "", fmt.Errorf("%w: tenant layer without id", ErrUnknownLayer)
		}
		return tenantPrefix + l.ID, nil
	case LayerFounder:
		if l.ID == "" {
			return "", fmt.Errorf("%w: founder layer without id", ErrUnknownLayer)
		}
		return founderPrefix + l.ID, nil
	default:
		return "", fmt.Errorf("%w: kind %d", ErrUnknownLayer, l.Kind)
	}
}

// Scope classifies the layer.
func (l Layer) Scope() Scope {
	switch l.Kind {
	case LayerPublic:
		return ScopePublic
	case LayerPowerpak:
		return ScopePowerpak
	case LayerTenant:
		return ScopeTenant
	case LayerFounder:
		return ScopeUser
	default:
		return ScopePrivate
	}
}

func (l Layer) String() string {
	path, err := l.BucketPath()
	if err != nil {
		return "invalid"
	}
	return path
}

// LayerFromPath classifies the leading path segment. ok is false when the
// prefix matches no known layer.
func LayerFromPath(path string) (Layer, bool) {
	prefix, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	switch {
	case prefix == publicPrefix:
		return Public(), true
	case prefix == powerpakPrefix:
		return PowerpakPublished(), true
	case strings.HasPrefix(prefix, tenantPrefix) && prefix != tenantPrefix:
		return Tenant(strings.TrimPrefix(prefix, tenantPrefix)), true
	case strings.HasPrefix(prefix, founderPrefix) && prefix != founderPrefix:
		return Founder(strings.TrimPrefix(prefix, founderPrefix)), true
	default:
		return Layer{}, false
	}
}

// ScopeFromPath classifies a storage path. Unrecognized prefixes are
// private: nobody but a matching owner can ever read them, and no owner
// can match, so private-by-default means deny-by-default.
func ScopeFromPath(path string) Scope {
	layer, ok := LayerFromPath(path)
	if !ok {
		return ScopePrivate
	}
	return layer.Scope()
}

// BuildPath assembles the canonical storage path for a document.
func BuildPath(layer Layer, folder, slug string) (string, error) {
	prefix, err := layer.BucketPath()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s.md", prefix, folder, slug), nil
}

// ParsePath splits a storage path back into layer, folder, and slug. It is
// the inverse of BuildPath. Malformed paths (no folder segment, unknown
// prefix) return ok=false rather than an error.
func ParsePath(path string) (layer Layer, folder, slug string, ok bool) {
	layer, ok = LayerFromPath(path)
	if !ok {
		return Layer{}, "", "", false
	}
	trimmed := strings.TrimPrefix(path, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 3 {
		return Layer{}, "", "", false
	}
	folder = strings.Join(parts[1:len(parts)-1], "/")
	slug = strings.TrimSuffix(parts[len(parts)-1], ".md")
	if folder == "" || slug == "" {
		return Layer{}, "", "", false
	}
	return layer, folder, slug, true
}

// Viewer is the access context for one caller, supplied per operation and
// never persisted here. SharedTopics maps a topic slug to the user IDs of
// founders who have explicitly shared that topic with this viewer.
type Viewer struct {
	UserID        string
	TenantID      string
	Subscriptions []string
	SharedTopics  map[string][]string
}

// Subscribed reports whether the viewer holds at least one subscription.
func (v Viewer) Subscribed() bool {
	return len(v.Subscriptions) > 0
}

// SharedBy reports whether ownerID has shared the given topic with the
// viewer. Sharing is topic-scoped: a grant never opens the rest of the
// owner's layer.
func (v Viewer) SharedBy(ownerID, topicSlug string) bool {
	for _, sharer := range v.SharedTopics[topicSlug] {
		if sharer == ownerID {
			return true
		}
	}
	return false
}

// CanReadLayer decides read access for a layer. Unmatched kinds are
// denied.
func CanReadLayer(v Viewer, layer Layer) bool {
	switch layer.Kind {
	case LayerPublic:
		return true
	case LayerPowerpak:
		return v.Subscribed()
	case LayerTenant:
		return v.TenantID != "" && v.TenantID == layer.ID
	case LayerFounder:
		return v.UserID != "" && v.UserID == layer.ID
	default:
		return false
	}
}

// CanWriteLayer decides write access for a layer. Public and
// powerpak-published layers are never writable here: publishing into them
// is an administrative operation outside this subsystem.
func CanWriteLayer(v Viewer, layer Layer) bool {
	switch layer.Kind {
	case LayerPublic, LayerPowerpak:
		return false
	case LayerTenant:
		return v.TenantID != "" && v.TenantID == layer.ID
	case LayerFounder:
		return v.UserID != "" && v.UserID == layer.ID
	default:
		return false
	}
}

// CanRead decides read access for a storage path. Paths with an
// unrecognized prefix are denied.
func CanRead(v Viewer, path string) bool {
	layer, ok := LayerFromPath(path)
	if !ok {
		return false
	}
	return CanReadLayer(v, layer)
}

// CanWrite decides write access for a storage path.
func CanWrite(v Viewer, path string) bool {
	layer, ok := LayerFromPath(path)
	if !ok {
		return false
	}
	return CanWriteLayer(v, layer)
}

// AccessibleLayers lists every layer the viewer may read from, public
// first. Explicitly shared founder layers are not included: those are
// topic-scoped and resolved per slug at merge time.
func AccessibleLayers(v Viewer) []Layer {
	layers := []Layer{Public()}
	if v.Subscribed() {
		layers = append(layers, PowerpakPublished())
	}
	if v.TenantID != "" {
		layers = append(layers, Tenant(v.TenantID))
	}
	if v.UserID != "" {
		layers = append(layers, Founder(v.UserID))
	}
	return layers
}

// SharedFounderLayers lists the founder layers third parties have opened to
// the viewer for the given topic slug.
func SharedFounderLayers(v Viewer, topicSlug string) []Layer {
	var layers []Layer
	for _, sharer := range v.SharedTopics[topicSlug] {
		if sharer != "" && sharer != v.UserID {
			layers = append(layers, Founder(sharer))
		}
	}
	return layers
}
