package epub

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// origin is the synthetic base address of one container instance. Every
// container gets its own random authority so relative-URL resolution inside
// documents behaves like same-origin web resolution and never collides
// across instances. It is threaded explicitly, never read from a global.
type origin struct {
	token string
	base  *url.URL
}

func newOrigin() (*origin, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, fmt.Errorf("epub: generating origin token: %w", err)
	}
	token := hex.EncodeToString(buf[:])
	return &origin{
		token: token,
		base:  &url.URL{Scheme: "epub", Host: token, Path: "/"},
	}, nil
}

// urlFor returns the absolute URL of a container path under this origin.
func (o *origin) urlFor(containerPath string) *url.URL {
	return &url.URL{Scheme: "epub", Host: o.token, Path: "/" + containerPath}
}

// contains reports whether u resolves inside this origin.
func (o *origin) contains(u *url.URL) bool {
	return u.Scheme == o.base.Scheme && u.Host == o.base.Host
}

// containerPath converts an absolute same-origin URL back to the normalized
// container path it addresses.
func (o *origin) containerPath(u *url.URL) string {
	return strings.TrimPrefix(u.Path, "/")
}

// resolve parses ref and resolves it against base. The fragment is kept on
// the result; callers that key on the path ignore it.
func resolve(base *url.URL, ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("epub: parsing reference %q: %w", ref, err)
	}
	return base.ResolveReference(u), nil
}
