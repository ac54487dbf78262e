// Package browser abstracts headless-browser automation behind a small
// capability interface so adapters stay portable across drivers.
package browser

import "context"

// Identity carries the per-page fingerprint taken from a proxy session.
type Identity struct {
	UserAgent     string
	ProxyEndpoint string
	ProxyUsername string
	ProxyPassword string
	Headers       map[string]string
	ViewportW     int
	ViewportH     int
}

// Page is one open browser page. All operations honor the passed context's
// deadline.
type Page interface {
	// Navigate loads the url and waits for the page to settle.
	Navigate(ctx context.Context, url string) error
	// Evaluate runs a JavaScript expression and unmarshals its result
	// into out (which may be nil to discard).
	Evaluate(ctx context.Context, js string, out interface{}) error
	// Close releases the page and any per-page browser resources.
	Close() error
}

// Pool opens pages carrying a given identity. One concrete implementation
// drives headless Chrome; tests substitute scripted pages.
type Pool interface {
	OpenPage(ctx context.Context, ident Identity) (Page, error)
	Close() error
}

// viewportPool holds plausible desktop viewport sizes; a random one is
// picked per page to vary the static fingerprint.
var viewportPool = [][2]int{
	{1920, 1080},
	{1680, 1050},
	{1536, 864},
	{1440, 900},
	{1366, 768},
}
