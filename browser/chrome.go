package browser

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"sync"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"bizharvest/utils"
)

// stealthScript suppresses the most common automation fingerprints before
// any site script runs.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'plugins', {
	get: () => [{ name: 'Chrome PDF Plugin' }, { name: 'Chrome PDF Viewer' }, { name: 'Native Client' }]
});
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
Object.defineProperty(navigator, 'deviceMemory', { get: () => 8 });
Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => 8 });
window.chrome = window.chrome || { runtime: {} };
`

// ChromePool opens headless Chrome pages via chromedp. Each page gets its
// own allocator so proxy and user-agent can differ per identity.
type ChromePool struct {
	headless bool
	execPath string
	logger   *utils.Logger

	mu     sync.Mutex
	closed bool
	pages  map[*chromePage]struct{}
}

// NewChromePool locates a Chrome binary and returns a ready pool.
func NewChromePool(headless bool, chromeBin string, logger *utils.Logger) *ChromePool {
	bin := chromeBin
	if bin == "" {
		bin = findChromeBinary()
	}
	logger.Info("[browser] Using browser binary: %s", bin)

	return &ChromePool{
		headless: headless,
		execPath: bin,
		logger:   logger,
		pages:    make(map[*chromePage]struct{}),
	}
}

// OpenPage starts a browser context carrying the identity's proxy,
// user-agent, viewport and extra headers, with fingerprint spoofing
// installed before any navigation.
func (p *ChromePool) OpenPage(ctx context.Context, ident Identity) (Page, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("browser: pool is closed")
	}
	p.mu.Unlock()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if ident.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(ident.UserAgent))
	}
	if ident.ProxyEndpoint != "" {
		opts = append(opts, chromedp.ProxyServer(ident.ProxyEndpoint))
	}
	if p.execPath != "" {
		opts = append(opts, chromedp.ExecPath(p.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	pageCtx, cancelPage := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}))

	vw, vh := ident.ViewportW, ident.ViewportH
	if vw == 0 || vh == 0 {
		v := viewportPool[rand.Intn(len(viewportPool))]
		vw, vh = v[0], v[1]
	}

	headers := network.Headers{}
	for k, v := range ident.Headers {
		headers[k] = v
	}

	// Chrome's --proxy-server flag carries no credentials; authenticated
	// proxies answer their challenge through the fetch domain.
	if ident.ProxyEndpoint != "" && ident.ProxyUsername != "" {
		chromedp.ListenTarget(pageCtx, func(ev interface{}) {
			switch ev := ev.(type) {
			case *fetch.EventAuthRequired:
				go func() {
					_ = chromedp.Run(pageCtx, fetch.ContinueWithAuth(ev.RequestID, &fetch.AuthChallengeResponse{
						Response: fetch.AuthChallengeResponseResponseProvideCredentials,
						Username: ident.ProxyUsername,
						Password: ident.ProxyPassword,
					}))
				}()
			case *fetch.EventRequestPaused:
				go func() {
					_ = chromedp.Run(pageCtx, fetch.ContinueRequest(ev.RequestID))
				}()
			}
		})
	}

	actions := []chromedp.Action{
		network.Enable(),
		chromedp.EmulateViewport(int64(vw), int64(vh)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := cdppage.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	}
	if len(headers) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	if ident.ProxyEndpoint != "" && ident.ProxyUsername != "" {
		actions = append([]chromedp.Action{fetch.Enable().WithHandleAuthRequests(true)}, actions...)
	}

	if err := chromedp.Run(pageCtx, actions...); err != nil {
		cancelPage()
		cancelAlloc()
		return nil, fmt.Errorf("browser: prepare page: %w", err)
	}

	cp := &chromePage{
		ctx:    pageCtx,
		cancel: func() { cancelPage(); cancelAlloc() },
		pool:   p,
	}

	p.mu.Lock()
	p.pages[cp] = struct{}{}
	p.mu.Unlock()

	return cp, nil
}

// Close tears down every open page.
func (p *ChromePool) Close() error {
	p.mu.Lock()
	p.closed = true
	open := make([]*chromePage, 0, len(p.pages))
	for cp := range p.pages {
		open = append(open, cp)
	}
	p.mu.Unlock()

	for _, cp := range open {
		_ = cp.Close()
	}
	return nil
}

func (p *ChromePool) release(cp *chromePage) {
	p.mu.Lock()
	delete(p.pages, cp)
	p.mu.Unlock()
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	pool   *ChromePool

	once sync.Once
}

func (cp *chromePage) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := cp.deadlineCtx(ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	return nil
}

func (cp *chromePage) Evaluate(ctx context.Context, js string, out interface{}) error {
	runCtx, cancel := cp.deadlineCtx(ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Evaluate(js, out)); err != nil {
		return fmt.Errorf("browser: evaluate: %w", err)
	}
	return nil
}

func (cp *chromePage) Close() error {
	cp.once.Do(func() {
		cp.cancel()
		cp.pool.release(cp)
	})
	return nil
}

// deadlineCtx applies the caller context's deadline to the page's chromedp
// context, since chromedp actions must run on contexts derived from it.
func (cp *chromePage) deadlineCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(cp.ctx, deadline)
	}
	return context.WithCancel(cp.ctx)
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
