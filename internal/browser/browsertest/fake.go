// Package browsertest provides an in-memory Renderer for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"go-portal-harvester/internal/browser"
	"go-portal-harvester/internal/models"
)

// ErrNotFound is returned by Navigate for URLs with no registered page.
var ErrNotFound = errors.New("browsertest: no page registered")

// Route answers a navigation. It sees the cookies currently set so tests
// can serve different content to logged-in and anonymous visitors.
type Route func(cookies []models.Cookie) (html string, redirect string)

// Renderer is a scripted browser. Pages are keyed by absolute URL; a path
// key ("/jobs") matches any host.
type Renderer struct {
	mu       sync.Mutex
	routes   map[string]Route
	cookies  []models.Cookie
	current  *browser.Page
	typed    map[string]string
	visits   []string
	clicks   []string
	closed   bool
	OnClick  func(r *Renderer, selector string) error
	FailURLs map[string]error
}

func New() *Renderer {
	return &Renderer{
		routes:   make(map[string]Route),
		typed:    make(map[string]string),
		FailURLs: make(map[string]error),
	}
}

// Page registers static html for a URL or path.
func (r *Renderer) Page(key, html string) *Renderer {
	return r.Handle(key, func([]models.Cookie) (string, string) { return html, "" })
}

// Handle registers a dynamic route.
func (r *Renderer) Handle(key string, route Route) *Renderer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[key] = route
	return r
}

func (r *Renderer) lookup(raw string) (Route, bool) {
	if route, ok := r.routes[raw]; ok {
		return route, true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	key := u.Path
	if u.RawQuery != "" {
		if route, ok := r.routes[key+"?"+u.RawQuery]; ok {
			return route, true
		}
	}
	route, ok := r.routes[key]
	return route, ok
}

func (r *Renderer) Navigate(ctx context.Context, target string) (*browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.visits = append(r.visits, target)
	if err, ok := r.FailURLs[target]; ok {
		return nil, err
	}
	return r.serve(target, 0)
}

func (r *Renderer) serve(target string, depth int) (*browser.Page, error) {
	route, ok := r.lookup(target)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
	}
	html, redirect := route(append([]models.Cookie(nil), r.cookies...))
	if redirect != "" && depth < 5 {
		base, _ := url.Parse(target)
		next, err := base.Parse(redirect)
		if err != nil {
			return nil, err
		}
		return r.serve(next.String(), depth+1)
	}
	r.current = &browser.Page{HTML: html, URL: target, Status: 200}
	return r.current, nil
}

// Show replaces the current page, as a click handler would.
func (r *Renderer) Show(pageURL, html string) {
	r.current = &browser.Page{HTML: html, URL: pageURL, Status: 200}
}

// Goto serves a registered route as the current page; for click handlers.
func (r *Renderer) Goto(target string) error {
	_, err := r.serve(target, 0)
	return err
}

func (r *Renderer) Current(ctx context.Context) (*browser.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil, errors.New("browsertest: no current page")
	}
	p := *r.current
	return &p, nil
}

func (r *Renderer) Cookies(ctx context.Context) ([]models.Cookie, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Cookie(nil), r.cookies...), nil
}

func (r *Renderer) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setCookies(cookies)
	return nil
}

// AddCookie sets a cookie from inside a click handler (lock already held).
func (r *Renderer) AddCookie(c models.Cookie) {
	r.setCookies([]models.Cookie{c})
}

func (r *Renderer) setCookies(cookies []models.Cookie) {
	for _, c := range cookies {
		replaced := false
		for i := range r.cookies {
			if r.cookies[i].Name == c.Name && r.cookies[i].Domain == c.Domain {
				r.cookies[i] = c
				replaced = true
			}
		}
		if !replaced {
			r.cookies = append(r.cookies, c)
		}
	}
}

func (r *Renderer) Type(ctx context.Context, selector, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typed[selector] = text
	return nil
}

// Typed returns what was last typed into selector.
func (r *Renderer) Typed(selector string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.typed[selector]
}

func (r *Renderer) Click(ctx context.Context, selector string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clicks = append(r.clicks, selector)
	if r.OnClick != nil {
		return r.OnClick(r, selector)
	}
	return nil
}

func (r *Renderer) Evaluate(ctx context.Context, js string) (any, error) {
	return nil, nil
}

func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Visits lists every URL passed to Navigate, in order.
func (r *Renderer) Visits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.visits...)
}

// Clicks lists every clicked selector, in order.
func (r *Renderer) Clicks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.clicks...)
}

func (r *Renderer) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Launcher hands out the same fake renderer, or Err when set.
type Launcher struct {
	Renderer *Renderer
	Err      error
	Launches int
}

func (l *Launcher) Launch(ctx context.Context) (browser.Renderer, error) {
	l.Launches++
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Renderer, nil
}

var (
	_ browser.Renderer = (*Renderer)(nil)
	_ browser.Launcher = (*Launcher)(nil)
)
