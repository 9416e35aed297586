package browser

import (
	"context"

	"go-portal-harvester/internal/models"
)

// Page is a rendered document and where the browser ended up.
type Page struct {
	HTML   string
	URL    string
	Status int
}

// Renderer drives one browser tab. Implementations are not safe for
// concurrent use; the harvester owns a single renderer per cycle.
type Renderer interface {
	//Navigate loads url and waits for the page to settle
	Navigate(ctx context.Context, url string) (*Page, error)
	//Current re-reads the page without navigating (after a click, for example)
	Current(ctx context.Context) (*Page, error)
	Cookies(ctx context.Context) ([]models.Cookie, error)
	SetCookies(ctx context.Context, cookies []models.Cookie) error
	Type(ctx context.Context, selector, text string) error
	//Click clicks the first match and waits for any resulting navigation
	Click(ctx context.Context, selector string) error
	Evaluate(ctx context.Context, js string) (any, error)
	Close() error
}

// Launcher starts a fresh renderer. A launch error is fatal for the cycle.
type Launcher interface {
	Launch(ctx context.Context) (Renderer, error)
}

// Screenshotter is implemented by renderers that can capture debug images.
type Screenshotter interface {
	Screenshot(name, message string) error
}
