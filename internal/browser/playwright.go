package browser

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	apperrors "go-portal-harvester/internal/errors"
	"go-portal-harvester/internal/logger"
	"go-portal-harvester/internal/models"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/time/rate"
)

type Options struct {
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	RateLimitInterval time.Duration
	MaxJitter         time.Duration
	ScreenshotDir     string
	//ScrollForLazyContent scrolls each page once so lazy lists render
	ScrollForLazyContent bool
}

// PlaywrightLauncher starts Chromium through playwright-go.
type PlaywrightLauncher struct {
	opts Options
	log  logger.Logger
}

func NewPlaywrightLauncher(opts Options, log logger.Logger) *PlaywrightLauncher {
	return &PlaywrightLauncher{opts: opts, log: log}
}

// Launch starts playwright, a browser, a context and one page.
func (l *PlaywrightLauncher) Launch(ctx context.Context) (Renderer, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.HardFailure("launch cancelled", err)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, apperrors.HardFailure("start playwright", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.opts.Headless),
		Args:     []string{"--disable-blink-features=AutomationControlled"},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, apperrors.HardFailure("launch chromium", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(l.opts.UserAgent),
		Viewport:  &playwright.Size{Width: 1366, Height: 900},
	})
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, apperrors.HardFailure("create browser context", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, apperrors.HardFailure("create page", err)
	}

	interval := l.opts.RateLimitInterval
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	l.log.Info("Browser launched", logger.Bool("headless", l.opts.Headless))
	return &PlaywrightRenderer{
		pw:      pw,
		browser: browser,
		bctx:    bctx,
		page:    page,
		opts:    l.opts,
		limiter: rate.NewLimiter(limit, 1),
		shots:   NewScreenshotDebugger(l.opts.ScreenshotDir, l.log),
		log:     l.log,
	}, nil
}

// PlaywrightRenderer is a Renderer over a single playwright page.
type PlaywrightRenderer struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	bctx     playwright.BrowserContext
	page     playwright.Page
	opts     Options
	limiter  *rate.Limiter
	shots    *ScreenshotDebugger
	log      logger.Logger
	lastCode int
}

// Navigate waits for the rate limiter and a random jitter, then loads url.
func (r *PlaywrightRenderer) Navigate(ctx context.Context, url string) (*Page, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, apperrors.RenderFailure("rate limiter", err)
	}
	if err := sleep(ctx, jitter(r.opts.MaxJitter)); err != nil {
		return nil, apperrors.RenderFailure("navigation cancelled", err)
	}

	resp, err := r.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(r.opts.NavigationTimeout.Milliseconds())),
	})
	if err != nil {
		return nil, apperrors.RenderFailure(fmt.Sprintf("navigate %s", url), err)
	}
	r.lastCode = 0
	if resp != nil {
		r.lastCode = resp.Status()
	}

	if r.opts.ScrollForLazyContent {
		if err := HumanScroll(ctx, r.page); err != nil {
			r.log.Debug("Scroll failed", logger.String("url", url), logger.Error(err))
		}
	}

	return r.settle(ctx)
}

func (r *PlaywrightRenderer) Current(ctx context.Context) (*Page, error) {
	return r.read(ctx)
}

func (r *PlaywrightRenderer) settle(ctx context.Context) (*Page, error) {
	if err := sleep(ctx, r.opts.SettleDelay); err != nil {
		return nil, apperrors.RenderFailure("settle cancelled", err)
	}
	return r.read(ctx)
}

func (r *PlaywrightRenderer) read(ctx context.Context) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.RenderFailure("read cancelled", err)
	}
	html, err := r.page.Content()
	if err != nil {
		return nil, apperrors.RenderFailure("read page content", err)
	}
	return &Page{HTML: html, URL: r.page.URL(), Status: r.lastCode}, nil
}

func (r *PlaywrightRenderer) Cookies(ctx context.Context) ([]models.Cookie, error) {
	pwCookies, err := r.bctx.Cookies()
	if err != nil {
		return nil, err
	}
	out := make([]models.Cookie, len(pwCookies))
	for i, c := range pwCookies {
		out[i] = fromPlaywright(c)
	}
	return out, nil
}

func (r *PlaywrightRenderer) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	pwCookies := make([]playwright.OptionalCookie, len(cookies))
	for i, c := range cookies {
		pwCookies[i] = toPlaywright(c)
	}
	return r.bctx.AddCookies(pwCookies)
}

func (r *PlaywrightRenderer) Type(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.page.Locator(selector).First().Fill(text, playwright.LocatorFillOptions{
		Timeout: playwright.Float(float64(r.opts.NavigationTimeout.Milliseconds())),
	})
}

func (r *PlaywrightRenderer) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := playwright.Float(float64(r.opts.NavigationTimeout.Milliseconds()))
	if err := r.page.Locator(selector).First().Click(playwright.LocatorClickOptions{Timeout: timeout}); err != nil {
		return err
	}
	//a click that does not navigate leaves the load state satisfied
	if err := r.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: timeout,
	}); err != nil {
		return err
	}
	return sleep(ctx, r.opts.SettleDelay)
}

func (r *PlaywrightRenderer) Evaluate(ctx context.Context, js string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.page.Evaluate(js)
}

func (r *PlaywrightRenderer) Screenshot(name, message string) error {
	return r.shots.CaptureAndLog(r.page, name, message)
}

func (r *PlaywrightRenderer) Close() error {
	var firstErr error
	if r.browser != nil {
		if err := r.browser.Close(); err != nil {
			firstErr = err
		}
	}
	if r.pw != nil {
		if err := r.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
