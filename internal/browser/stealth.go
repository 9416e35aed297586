package browser

import (
	"context"
	"math/rand"
	"time"

	"github.com/playwright-community/playwright-go"
)

// RandomDelay waits for a random duration between min and max milliseconds,
// returning early when ctx is done.
func RandomDelay(ctx context.Context, min, max int) error {
	if max <= min {
		return sleep(ctx, time.Duration(min)*time.Millisecond)
	}
	d := rand.Intn(max-min+1) + min
	return sleep(ctx, time.Duration(d)*time.Millisecond)
}

// HumanScroll scrolls down in steps so lazy-loaded listings render,
// then scrolls back up a little.
func HumanScroll(ctx context.Context, page playwright.Page) error {
	for i := 0; i < 4; i++ {
		if _, err := page.Evaluate("window.scrollBy(0, window.innerHeight / 2)"); err != nil {
			return err
		}
		if err := RandomDelay(ctx, 200, 600); err != nil {
			return err
		}
	}
	_, err := page.Evaluate("window.scrollBy(0, -200)")
	return err
}
