package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"bizharvest/browser"
)

// captchaMarkers are DOM selectors whose presence signals a challenge page.
var captchaMarkers = []string{
	"iframe[src*='recaptcha']",
	"iframe[src*='hcaptcha']",
	"div.g-recaptcha",
	"div#cf-challenge-running",
	"form#challenge-form",
	"div[class*='captcha']",
}

// rateLimitPhrases are body-text fragments that signal throttling.
var rateLimitPhrases = []string{
	"too many requests",
	"rate limit",
	"slow down",
	"unusual traffic",
	"temporarily blocked",
	"access denied",
}

// detectCaptcha scans the loaded page for known challenge markers.
func (c *Core) detectCaptcha(ctx context.Context, page browser.Page) bool {
	markers, _ := json.Marshal(captchaMarkers)
	js := fmt.Sprintf(`
		(function() {
			var markers = %s;
			for (var i = 0; i < markers.length; i++) {
				if (document.querySelector(markers[i])) return true;
			}
			return false;
		})()
	`, markers)

	var found bool
	if err := page.Evaluate(ctx, js, &found); err != nil {
		return false
	}
	return found
}

// detectRateLimit scans the page text for throttling phrases.
func (c *Core) detectRateLimit(ctx context.Context, page browser.Page) bool {
	phrases, _ := json.Marshal(rateLimitPhrases)
	js := fmt.Sprintf(`
		(function() {
			var phrases = %s;
			var text = (document.body ? document.body.innerText : '').toLowerCase();
			for (var i = 0; i < phrases.length; i++) {
				if (text.indexOf(phrases[i]) !== -1) return true;
			}
			return false;
		})()
	`, phrases)

	var found bool
	if err := page.Evaluate(ctx, js, &found); err != nil {
		return false
	}
	return found
}

// humanScroll performs 2-6 randomized scroll bursts with pauses so the
// page's behavior fingerprint is not perfectly static.
func (c *Core) humanScroll(ctx context.Context, page browser.Page) {
	bursts := 2 + rand.Intn(5)
	for i := 0; i < bursts; i++ {
		depth := 200 + rand.Intn(800)
		js := fmt.Sprintf(`window.scrollBy(0, %d)`, depth)
		if err := page.Evaluate(ctx, js, nil); err != nil {
			return
		}
		if c.scrollPause > 0 {
			c.pause(c.scrollPause + time.Duration(rand.Int63n(int64(3*c.scrollPause))))
		}
	}
}

// preparePage runs the per-load anti-detection sequence: navigate, scan
// for a captcha (wait and reload once, else continue degraded), scan for
// rate limiting (extended backoff), then emulate human scrolling. The
// returned flag reports degraded mode; only navigation failures are
// errors.
func (c *Core) preparePage(ctx context.Context, page browser.Page, url string) (degraded bool, err error) {
	navCtx, cancel := context.WithTimeout(ctx, c.navTimeout)
	defer cancel()

	if err := page.Navigate(navCtx, url); err != nil {
		return false, err
	}
	c.pause(c.settleDelay)

	if c.detectCaptcha(ctx, page) {
		c.logger.Warn("[scraper] Captcha marker on %s — waiting and reloading once", url)
		c.pause(c.captchaWait)

		reloadCtx, cancelReload := context.WithTimeout(ctx, c.navTimeout)
		reloadErr := page.Navigate(reloadCtx, url)
		cancelReload()
		if reloadErr != nil {
			return false, reloadErr
		}
		c.pause(c.settleDelay)

		if c.detectCaptcha(ctx, page) {
			c.logger.Warn("[scraper] Captcha persists on %s — proceeding degraded", url)
			degraded = true
		}
	}

	if c.detectRateLimit(ctx, page) {
		c.logger.Warn("[scraper] Rate-limit phrasing on %s — backing off %v", url, c.rateLimitBackoff)
		c.pause(c.rateLimitBackoff)
	}

	c.humanScroll(ctx, page)
	return degraded, nil
}

func (c *Core) pause(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
