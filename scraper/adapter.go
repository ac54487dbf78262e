package scraper

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"bizharvest/models"
)

// Adapter is the data-driven description of one source site: how to build
// a search URL, which selector chains extract each logical field, and how
// to find the next-page control. Selector chains are tried in priority
// order; the first selector yielding non-empty text wins.
type Adapter struct {
	Name       string
	BaseURL    string
	SearchPath string

	QueryParam    string
	LocationParam string
	PageParam     string

	CardSelectors  []string
	FieldSelectors map[string][]string
	NextSelectors  []string

	MaxPages     int
	SyncInterval time.Duration
}

// BuildSearchURL assembles the first results-page URL for the given params.
func (a *Adapter) BuildSearchURL(p models.SearchParams) string {
	u, err := url.Parse(a.BaseURL + a.SearchPath)
	if err != nil {
		return a.BaseURL
	}

	q := u.Query()
	if p.Query != "" && a.QueryParam != "" {
		q.Set(a.QueryParam, p.Query)
	}
	if p.Location != "" && a.LocationParam != "" {
		q.Set(a.LocationParam, p.Location)
	}
	if p.MinPrice > 0 {
		q.Set("price_min", fmt.Sprintf("%.0f", p.MinPrice))
	}
	if p.MaxPrice > 0 {
		q.Set("price_max", fmt.Sprintf("%.0f", p.MaxPrice))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// extractionJS builds the in-page extraction routine from the adapter's
// selector chains. It returns an array of {field: text} objects, one per
// listing card; cards where every title selector misses are skipped.
func (a *Adapter) extractionJS() string {
	cards, _ := json.Marshal(a.CardSelectors)
	fields, _ := json.Marshal(a.FieldSelectors)

	return fmt.Sprintf(`
		(function() {
			var cardSelectors = %s;
			var fieldSelectors = %s;

			var cards = [];
			for (var i = 0; i < cardSelectors.length; i++) {
				cards = document.querySelectorAll(cardSelectors[i]);
				if (cards.length > 0) break;
			}

			function firstMatch(root, selectors) {
				for (var j = 0; j < selectors.length; j++) {
					var el = root.querySelector(selectors[j]);
					if (!el) continue;
					if (el.tagName === 'A' && el.href) return el.href;
					var text = (el.innerText || el.textContent || '').trim();
					if (text) return text;
				}
				return '';
			}

			var results = [];
			for (var c = 0; c < cards.length; c++) {
				var record = {};
				var hasTitle = false;
				for (var field in fieldSelectors) {
					var value = firstMatch(cards[c], fieldSelectors[field]);
					record[field] = value;
					if (field === 'title' && value) hasTitle = true;
				}
				if (hasTitle) results.push(record);
			}
			return results;
		})()
	`, cards, fields)
}

// nextPageJS builds the routine that resolves the next-page control. It
// returns the control's href, or "" when the control is absent or
// disabled.
func (a *Adapter) nextPageJS() string {
	next, _ := json.Marshal(a.NextSelectors)

	return fmt.Sprintf(`
		(function() {
			var selectors = %s;
			for (var i = 0; i < selectors.length; i++) {
				var el = document.querySelector(selectors[i]);
				if (!el) continue;
				if (el.getAttribute('aria-disabled') === 'true' || el.disabled) continue;
				if (el.href) return el.href;
			}
			return '';
		})()
	`, next)
}

// nextPageURL synthesizes the next results-page URL by bumping the
// adapter's page query parameter on the current URL. Returns "" for
// adapters that paginate only through a next control.
func (a *Adapter) nextPageURL(current string, page int) string {
	if a.PageParam == "" {
		return ""
	}
	u, err := url.Parse(current)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set(a.PageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// effectiveMaxPages resolves the page budget for a run: the caller's
// params override the adapter default, and the hard safety cap always
// applies.
func (a *Adapter) effectiveMaxPages(p models.SearchParams) int {
	max := a.MaxPages
	if p.MaxPages > 0 {
		max = p.MaxPages
	}
	if max < 1 {
		max = 1
	}
	if max > pageSafetyCap {
		max = pageSafetyCap
	}
	return max
}
