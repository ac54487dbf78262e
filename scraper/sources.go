package scraper

import "time"

// BuiltinAdapters returns the configured source sites. Selector chains are
// ordered most-specific first; the generic fallbacks at the end of each
// chain survive site redesigns long enough to keep runs degraded rather
// than empty.
func BuiltinAdapters(defaultMaxPages int, syncInterval time.Duration) []*Adapter {
	return []*Adapter{
		{
			Name:          "bizmarket",
			BaseURL:       "https://www.bizmarket.com",
			SearchPath:    "/businesses-for-sale/",
			QueryParam:    "q",
			LocationParam: "loc",
			PageParam:     "page",
			CardSelectors: []string{
				"div[data-testid='listing-card']",
				"article.listing",
				"div.search-result",
			},
			FieldSelectors: map[string][]string{
				"title": {
					"h3[data-testid='listing-title']",
					"a.title",
					"h3 a",
					"h2",
				},
				"price": {
					"span[data-testid='asking-price']",
					"p.asking-price",
					"span.price",
				},
				"location": {
					"span[data-testid='listing-location']",
					"p.location",
					"span.location",
				},
				"industry": {
					"span[data-testid='category']",
					"p.category",
				},
				"description": {
					"p[data-testid='listing-description']",
					"p.description",
					"p.teaser",
				},
				"revenue": {
					"span[data-testid='cash-flow']",
					"p.cash-flow",
				},
				"link": {
					"a[data-testid='listing-link']",
					"h3 a",
					"a.title",
				},
			},
			NextSelectors: []string{
				"a[data-testid='pagination-next']",
				"a[rel='next']",
				"a[aria-label='Next']",
				"li.next a",
			},
			MaxPages:     defaultMaxPages,
			SyncInterval: syncInterval,
		},
		{
			Name:          "dealstream",
			BaseURL:       "https://www.dealstream.com",
			SearchPath:    "/listings",
			QueryParam:    "keywords",
			LocationParam: "location",
			PageParam:     "p",
			CardSelectors: []string{
				"div.listing-row",
				"div[itemtype='https://schema.org/Offer']",
				"tr.result",
			},
			FieldSelectors: map[string][]string{
				"title": {
					"a.listing-name",
					"h4 a",
					"td.name a",
				},
				"price": {
					"div.price strong",
					"span.asking",
					"td.price",
				},
				"location": {
					"div.listing-location",
					"span.geo",
					"td.location",
				},
				"industry": {
					"a.industry-tag",
					"span.sector",
				},
				"description": {
					"div.listing-summary",
					"p.summary",
				},
				"link": {
					"a.listing-name",
					"h4 a",
				},
			},
			NextSelectors: []string{
				"a.pagination-next",
				"a[rel='next']",
				"ul.pagination li:last-child a",
			},
			MaxPages:     defaultMaxPages,
			SyncInterval: syncInterval,
		},
		{
			Name:          "franchisegate",
			BaseURL:       "https://www.franchisegate.com",
			SearchPath:    "/search",
			QueryParam:    "term",
			LocationParam: "state",
			PageParam:     "pg",
			CardSelectors: []string{
				"li.franchise-card",
				"div.opportunity",
				"div.card",
			},
			FieldSelectors: map[string][]string{
				"title": {
					"h2.franchise-name",
					"a.opportunity-title",
					"h3",
				},
				"price": {
					"span.investment-min",
					"div.investment",
					"span.cash-required",
				},
				"location": {
					"span.territory",
					"div.available-in",
				},
				"industry": {
					"span.franchise-category",
					"div.category",
				},
				"description": {
					"div.franchise-blurb",
					"p.about",
				},
				"link": {
					"a.opportunity-title",
					"h2.franchise-name a",
					"a.card-link",
				},
			},
			NextSelectors: []string{
				"a.next-page",
				"a[rel='next']",
				"nav.pager a.next",
			},
			MaxPages:     defaultMaxPages,
			SyncInterval: syncInterval,
		},
	}
}
