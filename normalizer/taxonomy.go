package normalizer

import "strings"

// industryTaxonomy maps each canonical category to the keywords that select
// it. Category names are themselves keywords so a mapped value maps to
// itself on a second pass.
var industryTaxonomy = []struct {
	Category string
	Keywords []string
}{
	{"Restaurants & Food", []string{"restaurants & food", "restaurant", "food", "cafe", "coffee", "bakery", "catering", "bar", "pizza", "deli"}},
	{"Home Services", []string{"home services", "hvac", "plumbing", "electrical", "roofing", "landscaping", "pest control", "handyman"}},
	{"Retail", []string{"retail", "store", "shop", "boutique", "convenience"}},
	{"E-Commerce", []string{"e-commerce", "ecommerce", "online store", "amazon fba", "dropship"}},
	{"Technology & Software", []string{"technology & software", "technology", "software", "saas", "it services", "app", "web development"}},
	{"Healthcare & Medical", []string{"healthcare & medical", "healthcare", "medical", "dental", "clinic", "pharmacy", "home care"}},
	{"Automotive", []string{"automotive", "auto repair", "car wash", "dealership", "tire", "body shop"}},
	{"Construction & Contractors", []string{"construction & contractors", "construction", "contractor", "remodeling", "excavation", "paving"}},
	{"Manufacturing", []string{"manufacturing", "fabrication", "machine shop", "assembly", "industrial"}},
	{"Professional Services", []string{"professional services", "accounting", "legal", "consulting", "marketing agency", "staffing", "insurance agency"}},
	{"Transportation & Logistics", []string{"transportation & logistics", "transportation", "trucking", "logistics", "freight", "delivery", "moving"}},
	{"Beauty & Personal Care", []string{"beauty & personal care", "salon", "spa", "barber", "nail", "tanning"}},
	{"Fitness & Recreation", []string{"fitness & recreation", "gym", "fitness", "yoga", "martial arts", "golf"}},
	{"Cleaning & Maintenance", []string{"cleaning & maintenance", "cleaning", "janitorial", "laundry", "dry clean", "carpet"}},
	{"Education & Childcare", []string{"education & childcare", "education", "tutoring", "daycare", "childcare", "preschool", "school"}},
	{"Hospitality & Lodging", []string{"hospitality & lodging", "hotel", "motel", "bed and breakfast", "resort", "hospitality"}},
	{"Real Estate", []string{"real estate", "property management", "brokerage"}},
	{"Financial Services", []string{"financial services", "finance", "lending", "tax preparation", "bookkeeping"}},
	{"Entertainment & Events", []string{"entertainment & events", "entertainment", "event", "wedding", "photography", "amusement"}},
	{"Agriculture", []string{"agriculture", "farm", "nursery", "ranch", "greenhouse"}},
}

// tagKeywords is the fixed description scan that seeds listing tags.
var tagKeywords = []string{
	"profitable",
	"established",
	"turnkey",
	"franchise",
	"absentee",
	"relocatable",
	"home-based",
	"seller financing",
	"sba",
	"recurring revenue",
	"growth",
	"loyal customers",
}

// MapIndustry resolves a free-text industry to a canonical category:
// exact keyword match first, then substring, then a capitalized
// passthrough of the original token. When the industry field is empty,
// the description is scanned as a fallback.
func MapIndustry(raw, description string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))

	if lowered != "" {
		for _, entry := range industryTaxonomy {
			for _, kw := range entry.Keywords {
				if lowered == kw {
					return entry.Category
				}
			}
		}
		for _, entry := range industryTaxonomy {
			for _, kw := range entry.Keywords {
				if strings.Contains(lowered, kw) {
					return entry.Category
				}
			}
		}
		return capitalizeWords(lowered)
	}

	if desc := strings.ToLower(description); desc != "" {
		for _, entry := range industryTaxonomy {
			for _, kw := range entry.Keywords {
				if strings.Contains(desc, kw) {
					return entry.Category
				}
			}
		}
	}
	return ""
}

func capitalizeWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// stateNames backs the location parser's state-code resolution.
var stateNames = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas",
	"CA": "California", "CO": "Colorado", "CT": "Connecticut", "DE": "Delaware",
	"FL": "Florida", "GA": "Georgia", "HI": "Hawaii", "ID": "Idaho",
	"IL": "Illinois", "IN": "Indiana", "IA": "Iowa", "KS": "Kansas",
	"KY": "Kentucky", "LA": "Louisiana", "ME": "Maine", "MD": "Maryland",
	"MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota", "MS": "Mississippi",
	"MO": "Missouri", "MT": "Montana", "NE": "Nebraska", "NV": "Nevada",
	"NH": "New Hampshire", "NJ": "New Jersey", "NM": "New Mexico", "NY": "New York",
	"NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio", "OK": "Oklahoma",
	"OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina",
	"SD": "South Dakota", "TN": "Tennessee", "TX": "Texas", "UT": "Utah",
	"VT": "Vermont", "VA": "Virginia", "WA": "Washington", "WV": "West Virginia",
	"WI": "Wisconsin", "WY": "Wyoming", "DC": "District of Columbia",
}
