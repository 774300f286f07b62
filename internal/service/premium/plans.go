package premium

// StarsCurrency is the Telegram Stars currency code.
const StarsCurrency = "XTR"

// Plan is a purchasable premium period priced in Stars.
type Plan struct {
	Key         string
	Title       string
	Description string
	Days        int
	Stars       int
}

// Catalog is an ordered list of plans.
type Catalog []Plan

// DefaultCatalog is the plan list offered by /premium.
var DefaultCatalog = Catalog{
	{Key: "3_days", Title: "Premium (3 Days)", Description: "3 days of unlimited downloads", Days: 3, Stars: 50},
	{Key: "30_days", Title: "Premium (30 Days)", Description: "30 days of unlimited downloads", Days: 30, Stars: 250},
	{Key: "365_days", Title: "Premium (1 Year)", Description: "1 year of unlimited downloads", Days: 365, Stars: 1500},
}

// Lookup finds a plan by key.
func (c Catalog) Lookup(key string) (Plan, bool) {
	for _, p := range c {
		if p.Key == key {
			return p, true
		}
	}
	return Plan{}, false
}
