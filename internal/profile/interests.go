package profile

// InterestOption is one entry in the static interest catalog offered
// to clients when editing a profile.
type InterestOption struct {
	Category string `json:"category"`
	Interest string `json:"interest"`
	Active   bool   `json:"active"`
}

// InterestCatalog returns the selectable interests grouped by category.
// Static for now; inactive entries are kept so clients can render them
// greyed out.
func InterestCatalog() []InterestOption {
	return []InterestOption{
		{Category: "interests", Interest: "Music", Active: true},
		{Category: "interests", Interest: "Travel", Active: true},
		{Category: "interests", Interest: "Photography", Active: true},
		{Category: "interests", Interest: "Cooking", Active: true},
		{Category: "lifestyle", Interest: "Adventurous", Active: true},
		{Category: "lifestyle", Interest: "Open-minded", Active: true},
		{Category: "lifestyle", Interest: "Night owl", Active: false},
		{Category: "activities", Interest: "Hiking", Active: true},
		{Category: "activities", Interest: "Climbing", Active: false},
	}
}
