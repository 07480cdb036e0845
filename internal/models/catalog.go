package models

// Attraction is an add-on ticket that can be bought with a day pass (price in cents)
type Attraction struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
}

// DefaultAttractions is the add-on catalog offered in the booking funnel
var DefaultAttractions = []Attraction{
	{ID: "pena-palace", Name: "Pena Palace", UnitPrice: 2000},
	{ID: "moorish-castle", Name: "Moorish Castle", UnitPrice: 1200},
	{ID: "quinta-regaleira", Name: "Quinta da Regaleira", UnitPrice: 1500},
	{ID: "monserrate", Name: "Monserrate Palace", UnitPrice: 1000},
}

// FindAttraction looks up an attraction by ID
func FindAttraction(catalog []Attraction, id string) (Attraction, bool) {
	for _, a := range catalog {
		if a.ID == id {
			return a, true
		}
	}
	return Attraction{}, false
}
