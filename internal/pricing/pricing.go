package pricing

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
)

var (
	// ErrInvalidPassCount indicates the pass count is below one
	ErrInvalidPassCount = errors.New("pass count must be at least 1")

	// ErrInvalidBasePrice indicates a non-positive base price
	ErrInvalidBasePrice = errors.New("base price must be greater than 0")

	// ErrInvalidSurcharge indicates a negative guided tour surcharge
	ErrInvalidSurcharge = errors.New("guided tour surcharge cannot be negative")
)

// AddOn is a selected attraction ticket line. Prices are in minor units (cents).
type AddOn struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// LineTotal returns unit price times quantity
func (a AddOn) LineTotal() int64 {
	return a.UnitPrice * int64(a.Quantity)
}

// Input holds everything the calculator needs
type Input struct {
	PassCount           int
	BasePrice           int64
	GuidedTour          bool
	GuidedTourSurcharge int64
	AddOns              []AddOn
}

// Quote is the computed price breakdown
type Quote struct {
	Subtotal        int64 `json:"subtotal"`          // passes only
	GuidedTourTotal int64 `json:"guided_tour_total"` // surcharge for every pass, 0 when not selected
	AddOnsTotal     int64 `json:"add_ons_total"`
	Total           int64 `json:"total"`
}

// ComputeTotal prices a day-pass order.
//
//	total = passCount*basePrice
//	      + (guided ? passCount*surcharge : 0)
//	      + sum(addOn.unitPrice * addOn.quantity)
func ComputeTotal(in Input) (Quote, error) {
	if in.PassCount < 1 {
		return Quote{}, ErrInvalidPassCount
	}
	if in.BasePrice <= 0 {
		return Quote{}, ErrInvalidBasePrice
	}
	if in.GuidedTourSurcharge < 0 {
		return Quote{}, ErrInvalidSurcharge
	}
	for _, a := range in.AddOns {
		if a.UnitPrice < 0 {
			return Quote{}, fmt.Errorf("add-on %q has a negative price", a.ID)
		}
		if a.Quantity < 0 {
			return Quote{}, fmt.Errorf("add-on %q has a negative quantity", a.ID)
		}
	}

	passes := int64(in.PassCount)
	q := Quote{
		Subtotal:    passes * in.BasePrice,
		AddOnsTotal: lo.SumBy(in.AddOns, AddOn.LineTotal),
	}
	if in.GuidedTour {
		q.GuidedTourTotal = passes * in.GuidedTourSurcharge
	}
	q.Total = q.Subtotal + q.GuidedTourTotal + q.AddOnsTotal

	return q, nil
}

// FormatAmount renders minor units as a decimal string, e.g. 6000 -> "60.00"
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
