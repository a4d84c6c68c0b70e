// Package pricing computes the group-buy checkout breakdown. It is pure: no I/O,
// no clock, and the same inputs always yield the same Quote.
package pricing

import (
	"strings"

	"optifish/apps/groupbuy/model"

	"github.com/shopspring/decimal"
)

var (
	hundred         = decimal.NewFromInt(100)
	platformTaxRate = decimal.RequireFromString("0.015")
	loyaltyStep     = decimal.NewFromInt(100000)
)

// LoyaltyPointsPerStep is awarded for every full Rp 100,000 of a total.
const LoyaltyPointsPerStep = 10

type Tier struct {
	Participants    int `json:"participants"`
	DiscountPercent int `json:"discountPercent"`
}

type PaymentMethod struct {
	Name    string `json:"name"`
	TaxRate int    `json:"taxRate"`
}

type Expedition struct {
	Name string          `json:"name"`
	Cost decimal.Decimal `json:"cost"`
}

var tiers = []Tier{
	{Participants: 2, DiscountPercent: 5},
	{Participants: 5, DiscountPercent: 7},
	{Participants: 10, DiscountPercent: 10},
}

var paymentMethods = []PaymentMethod{
	{"BCA", 2}, {"BNI", 2}, {"BRI", 2}, {"BSI", 2}, {"Mandiri", 2},
	{"Dana", 3}, {"GoPay", 3}, {"LinkAja", 3}, {"OVO", 3},
	{"QRIS", 4}, {"ShopeePay", 4},
}

var expeditions = []Expedition{
	{"Anter Aja", decimal.NewFromInt(15000)},
	{"GoSend", decimal.NewFromInt(20000)},
	{"Grab", decimal.NewFromInt(18000)},
	{"JNE", decimal.NewFromInt(25000)},
	{"JNT", decimal.NewFromInt(22000)},
	{"Lion Parcel", decimal.NewFromInt(17000)},
	{"PosInd", decimal.NewFromInt(20000)},
	{"SiCepat", decimal.NewFromInt(19000)},
	{"Tiki", decimal.NewFromInt(21000)},
}

// Quote is the full breakdown at full precision. Use Rounded for display.
type Quote struct {
	BasePrice       decimal.Decimal `json:"basePrice"`
	Tier            int             `json:"tier"`
	DiscountPercent int             `json:"discountPercent"`
	DiscountedPrice decimal.Decimal `json:"discountedPrice"`
	PlatformTax     decimal.Decimal `json:"platformTax"`
	PaymentMethod   string          `json:"paymentMethod"`
	PaymentTaxRate  int             `json:"paymentTaxRate"`
	PaymentTax      decimal.Decimal `json:"paymentTax"`
	Expedition      string          `json:"expedition"`
	ExpeditionCost  decimal.Decimal `json:"expeditionCost"`
	Total           decimal.Decimal `json:"total"`
	LoyaltyPoints   int64           `json:"loyaltyPoints"`
}

// Calculate prices a single unit bought at the given tier.
// An unknown payment method carries no payment tax; an unknown carrier is rejected.
func Calculate(basePrice decimal.Decimal, tier int, paymentMethod, expedition string) (*Quote, error) {
	if !basePrice.IsPositive() {
		return nil, model.ErrInvalidPrice
	}
	discountPercent, ok := DiscountFor(tier)
	if !ok {
		return nil, model.ErrInvalidTier
	}
	carrier, ok := lookupExpedition(expedition)
	if !ok {
		return nil, model.ErrUnknownExpedition
	}
	method, rate := lookupPaymentMethod(paymentMethod)

	factor := hundred.Sub(decimal.NewFromInt(int64(discountPercent))).Div(hundred)
	discounted := basePrice.Mul(factor)
	platformTax := discounted.Mul(platformTaxRate)
	paymentTax := discounted.Mul(decimal.NewFromInt(int64(rate))).Div(hundred)
	total := discounted.Add(platformTax).Add(paymentTax).Add(carrier.Cost)

	return &Quote{
		BasePrice:       basePrice,
		Tier:            tier,
		DiscountPercent: discountPercent,
		DiscountedPrice: discounted,
		PlatformTax:     platformTax,
		PaymentMethod:   method,
		PaymentTaxRate:  rate,
		PaymentTax:      paymentTax,
		Expedition:      carrier.Name,
		ExpeditionCost:  carrier.Cost,
		Total:           total,
		LoyaltyPoints:   LoyaltyPoints(total),
	}, nil
}

// Rounded returns a copy with every amount rounded to 2 decimal places.
func (q Quote) Rounded() Quote {
	q.BasePrice = q.BasePrice.Round(2)
	q.DiscountedPrice = q.DiscountedPrice.Round(2)
	q.PlatformTax = q.PlatformTax.Round(2)
	q.PaymentTax = q.PaymentTax.Round(2)
	q.ExpeditionCost = q.ExpeditionCost.Round(2)
	q.Total = q.Total.Round(2)
	return q
}

// DiscountFor maps a participant tier to its discount percent.
func DiscountFor(tier int) (int, bool) {
	for _, t := range tiers {
		if t.Participants == tier {
			return t.DiscountPercent, true
		}
	}
	return 0, false
}

// LoyaltyPoints awards LoyaltyPointsPerStep for every full Rp 100,000.
func LoyaltyPoints(total decimal.Decimal) int64 {
	if !total.IsPositive() {
		return 0
	}
	return total.Div(loyaltyStep).Floor().IntPart() * LoyaltyPointsPerStep
}

func Tiers() []Tier {
	return append([]Tier(nil), tiers...)
}

func PaymentMethods() []PaymentMethod {
	return append([]PaymentMethod(nil), paymentMethods...)
}

func Expeditions() []Expedition {
	return append([]Expedition(nil), expeditions...)
}

// IsExpedition reports whether name is a supported carrier.
func IsExpedition(name string) bool {
	_, ok := lookupExpedition(name)
	return ok
}

func lookupPaymentMethod(name string) (string, int) {
	name = strings.TrimSpace(name)
	for _, m := range paymentMethods {
		if strings.EqualFold(m.Name, name) {
			return m.Name, m.TaxRate
		}
	}
	return name, 0
}

func lookupExpedition(name string) (Expedition, bool) {
	name = strings.TrimSpace(name)
	for _, e := range expeditions {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return Expedition{}, false
}
