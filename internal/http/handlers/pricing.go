package handlers

import (
	"net/http"

	"pixvid/internal/domain"
	"pixvid/internal/middleware"
)

type planPrice struct {
	AmountINR int `json:"amount_inr"`
	AmountUSD int `json:"amount_usd"`
}

// Amounts are in the smallest currency unit (paise, cents).
var planPrices = map[domain.Plan]planPrice{
	domain.PlanProMonthly:     {AmountINR: 47900, AmountUSD: 600},
	domain.PlanProAnnual:      {AmountINR: 312900, AmountUSD: 3800},
	domain.PlanProPlusMonthly: {AmountINR: 82900, AmountUSD: 1000},
	domain.PlanProPlusAnnual:  {AmountINR: 597900, AmountUSD: 7200},
}

type pricingItem struct {
	Plan     string `json:"plan"`
	Currency string `json:"currency"`
	Amount   int    `json:"amount"`
}

type pricingResponse struct {
	Country  string        `json:"country,omitempty"`
	Currency string        `json:"currency"`
	Plans    []pricingItem `json:"plans"`
}

// Pricing returns region-aware plan pricing. Indian visitors and anyone whose
// country could not be resolved get INR, everyone else USD.
func (a *App) Pricing(w http.ResponseWriter, r *http.Request) {
	country := middleware.CountryFromContext(r.Context())
	currency := "INR"
	if country != "" && country != "IN" {
		currency = "USD"
	}
	plans := make([]pricingItem, 0, len(planPrices))
	for _, plan := range []domain.Plan{
		domain.PlanProMonthly,
		domain.PlanProAnnual,
		domain.PlanProPlusMonthly,
		domain.PlanProPlusAnnual,
	} {
		price := planPrices[plan]
		amount := price.AmountINR
		if currency == "USD" {
			amount = price.AmountUSD
		}
		plans = append(plans, pricingItem{Plan: string(plan), Currency: currency, Amount: amount})
	}
	a.json(w, http.StatusOK, pricingResponse{Country: country, Currency: currency, Plans: plans})
}
