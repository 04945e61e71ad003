package carriers

import "github.com/shopspring/decimal"

// Quote prices a shipment outcome against a rate card. A nil rate
// means the carrier has no card for the department; the quote is zero
// rather than an error, because orders may ship to departments before
// their rates are configured. Only delivered and returned carry cost.
func Quote(rate *Rate, event Event, priority bool) Cost {
	zero := Cost{
		DeliveryCost: decimal.Zero,
		ReturnCost:   decimal.Zero,
		PriorityCost: decimal.Zero,
	}
	if rate == nil {
		return zero
	}
	switch event {
	case EventDelivered:
		cost := zero
		if priority {
			cost.DeliveryCost = rate.Express
			cost.PriorityCost = rate.Express
		} else {
			cost.DeliveryCost = rate.Delivery
		}
		return cost
	case EventReturned:
		cost := zero
		cost.ReturnCost = rate.Return
		return cost
	}
	return zero
}
