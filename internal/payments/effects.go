package payments

// Outcome is an order status seen through the settlement lens. Only
// delivered and returned carry money; every other status is None.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeDelivered Outcome = "delivered"
	OutcomeReturned  Outcome = "returned"
)

// Effect is one settlement mutation implied by a status transition.
type Effect string

const (
	EffectRemoveDelivery Effect = "remove_delivery"
	EffectAddDelivery    Effect = "add_delivery"
	EffectRemoveReturn   Effect = "remove_return"
	EffectAddReturn      Effect = "add_return"
)

// TransitionEffects maps an order status transition to the closed set
// of settlement effects it implies. Removals come before additions so
// a delivered-to-returned flip nets out correctly. A transition that
// touches no priced outcome yields nothing.
func TransitionEffects(old, new Outcome) []Effect {
	if old == new {
		return nil
	}
	var effects []Effect
	switch old {
	case OutcomeDelivered:
		effects = append(effects, EffectRemoveDelivery)
	case OutcomeReturned:
		effects = append(effects, EffectRemoveReturn)
	}
	switch new {
	case OutcomeDelivered:
		effects = append(effects, EffectAddDelivery)
	case OutcomeReturned:
		effects = append(effects, EffectAddReturn)
	}
	return effects
}
