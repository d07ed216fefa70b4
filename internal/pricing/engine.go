package pricing

// Money represents a monetary value stored in minor units.
type Money = int64

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty       int
	UnitPrice Money
}

// LineTotal returns unit price multiplied by quantity. Non-positive quantities price at zero.
func (it Item) LineTotal() Money {
	if it.Qty <= 0 || it.UnitPrice <= 0 {
		return 0
	}
	return Money(it.Qty) * it.UnitPrice
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal Money
	Discount Money
	Shipping Money
	Total    Money
}

// Subtotal sums the line totals of items.
func Subtotal(items []Item) Money {
	var subtotal Money
	for _, it := range items {
		subtotal += it.LineTotal()
	}
	return subtotal
}

// Compute calculates cart totals given the provided inputs.
// The discount is clamped to [0, subtotal] and the total never drops below zero.
func Compute(items []Item, discount Money, shipping Money) Summary {
	subtotal := Subtotal(items)
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	if shipping < 0 {
		shipping = 0
	}
	total := subtotal - discount + shipping
	if total < 0 {
		total = 0
	}
	return Summary{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
		Total:    total,
	}
}
