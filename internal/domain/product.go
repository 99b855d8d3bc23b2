package domain

// Product is a catalogue entry. Points is the per-unit value: the amount
// awarded when it appears on a receipt and the price when it is ordered.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Points   int    `json:"points"`
	ImageURL string `json:"image_url,omitempty"`
}

// LineItem is a product with a quantity on a receipt or an order.
type LineItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Points returns the line value.
func (li LineItem) Points() int {
	return li.Product.Points * li.Quantity
}

// TotalPoints sums the value of all line items.
func TotalPoints(items []LineItem) int {
	total := 0
	for _, item := range items {
		total += item.Points()
	}
	return total
}
