package cart

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/noah-isme/bookstore-storefront/internal/pricing"
	"github.com/noah-isme/bookstore-storefront/internal/upstream"
)

// LineItem is one entry of a customer's cart.
type LineItem struct {
	ID            string        `json:"id"`
	BookID        string        `json:"bookId"`
	Title         string        `json:"title"`
	CoverImageURL string        `json:"coverImageUrl,omitempty"`
	UnitPrice     pricing.Money `json:"unitPrice"`
	Quantity      int           `json:"quantity"`
}

// LineSubtotal returns UnitPrice * Quantity.
func (li LineItem) LineSubtotal() pricing.Money {
	return li.UnitPrice * pricing.Money(li.Quantity)
}

// MarshalJSON adds the derived line subtotal to the encoded item.
func (li LineItem) MarshalJSON() ([]byte, error) {
	type plain LineItem
	return json.Marshal(struct {
		plain
		LineSubtotal pricing.Money `json:"lineSubtotal"`
	}{plain: plain(li), LineSubtotal: li.LineSubtotal()})
}

// SetQuantity returns a copy of items with the quantity of the entry id set to
// n. A quantity below one or an unknown id leaves the items unchanged; removal
// is RemoveItem's job.
func SetQuantity(items []LineItem, id string, n int) []LineItem {
	out := clone(items)
	if n < 1 {
		return out
	}
	for i := range out {
		if out[i].ID == id {
			out[i].Quantity = n
			break
		}
	}
	return out
}

// RemoveItem returns a copy of items without the entry id.
func RemoveItem(items []LineItem, id string) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, it := range items {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}

// ClearCart returns an empty cart.
func ClearCart([]LineItem) []LineItem {
	return []LineItem{}
}

// AddItem returns a copy of items with item merged in. A line for the same
// book absorbs the quantity; otherwise the item is appended under a fresh id.
// Quantities below one count as one.
func AddItem(items []LineItem, item LineItem) []LineItem {
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	out := clone(items)
	for i := range out {
		if out[i].BookID == item.BookID {
			out[i].Quantity += item.Quantity
			out[i].UnitPrice = item.UnitPrice
			if item.Title != "" {
				out[i].Title = item.Title
			}
			return out
		}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	return append(out, item)
}

// PricingItems projects the cart onto the pricing engine's input.
func PricingItems(items []LineItem) []pricing.Item {
	out := make([]pricing.Item, 0, len(items))
	for _, it := range items {
		out = append(out, pricing.Item{Qty: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return out
}

// TotalQuantity returns the number of books in the cart.
func TotalQuantity(items []LineItem) int {
	total := 0
	for _, it := range items {
		total += it.Quantity
	}
	return total
}

// SubtractOrdered takes the ordered quantities off items, matched by line id.
// A line that grew after the order was taken keeps the difference; lines that
// were not ordered are untouched.
func SubtractOrdered(items, ordered []LineItem) []LineItem {
	placed := make(map[string]int, len(ordered))
	for _, it := range ordered {
		placed[it.ID] += it.Quantity
	}
	out := make([]LineItem, 0, len(items))
	for _, it := range items {
		left := it.Quantity - placed[it.ID]
		if left < 1 {
			continue
		}
		it.Quantity = left
		out = append(out, it)
	}
	return out
}

// FromUpstream converts the bookstore API's cart contents into line items.
// Entries without an id get a fresh one.
func FromUpstream(entries []upstream.CartEntry) []LineItem {
	out := make([]LineItem, 0, len(entries))
	for _, e := range entries {
		id := e.ItemID
		if id == "" {
			id = uuid.NewString()
		}
		qty := e.Quantity
		if qty < 1 {
			qty = 1
		}
		out = append(out, LineItem{
			ID:            id,
			BookID:        e.Book.ID,
			Title:         e.Book.Title,
			CoverImageURL: e.Book.CoverImageURL,
			UnitPrice:     e.Book.Price,
			Quantity:      qty,
		})
	}
	return out
}

func clone(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
