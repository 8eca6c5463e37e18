package upstream

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bookstore-storefront/internal/pricing"
)

// Book is a catalog entry with its price converted to minor units.
type Book struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Author        string        `json:"author,omitempty"`
	Description   string        `json:"description,omitempty"`
	CoverImageURL string        `json:"coverImageUrl,omitempty"`
	Price         pricing.Money `json:"price"`
}

// BookQuery filters a catalog listing.
type BookQuery struct {
	Page  int
	Limit int
	Query string
}

// BookPage is one page of catalog results.
type BookPage struct {
	Items []Book `json:"items"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Total int    `json:"total"`
}

// CartEntry is one line of the customer's cart as recorded by the bookstore API.
type CartEntry struct {
	ItemID   string
	Book     Book
	Quantity int
}

// OrderHistory summarises the customer's past orders.
type OrderHistory struct {
	CompletedOrderCount int
	IsMember            bool
}

// Address is the shipping destination of an order.
type Address struct {
	Name       string `json:"name" validate:"required,max=120"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2,omitempty" validate:"max=200"`
	City       string `json:"city" validate:"required,max=80"`
	PostalCode string `json:"postalCode" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,len=2"`
}

// OrderLine is a line of an order submission.
type OrderLine struct {
	BookID    string
	Quantity  int
	UnitPrice pricing.Money
}

// OrderRequest is the order submitted at checkout with the computed amounts.
type OrderRequest struct {
	Items           []OrderLine
	Subtotal        pricing.Money
	Discount        pricing.Money
	Shipping        pricing.Money
	Tax             pricing.Money
	Total           pricing.Money
	ShippingAddress Address
}

// OrderConfirmation is the bookstore API's answer to an order submission.
type OrderConfirmation struct {
	OrderID string        `json:"orderId"`
	Status  string        `json:"status"`
	Total   pricing.Money `json:"total"`
}

// Wire shapes. Prices travel as decimal amounts in major units.

type wireBook struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Author        string          `json:"author"`
	Description   string          `json:"description"`
	CoverImageURL string          `json:"coverImageUrl"`
	BasePrice     decimal.Decimal `json:"basePrice"`
}

type wireBookPage struct {
	Data []wireBook `json:"data"`
	Meta struct {
		Page  int `json:"page"`
		Limit int `json:"limit"`
		Total int `json:"total"`
	} `json:"meta"`
}

type wireCart struct {
	Items []struct {
		ItemID   string   `json:"itemId"`
		Book     wireBook `json:"book"`
		Quantity *int     `json:"quantity"`
	} `json:"items"`
}

type wireHistory struct {
	CompletedOrderCount *int  `json:"completedOrderCount"`
	IsMember            *bool `json:"isMember"`
}

type wireOrderLine struct {
	BookID    string          `json:"bookId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type wireOrder struct {
	Items           []wireOrderLine `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Discount        decimal.Decimal `json:"discount"`
	Shipping        decimal.Decimal `json:"shipping"`
	Tax             decimal.Decimal `json:"tax"`
	Total           decimal.Decimal `json:"total"`
	ShippingAddress Address         `json:"shippingAddress"`
}

type wireConfirmation struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Total  decimal.Decimal `json:"total"`
}

var hundred = decimal.NewFromInt(100)

// ToCents converts a major unit amount into minor units, rounding half away from zero.
func ToCents(amount decimal.Decimal) pricing.Money {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromCents converts minor units into a major unit amount.
func FromCents(cents pricing.Money) decimal.Decimal {
	return decimal.New(cents, -2)
}

func (b wireBook) toBook() Book {
	price := ToCents(b.BasePrice)
	if price < 0 {
		price = 0
	}
	return Book{
		ID:            b.ID,
		Title:         b.Title,
		Author:        b.Author,
		Description:   b.Description,
		CoverImageURL: b.CoverImageURL,
		Price:         price,
	}
}

func (o OrderRequest) toWire() wireOrder {
	lines := make([]wireOrderLine, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, wireOrderLine{BookID: it.BookID, Quantity: it.Quantity, UnitPrice: FromCents(it.UnitPrice)})
	}
	return wireOrder{
		Items:           lines,
		Subtotal:        FromCents(o.Subtotal),
		Discount:        FromCents(o.Discount),
		Shipping:        FromCents(o.Shipping),
		Tax:             FromCents(o.Tax),
		Total:           FromCents(o.Total),
		ShippingAddress: o.ShippingAddress,
	}
}
