package cache

import (
	"strconv"
	"strings"

	"github.com/noah-isme/bookstore-storefront/internal/common"
)

// KeyCart returns the session cart key for a customer.
func KeyCart(customerID string) string {
	return "cart:" + customerID
}

// KeyCartLock returns the mutation lock key for a customer's cart.
func KeyCartLock(customerID string) string {
	return "lock:cart:" + customerID
}

// KeyLoyalty returns the loyalty facts key for a customer.
func KeyLoyalty(customerID string) string {
	return "loyalty:" + customerID
}

// KeyBookList returns the key of a catalog listing page.
func KeyBookList(page, limit int, query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	return "books:list:" + strconv.Itoa(page) + ":" + strconv.Itoa(limit) + ":" + common.Sha256Hex(q)[:16]
}

// KeyBook returns the key of a single catalog entry.
func KeyBook(id string) string {
	return "books:item:" + id
}

// KeyPushDelivered returns the replay guard key for a delivered event.
func KeyPushDelivered(eventID string) string {
	return "push:delivered:" + eventID
}
