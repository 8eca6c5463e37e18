package common

import "context"

type ctxKey string

const (
	customerIDKey  ctxKey = "auth/customer-id"
	accessTokenKey ctxKey = "auth/access-token"
)

// WithCustomer stores the authenticated customer identifier and the bearer token
// it was authenticated with. The token is forwarded to the bookstore API.
func WithCustomer(ctx context.Context, id, token string) context.Context {
	ctx = context.WithValue(ctx, customerIDKey, id)
	return context.WithValue(ctx, accessTokenKey, token)
}

// CustomerID extracts the authenticated customer identifier from the context if present.
func CustomerID(ctx context.Context) (string, bool) {
	v := ctx.Value(customerIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// AccessToken returns the bearer token of the authenticated request.
func AccessToken(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey).(string)
	return token
}
