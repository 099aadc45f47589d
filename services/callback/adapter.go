package callback

import (
	"net/url"

	"offerwall/services/attempt"

	"github.com/shopspring/decimal"
)

// Postback is a provider payload reduced to what settlement needs. Parse
// fills whatever fields are present even when it returns an error, so the
// audit record keeps them.
type Postback struct {
	ExternalUserID  string
	ExternalOfferID string
	RawStatus       string
	Status          attempt.Status
	Amount          decimal.Decimal
	TransactionID   string
}

// Adapter is one provider's postback dialect: how its parameters are named,
// how it signs them, and which literal strings it expects back.
type Adapter interface {
	Name() string
	Parse(q url.Values) (*Postback, error)
	Success() string
	Failure(msg string) string
}
