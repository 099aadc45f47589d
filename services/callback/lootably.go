package callback

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"offerwall/pkg/errutil"
	"offerwall/services/attempt"

	"github.com/shopspring/decimal"
)

const ProviderLootably = "lootably"

var (
	ErrMissingParams = errors.New("missing required parameters")
	ErrInvalidHash   = errors.New("invalid postback hash")
	ErrInvalidAmount = errors.New("invalid amount")
)

// LootablyPostback is the query string Lootably sends. Field names vary
// between integrations, so each field accepts its known aliases.
type LootablyPostback struct {
	UserID         string
	OfferID        string
	Status         string
	CurrencyReward string
	Revenue        string
	IP             string
	TransactionID  string
	Hash           string
}

func first(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

func parseLootablyQuery(q url.Values) LootablyPostback {
	return LootablyPostback{
		UserID:         first(q, "user_id", "userID"),
		OfferID:        first(q, "offer_id", "offerID"),
		Status:         first(q, "status"),
		CurrencyReward: first(q, "amount", "currencyReward"),
		Revenue:        first(q, "revenue"),
		IP:             first(q, "ip"),
		TransactionID:  first(q, "transactionID", "transaction_id"),
		Hash:           first(q, "hash"),
	}
}

// ExpectedHash is sha256(userID + ip + revenue + currencyReward + secret) in
// lowercase hex, over the values with surrounding whitespace trimmed.
func (p LootablyPostback) ExpectedHash(secret string) string {
	sum := sha256.Sum256([]byte(p.UserID + p.IP + p.Revenue + p.CurrencyReward + secret))
	return hex.EncodeToString(sum[:])
}

func lootablyStatus(raw string) attempt.Status {
	switch strings.ToLower(raw) {
	case "1", "completed":
		return attempt.StatusCompleted
	case "-1", "failed", "rejected", "reversed", "chargeback":
		return attempt.StatusFailed
	default:
		return attempt.StatusInProgress
	}
}

type Lootably struct {
	secret string
}

// NewLootably builds the adapter. With an empty secret postbacks are
// accepted unsigned.
func NewLootably(secret string) *Lootably {
	return &Lootably{secret: secret}
}

func (l *Lootably) Name() string {
	return ProviderLootably
}

func (l *Lootably) Parse(q url.Values) (*Postback, error) {
	raw := parseLootablyQuery(q)
	pb := &Postback{
		ExternalUserID:  raw.UserID,
		ExternalOfferID: raw.OfferID,
		RawStatus:       raw.Status,
		Status:          lootablyStatus(raw.Status),
		Amount:          decimal.Zero,
		TransactionID:   raw.TransactionID,
	}

	if raw.UserID == "" || raw.OfferID == "" || raw.Status == "" {
		return pb, errutil.ValidationFailed("Missing required parameters", ErrMissingParams)
	}

	if raw.CurrencyReward != "" {
		amount, err := decimal.NewFromString(raw.CurrencyReward)
		if err != nil || amount.IsNegative() || amount.Round(2).GreaterThan(maxRewardAmount) {
			return pb, errutil.ValidationFailed("Invalid amount", fmt.Errorf("%w: %q", ErrInvalidAmount, raw.CurrencyReward))
		}
		pb.Amount = amount
	}

	if l.secret != "" {
		expected := raw.ExpectedHash(l.secret)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(raw.Hash))) != 1 {
			return pb, errutil.ValidationFailed("Invalid hash", ErrInvalidHash)
		}
	}

	return pb, nil
}

func (l *Lootably) Success() string {
	return "1"
}

func (l *Lootably) Failure(msg string) string {
	return "ERROR: " + msg
}
