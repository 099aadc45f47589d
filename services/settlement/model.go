package settlement

import (
	"offerwall/services/attempt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Source string

const (
	// SourceDirect is the authenticated user completing an offer in-app.
	SourceDirect Source = "direct"
	// SourceCallback is a provider postback.
	SourceCallback Source = "callback"
)

type Reason string

const (
	ReasonCredited       Reason = "credited"
	ReasonAlreadySettled Reason = "already_settled"
	ReasonPending        Reason = "pending"
	ReasonFailed         Reason = "failed"
	ReasonNoReward       Reason = "no_reward"
)

// Signal is a normalized completion report. Direct signals name the offer by
// OfferID, callback signals by Provider and ExternalOfferID. Amount is what
// the sender claims and is only compared against the snapshot.
type Signal struct {
	UserID          snowflake.ID
	OfferID         snowflake.ID
	Provider        string
	ExternalOfferID string
	Status          attempt.Status
	Amount          decimal.Decimal
	Source          Source
}

type Result struct {
	Credited  bool            `json:"credited"`
	Reason    Reason          `json:"reason"`
	AttemptID snowflake.ID    `json:"attempt_id"`
	OfferID   snowflake.ID    `json:"offer_id"`
	Status    attempt.Status  `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Balance   decimal.Decimal `json:"balance"`
	EarningID *snowflake.ID   `json:"earning_id,omitempty"`
}
