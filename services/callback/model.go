package callback

import (
	"time"

	"offerwall/services/user"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Outcome string

const (
	OutcomeCredited       Outcome = "credited"
	OutcomeAlreadySettled Outcome = "already_settled"
	OutcomePending        Outcome = "pending"
	OutcomeFailed         Outcome = "failed"
	OutcomeNoReward       Outcome = "no_reward"
	// OutcomeRejected covers postbacks answered with an error token.
	OutcomeRejected Outcome = "rejected"
)

// Record is the audit row written for every postback before anything else
// happens. Processed means the postback was handled to a final answer, not
// that it changed the ledger. Rows left unprocessed hit an internal error
// and are picked up by the replay sweep.
type Record struct {
	ID              snowflake.ID    `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Provider        string          `gorm:"column:provider;size:50;not null;index" json:"provider"`
	UserID          *snowflake.ID   `gorm:"column:user_id;index" json:"user_id,omitempty"`
	ExternalOfferID string          `gorm:"column:external_offer_id;size:100" json:"external_offer_id"`
	ExternalUserID  string          `gorm:"column:external_user_id;size:100" json:"external_user_id"`
	TransactionID   string          `gorm:"column:transaction_id;size:100;index" json:"transaction_id,omitempty"`
	Status          string          `gorm:"column:status;size:30" json:"status"`
	RewardAmount    decimal.Decimal `gorm:"column:reward_amount;type:numeric(12,2);not null" json:"reward_amount"`
	Payload         datatypes.JSON  `gorm:"column:payload" json:"payload"`
	Processed       bool            `gorm:"column:processed;not null;index:idx_offer_callbacks_pending" json:"processed"`
	ProcessedAt     *time.Time      `gorm:"column:processed_at" json:"processed_at,omitempty"`
	Outcome         Outcome         `gorm:"column:outcome;size:30" json:"outcome,omitempty"`
	Error           string          `gorm:"column:error;size:255" json:"error,omitempty"`
	Attempts        int             `gorm:"column:attempts;not null" json:"attempts"`
	CreatedAt       time.Time       `gorm:"column:created_at;index:idx_offer_callbacks_pending" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at" json:"updated_at"`

	User *user.User `gorm:"foreignKey:UserID" json:"-"`
}

func (Record) TableName() string {
	return "offer_callbacks"
}

// maxRewardAmount is the largest value numeric(12,2) holds.
var maxRewardAmount = decimal.RequireFromString("9999999999.99")

// clamp fits provider supplied strings into their columns so the audit row is
// always insertable. The untouched query stays in Payload.
func (r *Record) clamp() {
	r.Provider = truncate(r.Provider, 50)
	r.ExternalOfferID = truncate(r.ExternalOfferID, 100)
	r.ExternalUserID = truncate(r.ExternalUserID, 100)
	r.TransactionID = truncate(r.TransactionID, 100)
	r.Status = truncate(r.Status, 30)
}

type replayPayload struct {
	RecordID snowflake.ID `json:"record_id"`
}
