package attempt

import (
	"time"

	"offerwall/services/offer"
	"offerwall/services/user"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusStarted    Status = "started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// allowedFrom lists, per target status, the statuses a row may move out of.
// completed and failed are terminal.
var allowedFrom = map[Status][]string{
	StatusInProgress: {string(StatusStarted), string(StatusInProgress)},
	StatusCompleted:  {string(StatusStarted), string(StatusInProgress)},
	StatusFailed:     {string(StatusStarted), string(StatusInProgress)},
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Attempt is a user's engagement with one offer. RewardAmount is the offer's
// user payout at the time the attempt was created and is what gets credited.
type Attempt struct {
	ID           snowflake.ID    `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	UserID       snowflake.ID    `gorm:"column:user_id;not null;uniqueIndex:idx_user_offers_user_offer" json:"user_id"`
	OfferID      snowflake.ID    `gorm:"column:offer_id;not null;uniqueIndex:idx_user_offers_user_offer" json:"offer_id"`
	Status       Status          `gorm:"column:status;size:20;not null;index" json:"status"`
	RewardAmount decimal.Decimal `gorm:"column:reward_amount;type:numeric(12,2);not null" json:"reward_amount"`
	ProgressData datatypes.JSON  `gorm:"column:progress_data" json:"progress_data,omitempty"`
	StartedAt    time.Time       `gorm:"column:started_at;not null" json:"started_at"`
	CompletedAt  *time.Time      `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at" json:"updated_at"`

	User  *user.User   `gorm:"foreignKey:UserID" json:"-"`
	Offer *offer.Offer `gorm:"foreignKey:OfferID" json:"offer,omitempty"`
}

func (Attempt) TableName() string {
	return "user_offers"
}

type ListFilter struct {
	Status Status
}
