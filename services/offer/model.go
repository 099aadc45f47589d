package offer

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Offer is a catalog entry. RewardAmount is what the provider pays the
// platform, UserPayout is what a user earns and gets snapshotted onto the
// attempt at start.
type Offer struct {
	ID              snowflake.ID    `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Title           string          `gorm:"column:title;size:200;not null" json:"title"`
	Description     string          `gorm:"column:description;type:text" json:"description"`
	Provider        string          `gorm:"column:provider;size:50;not null;uniqueIndex:idx_offers_provider_external" json:"provider"`
	Category        string          `gorm:"column:category;size:50;index" json:"category"`
	RewardAmount    decimal.Decimal `gorm:"column:reward_amount;type:numeric(12,2);not null" json:"reward_amount"`
	UserPayout      decimal.Decimal `gorm:"column:user_payout;type:numeric(12,2);not null" json:"user_payout"`
	ExternalOfferID *string         `gorm:"column:external_offer_id;size:100;uniqueIndex:idx_offers_provider_external" json:"external_offer_id,omitempty"`
	TimeEstimate    string          `gorm:"column:time_estimate;size:50" json:"time_estimate,omitempty"`
	Requirements    datatypes.JSON  `gorm:"column:requirements" json:"requirements,omitempty"`
	CallbackURL     string          `gorm:"column:callback_url;size:500" json:"-"`
	IsActive        bool            `gorm:"column:is_active;not null;index" json:"is_active"`
	CreatedAt       time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Offer) TableName() string {
	return "offers"
}

type ListFilter struct {
	Provider string
	Category string
	Page     int
	Limit    int
}

// UpsertParams describes an offer as a provider feed or seed file knows it.
type UpsertParams struct {
	Provider        string
	ExternalOfferID string
	Title           string
	Description     string
	Category        string
	RewardAmount    decimal.Decimal
	UserPayout      decimal.Decimal
	TimeEstimate    string
	Requirements    datatypes.JSON
	CallbackURL     string
}
