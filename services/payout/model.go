package payout

import (
	"time"

	"offerwall/services/user"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Method string

const (
	MethodPayPal   Method = "paypal"
	MethodGiftCard Method = "gift_card"
	MethodCrypto   Method = "crypto"
)

var Methods = []Method{MethodPayPal, MethodGiftCard, MethodCrypto}

func (m Method) Valid() bool {
	for _, v := range Methods {
		if v == m {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// allowedFrom lists, per target status, the statuses a payout may leave.
var allowedFrom = map[Status][]string{
	StatusProcessing: {string(StatusPending)},
	StatusCompleted:  {string(StatusProcessing)},
	StatusFailed:     {string(StatusPending), string(StatusProcessing)},
}

// Payout is a withdrawal request. Amount was debited from the balance when
// the row was created. Fee and NetAmount split it into what the platform
// keeps and what the payment rail sends.
type Payout struct {
	ID             snowflake.ID    `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Code           string          `gorm:"column:code;size:32;uniqueIndex;not null" json:"code"`
	UserID         snowflake.ID    `gorm:"column:user_id;not null;index" json:"user_id"`
	Amount         decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Fee            decimal.Decimal `gorm:"column:fee;type:numeric(12,2);not null" json:"fee"`
	NetAmount      decimal.Decimal `gorm:"column:net_amount;type:numeric(12,2);not null" json:"net_amount"`
	Method         Method          `gorm:"column:method;size:20;not null" json:"method"`
	Status         Status          `gorm:"column:status;size:20;not null;index" json:"status"`
	Destination    string          `gorm:"column:destination;size:255;not null" json:"destination"`
	PaymentDetails datatypes.JSON  `gorm:"column:payment_details" json:"payment_details,omitempty"`
	RequestedAt    time.Time       `gorm:"column:requested_at;not null" json:"requested_at"`
	ProcessedAt    *time.Time      `gorm:"column:processed_at" json:"processed_at,omitempty"`
	TransactionID  string          `gorm:"column:transaction_id;size:100" json:"transaction_id,omitempty"`
	Notes          string          `gorm:"column:notes;type:text" json:"notes,omitempty"`
	CreatedAt      time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at" json:"updated_at"`

	User *user.User `gorm:"foreignKey:UserID" json:"-"`
}

func (Payout) TableName() string {
	return "payouts"
}

type Request struct {
	Amount      decimal.Decimal
	Method      Method
	Destination string
}

type Info struct {
	Minimum       decimal.Decimal `json:"minimum"`
	Balance       decimal.Decimal `json:"balance"`
	CanRequest    bool            `json:"can_request"`
	FeePercentage decimal.Decimal `json:"fee_percentage"`
	Methods       []Method        `json:"methods"`
}

type StatusUpdate struct {
	Status        Status
	TransactionID string
	Notes         string
}

type requestedPayload struct {
	PayoutID snowflake.ID `json:"payout_id"`
}
