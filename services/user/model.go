package user

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// User carries identity plus the ledger totals. Balance never exceeds
// TotalEarned: credits raise both, payouts only lower Balance.
type User struct {
	ID             snowflake.ID    `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Username       string          `gorm:"column:username;size:80;uniqueIndex;not null" json:"username"`
	Email          string          `gorm:"column:email;size:120;uniqueIndex;not null" json:"email"`
	PasswordHash   string          `gorm:"column:password_hash;size:255" json:"-"`
	PayoutAddress  string          `gorm:"column:payout_address;size:255" json:"payout_address,omitempty"`
	Balance        decimal.Decimal `gorm:"column:balance;type:numeric(12,2);not null" json:"balance"`
	TotalEarned    decimal.Decimal `gorm:"column:total_earned;type:numeric(12,2);not null" json:"total_earned"`
	TasksCompleted int64           `gorm:"column:tasks_completed;not null" json:"tasks_completed"`
	IsActive       bool            `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt      time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

type NewUser struct {
	Username      string
	Email         string
	PasswordHash  string
	PayoutAddress string
}
