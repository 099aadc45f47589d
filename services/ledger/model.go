package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type EarningType string

const (
	EarningTaskCompletion EarningType = "task_completion"
	EarningBonus          EarningType = "bonus"
	EarningReferral       EarningType = "referral"
)

func (t EarningType) Valid() bool {
	switch t {
	case EarningTaskCompletion, EarningBonus, EarningReferral:
		return true
	}
	return false
}

// Earning is an append-only credit. Sequence numbers a user's earnings from 1
// and each row's Hash covers the previous row's hash, so rewriting history
// breaks the chain from that point on. An attempt is credited at most once.
type Earning struct {
	ID           snowflake.ID    `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	UserID       snowflake.ID    `gorm:"column:user_id;not null;uniqueIndex:idx_earnings_user_sequence" json:"user_id"`
	Sequence     int64           `gorm:"column:sequence;not null;uniqueIndex:idx_earnings_user_sequence" json:"sequence"`
	AttemptID    *snowflake.ID   `gorm:"column:attempt_id;uniqueIndex" json:"attempt_id,omitempty"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Type         EarningType     `gorm:"column:type;size:30;not null" json:"type"`
	Description  string          `gorm:"column:description;size:255" json:"description"`
	PreviousHash string          `gorm:"column:previous_hash;size:64" json:"-"`
	Hash         string          `gorm:"column:hash;size:64;not null" json:"-"`
	CreatedAt    time.Time       `gorm:"column:created_at;not null" json:"created_at"`
}

func (Earning) TableName() string {
	return "earnings"
}

type CreditParams struct {
	UserID      snowflake.ID
	AttemptID   *snowflake.ID
	Amount      decimal.Decimal
	Type        EarningType
	Description string
	// CountTask bumps tasks_completed along with the balance.
	CountTask bool
}

func (e *Earning) HashFields() map[string]string {
	attemptID := ""
	if e.AttemptID != nil {
		attemptID = e.AttemptID.String()
	}

	return map[string]string{
		"id":            e.ID.String(),
		"user_id":       e.UserID.String(),
		"sequence":      fmt.Sprintf("%d", e.Sequence),
		"attempt_id":    attemptID,
		"type":          string(e.Type),
		"amount":        e.Amount.StringFixed(2),
		"description":   e.Description,
		"created_at":    e.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash": e.PreviousHash,
	}
}

func (e *Earning) GenerateHash() string {
	fields := e.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// ChainReport is the result of reconciling a user's earnings against the
// totals on the user row.
type ChainReport struct {
	UserID      snowflake.ID    `json:"user_id"`
	Entries     int             `json:"entries"`
	ChainValid  bool            `json:"chain_valid"`
	BrokenAt    *snowflake.ID   `json:"broken_at,omitempty"`
	Sum         decimal.Decimal `json:"sum"`
	TotalEarned decimal.Decimal `json:"total_earned"`
	Balance     decimal.Decimal `json:"balance"`
	Balanced    bool            `json:"balanced"`
}
