package migrate

import (
	"offerwall/pkg/config"
	"offerwall/services/attempt"
	"offerwall/services/callback"
	"offerwall/services/ledger"
	"offerwall/services/offer"
	"offerwall/services/payout"
	"offerwall/services/user"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrate", fx.Invoke(Run))

// Models lists every table the service owns, parents first.
func Models() []any {
	return []any{
		&user.User{},
		&offer.Offer{},
		&attempt.Attempt{},
		&ledger.Earning{},
		&payout.Payout{},
		&callback.Record{},
	}
}

// Run brings the schema up to date when DATABASE.AUTO_MIGRATE is set.
func Run(cfg *config.Config, db *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}

	zap.L().Info("database schema migrated")
	return nil
}
