package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"offerwall/pkg/config"
	"offerwall/pkg/db"
	"offerwall/pkg/errutil"
	"offerwall/pkg/gen"
	"offerwall/pkg/logger"
	"offerwall/pkg/middleware"
	"offerwall/services/migrate"
	"offerwall/services/offer"
	"offerwall/services/user"
)

const (
	demoUsername = "demo"
	demoEmail    = "demo@offerwall.local"
	demoPassword = "demo1234"
)

var demoOffers = []offer.UpsertParams{
	{
		Provider:        "lootably",
		ExternalOfferID: "lootably_survey_001",
		Title:           "Complete Survey - Gaming",
		Description:     "Take a 5-minute survey about gaming preferences",
		Category:        "survey",
		RewardAmount:    decimal.RequireFromString("2.00"),
		UserPayout:      decimal.RequireFromString("1.00"),
		TimeEstimate:    "5 mins",
	},
	{
		Provider:        "lootably",
		ExternalOfferID: "lootably_app_001",
		Title:           "Download Mobile App",
		Description:     "Download and try our mobile app for 30 seconds",
		Category:        "app",
		RewardAmount:    decimal.RequireFromString("1.50"),
		UserPayout:      decimal.RequireFromString("0.75"),
		TimeEstimate:    "2 mins",
	},
	{
		Provider:        "lootably",
		ExternalOfferID: "lootably_signup_001",
		Title:           "Sign Up for Newsletter",
		Description:     "Subscribe to our newsletter for exclusive offers",
		Category:        "signup",
		RewardAmount:    decimal.RequireFromString("1.00"),
		UserPayout:      decimal.RequireFromString("0.50"),
		TimeEstimate:    "1 min",
	},
}

// seed loads the demo catalog and a demo account, then prints a bearer token
// for that account. It is safe to run repeatedly.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		migrate.Module,
		gen.Module,
		fx.Provide(
			user.NewDirectory,
			offer.NewCatalog,
		),
		fx.Invoke(run),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run(cfg *config.Config, conn *gorm.DB, catalog *offer.Catalog, users *user.Directory) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created := 0
	for _, p := range demoOffers {
		o, isNew, err := catalog.Upsert(ctx, p)
		if err != nil {
			return fmt.Errorf("upsert offer %s: %w", p.ExternalOfferID, err)
		}
		if isNew {
			created++
		}
		zap.L().Info("offer seeded", zap.String("external_offer_id", p.ExternalOfferID), zap.Int64("offer_id", o.ID.Int64()))
	}

	u, err := demoUser(ctx, conn, users)
	if err != nil {
		return err
	}

	token, err := middleware.SignToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer, u.ID, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("sign demo token: %w", err)
	}

	fmt.Printf("seeded %d new offers (%d total)\n", created, len(demoOffers))
	fmt.Printf("demo user %s (id %s)\n", u.Username, u.ID)
	fmt.Printf("Authorization: Bearer %s\n", token)
	return nil
}

func demoUser(ctx context.Context, conn *gorm.DB, users *user.Directory) (*user.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u, err := users.Create(ctx, user.NewUser{
		Username:      demoUsername,
		Email:         demoEmail,
		PasswordHash:  string(hash),
		PayoutAddress: demoEmail,
	})
	if err == nil {
		return u, nil
	}
	if !errutil.Is(err, errutil.StatusConflict) {
		return nil, fmt.Errorf("create demo user: %w", err)
	}

	var existing user.User
	if err := conn.WithContext(ctx).Where("username = ?", demoUsername).First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("demo email taken by another account")
		}
		return nil, err
	}
	return &existing, nil
}
