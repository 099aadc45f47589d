package offer

import (
	"context"
	"errors"
	"strings"
	"time"

	"offerwall/pkg/db/option"
	"offerwall/pkg/errutil"
	"offerwall/pkg/logger"
	"offerwall/pkg/rediskey"
	"offerwall/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrOfferNotFound = errors.New("offer not found")

const (
	// Writes only invalidate this process's cache, so other instances see
	// offer changes within defaultCacheTTL.
	defaultCacheTTL  = 10 * time.Second
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Catalog is the read-mostly view of offers. Lookups by provider id go
// through an in-process cache since every postback resolves one.
type Catalog struct {
	db     *gorm.DB
	node   *snowflake.Node
	offers repository.Repository[Offer]
	cache  *externalCache
}

type CatalogParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewCatalog(p CatalogParams) *Catalog {
	return &Catalog{
		db:     p.DB,
		node:   p.Node,
		offers: repository.ProvideStore[Offer](p.DB),
		cache:  newExternalCache(defaultCacheTTL),
	}
}

func notFound() error {
	return errutil.NotFound("Offer not found", ErrOfferNotFound)
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// Get returns the active offer with the given id.
func (c *Catalog) Get(ctx context.Context, id snowflake.ID) (*Offer, error) {
	if id <= 0 {
		return nil, notFound()
	}

	o, err := c.offers.FindOne(ctx, &Offer{ID: id})
	if err != nil {
		logger.Ctx(ctx).Error("failed to load offer", zap.Int64("offer_id", id.Int64()), zap.Error(err))
		return nil, errutil.Internal("failed to load offer", err)
	}
	if o == nil || !o.IsActive {
		return nil, notFound()
	}
	return o, nil
}

// GetByExternal resolves the offer a provider refers to by its own id.
func (c *Catalog) GetByExternal(ctx context.Context, provider, externalOfferID string) (*Offer, error) {
	provider = normalizeProvider(provider)
	externalOfferID = strings.TrimSpace(externalOfferID)
	if provider == "" || externalOfferID == "" {
		return nil, notFound()
	}

	key := rediskey.BuildOfferExternalKey(provider, externalOfferID)
	o, err := c.cache.load(key, func() (*Offer, error) {
		return c.offers.FindOne(ctx, &Offer{Provider: provider, ExternalOfferID: &externalOfferID, IsActive: true})
	})
	if err != nil {
		logger.Ctx(ctx).Error("failed to load offer by external id",
			zap.String("provider", provider),
			zap.String("external_offer_id", externalOfferID),
			zap.Error(err),
		)
		return nil, errutil.Internal("failed to load offer", err)
	}
	if o == nil {
		return nil, notFound()
	}

	cp := *o
	return &cp, nil
}

// List returns active offers, best paying first.
func (c *Catalog) List(ctx context.Context, f ListFilter) ([]*Offer, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	f.Limit = pageLimit(f.Limit)

	query := &Offer{
		Provider: normalizeProvider(f.Provider),
		Category: strings.TrimSpace(f.Category),
		IsActive: true,
	}

	total, err := c.offers.Count(ctx, query)
	if err != nil {
		return nil, 0, errutil.Internal("failed to count offers", err)
	}

	offers, err := c.offers.Find(ctx, query,
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "user_payout",
			OrderBy: "desc",
			Allow:   map[string]bool{"user_payout": true},
		}),
		option.WithLimit(f.Limit),
		option.WithOffset((f.Page-1)*f.Limit),
	)
	if err != nil {
		return nil, 0, errutil.Internal("failed to list offers", err)
	}

	return offers, total, nil
}

func pageLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	return min(limit, maxPageLimit)
}

// Categories lists the distinct categories of active offers.
func (c *Catalog) Categories(ctx context.Context) ([]string, error) {
	return c.distinct(ctx, "category")
}

// Providers lists the distinct providers of active offers.
func (c *Catalog) Providers(ctx context.Context) ([]string, error) {
	return c.distinct(ctx, "provider")
}

func (c *Catalog) distinct(ctx context.Context, column string) ([]string, error) {
	out := []string{}
	err := c.db.WithContext(ctx).
		Model(&Offer{}).
		Where("is_active = ?", true).
		Where(column+" <> ?", "").
		Distinct().
		Order(column).
		Pluck(column, &out).Error
	if err != nil {
		return nil, errutil.Internal("failed to list "+column, err)
	}
	return out, nil
}

// Upsert creates the offer or refreshes the catalog fields of the existing
// row for (provider, external id), reactivating it. Attempts keep the payout
// they snapshotted at start.
func (c *Catalog) Upsert(ctx context.Context, p UpsertParams) (*Offer, bool, error) {
	p.Provider = normalizeProvider(p.Provider)
	p.ExternalOfferID = strings.TrimSpace(p.ExternalOfferID)
	p.Title = strings.TrimSpace(p.Title)

	if p.Provider == "" || p.ExternalOfferID == "" || p.Title == "" {
		return nil, false, errutil.BadRequest("provider, external offer id and title are required", nil)
	}
	if p.RewardAmount.IsNegative() || p.UserPayout.IsNegative() {
		return nil, false, errutil.ValidationFailed("offer amounts must not be negative", nil)
	}

	var (
		out     *Offer
		created bool
	)
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := c.offers.WithTrx(tx)

		existing, err := store.FindOne(ctx, &Offer{Provider: p.Provider, ExternalOfferID: &p.ExternalOfferID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}

		if existing == nil {
			ext := p.ExternalOfferID
			out = &Offer{
				ID:              c.node.Generate(),
				Title:           p.Title,
				Description:     p.Description,
				Provider:        p.Provider,
				Category:        p.Category,
				RewardAmount:    p.RewardAmount.Round(2),
				UserPayout:      p.UserPayout.Round(2),
				ExternalOfferID: &ext,
				TimeEstimate:    p.TimeEstimate,
				Requirements:    p.Requirements,
				CallbackURL:     p.CallbackURL,
				IsActive:        true,
			}
			created = true
			return store.Create(ctx, out)
		}

		fields := map[string]any{
			"title":         p.Title,
			"description":   p.Description,
			"category":      p.Category,
			"reward_amount": p.RewardAmount.Round(2),
			"user_payout":   p.UserPayout.Round(2),
			"time_estimate": p.TimeEstimate,
			"callback_url":  p.CallbackURL,
			"is_active":     true,
		}
		if p.Requirements != nil {
			fields["requirements"] = p.Requirements
		}
		if err := store.Update(ctx, existing.ID, fields); err != nil {
			return err
		}

		out, err = store.FindOne(ctx, &Offer{ID: existing.ID})
		return err
	})
	if err != nil {
		logger.Ctx(ctx).Error("failed to upsert offer",
			zap.String("provider", p.Provider),
			zap.String("external_offer_id", p.ExternalOfferID),
			zap.Error(err),
		)
		return nil, false, errutil.Internal("failed to upsert offer", err)
	}

	c.cache.invalidate(rediskey.BuildOfferExternalKey(p.Provider, p.ExternalOfferID))
	return out, created, nil
}

// SetActive toggles catalog visibility. Inactive offers cannot be started or
// settled.
func (c *Catalog) SetActive(ctx context.Context, id snowflake.ID, active bool) error {
	if id <= 0 {
		return notFound()
	}

	o, err := c.offers.FindOne(ctx, &Offer{ID: id})
	if err != nil {
		return errutil.Internal("failed to load offer", err)
	}
	if o == nil {
		return notFound()
	}

	if err := c.offers.Update(ctx, id, map[string]any{"is_active": active}); err != nil {
		return errutil.Internal("failed to update offer", err)
	}

	if o.ExternalOfferID != nil {
		c.cache.invalidate(rediskey.BuildOfferExternalKey(o.Provider, *o.ExternalOfferID))
	}
	return nil
}
