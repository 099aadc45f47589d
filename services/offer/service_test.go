package offer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"offerwall/pkg/errutil"
	"offerwall/services/testutil"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	db := testutil.NewTestDB(t, &Offer{})
	return NewCatalog(CatalogParams{DB: db, Node: testutil.NewNode(t)})
}

func seed(t *testing.T, c *Catalog) {
	t.Helper()
	ctx := context.Background()
	for _, p := range []UpsertParams{
		{Provider: "lootably", ExternalOfferID: "LOOT_SURVEY_001", Title: "Complete Survey", Category: "survey",
			RewardAmount: decimal.RequireFromString("2.00"), UserPayout: decimal.RequireFromString("1.00")},
		{Provider: "lootably", ExternalOfferID: "LOOT_APP_001", Title: "Install App", Category: "app",
			RewardAmount: decimal.RequireFromString("1.50"), UserPayout: decimal.RequireFromString("0.75")},
		{Provider: "Lootably", ExternalOfferID: "LOOT_SIGNUP_001", Title: "Sign Up", Category: "signup",
			RewardAmount: decimal.RequireFromString("1.00"), UserPayout: decimal.RequireFromString("0.50")},
		{Provider: "adgate", ExternalOfferID: "AG_1", Title: "Play Game", Category: "app",
			RewardAmount: decimal.RequireFromString("4.00"), UserPayout: decimal.RequireFromString("2.00")},
	} {
		_, created, err := c.Upsert(ctx, p)
		require.NoError(t, err)
		require.True(t, created)
	}
}

func TestGetByExternal(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)
	seed(t, c)

	o, err := c.GetByExternal(ctx, "LOOTABLY", "LOOT_APP_001")
	require.NoError(t, err)
	require.Equal(t, "Install App", o.Title)
	require.Equal(t, "0.75", o.UserPayout.StringFixed(2))

	_, err = c.GetByExternal(ctx, "lootably", "UNKNOWN")
	require.True(t, errors.Is(err, ErrOfferNotFound))
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	_, err = c.GetByExternal(ctx, "adgate", "LOOT_APP_001")
	require.ErrorIs(t, err, ErrOfferNotFound)
}

func TestGetByExternalConcurrent(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)
	seed(t, c)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := c.GetByExternal(ctx, "lootably", "LOOT_SURVEY_001")
			if assert.NoError(t, err) {
				assert.Equal(t, "1.00", o.UserPayout.StringFixed(2))
			}
		}()
	}
	wg.Wait()
}

func TestSetActiveInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)
	seed(t, c)

	o, err := c.GetByExternal(ctx, "lootably", "LOOT_SIGNUP_001")
	require.NoError(t, err)

	require.NoError(t, c.SetActive(ctx, o.ID, false))

	_, err = c.GetByExternal(ctx, "lootably", "LOOT_SIGNUP_001")
	require.ErrorIs(t, err, ErrOfferNotFound)
	_, err = c.Get(ctx, o.ID)
	require.ErrorIs(t, err, ErrOfferNotFound)

	require.NoError(t, c.SetActive(ctx, o.ID, true))
	got, err := c.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, o.ID, got.ID)
}

func TestUpsertRefreshesExisting(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)
	seed(t, c)

	before, err := c.GetByExternal(ctx, "lootably", "LOOT_APP_001")
	require.NoError(t, err)

	after, created, err := c.Upsert(ctx, UpsertParams{
		Provider: "lootably", ExternalOfferID: "LOOT_APP_001", Title: "Install App v2", Category: "app",
		RewardAmount: decimal.RequireFromString("3.00"), UserPayout: decimal.RequireFromString("1.50"),
	})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, before.ID, after.ID)

	got, err := c.GetByExternal(ctx, "lootably", "LOOT_APP_001")
	require.NoError(t, err)
	require.Equal(t, "Install App v2", got.Title)
	require.Equal(t, "1.50", got.UserPayout.StringFixed(2))
}

func TestUpsertValidation(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)

	_, _, err := c.Upsert(ctx, UpsertParams{Provider: "lootably", Title: "x"})
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))

	_, _, err = c.Upsert(ctx, UpsertParams{
		Provider: "lootably", ExternalOfferID: "NEG", Title: "x",
		UserPayout: decimal.RequireFromString("-1"),
	})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))
}

func TestListFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)
	seed(t, c)

	all, total, err := c.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 4, total)
	require.Len(t, all, 4)
	require.Equal(t, "Play Game", all[0].Title)
	require.Equal(t, "Sign Up", all[3].Title)

	apps, total, err := c.List(ctx, ListFilter{Category: "app"})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, apps, 2)

	loot, total, err := c.List(ctx, ListFilter{Provider: "lootably", Page: 2, Limit: 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, loot, 1)
	require.Equal(t, "Sign Up", loot[0].Title)
}

func TestCategoriesAndProviders(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)
	seed(t, c)

	categories, err := c.Categories(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"app", "signup", "survey"}, categories)

	providers, err := c.Providers(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"adgate", "lootably"}, providers)
}

func TestHandlerRoutes(t *testing.T) {
	c := newCatalog(t)
	seed(t, c)
	h := NewHandler(c)

	engine := gin.New()
	engine.GET("/offers", h.List)
	engine.GET("/offers/categories", h.Categories)
	engine.GET("/offers/:id", h.Get)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/offers?provider=lootably&limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.EqualValues(t, 3, list.Total)
	require.Len(t, list.Offers, 2)
	require.Equal(t, 2, list.Limit)

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/offers/"+list.Offers[0].ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/offers/categories", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"categories":["app","signup","survey"]}`, rec.Body.String())
}

func TestCacheExpiresWritesFromOtherInstances(t *testing.T) {
	ctx := context.Background()
	reader := newCatalog(t)
	seed(t, reader)
	reader.cache = newExternalCache(50 * time.Millisecond)
	writer := NewCatalog(CatalogParams{DB: reader.db, Node: reader.node})

	o, err := reader.GetByExternal(ctx, "lootably", "LOOT_SIGNUP_001")
	require.NoError(t, err)

	require.NoError(t, writer.SetActive(ctx, o.ID, false))

	_, err = reader.GetByExternal(ctx, "lootably", "LOOT_SIGNUP_001")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := reader.GetByExternal(ctx, "lootably", "LOOT_SIGNUP_001")
		return errors.Is(err, ErrOfferNotFound)
	}, time.Second, 10*time.Millisecond)
}
