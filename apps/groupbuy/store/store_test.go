package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"optifish/apps/groupbuy/events"
	"optifish/apps/groupbuy/model"
	"optifish/pkg/database"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	db      *gorm.DB
	store   *Store
	clock   *fakeClock
	events  *events.Recorder
	product model.Product
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "groupbuy.db")
	db, err := gorm.Open(sqlite.Open(path), database.GormConfig(true))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection serializes writers the way row locks do on MySQL
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, Migrate(db))
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	clk := &fakeClock{now: t0}
	rec := &events.Recorder{}

	product := model.Product{UserID: 1, Name: "Pakan Lele 30kg", Photo: "pakan.jpg", Description: "floating feed", Price: decimal.NewFromInt(100000)}
	require.NoError(t, db.Create(&product).Error)

	return &fixture{
		db:      db,
		store:   New(db, WithClock(clk.Now), WithPublisher(rec)),
		clock:   clk,
		events:  rec,
		product: product,
	}
}

func (f *fixture) campaign(t *testing.T, creator model.ID, tier int) *model.Campaign {
	t.Helper()
	c, err := f.store.CreateCampaign(context.Background(), f.product.ID, creator, tier)
	require.NoError(t, err)
	return c
}

func (f *fixture) reload(t *testing.T, id model.ID) *model.Campaign {
	t.Helper()
	c, err := f.store.GetCampaign(context.Background(), id)
	require.NoError(t, err)
	return c
}

func TestCreateCampaign(t *testing.T) {
	f := newFixture(t)

	c := f.campaign(t, 10, 5)

	assert.NotZero(t, c.ID)
	assert.Equal(t, 7, c.DiscountPercent)
	assert.Equal(t, 1, c.CurrentParticipants)
	assert.Equal(t, model.StatusActive, c.Status)
	assert.True(t, c.ExpiresAt.Equal(t0.Add(DefaultWindow)))

	var participants []model.Participant
	require.NoError(t, f.db.Where("group_buy_id = ?", c.ID).Find(&participants).Error)
	require.Len(t, participants, 1)
	assert.Equal(t, model.ID(10), participants[0].UserID)

	assert.Equal(t, []string{events.CampaignCreated}, f.events.Types())
}

func TestCreateCampaignValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.CreateCampaign(ctx, f.product.ID, 10, 3)
	assert.ErrorIs(t, err, model.ErrInvalidTier)

	_, err = f.store.CreateCampaign(ctx, 0, 10, 5)
	assert.ErrorIs(t, err, model.ErrMissingFields)

	_, err = f.store.CreateCampaign(ctx, 999, 10, 5)
	assert.ErrorIs(t, err, model.ErrProductNotFound)

	var count int64
	f.db.Model(&model.Campaign{}).Count(&count)
	assert.Zero(t, count)
}

func TestCreatorCannotJoinOwnCampaign(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, 10, 5)

	err := f.store.JoinCampaign(context.Background(), c.ID, 10)
	assert.ErrorIs(t, err, model.ErrAlreadyJoined)
	assert.Equal(t, 1, f.reload(t, c.ID).CurrentParticipants)
}

func TestJoinCampaign(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, 10, 5)

	require.NoError(t, f.store.JoinCampaign(context.Background(), c.ID, 11))

	got := f.reload(t, c.ID)
	assert.Equal(t, 2, got.CurrentParticipants)
	assert.Equal(t, 7, got.DiscountPercent, "discount follows the tier, not the join count")
	assert.Equal(t, []string{events.CampaignCreated, events.CampaignJoined}, f.events.Types())
}

func TestDuplicateJoinIsRejected(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, 10, 5)
	ctx := context.Background()

	require.NoError(t, f.store.JoinCampaign(ctx, c.ID, 11))
	err := f.store.JoinCampaign(ctx, c.ID, 11)
	assert.ErrorIs(t, err, model.ErrAlreadyJoined)

	assert.Equal(t, 2, f.reload(t, c.ID).CurrentParticipants)
	var rows int64
	f.db.Model(&model.Participant{}).Where("group_buy_id = ? AND user_id = ?", c.ID, 11).Count(&rows)
	assert.Equal(t, int64(1), rows)
}

func TestJoinFullCampaign(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, 10, 2)
	ctx := context.Background()

	require.NoError(t, f.store.JoinCampaign(ctx, c.ID, 11))
	err := f.store.JoinCampaign(ctx, c.ID, 12)
	assert.ErrorIs(t, err, model.ErrCampaignFull)

	// the rejected participant row was rolled back with the transaction
	var rows int64
	f.db.Model(&model.Participant{}).Where("group_buy_id = ? AND user_id = ?", c.ID, 12).Count(&rows)
	assert.Zero(t, rows)
	assert.Contains(t, f.events.Types(), events.CampaignFilled)
}

func TestJoinRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.store.JoinCampaign(ctx, 404, 11), model.ErrCampaignNotFound)
	assert.ErrorIs(t, f.store.JoinCampaign(ctx, 0, 11), model.ErrMissingFields)

	completed := f.campaign(t, 10, 5)
	require.NoError(t, f.store.CompleteCampaign(ctx, completed.ID))
	assert.ErrorIs(t, f.store.JoinCampaign(ctx, completed.ID, 11), model.ErrCampaignClosed)

	expired := f.campaign(t, 10, 5)
	f.clock.Advance(DefaultWindow)
	assert.ErrorIs(t, f.store.JoinCampaign(ctx, expired.ID, 11), model.ErrCampaignExpired)
	assert.Equal(t, 1, f.reload(t, expired.ID).CurrentParticipants)
}

// TestConcurrentJoinsNeverExceedCapacity races goroutines through JoinCampaign, but
// the single sqlite connection runs their transactions one after another. It checks
// the guarded increment and rollback, not contention on a shared row; for that run
// scripts/join_load.go against MySQL.
func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, 10, 5)

	const joiners = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		joined  int
		full    int
		unknown []error
	)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(user model.ID) {
			defer wg.Done()
			err := f.store.JoinCampaign(context.Background(), c.ID, user)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				joined++
			case errors.Is(err, model.ErrCampaignFull):
				full++
			default:
				unknown = append(unknown, err)
			}
		}(model.ID(100 + i))
	}
	wg.Wait()

	require.Empty(t, unknown)
	assert.Equal(t, 4, joined)
	assert.Equal(t, joiners-4, full)

	got := f.reload(t, c.ID)
	assert.Equal(t, 5, got.CurrentParticipants)

	var rows int64
	f.db.Model(&model.Participant{}).Where("group_buy_id = ?", c.ID).Count(&rows)
	assert.Equal(t, int64(got.CurrentParticipants), rows)
}

func TestListActiveCampaignsExcludesExpiredAndCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old := f.campaign(t, 10, 2)
	f.clock.Advance(3 * time.Minute)
	fresh := f.campaign(t, 11, 5)
	done := f.campaign(t, 12, 10)
	require.NoError(t, f.store.CompleteCampaign(ctx, done.ID))

	list, err := f.store.ListActiveCampaigns(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, fresh.ID, list[0].ID, "newest first")
	assert.Equal(t, old.ID, list[1].ID)

	f.clock.Advance(2 * time.Minute) // old hits its expiry exactly
	list, err = f.store.ListActiveCampaigns(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, fresh.ID, list[0].ID)

	// still "active" in the table until the sweeper runs
	assert.Equal(t, model.StatusActive, f.reload(t, old.ID).Status)
}

func TestCompleteCampaign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, 10, 5)

	require.NoError(t, f.store.CompleteCampaign(ctx, c.ID))
	assert.Equal(t, model.StatusCompleted, f.reload(t, c.ID).Status)

	// unconditional: completing twice and completing an expired campaign both succeed
	require.NoError(t, f.store.CompleteCampaign(ctx, c.ID))
	expired := f.campaign(t, 10, 5)
	f.clock.Advance(time.Hour)
	_, err := f.store.ExpireStale(ctx)
	require.NoError(t, err)
	require.NoError(t, f.store.CompleteCampaign(ctx, expired.ID))
	assert.Equal(t, model.StatusCompleted, f.reload(t, expired.ID).Status)

	assert.ErrorIs(t, f.store.CompleteCampaign(ctx, 404), model.ErrCampaignNotFound)
}

func TestGetUserCampaigns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.campaign(t, 10, 5)
	f.clock.Advance(time.Second)
	b := f.campaign(t, 20, 2)
	f.clock.Advance(time.Second)
	require.NoError(t, f.store.JoinCampaign(ctx, b.ID, 10))

	rows, err := f.store.GetUserCampaigns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, b.ID, rows[0].GroupBuyID)
	assert.Equal(t, "Pakan Lele 30kg", rows[0].ProductName)
	assert.Equal(t, "pakan.jpg", rows[0].ProductImage)
	assert.Equal(t, 2, rows[0].CurrentUsers)
	assert.Equal(t, 2, rows[0].MaxUsers)
	assert.Equal(t, 5, rows[0].DiscountPercentage)
	assert.Equal(t, model.PaymentPending, rows[0].PaymentStatus)
	assert.Equal(t, a.ID, rows[1].GroupBuyID)

	none, err := f.store.GetUserCampaigns(ctx, 77)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetCampaignProduct(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, 10, 5)

	snap, err := f.store.GetCampaignProduct(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, f.product.ID, snap.ProductID)
	assert.Equal(t, "Pakan Lele 30kg", snap.ProductName)
	assert.Equal(t, "floating feed", snap.ProductDescription)
	assert.True(t, snap.ProductPrice.Equal(decimal.NewFromInt(100000)), snap.ProductPrice.String())

	_, err = f.store.GetCampaignProduct(context.Background(), 404)
	assert.ErrorIs(t, err, model.ErrCampaignNotFound)
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.campaign(t, model.ID(10+i), 5)
	}
	f.clock.Advance(DefaultWindow - time.Second)
	survivor := f.campaign(t, 20, 5)

	n, err := f.store.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(time.Second)
	n, err = f.store.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, model.StatusActive, f.reload(t, survivor.ID).Status)

	last := f.events.Events()[len(f.events.Events())-1]
	assert.Equal(t, events.CampaignsExpired, last.Type)
	assert.Equal(t, int64(3), last.Count)
}

func TestWindowOption(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&model.Product{ID: 1, Name: "Aerator", Price: decimal.NewFromInt(50000)}).Error)

	s := New(db, WithWindow(10*time.Minute), WithClock(func() time.Time { return t0.Add(500 * time.Millisecond) }))
	c, err := s.CreateCampaign(context.Background(), 1, 2, 10)
	require.NoError(t, err)
	assert.True(t, c.ExpiresAt.Equal(t0.Add(10*time.Minute)), fmt.Sprint(c.ExpiresAt))
}
