// Package store owns the group-buy lifecycle: start, join, list, complete and expire.
// Capacity and duplicate rules are enforced by the database inside a single
// transaction, never by a read-then-write in application code.
package store

import (
	"context"
	"errors"
	"time"

	"optifish/apps/groupbuy/events"
	"optifish/apps/groupbuy/metrics"
	"optifish/apps/groupbuy/model"
	"optifish/apps/groupbuy/pricing"
	"optifish/pkg/database"
	"optifish/pkg/errx"
	"optifish/pkg/logger"

	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// DefaultWindow is how long a new campaign stays open.
const DefaultWindow = 5 * time.Minute

type Store struct {
	db        *gorm.DB
	window    time.Duration
	now       func() time.Time
	publisher events.Publisher
	tracer    trace.Tracer
}

type Option func(*Store)

func WithWindow(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithClock replaces time.Now. Every timestamp the store writes or compares goes through it.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Store) {
		if p != nil {
			s.publisher = p
		}
	}
}

func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:        db,
		window:    DefaultWindow,
		now:       time.Now,
		publisher: events.Nop{},
		tracer:    otel.Tracer("optifish/groupbuy/store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates or updates the tables this service writes to.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Product{}, &model.Campaign{}, &model.Participant{}, &model.Transaction{})
}

// Now is the store clock in UTC, truncated to whole seconds to match DATETIME columns.
func (s *Store) Now() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

// CreateCampaign starts a group buy for productID. The creator is recorded as the
// first participant in the same transaction.
func (s *Store) CreateCampaign(ctx context.Context, productID, creatorID model.ID, maxParticipants int) (*model.Campaign, error) {
	ctx, span := s.tracer.Start(ctx, "store.CreateCampaign")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("product.id", int64(productID)),
		attribute.Int64("user.id", int64(creatorID)),
		attribute.Int("groupbuy.tier", maxParticipants),
	)

	if productID <= 0 || creatorID <= 0 || maxParticipants == 0 {
		return nil, model.ErrMissingFields
	}
	discount, ok := pricing.DiscountFor(maxParticipants)
	if !ok {
		return nil, model.ErrInvalidTier
	}

	now := s.Now()
	campaign := &model.Campaign{
		ProductID:           productID,
		CreatorID:           creatorID,
		MaxParticipants:     maxParticipants,
		CurrentParticipants: 1,
		DiscountPercent:     discount,
		Status:              model.StatusActive,
		ExpiresAt:           now.Add(s.window),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product model.Product
		if err := tx.Select("id").Where("id = ?", productID).First(&product).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrProductNotFound
			}
			return pkgerrors.Wrap(err, "load product")
		}
		if err := tx.Create(campaign).Error; err != nil {
			return pkgerrors.Wrap(err, "insert group buy")
		}
		creator := model.Participant{
			CampaignID:    campaign.ID,
			UserID:        creatorID,
			PaymentStatus: model.PaymentPending,
			JoinedAt:      now,
		}
		return pkgerrors.Wrap(tx.Create(&creator).Error, "insert creator participant")
	})
	if err != nil {
		fail(span, err)
		return nil, err
	}

	metrics.CampaignsCreated.Inc()
	span.SetAttributes(attribute.Int64("groupbuy.id", int64(campaign.ID)))
	s.publish(ctx, events.Event{Type: events.CampaignCreated, GroupBuyID: campaign.ID, UserID: creatorID, OccurredAt: now})
	return campaign, nil
}

// JoinCampaign adds userID to the campaign. The participant insert and the guarded
// counter increment commit together or not at all, so concurrent joins can never
// push current_users past max_users.
func (s *Store) JoinCampaign(ctx context.Context, campaignID, userID model.ID) (err error) {
	ctx, span := s.tracer.Start(ctx, "store.JoinCampaign")
	defer span.End()
	span.SetAttributes(attribute.Int64("groupbuy.id", int64(campaignID)), attribute.Int64("user.id", int64(userID)))
	defer func() {
		outcome := "joined"
		if err != nil {
			outcome = errx.From(err).Code
		}
		metrics.JoinAttempts.WithLabelValues(outcome).Inc()
	}()

	if campaignID <= 0 || userID <= 0 {
		return model.ErrMissingFields
	}

	now := s.Now()
	var filled bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		participant := model.Participant{
			CampaignID:    campaignID,
			UserID:        userID,
			PaymentStatus: model.PaymentPending,
			JoinedAt:      now,
		}
		if err := tx.Create(&participant).Error; err != nil {
			if database.IsDuplicateKey(err) {
				return model.ErrAlreadyJoined
			}
			return pkgerrors.Wrap(err, "insert participant")
		}

		res := tx.Model(&model.Campaign{}).
			Where("id = ? AND status = ? AND expires_at > ? AND current_users < max_users",
				campaignID, model.StatusActive, now).
			Updates(map[string]interface{}{
				"current_users": gorm.Expr("current_users + 1"),
				"updated_at":    now,
			})
		if res.Error != nil {
			return pkgerrors.Wrap(res.Error, "increment participants")
		}
		if res.RowsAffected == 0 {
			return rejectReason(tx, campaignID, now)
		}

		var c model.Campaign
		if err := tx.Select("current_users", "max_users").Where("id = ?", campaignID).First(&c).Error; err != nil {
			return pkgerrors.Wrap(err, "reload group buy")
		}
		filled = c.CurrentParticipants >= c.MaxParticipants
		return nil
	})
	if err != nil {
		fail(span, err)
		return err
	}

	s.publish(ctx, events.Event{Type: events.CampaignJoined, GroupBuyID: campaignID, UserID: userID, OccurredAt: now})
	if filled {
		s.publish(ctx, events.Event{Type: events.CampaignFilled, GroupBuyID: campaignID, OccurredAt: now})
	}
	return nil
}

// rejectReason explains why the guarded increment matched no row.
func rejectReason(tx *gorm.DB, campaignID model.ID, now time.Time) error {
	var c model.Campaign
	if err := tx.Where("id = ?", campaignID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.ErrCampaignNotFound
		}
		return pkgerrors.Wrap(err, "load group buy")
	}
	switch {
	case c.Status == model.StatusExpired:
		return model.ErrCampaignExpired
	case c.Status != model.StatusActive:
		return model.ErrCampaignClosed
	case !c.ExpiresAt.After(now):
		return model.ErrCampaignExpired
	default:
		return model.ErrCampaignFull
	}
}

// ListActiveCampaigns returns campaigns that are active and not past expiry, newest first.
func (s *Store) ListActiveCampaigns(ctx context.Context) ([]model.Campaign, error) {
	ctx, span := s.tracer.Start(ctx, "store.ListActiveCampaigns")
	defer span.End()

	var campaigns []model.Campaign
	err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at > ?", model.StatusActive, s.Now()).
		Order("created_at DESC, id DESC").
		Find(&campaigns).Error
	if err != nil {
		fail(span, err)
		return nil, pkgerrors.Wrap(err, "list active group buys")
	}
	return campaigns, nil
}

// CompleteCampaign marks the campaign completed regardless of its current state.
func (s *Store) CompleteCampaign(ctx context.Context, campaignID model.ID) error {
	ctx, span := s.tracer.Start(ctx, "store.CompleteCampaign")
	defer span.End()
	span.SetAttributes(attribute.Int64("groupbuy.id", int64(campaignID)))

	if campaignID <= 0 {
		return model.ErrInvalidID
	}

	now := s.Now()
	res := s.db.WithContext(ctx).Model(&model.Campaign{}).
		Where("id = ?", campaignID).
		Updates(map[string]interface{}{"status": model.StatusCompleted, "updated_at": now})
	if res.Error != nil {
		fail(span, res.Error)
		return pkgerrors.Wrap(res.Error, "complete group buy")
	}
	if res.RowsAffected == 0 {
		// MySQL reports 0 for an unchanged row, so confirm it is really missing.
		var count int64
		if err := s.db.WithContext(ctx).Model(&model.Campaign{}).Where("id = ?", campaignID).Count(&count).Error; err != nil {
			return pkgerrors.Wrap(err, "count group buy")
		}
		if count == 0 {
			return model.ErrCampaignNotFound
		}
	}

	s.publish(ctx, events.Event{Type: events.CampaignCompleted, GroupBuyID: campaignID, OccurredAt: now})
	return nil
}

// GetUserCampaigns lists every campaign userID participates in, joined with product details.
func (s *Store) GetUserCampaigns(ctx context.Context, userID model.ID) ([]model.UserCampaign, error) {
	ctx, span := s.tracer.Start(ctx, "store.GetUserCampaigns")
	defer span.End()

	if userID <= 0 {
		return nil, model.ErrMissingFields
	}

	rows := make([]model.UserCampaign, 0)
	err := s.db.WithContext(ctx).
		Table("group_buy_participants AS gbp").
		Select(`gb.id AS group_buy_id, gb.product_id, gb.status, gb.expires_at,
			gbp.joined_at, gbp.payment_status,
			p.name AS product_name, p.photo AS product_image,
			gb.current_users, gb.max_users, gb.discount_percentage`).
		Joins("JOIN group_buys gb ON gb.id = gbp.group_buy_id").
		Joins("JOIN products p ON p.id = gb.product_id").
		Where("gbp.user_id = ?", userID).
		Order("gbp.joined_at DESC, gb.id DESC").
		Scan(&rows).Error
	if err != nil {
		fail(span, err)
		return nil, pkgerrors.Wrap(err, "list user group buys")
	}
	return rows, nil
}

// GetCampaignProduct returns the product a campaign is priced against.
func (s *Store) GetCampaignProduct(ctx context.Context, campaignID model.ID) (*model.ProductSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "store.GetCampaignProduct")
	defer span.End()

	if campaignID <= 0 {
		return nil, model.ErrInvalidID
	}

	var snap model.ProductSnapshot
	res := s.db.WithContext(ctx).
		Table("group_buys AS gb").
		Select(`gb.product_id, p.name AS product_name, p.price AS product_price,
			p.description AS product_description, p.photo AS product_photo`).
		Joins("JOIN products p ON p.id = gb.product_id").
		Where("gb.id = ?", campaignID).
		Limit(1).
		Scan(&snap)
	if res.Error != nil {
		fail(span, res.Error)
		return nil, pkgerrors.Wrap(res.Error, "load group buy product")
	}
	if res.RowsAffected == 0 {
		return nil, model.ErrCampaignNotFound
	}
	return &snap, nil
}

func (s *Store) GetCampaign(ctx context.Context, campaignID model.ID) (*model.Campaign, error) {
	ctx, span := s.tracer.Start(ctx, "store.GetCampaign")
	defer span.End()

	if campaignID <= 0 {
		return nil, model.ErrInvalidID
	}

	var c model.Campaign
	if err := s.db.WithContext(ctx).Where("id = ?", campaignID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrCampaignNotFound
		}
		fail(span, err)
		return nil, pkgerrors.Wrap(err, "load group buy")
	}
	return &c, nil
}

// ExpireStale moves active campaigns past their expiry to expired and reports how many changed.
func (s *Store) ExpireStale(ctx context.Context) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "store.ExpireStale")
	defer span.End()

	now := s.Now()
	res := s.db.WithContext(ctx).Model(&model.Campaign{}).
		Where("status = ? AND expires_at <= ?", model.StatusActive, now).
		Updates(map[string]interface{}{"status": model.StatusExpired, "updated_at": now})
	if res.Error != nil {
		fail(span, res.Error)
		return 0, pkgerrors.Wrap(res.Error, "expire group buys")
	}
	if res.RowsAffected > 0 {
		metrics.CampaignsExpired.Add(float64(res.RowsAffected))
		s.publish(ctx, events.Event{Type: events.CampaignsExpired, Count: res.RowsAffected, OccurredAt: now})
	}
	span.SetAttributes(attribute.Int64("groupbuy.expired", res.RowsAffected))
	return res.RowsAffected, nil
}

func (s *Store) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		metrics.EventPublishFailures.Inc()
		logger.Ctx(ctx).Warn().Err(err).Str("event", e.Type).Msg("publish event failed")
	}
}

// fail records unexpected errors on the span. Domain rejections are not span errors.
func fail(span trace.Span, err error) {
	if errx.IsKind(err, errx.KindInternal) || !isAppError(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func isAppError(err error) bool {
	var appErr *errx.AppError
	return errors.As(err, &appErr)
}
