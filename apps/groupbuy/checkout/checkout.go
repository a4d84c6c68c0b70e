// Package checkout records a group-buy payment: the transaction row and the
// participant's completed payment status are written atomically.
package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"optifish/apps/groupbuy/events"
	"optifish/apps/groupbuy/metrics"
	"optifish/apps/groupbuy/model"
	"optifish/apps/groupbuy/pricing"
	"optifish/pkg/database"
	"optifish/pkg/errx"
	"optifish/pkg/logger"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CampaignReader is the part of the lifecycle store checkout depends on.
type CampaignReader interface {
	GetCampaign(ctx context.Context, id model.ID) (*model.Campaign, error)
	GetCampaignProduct(ctx context.Context, id model.ID) (*model.ProductSnapshot, error)
}

type Request struct {
	UserID         model.ID
	CampaignID     model.ID
	Amount         decimal.Decimal
	PaymentMethod  string
	ReceiverName   string
	Address        string
	Expedition     string
	IdempotencyKey string
}

func (r *Request) normalize() error {
	r.PaymentMethod = strings.TrimSpace(r.PaymentMethod)
	r.ReceiverName = strings.TrimSpace(r.ReceiverName)
	r.Address = strings.TrimSpace(r.Address)
	r.Expedition = strings.TrimSpace(r.Expedition)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)

	if r.UserID <= 0 || r.CampaignID <= 0 || r.Amount.IsZero() ||
		r.PaymentMethod == "" || r.ReceiverName == "" || r.Address == "" || r.Expedition == "" {
		return model.ErrMissingFields
	}
	if r.Amount.IsNegative() {
		return model.ErrInvalidAmount
	}
	if !pricing.IsExpedition(r.Expedition) {
		return model.ErrUnknownExpedition
	}
	if len(r.IdempotencyKey) > 128 {
		return errx.Validation("invalid_idempotency_key", "Idempotency-Key must be at most 128 characters.")
	}
	return nil
}

type Result struct {
	Transaction *model.Transaction
	Replayed    bool
}

type Service struct {
	db        *gorm.DB
	campaigns CampaignReader
	idem      Idempotency
	publisher events.Publisher
	now       func() time.Time
	tracer    trace.Tracer
}

type Option func(*Service)

// WithIdempotency enables the redis reservation. Without it the unique
// idempotency_key column is the only guard.
func WithIdempotency(i Idempotency) Option {
	return func(s *Service) { s.idem = i }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(db *gorm.DB, campaigns CampaignReader, opts ...Option) *Service {
	s := &Service{
		db:        db,
		campaigns: campaigns,
		publisher: events.Nop{},
		now:       time.Now,
		tracer:    otel.Tracer("optifish/groupbuy/checkout"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Complete inserts a pending transaction and marks the user's participation as paid.
// A repeated IdempotencyKey returns the first transaction with Replayed set.
func (s *Service) Complete(ctx context.Context, req Request) (res *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Complete")
	defer span.End()
	defer func() {
		outcome := "created"
		switch {
		case err != nil:
			outcome = errx.From(err).Code
			if !errx.IsKind(err, errx.KindValidation) {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		case res.Replayed:
			outcome = "replayed"
		}
		metrics.Transactions.WithLabelValues(outcome).Inc()
	}()

	if err := req.normalize(); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64("groupbuy.id", int64(req.CampaignID)),
		attribute.Int64("user.id", int64(req.UserID)),
		attribute.Bool("idempotent", req.IdempotencyKey != ""),
	)

	key := req.IdempotencyKey
	owned := false
	if key != "" && s.idem != nil {
		txNo, err := s.idem.Begin(ctx, key)
		switch {
		case errors.Is(err, model.ErrRequestInFlight):
			// the marker may belong to a request that committed but never finished
			res, rerr := s.replay(ctx, "idempotency_key = ?", key, req)
			if errors.Is(rerr, gorm.ErrRecordNotFound) {
				return nil, err
			}
			return res, rerr
		case err != nil:
			logger.Ctx(ctx).Warn().Err(err).Msg("idempotency store unavailable, relying on database guard")
		case txNo != "":
			res, err := s.replay(ctx, "transaction_no = ?", txNo, req)
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return res, err
			}
			// stale entry; the database guard below decides
		default:
			owned = true
		}
	}

	if key != "" {
		res, err := s.replay(ctx, "idempotency_key = ?", key, req)
		if err == nil {
			s.finish(ctx, owned, key, res.Transaction.TransactionNo)
			return res, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.abort(ctx, owned, key)
			return nil, err
		}
	}

	txn, err := s.record(ctx, req)
	if err != nil {
		if key != "" && database.IsDuplicateKey(err) {
			// a concurrent request with the same key won the insert
			if res, rerr := s.replay(ctx, "idempotency_key = ?", key, req); rerr == nil {
				s.finish(ctx, owned, key, res.Transaction.TransactionNo)
				return res, nil
			}
		}
		s.abort(ctx, owned, key)
		return nil, err
	}
	s.finish(ctx, owned, key, txn.TransactionNo)

	span.SetAttributes(attribute.String("transaction.no", txn.TransactionNo))
	s.publish(ctx, events.Event{
		Type:          events.TransactionCreated,
		GroupBuyID:    txn.CampaignID,
		UserID:        txn.UserID,
		TransactionNo: txn.TransactionNo,
		OccurredAt:    txn.CreatedAt,
	})
	return &Result{Transaction: txn}, nil
}

func (s *Service) record(ctx context.Context, req Request) (*model.Transaction, error) {
	now := s.now().UTC().Truncate(time.Second)
	txn := &model.Transaction{
		TransactionNo: uuid.NewString(),
		UserID:        req.UserID,
		CampaignID:    req.CampaignID,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		ReceiverName:  req.ReceiverName,
		Address:       req.Address,
		Expedition:    req.Expedition,
		Status:        model.TransactionPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		txn.IdempotencyKey = &key
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Campaign
		if err := tx.Select("id").Where("id = ?", req.CampaignID).First(&c).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrCampaignNotFound
			}
			return pkgerrors.Wrap(err, "load group buy")
		}

		if err := tx.Create(txn).Error; err != nil {
			return pkgerrors.Wrap(err, "insert transaction")
		}

		participant := model.Participant{
			CampaignID:    req.CampaignID,
			UserID:        req.UserID,
			PaymentStatus: model.PaymentCompleted,
			JoinedAt:      now,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_buy_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"payment_status": model.PaymentCompleted}),
		}).Create(&participant).Error
		return pkgerrors.Wrap(err, "upsert participant payment")
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// replay loads an earlier transaction. It refuses a key reused by another user or campaign.
func (s *Service) replay(ctx context.Context, where string, arg string, req Request) (*Result, error) {
	var prior model.Transaction
	if err := s.db.WithContext(ctx).Where(where, arg).First(&prior).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(err, "load prior transaction")
	}
	if prior.UserID != req.UserID || prior.CampaignID != req.CampaignID {
		return nil, model.ErrIdempotencyMismatch
	}
	return &Result{Transaction: &prior, Replayed: true}, nil
}

func (s *Service) finish(ctx context.Context, owned bool, key, transactionNo string) {
	if !owned {
		return
	}
	if err := s.idem.Finish(ctx, key, transactionNo); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("store idempotency result failed")
	}
}

func (s *Service) abort(ctx context.Context, owned bool, key string) {
	if !owned {
		return
	}
	if err := s.idem.Abort(ctx, key); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("release idempotency key failed")
	}
}

// Quote prices one unit of the campaign's product at the campaign's tier.
func (s *Service) Quote(ctx context.Context, campaignID model.ID, paymentMethod, expedition string) (*pricing.Quote, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Quote")
	defer span.End()

	c, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	product, err := s.campaigns.GetCampaignProduct(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return pricing.Calculate(product.ProductPrice, c.MaxParticipants, paymentMethod, expedition)
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		metrics.EventPublishFailures.Inc()
		logger.Ctx(ctx).Warn().Err(err).Str("event", e.Type).Msg("publish event failed")
	}
}
