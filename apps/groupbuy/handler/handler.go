package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"optifish/apps/groupbuy/checkout"
	"optifish/apps/groupbuy/clock"
	"optifish/apps/groupbuy/middleware"
	"optifish/apps/groupbuy/model"
	"optifish/apps/groupbuy/pricing"
	"optifish/pkg/errx"
	"optifish/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const IdempotencyHeader = "Idempotency-Key"

var errBadBody = errx.Validation("invalid_body", "Request body is not valid JSON.")

type CampaignService interface {
	CreateCampaign(ctx context.Context, productID, creatorID model.ID, maxParticipants int) (*model.Campaign, error)
	JoinCampaign(ctx context.Context, campaignID, userID model.ID) error
	ListActiveCampaigns(ctx context.Context) ([]model.Campaign, error)
	CompleteCampaign(ctx context.Context, campaignID model.ID) error
	GetUserCampaigns(ctx context.Context, userID model.ID) ([]model.UserCampaign, error)
	GetCampaignProduct(ctx context.Context, campaignID model.ID) (*model.ProductSnapshot, error)
	GetCampaign(ctx context.Context, campaignID model.ID) (*model.Campaign, error)
	Now() time.Time
}

type CheckoutService interface {
	Complete(ctx context.Context, req checkout.Request) (*checkout.Result, error)
	Quote(ctx context.Context, campaignID model.ID, paymentMethod, expedition string) (*pricing.Quote, error)
}

type Handler struct {
	campaigns    CampaignService
	checkout     CheckoutService
	tickInterval time.Duration
}

func New(campaigns CampaignService, co CheckoutService) *Handler {
	return &Handler{campaigns: campaigns, checkout: co, tickInterval: time.Second}
}

// actingUser resolves the user an action is performed for. A body or path id is
// optional, but when given it must be the authenticated caller.
func actingUser(c *gin.Context, claimed model.ID) (model.ID, error) {
	caller := middleware.UserID(c)
	if claimed == 0 {
		return caller, nil
	}
	if caller != 0 && claimed != caller {
		return 0, model.ErrUserMismatch
	}
	return claimed, nil
}

func campaignID(c *gin.Context) (model.ID, error) {
	id, err := model.ParseID(c.Param("id"))
	if err != nil {
		return 0, model.ErrInvalidID
	}
	return id, nil
}

// bindOptional accepts an empty body.
func bindOptional(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return errBadBody.Wrap(err)
	}
	return nil
}

// CreateCampaign POST /group-buys
func (h *Handler) CreateCampaign(c *gin.Context) {
	var req struct {
		ProductID model.ID `json:"productId"`
		CreatorID model.ID `json:"creatorId"`
		MaxUsers  int      `json:"maxUsers"`
	}
	if err := bindOptional(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	creator, err := actingUser(c, req.CreatorID)
	if err != nil {
		response.Error(c, err)
		return
	}

	campaign, err := h.campaigns.CreateCampaign(c.Request.Context(), req.ProductID, creator, req.MaxUsers)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{
		"message":    "Group buy started successfully.",
		"groupBuyId": campaign.ID,
		"expiresAt":  campaign.ExpiresAt,
	})
}

// JoinCampaign POST /group-buys/:id/join
func (h *Handler) JoinCampaign(c *gin.Context) {
	id, err := campaignID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req struct {
		UserID model.ID `json:"userId"`
	}
	if err := bindOptional(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	user, err := actingUser(c, req.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.campaigns.JoinCampaign(c.Request.Context(), id, user); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Successfully joined the group buy.")
}

// ListActive GET /group-buys/active
func (h *Handler) ListActive(c *gin.Context) {
	campaigns, err := h.campaigns.ListActiveCampaigns(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	now := h.campaigns.Now()
	out := make([]model.ActiveCampaign, 0, len(campaigns))
	for _, cp := range campaigns {
		out = append(out, model.ActiveCampaign{
			Campaign: cp,
			TimeLeft: clock.Remaining(cp.ExpiresAt, now).String(),
		})
	}
	response.Success(c, out)
}

// CompleteCampaign POST /group-buys/:id/complete
func (h *Handler) CompleteCampaign(c *gin.Context) {
	id, err := campaignID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.campaigns.CompleteCampaign(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Group buy completed successfully.")
}

// UserCampaigns GET /group-buys/user/:userId
func (h *Handler) UserCampaigns(c *gin.Context) {
	claimed, err := model.ParseID(c.Param("userId"))
	if err != nil {
		response.Error(c, errx.Validation("invalid_user_id", "User ID is required."))
		return
	}
	user, err := actingUser(c, claimed)
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, err := h.campaigns.GetUserCampaigns(c.Request.Context(), user)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rows)
}

// CreateTransaction POST /group-buy/transaction
func (h *Handler) CreateTransaction(c *gin.Context) {
	var req struct {
		UserID        model.ID        `json:"userId"`
		GroupBuyID    model.ID        `json:"groupBuyId"`
		Amount        decimal.Decimal `json:"amount"`
		PaymentMethod string          `json:"paymentMethod"`
		ReceiverName  string          `json:"receiverName"`
		Address       string          `json:"address"`
		Expedition    string          `json:"expedition"`
	}
	if err := bindOptional(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	user, err := actingUser(c, req.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	res, err := h.checkout.Complete(c.Request.Context(), checkout.Request{
		UserID:         user,
		CampaignID:     req.GroupBuyID,
		Amount:         req.Amount,
		PaymentMethod:  req.PaymentMethod,
		ReceiverName:   req.ReceiverName,
		Address:        req.Address,
		Expedition:     req.Expedition,
		IdempotencyKey: c.GetHeader(IdempotencyHeader),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	if res.Replayed {
		c.Header("Idempotent-Replayed", "true")
	}
	response.Created(c, gin.H{
		"message":       "Group buy transaction created successfully.",
		"transactionId": res.Transaction.ID,
		"transactionNo": res.Transaction.TransactionNo,
	})
}

// CampaignProduct GET /group-buys/:id/product
func (h *Handler) CampaignProduct(c *gin.Context) {
	id, err := campaignID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	snap, err := h.campaigns.GetCampaignProduct(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, snap)
}

// Quote GET /group-buys/:id/quote?paymentMethod=&expedition=
func (h *Handler) Quote(c *gin.Context) {
	id, err := campaignID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	expedition := c.Query("expedition")
	if expedition == "" {
		response.Error(c, model.ErrMissingFields)
		return
	}
	q, err := h.checkout.Quote(c.Request.Context(), id, c.Query("paymentMethod"), expedition)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, q.Rounded())
}

// Countdown GET /group-buys/:id/countdown, a server-sent event stream that ends at expiry.
func (h *Handler) Countdown(c *gin.Context) {
	id, err := campaignID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	campaign, err := h.campaigns.GetCampaign(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	// the ticker closes its channel at expiry or when the client goes away
	for cd := range clock.Ticker(c.Request.Context(), campaign.ExpiresAt, h.tickInterval) {
		c.SSEvent("countdown", gin.H{
			"groupBuyId": campaign.ID,
			"timeLeft":   cd.String(),
			"hours":      cd.Hours,
			"minutes":    cd.Minutes,
			"seconds":    cd.Seconds,
			"expired":    cd.Expired,
		})
		c.Writer.Flush()
	}
}

// PricingOptions GET /pricing/options
func (h *Handler) PricingOptions(c *gin.Context) {
	response.Success(c, gin.H{
		"tiers":              pricing.Tiers(),
		"paymentMethods":     pricing.PaymentMethods(),
		"expeditions":        pricing.Expeditions(),
		"platformTaxPercent": "1.5",
		"loyaltyPointsPer":   "100000",
	})
}
