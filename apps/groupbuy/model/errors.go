package model

import (
	"net/http"

	"optifish/pkg/errx"
)

var (
	ErrMissingFields     = errx.Validation("missing_fields", "All fields are required.")
	ErrInvalidID         = errx.Validation("invalid_id", "Group Buy ID is required.")
	ErrInvalidTier       = errx.Validation("invalid_tier", "maxUsers must be one of 2, 5 or 10.")
	ErrInvalidPrice      = errx.Validation("invalid_price", "Base price must be greater than zero.")
	ErrInvalidAmount     = errx.Validation("invalid_amount", "Amount must be greater than zero.")
	ErrUnknownExpedition = errx.Validation("unknown_expedition", "Unknown expedition.")

	ErrProductNotFound  = errx.NotFound("product_not_found", "Product not found.")
	ErrCampaignNotFound = errx.NotFound("group_buy_not_found", "Group Buy not found.")

	ErrAlreadyJoined   = errx.Conflict("already_joined", "You have already joined this group buy.")
	ErrCampaignFull    = errx.Conflict("group_buy_full", "This group buy is already full.")
	ErrCampaignExpired = errx.Conflict("group_buy_expired", "This group buy has expired.")
	ErrCampaignClosed  = errx.Conflict("group_buy_closed", "This group buy is no longer active.")

	ErrRequestInFlight     = errx.Conflict("request_in_flight", "Request is still being processed.").WithStatus(http.StatusConflict)
	ErrIdempotencyMismatch = errx.Validation("idempotency_key_reused", "Idempotency-Key was already used for a different request.")

	ErrUserMismatch = errx.Forbidden("user_mismatch", "userId does not match the authenticated user.")
)
