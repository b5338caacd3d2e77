package dto

import "time"

type CreateAuctionRequest struct {
	SellerID           string    `json:"sellerId"`
	Name               string    `json:"name"`
	StartingPriceCents int64     `json:"starting_price_cents"`
	StepPriceCents     int64     `json:"step_price_cents"`
	BuyNowPriceCents   *int64    `json:"buy_now_price_cents,omitempty"`
	EndAt              time.Time `json:"end_at"`
}

type PlaceBidRequest struct {
	BidderID      string `json:"bidderId"`
	AmountCents   int64  `json:"amount_cents"`
	CorrelationID string `json:"correlationId"` // chave de idempotência do caller
}

type RegisterAutoBidRequest struct {
	BidderID       string `json:"bidderId"`
	MaxAmountCents int64  `json:"max_amount_cents"`
}

type BuyNowRequest struct {
	BuyerID string `json:"buyerId"`
}

type CancelTopBidRequest struct {
	SellerID string `json:"sellerId"`
}
