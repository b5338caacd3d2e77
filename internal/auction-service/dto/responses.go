package dto

import "time"

type AuctionResponse struct {
	ID                 string    `json:"id"`
	SellerID           string    `json:"sellerId"`
	Name               string    `json:"name"`
	StartingPriceCents int64     `json:"starting_price_cents"`
	CurrentPriceCents  *int64    `json:"current_price_cents,omitempty"`
	CurrentWinnerID    *string   `json:"current_winner_id,omitempty"`
	StepPriceCents     int64     `json:"step_price_cents"`
	BuyNowPriceCents   *int64    `json:"buy_now_price_cents,omitempty"`
	EndAt              time.Time `json:"end_at"`
	BidCount           int       `json:"bid_count"`
	Status             string    `json:"status"`
}

type PlaceBidResponse struct {
	Success          bool   `json:"success"`
	WinnerID         string `json:"winnerId,omitempty"`
	FinalPriceCents  int64  `json:"final_price_cents,omitempty"`
	PreviousWinnerID string `json:"previousWinnerId,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

type BidRecordResponse struct {
	ID            string    `json:"id"`
	BidderID      string    `json:"bidderId"`
	AmountCents   int64     `json:"amount_cents"`
	CorrelationID string    `json:"correlationId"`
	Outcome       string    `json:"outcome"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type BuyNowResponse struct {
	FinalPriceCents int64     `json:"final_price_cents"`
	BuyerID         string    `json:"buyerId"`
	EndAt           time.Time `json:"end_at"`
}

type CancelTopBidResponse struct {
	CurrentPriceCents *int64  `json:"current_price_cents,omitempty"`
	CurrentWinnerID   *string `json:"current_winner_id,omitempty"`
	BidCount          int     `json:"bid_count"`
}

type FinalizeResponse struct {
	Processed int `json:"processed"`
}
