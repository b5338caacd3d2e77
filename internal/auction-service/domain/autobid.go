package domain

import "time"

// AutoBidProxy é uma instrução "dê lances por mim até MaxAmountCents".
// Única por (AuctionID, BidderID); desativada quando o teto esgota
// ou quando o leilão encerra.
type AutoBidProxy struct {
	ID             string
	AuctionID      string
	BidderID       string
	MaxAmountCents int64
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
