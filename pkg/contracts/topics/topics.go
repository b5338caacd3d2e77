package topics

const (
	// Lances
	BidOutcome    = "bid_outcome"
	BidOutcomeDLQ = "bid_outcome_dlq"

	// Encerramento
	AuctionFinalized = "auction_finalized"
)
