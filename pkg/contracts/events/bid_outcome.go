package events

// Evento publicado no tópico "bid_outcome" após cada lance aceito.
// PreviousWinnerID vazio quando é o primeiro lance do leilão.
type BidOutcome struct {
	AuctionID        string `json:"auction_id"`
	WinnerID         string `json:"winner_id"`
	AmountCents      int64  `json:"amount_cents"`
	PreviousWinnerID string `json:"previous_winner_id,omitempty"`
	CorrelationID    string `json:"correlation_id"`
	TsUnixMs         int64  `json:"ts_unix_ms"`
}
