package domain

import "time"

type BidOutcomeStatus string

const (
	BidSuccess BidOutcomeStatus = "SUCCESS"
	BidFailed  BidOutcomeStatus = "FAILED"
)

// BidRecord é uma entrada do ledger de lances. Imutável depois de criada,
// com uma única exceção: o cancelamento pelo vendedor transiciona
// SUCCESS → FAILED com reason CANCELLED_BY_SELLER.
type BidRecord struct {
	ID            string
	AuctionID     string
	BidderID      string
	AmountCents   int64
	CorrelationID string
	// PreviousWinnerID congela quem liderava antes deste SUCCESS, pro
	// replay idempotente devolver o payload original completo.
	PreviousWinnerID string
	Outcome          BidOutcomeStatus
	FailureReason    string
	CreatedAt        time.Time
}
