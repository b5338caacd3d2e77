package domain

import "time"

// Status derivado do leilão. Transições são monotônicas:
// OPEN → BIDDING → ENDED → ORDER_PENDING → FINALIZED
type AuctionStatus string

const (
	StatusOpen         AuctionStatus = "OPEN"
	StatusBidding      AuctionStatus = "BIDDING"
	StatusEnded        AuctionStatus = "ENDED"
	StatusOrderPending AuctionStatus = "ORDER_PENDING"
	StatusFinalized    AuctionStatus = "FINALIZED"
)

// Auction é o registro vivo de um leilão. Valores em centavos.
// CurrentPriceCents fica nil até o primeiro lance; CurrentWinnerID
// é não-nil se e somente se CurrentPriceCents é não-nil.
type Auction struct {
	ID                 string
	SellerID           string
	Name               string
	StartingPriceCents int64
	CurrentPriceCents  *int64
	CurrentWinnerID    *string
	StepPriceCents     int64
	BuyNowPriceCents   *int64
	EndAt              time.Time
	BidCount           int
	OrderCreated       bool
	OrderID            *string
	Notified           bool
	CreatedAt          time.Time
}

// Ended informa se o leilão já passou do horário de término.
func (a *Auction) Ended(now time.Time) bool {
	return now.After(a.EndAt)
}

// MinAllowed é o piso para um novo lance ou teto de auto-bid:
// preço corrente quando há lances, senão o preço inicial.
func (a *Auction) MinAllowed() int64 {
	if a.CurrentPriceCents != nil {
		return *a.CurrentPriceCents
	}
	return a.StartingPriceCents
}

// Status calcula o estado da máquina a partir dos campos persistidos.
func (a *Auction) Status(now time.Time) AuctionStatus {
	if !a.Ended(now) {
		if a.BidCount == 0 {
			return StatusOpen
		}
		return StatusBidding
	}
	if a.OrderCreated && a.Notified {
		return StatusFinalized
	}
	if a.OrderCreated {
		return StatusOrderPending
	}
	return StatusEnded
}
