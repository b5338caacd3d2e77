package events

import "time"

// Evento emitido pelo sweeper após liquidar um leilão encerrado.
type AuctionFinalized struct {
	AuctionID       string    `json:"auction_id"`
	SellerID        string    `json:"seller_id"`
	WinnerID        string    `json:"winner_id,omitempty"` // vazio quando encerrou sem lances
	FinalPriceCents int64     `json:"final_price_cents,omitempty"`
	OrderID         string    `json:"order_id,omitempty"`
	Ts              time.Time `json:"ts"`
}
