package dto

type CreateOrderRequest struct {
	AuctionID       string `json:"auction_id"`
	FinalPriceCents int64  `json:"final_price_cents"`
	SellerID        string `json:"seller_id"`
	WinnerID        string `json:"winner_id"`
}

type CreateOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"` // CREATED | DUPLICATE
}
