package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	ordersdto "github.com/gfranco/auction-platform-poc/internal/auction-service/orders/dto"
)

// Client fala com o order-service externo. Timeout curto: o sweeper não
// pode ficar pendurado num colaborador fora do ar.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *Client) CreateOrder(ctx context.Context, auctionID string, finalPriceCents int64, sellerID, winnerID string) (string, error) {
	body, _ := json.Marshal(ordersdto.CreateOrderRequest{
		AuctionID:       auctionID,
		FinalPriceCents: finalPriceCents,
		SellerID:        sellerID,
		WinnerID:        winnerID,
	})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return "", fmt.Errorf("order create http %d", res.StatusCode)
	}
	var out ordersdto.CreateOrderResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.OrderID, nil
}
