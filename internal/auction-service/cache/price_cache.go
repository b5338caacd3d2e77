package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gfranco/auction-platform-poc/internal/auction-service/domain"
)

// Snapshot quente de um leilão, servido no GET público sem bater no banco.
type PriceSnapshot struct {
	AuctionID         string  `json:"auction_id"`
	CurrentPriceCents *int64  `json:"current_price_cents"`
	CurrentWinnerID   *string `json:"current_winner_id"`
	BidCount          int     `json:"bid_count"`
	UpdatedAtUnixMs   int64   `json:"updated_at_unix_ms"`
}

type PriceCache struct {
	Rdb *redis.Client
	TTL time.Duration
}

func NewPriceCache(r *redis.Client) *PriceCache {
	return &PriceCache{Rdb: r, TTL: 10 * time.Minute}
}

func key(auctionID string) string { return fmt.Sprintf("auction:%s:price", auctionID) }

// Refresh grava o snapshot após cada mutação commitada do leilão.
func (c *PriceCache) Refresh(ctx context.Context, a *domain.Auction) error {
	snap := PriceSnapshot{
		AuctionID:         a.ID,
		CurrentPriceCents: a.CurrentPriceCents,
		CurrentWinnerID:   a.CurrentWinnerID,
		BidCount:          a.BidCount,
		UpdatedAtUnixMs:   time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(snap)
	return c.Rdb.Set(ctx, key(a.ID), b, c.TTL).Err()
}

// Get devolve (nil, nil) em cache miss; o caller cai pro banco.
func (c *PriceCache) Get(ctx context.Context, auctionID string) (*PriceSnapshot, error) {
	val, err := c.Rdb.Get(ctx, key(auctionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap PriceSnapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
