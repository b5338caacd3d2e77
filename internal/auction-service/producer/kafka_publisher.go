package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gfranco/auction-platform-poc/pkg/contracts/events"
)

type KafkaPublisher struct {
	OutcomeWriter   *kafka.Writer
	FinalizedWriter *kafka.Writer
}

func NewKafkaPublisher(outcome, finalized *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{OutcomeWriter: outcome, FinalizedWriter: finalized}
}

func (p *KafkaPublisher) PublishBidOutcome(ctx context.Context, e events.BidOutcome) error {
	if e.TsUnixMs == 0 {
		e.TsUnixMs = time.Now().UnixMilli()
	}
	b, _ := json.Marshal(e)
	return p.OutcomeWriter.WriteMessages(ctx, kafka.Message{Key: []byte(e.AuctionID), Value: b})
}

func (p *KafkaPublisher) PublishAuctionFinalized(ctx context.Context, e events.AuctionFinalized) error {
	if e.Ts.IsZero() {
		e.Ts = time.Now()
	}
	b, _ := json.Marshal(e)
	return p.FinalizedWriter.WriteMessages(ctx, kafka.Message{Key: []byte(e.AuctionID), Value: b})
}
