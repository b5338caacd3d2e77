package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/gfranco/auction-platform-poc/internal/auction-service/notify"
	"github.com/gfranco/auction-platform-poc/internal/shared/config"
	"github.com/gfranco/auction-platform-poc/internal/shared/kafka"
	"github.com/gfranco/auction-platform-poc/internal/shared/logger"
	"github.com/gfranco/auction-platform-poc/internal/shared/metrics"
	ev "github.com/gfranco/auction-platform-poc/pkg/contracts/events"
)

// Worker assíncrono: consome bid_outcome e avisa o arrematante anterior
// que foi coberto. Fica fora do caminho do lance de propósito — falha de
// notificação nunca toca um lance já commitado.
func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicBidOutcome, "outbid-notify")
	defer reader.Close()

	var dlqWriter *kafkago.Writer
	if cfg.TopicBidOutcomeDLQ != "" {
		dlqWriter = kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBidOutcomeDLQ)
		defer dlqWriter.Close()
	}

	notifier := notify.New(cfg.NotifierURL)

	metrics.StartMetricsServer(cfg.MetricsPort, func(context.Context) error { return nil })

	log.Info("outbid-notify-worker started", zap.String("consume", cfg.TopicBidOutcome))

	ctx := context.Background()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			log.Warn("kafka read", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		var outcome ev.BidOutcome
		if jerr := json.Unmarshal(msg.Value, &outcome); jerr != nil {
			log.Error("unmarshal bid_outcome", zap.Error(jerr))
			continue
		}

		if err := processOne(ctx, notifier, &outcome); err != nil {
			log.Error("notify outbid",
				zap.String("auctionId", outcome.AuctionID),
				zap.String("previousWinnerId", outcome.PreviousWinnerID),
				zap.Error(err),
			)
			if dlqWriter != nil {
				_ = kafka.WriteJSON(ctx, dlqWriter, outcome.AuctionID, msg.Value)
			}
		}
	}
}

// processOne avisa o arrematante anterior; sem destinatário (primeiro lance
// ou o mesmo bidder subindo o próprio preço) não há o que fazer.
func processOne(ctx context.Context, notifier *notify.Client, outcome *ev.BidOutcome) error {
	if outcome.PreviousWinnerID == "" || outcome.PreviousWinnerID == outcome.WinnerID {
		return nil
	}

	subject := "You have been outbid"
	body := fmt.Sprintf("A new bid of %d cents leads auction %s.", outcome.AmountCents, outcome.AuctionID)

	// Retry simples antes do DLQ
	const retries = 3
	var err error
	for i := 0; i < retries; i++ {
		if err = notifier.SendEmail(ctx, outcome.PreviousWinnerID, subject, body); err == nil {
			return nil
		}
		time.Sleep(time.Duration(300*(i+1)) * time.Millisecond)
	}
	return err
}
