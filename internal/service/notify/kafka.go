package notify

import (
	"context"
	"time"

	"TradePilot/internal/domain/models"
	drepo "TradePilot/internal/domain/repository"
	xkafka "TradePilot/pkg/kafka"
	xlogger "TradePilot/pkg/logger"
)

const publishTimeout = 2 * time.Second

// KafkaNotifier publishes trade lifecycle events to a Kafka topic.
// Publishing is fire-and-forget: a broker outage is logged and
// dropped, it never reaches the trading path.
type KafkaNotifier struct {
	producer *xkafka.Producer
	topic    string
	logger   *xlogger.Logger
}

func NewKafka(producer *xkafka.Producer, topic string, logger *xlogger.Logger) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic, logger: logger}
}

var _ drepo.Notifier = (*KafkaNotifier)(nil)

type tradeEvent struct {
	Type      string  `json:"type"`
	BotID     string  `json:"bot_id"`
	Symbol    string  `json:"symbol,omitempty"`
	Direction string  `json:"direction,omitempty"`
	Volume    float64 `json:"volume,omitempty"`
	Price     float64 `json:"price,omitempty"`
	Profit    float64 `json:"profit,omitempty"`
	Balance   float64 `json:"balance,omitempty"`
	Equity    float64 `json:"equity,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Time      int64   `json:"time_ms"`
}

func (n *KafkaNotifier) PositionOpened(pos models.Position, account models.AccountInfo) {
	n.publish(pos.BotID, tradeEvent{
		Type:      "position_opened",
		BotID:     pos.BotID,
		Symbol:    pos.Symbol,
		Direction: string(pos.Direction),
		Volume:    pos.Volume,
		Price:     pos.EntryPrice,
		Balance:   account.Balance,
		Equity:    account.Equity,
		Time:      time.Now().UnixMilli(),
	})
}

func (n *KafkaNotifier) PositionClosed(rec models.TradeRecord, account models.AccountInfo) {
	n.publish(rec.BotID, tradeEvent{
		Type:      "position_closed",
		BotID:     rec.BotID,
		Symbol:    rec.Symbol,
		Direction: string(rec.Direction),
		Volume:    rec.Volume,
		Price:     rec.ExitPrice,
		Profit:    rec.Profit,
		Balance:   account.Balance,
		Equity:    account.Equity,
		Reason:    rec.Reason,
		Time:      time.Now().UnixMilli(),
	})
}

func (n *KafkaNotifier) AllCleared(botID string, reason string) {
	n.publish(botID, tradeEvent{
		Type:   "all_cleared",
		BotID:  botID,
		Reason: reason,
		Time:   time.Now().UnixMilli(),
	})
}

func (n *KafkaNotifier) publish(key string, ev tradeEvent) {
	if n.producer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := n.producer.Publish(ctx, n.topic, []byte(key), ev); err != nil && n.logger != nil {
			n.logger.Warn("notify publish failed",
				xlogger.String("type", ev.Type), xlogger.Error(err))
		}
	}()
}
