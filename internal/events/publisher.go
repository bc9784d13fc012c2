// Package events publishes settlement commits to JetStream for downstream
// consumers (indexers, risk monitors, UIs).
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"PerpSettle/internal/engine"
	"PerpSettle/internal/fixed"
)

// SettlementEvent is the wire form of one committed version.
type SettlementEvent struct {
	ID        uuid.UUID `json:"id"`
	Market    string    `json:"market"`
	Timestamp int64     `json:"timestamp"`
	Price     fixed.Dec `json:"price"`
	Valid     bool      `json:"valid"`

	Maker fixed.Dec `json:"maker"`
	Long  fixed.Dec `json:"long"`
	Short fixed.Dec `json:"short"`

	ProtocolFee fixed.Dec `json:"protocol_fee"`
	OracleFee   fixed.Dec `json:"oracle_fee"`
	RiskFee     fixed.Dec `json:"risk_fee"`
	Exposure    fixed.Dec `json:"exposure"`
	Orders      int64     `json:"orders"`

	EmittedAt time.Time `json:"emitted_at"`
}

// Publisher turns engine commit events into JetStream messages. Publishing is
// fire-and-forget: a failed publish is logged, never blocks settlement.
type Publisher struct {
	js      nats.JetStreamContext
	subject string
	log     zerolog.Logger
}

func NewPublisher(js nats.JetStreamContext, subject string, log zerolog.Logger) *Publisher {
	return &Publisher{
		js:      js,
		subject: subject,
		log:     log.With().Str("component", "events").Logger(),
	}
}

// Hook adapts the publisher to the engine's commit hook.
func (p *Publisher) Hook() engine.CommitHook {
	return func(ev engine.CommitEvent) {
		msg := SettlementEvent{
			ID:        uuid.New(),
			Market:    ev.Market,
			Timestamp: ev.Version.Timestamp,
			Price:     ev.Version.Price,
			Valid:     ev.Version.Valid,

			Maker: ev.Position.Maker,
			Long:  ev.Position.Long,
			Short: ev.Position.Short,

			ProtocolFee: ev.Global.ProtocolFee,
			OracleFee:   ev.Global.OracleFee,
			RiskFee:     ev.Global.RiskFee,
			Exposure:    ev.Global.Exposure,
			Orders:      ev.Orders,

			EmittedAt: time.Now().UTC(),
		}
		body, err := json.Marshal(msg)
		if err != nil {
			p.log.Error().Err(err).Msg("event marshal failed")
			return
		}
		subject := p.subject + "." + ev.Market
		if _, err := p.js.PublishAsync(subject, body); err != nil {
			p.log.Error().Err(err).Str("subject", subject).Msg("event publish failed")
		}
	}
}
