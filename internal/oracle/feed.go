package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"PerpSettle/internal/fixed"
)

// feedMessage is the wire form of one committed price version.
type feedMessage struct {
	Market        string `json:"market"`
	Timestamp     int64  `json:"timestamp"`
	Price         string `json:"price"`
	Valid         bool   `json:"valid"`
	SettlementFee string `json:"settlement_fee"`
	OracleFee     string `json:"oracle_fee"`
}

// CommitFunc receives each decoded version in feed order.
type CommitFunc func(market string, pv PriceVersion, receipt Receipt) error

// Feed consumes committed price versions from a JetStream stream and hands
// them to the engine. Durable consumer with explicit acks: a version is acked
// only once the engine has applied it, so a restart replays from the last
// applied version.
type Feed struct {
	js      nats.JetStreamContext
	subject string
	durable string
	commit  CommitFunc
	log     zerolog.Logger

	sub *nats.Subscription
}

func NewFeed(js nats.JetStreamContext, subject, durable string, commit CommitFunc, log zerolog.Logger) *Feed {
	return &Feed{
		js:      js,
		subject: subject,
		durable: durable,
		commit:  commit,
		log:     log.With().Str("component", "oracle_feed").Logger(),
	}
}

// Start subscribes and processes until ctx is cancelled.
func (f *Feed) Start(ctx context.Context) error {
	sub, err := f.js.Subscribe(f.subject, f.handle,
		nats.Durable(f.durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.DeliverAll(),
		nats.MaxAckPending(1),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", f.subject, err)
	}
	f.sub = sub
	f.log.Info().Str("subject", f.subject).Str("durable", f.durable).Msg("oracle feed started")

	<-ctx.Done()
	return f.sub.Drain()
}

func (f *Feed) handle(msg *nats.Msg) {
	var fm feedMessage
	if err := json.Unmarshal(msg.Data, &fm); err != nil {
		f.log.Error().Err(err).Msg("undecodable price version, dropping")
		_ = msg.Term()
		return
	}

	pv, receipt, err := fm.decode()
	if err != nil {
		f.log.Error().Err(err).Str("market", fm.Market).Int64("timestamp", fm.Timestamp).
			Msg("malformed price version, dropping")
		_ = msg.Term()
		return
	}

	if err := f.commit(fm.Market, pv, receipt); err != nil {
		f.log.Error().Err(err).Str("market", fm.Market).Int64("timestamp", pv.Timestamp).
			Msg("commit failed, redelivering")
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

func (fm *feedMessage) decode() (PriceVersion, Receipt, error) {
	if fm.Timestamp <= 0 {
		return PriceVersion{}, Receipt{}, fmt.Errorf("timestamp %d out of range", fm.Timestamp)
	}

	pv := PriceVersion{Timestamp: fm.Timestamp, Valid: fm.Valid}
	var receipt Receipt
	var err error

	if fm.Valid {
		if pv.Price, err = fixed.Parse(fm.Price); err != nil {
			return PriceVersion{}, Receipt{}, fmt.Errorf("price: %w", err)
		}
		if pv.Price.Sign() <= 0 {
			return PriceVersion{}, Receipt{}, fmt.Errorf("price %s not positive", pv.Price)
		}
	}
	if fm.SettlementFee != "" {
		if receipt.SettlementFee, err = fixed.Parse(fm.SettlementFee); err != nil {
			return PriceVersion{}, Receipt{}, fmt.Errorf("settlement fee: %w", err)
		}
	}
	if fm.OracleFee != "" {
		if receipt.OracleFee, err = fixed.Parse(fm.OracleFee); err != nil {
			return PriceVersion{}, Receipt{}, fmt.Errorf("oracle fee: %w", err)
		}
	}
	return pv, receipt, nil
}
