package ingestion

import (
	"context"
	"fmt"
	"time"

	"QuoteLedger/internal/event"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds raw chain
// events into the processing loop via the eventChan. Each subject carries one
// event kind so consumers can lag independently.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
	logger    zerolog.Logger
}

// RawEvent is a NATS message awaiting parse and dispatch. IngestID correlates
// log lines for one message across the parse and apply stages.
type RawEvent struct {
	IngestID string
	Subject  string
	Data     []byte
	Received time.Time
	AckFunc  func() // ACK after the event is applied (or safely skipped)
	NakFunc  func() // NAK on failure, message will be redelivered
}

// SubjectConfig binds a NATS subject to the event kind its payloads decode to.
type SubjectConfig struct {
	Subject      string
	EventKind    event.Kind
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject layout: one subject per event
// kind, grouped into streams by concern.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "symmio.balances.deposit.>", EventKind: event.KindDeposit, ConsumerName: "ql-deposit", StreamName: "SYMMIO_BALANCES"},
		{Subject: "symmio.balances.withdraw.>", EventKind: event.KindWithdraw, ConsumerName: "ql-withdraw", StreamName: "SYMMIO_BALANCES"},
		{Subject: "symmio.balances.allocate.>", EventKind: event.KindAllocatePartyA, ConsumerName: "ql-allocate", StreamName: "SYMMIO_BALANCES"},
		{Subject: "symmio.balances.deallocate.>", EventKind: event.KindDeallocatePartyA, ConsumerName: "ql-deallocate", StreamName: "SYMMIO_BALANCES"},
		{Subject: "symmio.balances.allocate_party_b.>", EventKind: event.KindAllocatePartyB, ConsumerName: "ql-allocate-pb", StreamName: "SYMMIO_BALANCES"},
		{Subject: "symmio.balances.allocate_for_party_b.>", EventKind: event.KindAllocateForPartyB, ConsumerName: "ql-allocate-for-pb", StreamName: "SYMMIO_BALANCES"},
		{Subject: "symmio.balances.deallocate_for_party_b.>", EventKind: event.KindDeallocateForPartyB, ConsumerName: "ql-deallocate-for-pb", StreamName: "SYMMIO_BALANCES"},

		{Subject: "symmio.quotes.send.>", EventKind: event.KindSendQuote, ConsumerName: "ql-send-quote", StreamName: "SYMMIO_QUOTES"},
		{Subject: "symmio.quotes.lock.>", EventKind: event.KindLockQuote, ConsumerName: "ql-lock-quote", StreamName: "SYMMIO_QUOTES"},
		{Subject: "symmio.quotes.unlock.>", EventKind: event.KindUnlockQuote, ConsumerName: "ql-unlock-quote", StreamName: "SYMMIO_QUOTES"},
		{Subject: "symmio.quotes.accept_cancel.>", EventKind: event.KindAcceptCancelRequest, ConsumerName: "ql-accept-cancel", StreamName: "SYMMIO_QUOTES"},
		{Subject: "symmio.quotes.expire.>", EventKind: event.KindExpireQuote, ConsumerName: "ql-expire", StreamName: "SYMMIO_QUOTES"},
		{Subject: "symmio.quotes.request_cancel.>", EventKind: event.KindRequestToCancelQuote, ConsumerName: "ql-request-cancel", StreamName: "SYMMIO_QUOTES"},
		{Subject: "symmio.quotes.request_close.>", EventKind: event.KindRequestToClosePosition, ConsumerName: "ql-request-close", StreamName: "SYMMIO_QUOTES"},
		{Subject: "symmio.quotes.request_cancel_close.>", EventKind: event.KindRequestToCancelCloseRequest, ConsumerName: "ql-request-cancel-close", StreamName: "SYMMIO_QUOTES"},
		{Subject: "symmio.quotes.accept_cancel_close.>", EventKind: event.KindAcceptCancelCloseRequest, ConsumerName: "ql-accept-cancel-close", StreamName: "SYMMIO_QUOTES"},
		{Subject: "symmio.quotes.open.>", EventKind: event.KindOpenPosition, ConsumerName: "ql-open", StreamName: "SYMMIO_QUOTES"},
		{Subject: "symmio.quotes.fill_close.>", EventKind: event.KindFillCloseRequest, ConsumerName: "ql-fill-close", StreamName: "SYMMIO_QUOTES"},
		{Subject: "symmio.quotes.force_close.>", EventKind: event.KindForceClosePosition, ConsumerName: "ql-force-close", StreamName: "SYMMIO_QUOTES"},
		{Subject: "symmio.quotes.emergency_close.>", EventKind: event.KindEmergencyClosePosition, ConsumerName: "ql-emergency-close", StreamName: "SYMMIO_QUOTES"},

		{Subject: "symmio.funding.charge.>", EventKind: event.KindChargeFundingRate, ConsumerName: "ql-funding", StreamName: "SYMMIO_FUNDING"},

		{Subject: "symmio.liquidations.positions_party_a.>", EventKind: event.KindLiquidatePositionsPartyA, ConsumerName: "ql-liq-pos-a", StreamName: "SYMMIO_LIQUIDATIONS"},
		{Subject: "symmio.liquidations.positions_party_b.>", EventKind: event.KindLiquidatePositionsPartyB, ConsumerName: "ql-liq-pos-b", StreamName: "SYMMIO_LIQUIDATIONS"},
		{Subject: "symmio.liquidations.party_a.>", EventKind: event.KindLiquidatePartyA, ConsumerName: "ql-liq-a", StreamName: "SYMMIO_LIQUIDATIONS"},
		{Subject: "symmio.liquidations.party_b.>", EventKind: event.KindLiquidatePartyB, ConsumerName: "ql-liq-b", StreamName: "SYMMIO_LIQUIDATIONS"},
		{Subject: "symmio.liquidations.set_prices.>", EventKind: event.KindSetSymbolsPrices, ConsumerName: "ql-liq-prices", StreamName: "SYMMIO_LIQUIDATIONS"},
		{Subject: "symmio.liquidations.dispute.>", EventKind: event.KindDisputeForLiquidation, ConsumerName: "ql-liq-dispute", StreamName: "SYMMIO_LIQUIDATIONS"},

		{Subject: "symmio.admin.add_symbol.>", EventKind: event.KindAddSymbol, ConsumerName: "ql-add-symbol", StreamName: "SYMMIO_ADMIN"},
		{Subject: "symmio.admin.set_fee.>", EventKind: event.KindSetSymbolTradingFee, ConsumerName: "ql-set-fee", StreamName: "SYMMIO_ADMIN"},
		{Subject: "symmio.admin.role_granted.>", EventKind: event.KindRoleGranted, ConsumerName: "ql-role-granted", StreamName: "SYMMIO_ADMIN"},
		{Subject: "symmio.admin.role_revoked.>", EventKind: event.KindRoleRevoked, ConsumerName: "ql-role-revoked", StreamName: "SYMMIO_ADMIN"},
	}
}

// KindForSubject resolves a concrete message subject against the configured
// subject patterns. Patterns end in ".>" so a prefix match is enough.
func KindForSubject(subject string, subjects []SubjectConfig) (event.Kind, bool) {
	for _, cfg := range subjects {
		prefix := cfg.Subject[:len(cfg.Subject)-1] // strip the trailing ">"
		if len(subject) >= len(prefix) && subject[:len(prefix)] == prefix {
			return cfg.EventKind, true
		}
	}
	return event.KindUnknown, false
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent, logger zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
		logger:    logger,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				IngestID: uuid.NewString(),
				Subject:  msg.Subject(),
				Data:     msg.Data(),
				Received: time.Now(),
				AckFunc:  func() { msg.Ack() },
				NakFunc:  func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.logger.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "SYMMIO_BALANCES",
			Subjects:  []string{"symmio.balances.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "SYMMIO_QUOTES",
			Subjects:  []string{"symmio.quotes.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "SYMMIO_FUNDING",
			Subjects:  []string{"symmio.funding.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "SYMMIO_LIQUIDATIONS",
			Subjects:  []string{"symmio.liquidations.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "SYMMIO_ADMIN",
			Subjects:  []string{"symmio.admin.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		logger.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.logger.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
