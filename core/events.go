package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType names a committed state change.
type EventType string

const (
	EventBidPlaced          EventType = "BidPlaced"
	EventBidUpdated         EventType = "BidUpdated"
	EventBidCanceled        EventType = "BidCanceled"
	EventAuctionStarted     EventType = "AuctionStarted"
	EventAuctionFinished    EventType = "AuctionFinished"
	EventBandsSet           EventType = "BandsSet"
	EventWeightBandsSet     EventType = "WeightBandsSet"
	EventCategorySet        EventType = "CategorySet"
	EventPassClaimed        EventType = "PassClaimed"
	EventPromotionMinted    EventType = "PromotionMinted"
	EventPromotionPurchased EventType = "PromotionPurchased"
	EventScionClaimed       EventType = "ScionClaimed"
	EventReroll             EventType = "Reroll"
	EventBatchSaleTriggered EventType = "BatchSaleTriggered"
	EventCreatureMinted     EventType = "CreatureMinted"
)

// Event is emitted once per committed change. Only the fields relevant to Type are set.
type Event struct {
	ID       uuid.UUID    `json:"id"`
	Seq      uint64       `json:"seq"`
	Type     EventType    `json:"type"`
	At       time.Time    `json:"at"`
	Actor    Address      `json:"actor"`
	BidIndex uint64       `json:"bid_index,omitempty"`
	PassID   uint64       `json:"pass_id,omitempty"`
	TokenID  uint64       `json:"token_id,omitempty"`
	Tier     Tier         `json:"tier,omitempty"`
	Version  uint64       `json:"version,omitempty"`
	Category *CategoryID  `json:"category,omitempty"`
	Value    *Amount      `json:"value,omitempty"`
	Previous *Amount      `json:"previous,omitempty"`
	Price    *Amount      `json:"price,omitempty"`
	Traits   []Trait      `json:"traits,omitempty"`
	Digest   string       `json:"digest,omitempty"`
	Line     CreatureLine `json:"line,omitempty"`
	Batch    uint64       `json:"batch,omitempty"`
}

func amountPtr(a Amount) *Amount {
	return &a
}

func categoryPtr(c CategoryID) *CategoryID {
	return &c
}

// MultiSink fans an event out to every sink in order.
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, event Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Publish(ctx, event)
		}
	}
}

// LogSink writes every event to a zap logger at info level.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Publish(_ context.Context, event Event) {
	s.Logger.Info("event committed",
		zap.String("type", string(event.Type)),
		zap.Uint64("seq", event.Seq),
		zap.String("id", event.ID.String()),
		zap.String("actor", string(event.Actor)),
		zap.Uint64("bid_index", event.BidIndex),
		zap.Uint64("pass_id", event.PassID),
		zap.Uint64("token_id", event.TokenID),
	)
}

type nopSink struct{}

func (nopSink) Publish(context.Context, Event) {}
