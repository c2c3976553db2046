package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/anand-gl/jsoncanonicalizer"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tansive/minima-mcp/internal/mds"
)

// NodeClient is the part of the MDS client the watcher polls.
type NodeClient interface {
	Status(ctx context.Context) (json.RawMessage, error)
	Balance(ctx context.Context, q mds.BalanceQuery) (json.RawMessage, error)
	Execute(ctx context.Context, name string, params ...mds.Param) (json.RawMessage, error)
}

// Watcher derives events from periodic node queries: NEWBLOCK when the chain tip moves,
// NEWBALANCE when the wallet balance changes, MDS_PENDING for newly parked commands and
// the MDS timer ticks. The first successful query of each source only records a baseline.
type Watcher struct {
	client   NodeClient
	mgr      *Manager
	interval time.Duration

	lastBlock   int64
	haveBlock   bool
	lastBalance []byte
	pending     map[string]bool
	havePending bool
	noPending   bool
	logger      zerolog.Logger
}

func NewWatcher(client NodeClient, mgr *Manager, interval time.Duration) *Watcher {
	return &Watcher{
		client:   client,
		mgr:      mgr,
		interval: interval,
		pending:  make(map[string]bool),
		logger:   log.With().Str("component", "watcher").Logger(),
	}
}

// Run polls until ctx is done. A zero interval disables the watcher.
func (w *Watcher) Run(ctx context.Context) {
	if w.interval <= 0 {
		w.logger.Info().Msg("event polling disabled")
		return
	}
	w.logger.Info().Dur("interval", w.interval).Msg("event watcher started")

	poll := time.NewTicker(w.interval)
	tick10 := time.NewTicker(10 * time.Second)
	tick1h := time.NewTicker(time.Hour)
	defer poll.Stop()
	defer tick10.Stop()
	defer tick1h.Stop()

	w.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("event watcher stopped")
			return
		case <-poll.C:
			w.Poll(ctx)
		case now := <-tick10.C:
			w.mgr.Record(Timer10s, map[string]any{"timemilli": now.UnixMilli()})
		case now := <-tick1h.C:
			w.mgr.Record(Timer1h, map[string]any{"timemilli": now.UnixMilli()})
		}
	}
}

// Poll runs one round of node queries. Failures are logged and the round skipped; they
// never stop the watcher.
func (w *Watcher) Poll(ctx context.Context) {
	w.pollBlock(ctx)
	w.pollBalance(ctx)
	w.pollPending(ctx)
}

func (w *Watcher) pollBlock(ctx context.Context) {
	raw, err := w.client.Status(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("status poll failed")
		return
	}
	status, err := mds.DecodeStatus(raw)
	if err != nil {
		w.logger.Warn().Err(err).Msg("unexpected status payload")
		return
	}
	block := status.Chain.Block
	if w.haveBlock && block != w.lastBlock {
		w.mgr.Record(NewBlock, map[string]any{
			"block":    block,
			"previous": w.lastBlock,
			"weight":   status.Chain.Weight,
		})
	}
	w.lastBlock = block
	w.haveBlock = true
}

func (w *Watcher) pollBalance(ctx context.Context) {
	raw, err := w.client.Balance(ctx, mds.BalanceQuery{})
	if err != nil {
		w.logger.Warn().Err(err).Msg("balance poll failed")
		return
	}
	// Key order and spacing vary between replies; compare canonical forms.
	canon, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		w.logger.Warn().Err(err).Msg("unable to canonicalize balance")
		return
	}
	if w.lastBalance != nil && string(canon) != string(w.lastBalance) {
		w.mgr.Record(NewBalance, map[string]json.RawMessage{
			"balance":  json.RawMessage(canon),
			"previous": json.RawMessage(w.lastBalance),
		})
	}
	w.lastBalance = canon
}

func (w *Watcher) pollPending(ctx context.Context) {
	if w.noPending {
		return
	}
	raw, err := w.client.Execute(ctx, "mds", mds.P("action", "pending"))
	if errors.Is(err, mds.ErrCommandFailed) {
		// Nodes without pending listing support answer status:false; stop asking.
		w.logger.Debug().Err(err).Msg("pending listing unavailable, disabling MDS_PENDING polling")
		w.noPending = true
		return
	}
	if err != nil {
		w.logger.Warn().Err(err).Msg("pending poll failed")
		return
	}
	seen := make(map[string]bool)
	for _, item := range mds.ListItems(raw, "pending") {
		uid := item.Get("uid").String()
		if uid == "" {
			continue
		}
		seen[uid] = true
		if w.havePending && !w.pending[uid] {
			w.mgr.Record(MDSPending, json.RawMessage(item.Raw))
		}
	}
	w.pending = seen
	w.havePending = true
}
