// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/minichain/minichain/business/web/errs"
	"github.com/minichain/minichain/foundation/blockchain/database"
	"github.com/minichain/minichain/foundation/blockchain/state"
	"github.com/minichain/minichain/foundation/events"
	"github.com/minichain/minichain/foundation/validate"
	"github.com/minichain/minichain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of public node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
	WS    websocket.Upgrader
}

// Config returns the live chain parameters, including the current
// retargeted bits.
func (h Handlers) Config(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveGenesis(), http.StatusOK)
}

// Chain returns the entire chain in height order.
func (h Handlers) Chain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveChain(), http.StatusOK)
}

// Tip returns the last block, or null when the chain is empty.
func (h Handlers) Tip(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tip, exists := h.State.RetrieveLatestBlock()
	if !exists {
		return web.Respond(ctx, w, nil, http.StatusOK)
	}
	return web.Respond(ctx, w, tip, http.StatusOK)
}

// BlockByHeight returns the block at the requested height.
func (h Handlers) BlockByHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	height, err := strconv.ParseUint(web.Param(r, "height"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid height: %w", err), http.StatusBadRequest)
	}

	block, err := h.State.RetrieveBlock(height)
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	return web.Respond(ctx, w, block, http.StatusOK)
}

// Mempool returns the set of pending transactions in insertion order.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveMempool(), http.StatusOK)
}

// UTXOsByAddress returns the spendable outputs owned by an address.
func (h Handlers) UTXOsByAddress(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := strings.ToLower(web.Param(r, "address"))

	owned := h.State.RetrieveUTXOsByAddress(address)

	list := utxoList{UTXOs: make([]utxo, 0, len(owned))}
	for key, u := range owned {
		txid, index, err := splitOutpointKey(key)
		if err != nil {
			return err
		}
		list.UTXOs = append(list.UTXOs, utxo{
			TxID:        txid,
			Index:       index,
			Amount:      u.Amount,
			BlockHeight: u.BlockHeight,
			IsCoinbase:  u.IsCoinbase,
		})
	}

	// Map iteration order is not stable; wallets diff these responses.
	sort.Slice(list.UTXOs, func(i, j int) bool {
		if list.UTXOs[i].TxID != list.UTXOs[j].TxID {
			return list.UTXOs[i].TxID < list.UTXOs[j].TxID
		}
		return list.UTXOs[i].Index < list.UTXOs[j].Index
	})

	return web.Respond(ctx, w, list, http.StatusOK)
}

// TxByID returns a transaction by id from the chain or the mempool.
func (h Handlers) TxByID(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id := web.Param(r, "id")

	tx, height, found := h.State.QueryTx(id)
	if !found {
		return errs.NewTrusted(fmt.Errorf("transaction %s not found", id), http.StatusNotFound)
	}

	return web.Respond(ctx, w, txInfo{Tx: tx, BlockHeight: height}, http.StatusOK)
}

// Candidate returns an unsolved block template paying the address.
func (h Handlers) Candidate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := strings.ToLower(web.Param(r, "address"))

	block, err := h.State.BuildCandidate(address)
	if err != nil {
		return errs.NewTrusted(err, http.StatusInternalServerError)
	}

	return web.Respond(ctx, w, block, http.StatusOK)
}

// SubmitTransaction adds a signed transaction to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var app submitTx
	if err := web.Decode(r, &app); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	if err := validate.Check(app); err != nil {
		return err
	}

	id, err := h.State.SubmitWalletTransaction(app.toDatabase())
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("add tran", "traceid", v.TraceID, "id", id)
	h.Evts.Send(events.KindTx, "transaction submitted", id)

	return web.Respond(ctx, w, submitResult{OK: true, ID: id}, http.StatusOK)
}

// SubmitBlock accepts a solved block from a miner.
func (h Handlers) SubmitBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var block database.Block
	if err := web.Decode(r, &block); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	height, err := h.State.ProcessSubmittedBlock(block)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("add block", "traceid", v.TraceID, "height", height, "hash", block.Hash())
	h.Evts.Send(events.KindBlock, "block accepted", block)

	return web.Respond(ctx, w, blockResult{OK: true, Height: height}, http.StatusOK)
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(event.String())); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// =============================================================================

// splitOutpointKey breaks the "txid:index" map key back into its parts.
func splitOutpointKey(key string) (string, int, error) {
	txid, indexStr, found := strings.Cut(key, ":")
	if !found {
		return "", 0, errors.New("malformed outpoint key")
	}

	index, err := strconv.Atoi(indexStr)
	if err != nil {
		return "", 0, err
	}

	return txid, index, nil
}
