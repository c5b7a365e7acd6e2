package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// WaitMined polls for the transaction receipt until it appears, ctx ends,
// or the confirm timeout passes. A reverted receipt is returned as-is; the
// caller decides what a failed status means.
func (w *Wallet) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.ConfirmTimeout)
	defer cancel()

	hash := tx.Hash()
	backoff := w.cfg.PollInterval
	log := w.logger.WithField("tx", hash.Hex())

	for {
		receipt, err := w.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			log.WithFields(logrus.Fields{
				"block":    receipt.BlockNumber,
				"gas_used": receipt.GasUsed,
				"status":   receipt.Status,
			}).Debug("receipt found")
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			log.WithError(err).Debug("receipt lookup failed, will retry")
		}

		// Exponential backoff
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("transaction %s not mined after %v", hash.Hex(), w.cfg.ConfirmTimeout)
			}
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > w.cfg.MaxPoll {
				backoff = w.cfg.MaxPoll
			}
		}
	}
}
