package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// Backend is the slice of an Ethereum client the wallet needs.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

type WalletConfig struct {
	PrivateKey string // hex, with or without 0x

	// ChainID pins the signer's chain; nil asks the node.
	ChainID *big.Int

	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	MaxPoll        time.Duration

	Logger *logrus.Logger
}

type Wallet struct {
	cfg     WalletConfig
	backend Backend
	key     *ecdsa.PrivateKey
	addr    common.Address
	chainID *big.Int
	logger  *logrus.Logger
}

func NewWallet(ctx context.Context, cfg WalletConfig, backend Backend) (*Wallet, error) {
	if backend == nil {
		return nil, fmt.Errorf("wallet: backend is required")
	}
	if strings.TrimSpace(cfg.PrivateKey) == "" {
		return nil, fmt.Errorf("wallet: PrivateKey is required")
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 3 * time.Minute
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.MaxPoll == 0 {
		cfg.MaxPoll = 4 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	key, err := ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	chainID := cfg.ChainID
	if chainID == nil || chainID.Sign() == 0 {
		chainID, err = backend.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("wallet: chain id: %w", err)
		}
	}

	return &Wallet{
		cfg:     cfg,
		backend: backend,
		key:     key,
		addr:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		logger:  cfg.Logger,
	}, nil
}

func (w *Wallet) Address() common.Address { return w.addr }
func (w *Wallet) ChainID() *big.Int       { return new(big.Int).Set(w.chainID) }
func (w *Wallet) Close() error            { return nil }

// TransactOpts returns fresh signing options bound to ctx. Nonce, gas and
// fees are left for the contract binding to fill from the node.
func (w *Wallet) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, w.chainID)
	if err != nil {
		return nil, fmt.Errorf("wallet: transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Balance returns the native balance in wei.
func (w *Wallet) Balance(ctx context.Context) (*big.Int, error) {
	bal, err := w.backend.BalanceAt(ctx, w.addr, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_getBalance failed: %w", err)
	}
	return bal, nil
}

// ParsePrivateKey accepts a secp256k1 key as 64 hex chars, 0x prefix optional.
func ParsePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 64 {
		return nil, fmt.Errorf("wallet: expected 64 hex chars, got %d", len(s))
	}
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid hex private key: %w", err)
	}
	return key, nil
}
