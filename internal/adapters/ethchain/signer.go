package ethchain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"hermes/internal/chain"
	"hermes/internal/domain/trade"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// ConfirmFunc gates a transaction before signing. Returning false
// counts as the operator rejecting the transaction.
type ConfirmFunc func(*trade.CallParameters) bool

// Signer signs and broadcasts transactions from a local key
type Signer struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	confirm ConfirmFunc
	log     *logger.Logger
}

// NewSigner creates a signer from a hex-encoded private key. confirm
// may be nil, in which case every transaction is signed unconditionally.
func NewSigner(client *ethclient.Client, privateKeyHex string, chainID int64, confirm ConfirmFunc) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}

	return &Signer{
		client:  client,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
		confirm: confirm,
		log:     logger.Get().With("component", "chain_signer"),
	}, nil
}

// Address returns the signing wallet's address
func (s *Signer) Address() common.Address {
	return s.address
}

// SendTransaction encodes, signs and broadcasts the call. Gas is
// estimated first, so a call the node can already see reverting is
// classified as reverted without spending gas.
func (s *Signer) SendTransaction(ctx context.Context, call *trade.CallParameters) (common.Hash, error) {
	if call == nil {
		return common.Hash{}, errors.Wrap(errors.ErrInvalidInput, "call parameters are required")
	}
	if s.confirm != nil && !s.confirm(call) {
		return common.Hash{}, errors.Wrapf(errors.ErrTxRejected, "%s to %s", call.Method, call.Contract.Hex())
	}

	data, err := encodeCall(call.Method, call.Args)
	if err != nil {
		return common.Hash{}, err
	}

	value := call.Value
	if value == nil {
		value = big.NewInt(0)
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, errors.Wrapf(errors.ErrRPCUnavailable, "nonce: %v", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, errors.Wrapf(errors.ErrRPCUnavailable, "gas price: %v", err)
	}

	gasLimit, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.address,
		To:    &call.Contract,
		Value: value,
		Data:  data,
	})
	if err != nil {
		// A failing estimate means the node simulated a revert
		return common.Hash{}, errors.Wrapf(errors.ErrTxReverted, "%s: %v", call.Method, err)
	}

	tx := types.NewTransaction(nonce, call.Contract, value, gasLimit*12/10, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "sign transaction")
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, errors.Wrapf(errors.ErrRPCUnavailable, "broadcast %s: %v", call.Method, err)
	}

	s.log.Infow("Transaction broadcast",
		"method", call.Method,
		"to", call.Contract.Hex(),
		"tx", signed.Hash().Hex(),
		"nonce", nonce,
	)
	return signed.Hash(), nil
}

// WaitMined polls for the transaction receipt until it lands or the
// context expires.
func (s *Signer) WaitMined(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(ctx, hash)
		if err == nil {
			mined := &chain.Receipt{
				Hash:   hash,
				Status: receipt.Status,
			}
			if receipt.BlockNumber != nil {
				mined.BlockNumber = receipt.BlockNumber.Uint64()
			}
			return mined, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, errors.Wrapf(errors.ErrRPCUnavailable, "receipt for %s: %v", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "waiting for %s", hash.Hex())
		case <-ticker.C:
		}
	}
}
