package contract

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ParseKey decodes a hex private key (with or without 0x) and derives its address
func ParseKey(privateKeyHex string) (*ecdsa.PrivateKey, common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("invalid private key: %w", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}

// TxParams are the fixed fields of a legacy transaction
type TxParams struct {
	Nonce    uint64
	To       common.Address
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
	Data     []byte
}

// SignLegacy builds a legacy transaction and signs it with EIP-155 replay protection.
// It returns the signed transaction and its RLP encoding.
func SignLegacy(p TxParams, key *ecdsa.PrivateKey, chainID *big.Int) (*ethtypes.Transaction, []byte, error) {
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    p.Nonce,
		To:       &p.To,
		Value:    p.Value,
		Gas:      p.GasLimit,
		GasPrice: p.GasPrice,
		Data:     p.Data,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(chainID), key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	return signed, raw, nil
}

// DecodeRaw parses a signed transaction and recovers its sender
func DecodeRaw(raw []byte, chainID *big.Int) (*ethtypes.Transaction, common.Address, error) {
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to decode transaction: %w", err)
	}
	from, err := ethtypes.Sender(ethtypes.NewEIP155Signer(chainID), tx)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to recover sender: %w", err)
	}
	return tx, from, nil
}
