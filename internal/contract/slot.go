// Package contract encodes calls to the slot contract and signs the resulting transactions.
package contract

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Only the entry point the automator calls is declared.
const slotABI = `[
	{
		"type": "function",
		"name": "play",
		"stateMutability": "payable",
		"inputs": [
			{"name": "recipient", "type": "address"},
			{"name": "token", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "extra", "type": "bytes"}
		],
		"outputs": []
	}
]`

// Slot is a binding to the slot contract at a fixed address
type Slot struct {
	address common.Address
	abi     abi.ABI
	extra   abi.Arguments
}

// NewSlot parses the ABI and binds it to address
func NewSlot(address string) (*Slot, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid slot contract address %q", address)
	}

	parsed, err := abi.JSON(strings.NewReader(slotABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	extra, err := extraArguments()
	if err != nil {
		return nil, err
	}

	return &Slot{
		address: common.HexToAddress(address),
		abi:     parsed,
		extra:   extra,
	}, nil
}

// extraArguments describes the opaque bytes argument of play:
// (uint8, uint8, uint8, uint256 gameId, uint256, address)
func extraArguments() (abi.Arguments, error) {
	uint8Type, err := abi.NewType("uint8", "", nil)
	if err != nil {
		return nil, err
	}
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return nil, err
	}
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, err
	}
	return abi.Arguments{
		{Type: uint8Type},
		{Type: uint8Type},
		{Type: uint8Type},
		{Type: uint256Type},
		{Type: uint256Type},
		{Type: addressType},
	}, nil
}

// Address returns the bound contract address
func (s *Slot) Address() common.Address {
	return s.address
}

// PackExtra encodes the game selector tuple carrying betID
func (s *Slot) PackExtra(betID *big.Int) ([]byte, error) {
	extra, err := s.extra.Pack(uint8(0), uint8(1), uint8(0), betID, big.NewInt(0), common.Address{})
	if err != nil {
		return nil, fmt.Errorf("failed to pack extra: %w", err)
	}
	return extra, nil
}

// PackPlay encodes play(recipient, 0x0, amount, extra) for a native token bet
func (s *Slot) PackPlay(recipient common.Address, amount, betID *big.Int) ([]byte, error) {
	extra, err := s.PackExtra(betID)
	if err != nil {
		return nil, err
	}
	data, err := s.abi.Pack("play", recipient, common.Address{}, amount, extra)
	if err != nil {
		return nil, fmt.Errorf("failed to pack play: %w", err)
	}
	return data, nil
}

// UnpackPlay decodes calldata produced by PackPlay, returning recipient, amount and bet id
func (s *Slot) UnpackPlay(data []byte) (common.Address, *big.Int, *big.Int, error) {
	if len(data) < 4 {
		return common.Address{}, nil, nil, fmt.Errorf("calldata too short")
	}
	method, err := s.abi.MethodById(data[:4])
	if err != nil || method.Name != "play" {
		return common.Address{}, nil, nil, fmt.Errorf("calldata is not a play call")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, nil, nil, fmt.Errorf("failed to unpack play: %w", err)
	}
	extra, err := s.extra.Unpack(args[3].([]byte))
	if err != nil {
		return common.Address{}, nil, nil, fmt.Errorf("failed to unpack extra: %w", err)
	}
	return args[0].(common.Address), args[2].(*big.Int), extra[3].(*big.Int), nil
}
