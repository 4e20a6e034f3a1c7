package contract

import (
	"bytes"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const slotAddress = "0x2222222222222222222222222222222222222222"

func TestNewSlotRejectsBadAddress(t *testing.T) {
	_, err := NewSlot("0x1234")
	assert.Error(t, err)
}

func TestPackPlayRoundTrip(t *testing.T) {
	slot, err := NewSlot(slotAddress)
	require.NoError(t, err)

	recipient := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	amount := big.NewInt(12_000_000_000_000_000)
	betID := big.NewInt(424242)

	data, err := slot.PackPlay(recipient, amount, betID)
	require.NoError(t, err)

	// play(address,address,uint256,bytes)
	selector := crypto.Keccak256([]byte("play(address,address,uint256,bytes)"))[:4]
	assert.Equal(t, selector, data[:4])

	gotRecipient, gotAmount, gotBet, err := slot.UnpackPlay(data)
	require.NoError(t, err)
	assert.Equal(t, recipient, gotRecipient)
	assert.Equal(t, 0, amount.Cmp(gotAmount))
	assert.Equal(t, 0, betID.Cmp(gotBet))
}

func TestPackExtraLayout(t *testing.T) {
	slot, err := NewSlot(slotAddress)
	require.NoError(t, err)

	extra, err := slot.PackExtra(big.NewInt(7))
	require.NoError(t, err)
	// six static words
	require.Len(t, extra, 6*32)
	assert.Equal(t, byte(0), extra[31])
	assert.Equal(t, byte(1), extra[63])
	assert.Equal(t, byte(0), extra[95])
	assert.Equal(t, byte(7), extra[127])
	assert.Equal(t, make([]byte, 64), extra[128:])
}

func TestUnpackPlayRejectsOtherCalldata(t *testing.T) {
	slot, err := NewSlot(slotAddress)
	require.NoError(t, err)

	_, _, _, err = slot.UnpackPlay([]byte{0x01})
	assert.Error(t, err)
	_, _, _, err = slot.UnpackPlay([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.Error(t, err)
}

func TestNewBetIDLayout(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	random := bytes.Repeat([]byte{0xff}, betRandomBytes)

	id, err := NewBetID(now, bytes.NewReader(random))
	require.NoError(t, err)

	assert.Equal(t, now.UnixMilli(), BetIDTime(id).UnixMilli())
	low := new(big.Int).And(id, new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1)))
	assert.Equal(t, new(big.Int).SetBytes(random), low)
}

func TestNewBetIDShortRandom(t *testing.T) {
	_, err := NewBetID(time.Now(), bytes.NewReader([]byte{1, 2}))
	assert.Error(t, err)
}

// Property: the timestamp survives the shift and ids from a later millisecond sort higher
func TestBetIDProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("timestamp is recoverable", prop.ForAll(
		func(ms int64) bool {
			id, err := NewBetID(time.UnixMilli(ms), nil)
			return err == nil && BetIDTime(id).UnixMilli() == ms
		},
		gen.Int64Range(0, 1<<45),
	))

	properties.Property("later millisecond sorts higher", prop.ForAll(
		func(ms int64) bool {
			a, errA := NewBetID(time.UnixMilli(ms), nil)
			b, errB := NewBetID(time.UnixMilli(ms+1), nil)
			return errA == nil && errB == nil && a.Cmp(b) < 0
		},
		gen.Int64Range(0, 1<<45),
	))

	properties.TestingRun(t)
}

func TestSignLegacyRecoversSender(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyHex := common.Bytes2Hex(crypto.FromECDSA(key))

	parsed, addr, err := ParseKey("0x" + keyHex)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), addr)

	chainID := big.NewInt(2020)
	to := common.HexToAddress(slotAddress)
	signed, raw, err := SignLegacy(TxParams{
		Nonce:    3,
		To:       to,
		Value:    big.NewInt(1),
		GasLimit: 800000,
		GasPrice: big.NewInt(25_000_000_000),
		Data:     []byte{0xaa},
	}, parsed, chainID)
	require.NoError(t, err)

	tx, from, err := DecodeRaw(raw, chainID)
	require.NoError(t, err)
	assert.Equal(t, addr, from)
	assert.Equal(t, signed.Hash(), tx.Hash())
	assert.Equal(t, uint64(3), tx.Nonce())
	assert.Equal(t, uint64(800000), tx.Gas())
	assert.Equal(t, 0, chainID.Cmp(tx.ChainId()))
	assert.Equal(t, &to, tx.To())
}

func TestParseKeyInvalid(t *testing.T) {
	_, _, err := ParseKey("not-a-key")
	assert.Error(t, err)
}
