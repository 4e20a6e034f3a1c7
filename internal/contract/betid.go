package contract

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"
)

// betRandomBytes is the width of the random low part of a bet id
const betRandomBytes = 12

// NewBetID builds (unix millis << 96) | 96 random bits.
// Ids are unique per submission and sort by creation time.
func NewBetID(now time.Time, random io.Reader) (*big.Int, error) {
	if random == nil {
		random = rand.Reader
	}

	buf := make([]byte, betRandomBytes)
	if _, err := io.ReadFull(random, buf); err != nil {
		return nil, fmt.Errorf("failed to read randomness: %w", err)
	}

	id := new(big.Int).Lsh(big.NewInt(now.UnixMilli()), betRandomBytes*8)
	return id.Or(id, new(big.Int).SetBytes(buf)), nil
}

// BetIDTime extracts the millisecond timestamp from a bet id
func BetIDTime(id *big.Int) time.Time {
	return time.UnixMilli(new(big.Int).Rsh(id, betRandomBytes*8).Int64())
}
