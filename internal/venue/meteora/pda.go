package meteora

import (
	"crypto/sha256"
	"encoding/binary"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// DLMM program ID on mainnet.
const ProgramID = "LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo"

// binsPerArray is the number of bins stored in one bin array account.
const binsPerArray = 70

// binArrayIndex returns the index of the array holding binID. Rounds toward
// negative infinity so negative bins land in the right array.
func binArrayIndex(binID int32) int64 {
	idx := int64(binID) / binsPerArray
	if binID < 0 && int64(binID)%binsPerArray != 0 {
		idx--
	}
	return idx
}

// deriveBinArrayPDA derives the bin array account for a pool and array index.
// Seeds: ["bin_array", lb_pair, index (i64 LE)].
func deriveBinArrayPDA(pool string, index int64) string {
	poolBytes, err := base58.Decode(pool)
	if err != nil || len(poolBytes) != 32 {
		return ""
	}
	programBytes, err := base58.Decode(ProgramID)
	if err != nil {
		return ""
	}

	indexBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(indexBytes, uint64(index))

	seeds := [][]byte{
		[]byte("bin_array"),
		poolBytes,
		indexBytes,
	}
	return derivePDA(seeds, programBytes)
}

// derivePDA derives a Program Derived Address using the Solana algorithm.
func derivePDA(seeds [][]byte, programID []byte) string {
	// PDA derivation algorithm:
	// 1. Concatenate all seeds with bump
	// 2. Append program ID and "ProgramDerivedAddress" marker
	// 3. SHA256 hash
	// 4. Find bump seed that results in off-curve point
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		// Check if point is off the ed25519 curve
		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:])
		}
	}

	return ""
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
