package meteora

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// LbPair account layout offsets (after the 8-byte anchor discriminator):
// - static parameters: 32 bytes
// - variable parameters: 32 bytes
// - bump_seed: 1 byte, bin_step_seed: 2 bytes, pair_type: 1 byte
// - active_id: i32
// - bin_step: u16
// - status + activation flags: 6 bytes
// - token_x_mint: Pubkey (32 bytes)
// - token_y_mint: Pubkey (32 bytes)
const (
	lbPairMinLen         = 152
	lbPairActiveIDOffset = 76
	lbPairBinStepOffset  = 80
	lbPairTokenXOffset   = 88
	lbPairTokenYOffset   = 120
)

// lbPairState is the decoded slice of an LbPair account the rebalancer needs.
type lbPairState struct {
	ActiveID   int32
	BinStep    uint16
	TokenXMint string
	TokenYMint string
}

// decodeLbPair parses a base64-encoded LbPair account.
func decodeLbPair(data string) (*lbPairState, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode lb pair data: %w", err)
	}
	if len(decoded) < lbPairMinLen {
		return nil, fmt.Errorf("lb pair data too short: %d", len(decoded))
	}

	return &lbPairState{
		ActiveID:   int32(binary.LittleEndian.Uint32(decoded[lbPairActiveIDOffset:])),
		BinStep:    binary.LittleEndian.Uint16(decoded[lbPairBinStepOffset:]),
		TokenXMint: base58.Encode(decoded[lbPairTokenXOffset : lbPairTokenXOffset+32]),
		TokenYMint: base58.Encode(decoded[lbPairTokenYOffset : lbPairTokenYOffset+32]),
	}, nil
}

// DecodePoolState parses the active bin and bin step from a base64-encoded
// LbPair account. Used by the price feed, which receives raw account data
// over the WebSocket subscription.
func DecodePoolState(data string) (activeID int32, binStep uint16, err error) {
	state, err := decodeLbPair(data)
	if err != nil {
		return 0, 0, err
	}
	return state.ActiveID, state.BinStep, nil
}

// SPL Token Mint layout (82 bytes):
// - mintAuthority: Option<Pubkey> (36 bytes: 4 + 32)
// - supply: u64 (8 bytes)
// - decimals: u8 (1 byte)
// - isInitialized: bool (1 byte)
// - freezeAuthority: Option<Pubkey> (36 bytes: 4 + 32)
const (
	mintMinLen         = 82
	mintDecimalsOffset = 44
)

// decodeMintDecimals parses the decimals byte of a base64-encoded SPL mint.
func decodeMintDecimals(data string) (uint8, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return 0, fmt.Errorf("decode mint data: %w", err)
	}
	if len(decoded) < mintMinLen {
		return 0, fmt.Errorf("mint data too short: %d", len(decoded))
	}
	return decoded[mintDecimalsOffset], nil
}
