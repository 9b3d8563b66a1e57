package meteora

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"

	"dlmm-rebalancer/internal/solana"
)

// Anchor instruction discriminators: sha256("global:<name>")[0:8].
var (
	discRemoveLiquidity = anchorDiscriminator("remove_liquidity_by_range")
	discAddLiquidity    = anchorDiscriminator("add_liquidity_by_strategy")
	discClaimFee        = anchorDiscriminator("claim_fee")
)

func anchorDiscriminator(name string) []byte {
	hash := sha256.Sum256([]byte("global:" + name))
	return hash[:8]
}

// WalletBuilder assembles and signs DLMM transactions with a local wallet
// keypair. Implements TxBuilder.
type WalletBuilder struct {
	rpc     solana.RPCClient
	private ed25519.PrivateKey
	wallet  []byte // public key bytes
}

// NewWalletBuilder creates a WalletBuilder from a base58-encoded ed25519
// secret key (64 bytes: seed followed by public key).
func NewWalletBuilder(rpc solana.RPCClient, secretKey string) (*WalletBuilder, error) {
	raw, err := base58.Decode(secretKey)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	private := ed25519.PrivateKey(raw)
	return &WalletBuilder{
		rpc:     rpc,
		private: private,
		wallet:  private.Public().(ed25519.PublicKey),
	}, nil
}

// Compile-time interface check.
var _ TxBuilder = (*WalletBuilder)(nil)

// Wallet returns the base58 wallet address.
func (b *WalletBuilder) Wallet() string {
	return base58.Encode(b.wallet)
}

// BuildRemoveLiquidity builds a signed remove_liquidity_by_range transaction.
func (b *WalletBuilder) BuildRemoveLiquidity(ctx context.Context, positionID string, bps uint16) (string, error) {
	data := make([]byte, 0, 10)
	data = append(data, discRemoveLiquidity...)
	data = binary.LittleEndian.AppendUint16(data, bps)

	return b.buildAndSign(ctx, data, positionID)
}

// BuildAddLiquidity builds a signed add_liquidity_by_strategy transaction.
// The bin arrays covering the target range ride along as instruction
// accounts so the program can initialize liquidity across them.
func (b *WalletBuilder) BuildAddLiquidity(ctx context.Context, pool string, lowerBin, upperBin int32, amountX, amountY uint64) (string, error) {
	data := make([]byte, 0, 32)
	data = append(data, discAddLiquidity...)
	data = binary.LittleEndian.AppendUint32(data, uint32(lowerBin))
	data = binary.LittleEndian.AppendUint32(data, uint32(upperBin))
	data = binary.LittleEndian.AppendUint64(data, amountX)
	data = binary.LittleEndian.AppendUint64(data, amountY)

	extra := []string{pool}
	for idx := binArrayIndex(lowerBin); idx <= binArrayIndex(upperBin); idx++ {
		if pda := deriveBinArrayPDA(pool, idx); pda != "" {
			extra = append(extra, pda)
		}
	}

	return b.buildAndSign(ctx, data, extra...)
}

// BuildCollectFees builds a signed claim_fee transaction.
func (b *WalletBuilder) BuildCollectFees(ctx context.Context, positionID string) (string, error) {
	data := make([]byte, 0, 8)
	data = append(data, discClaimFee...)

	return b.buildAndSign(ctx, data, positionID)
}

// buildAndSign assembles a legacy Solana transaction with one instruction:
// the wallet as fee payer and signer, the given accounts as writable
// non-signers and the DLMM program last.
func (b *WalletBuilder) buildAndSign(ctx context.Context, instructionData []byte, accounts ...string) (string, error) {
	blockhash, err := b.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("get blockhash: %w", err)
	}
	blockhashBytes, err := base58.Decode(blockhash)
	if err != nil || len(blockhashBytes) != 32 {
		return "", fmt.Errorf("malformed blockhash %q", blockhash)
	}

	programBytes, err := base58.Decode(ProgramID)
	if err != nil {
		return "", fmt.Errorf("decode program id: %w", err)
	}

	// Account keys: wallet (writable signer), then instruction accounts
	// (writable), then the program (readonly).
	keys := [][]byte{b.wallet}
	for _, acct := range accounts {
		acctBytes, err := base58.Decode(acct)
		if err != nil || len(acctBytes) != 32 {
			return "", fmt.Errorf("malformed account %q", acct)
		}
		keys = append(keys, acctBytes)
	}
	keys = append(keys, programBytes)

	msg := make([]byte, 0, 256)

	// Header: 1 required signature, 0 readonly signed, 1 readonly unsigned
	// (the program).
	msg = append(msg, 1, 0, 1)

	msg = appendShortvecLen(msg, len(keys))
	for _, key := range keys {
		msg = append(msg, key...)
	}

	msg = append(msg, blockhashBytes...)

	// One instruction: program index is last, account indexes cover the
	// wallet and the instruction accounts.
	msg = appendShortvecLen(msg, 1)
	msg = append(msg, byte(len(keys)-1))
	msg = appendShortvecLen(msg, len(keys)-1)
	for i := 0; i < len(keys)-1; i++ {
		msg = append(msg, byte(i))
	}
	msg = appendShortvecLen(msg, len(instructionData))
	msg = append(msg, instructionData...)

	signature := ed25519.Sign(b.private, msg)

	tx := make([]byte, 0, len(signature)+len(msg)+1)
	tx = appendShortvecLen(tx, 1)
	tx = append(tx, signature...)
	tx = append(tx, msg...)

	return base64.StdEncoding.EncodeToString(tx), nil
}

// appendShortvecLen appends a compact-u16 length prefix.
func appendShortvecLen(b []byte, n int) []byte {
	for {
		if n < 0x80 {
			return append(b, byte(n))
		}
		b = append(b, byte(n&0x7f)|0x80)
		n >>= 7
	}
}
