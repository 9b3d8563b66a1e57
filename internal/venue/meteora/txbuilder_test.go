package meteora

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/mr-tron/base58"

	solanastub "dlmm-rebalancer/internal/solana/stub"
)

func newTestBuilder(t *testing.T) (*WalletBuilder, ed25519.PublicKey) {
	t.Helper()
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	builder, err := NewWalletBuilder(solanastub.NewRPCClient(), base58.Encode(private))
	if err != nil {
		t.Fatalf("NewWalletBuilder: %v", err)
	}
	return builder, public
}

func TestNewWalletBuilder_RejectsBadKeys(t *testing.T) {
	rpc := solanastub.NewRPCClient()

	if _, err := NewWalletBuilder(rpc, "not base58 !!"); err == nil {
		t.Error("malformed base58 accepted")
	}
	if _, err := NewWalletBuilder(rpc, base58.Encode(make([]byte, 32))); err == nil {
		t.Error("32-byte key accepted, want 64-byte secret")
	}
}

func TestWalletBuilder_Wallet(t *testing.T) {
	builder, public := newTestBuilder(t)
	if builder.Wallet() != base58.Encode(public) {
		t.Errorf("Wallet() = %s, want %s", builder.Wallet(), base58.Encode(public))
	}
}

func TestWalletBuilder_SignatureVerifies(t *testing.T) {
	builder, public := newTestBuilder(t)

	encoded, err := builder.BuildRemoveLiquidity(context.Background(), testPubkey(3), 10000)
	if err != nil {
		t.Fatalf("BuildRemoveLiquidity: %v", err)
	}

	tx, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode tx: %v", err)
	}

	// Layout: shortvec sig count (1), 64-byte signature, then the message.
	if tx[0] != 1 {
		t.Fatalf("signature count = %d, want 1", tx[0])
	}
	signature := tx[1:65]
	message := tx[65:]

	if !ed25519.Verify(public, message, signature) {
		t.Fatal("signature does not verify against the message")
	}

	// Fee payer is the wallet: first account key after the 3-byte header
	// and the shortvec key count.
	keyCount := int(message[3])
	if keyCount != 3 { // wallet, position, program
		t.Fatalf("key count = %d, want 3", keyCount)
	}
	if !bytes.Equal(message[4:36], public) {
		t.Error("first account key is not the wallet")
	}

	// Instruction data starts with the remove_liquidity discriminator.
	if !bytes.Contains(message, discRemoveLiquidity) {
		t.Error("message does not carry the remove_liquidity discriminator")
	}
}

func TestWalletBuilder_AddLiquidityIncludesBinArrays(t *testing.T) {
	builder, _ := newTestBuilder(t)
	pool := testPubkey(7)

	encoded, err := builder.BuildAddLiquidity(context.Background(), pool, 60, 80, 1000, 2000)
	if err != nil {
		t.Fatalf("BuildAddLiquidity: %v", err)
	}

	tx, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode tx: %v", err)
	}
	message := tx[65:]

	// wallet + pool + two bin arrays (indexes 0 and 1) + program.
	if keyCount := int(message[3]); keyCount != 5 {
		t.Fatalf("key count = %d, want 5", keyCount)
	}

	arrayPDA, err := base58.Decode(deriveBinArrayPDA(pool, 0))
	if err != nil {
		t.Fatalf("decode PDA: %v", err)
	}
	if !bytes.Contains(message, arrayPDA) {
		t.Error("message does not carry the bin array PDA for index 0")
	}
}
