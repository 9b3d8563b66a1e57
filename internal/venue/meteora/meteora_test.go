package meteora

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"dlmm-rebalancer/internal/rangecalc"
	"dlmm-rebalancer/internal/solana"
	solanastub "dlmm-rebalancer/internal/solana/stub"
	"dlmm-rebalancer/internal/venue"
)

func testPubkey(seed byte) string {
	b := make([]byte, 32)
	for i := range b {
		b[i] = seed
	}
	return base58.Encode(b)
}

func lbPairData(activeID int32, binStep uint16, tokenX, tokenY string) string {
	data := make([]byte, lbPairMinLen)
	binary.LittleEndian.PutUint32(data[lbPairActiveIDOffset:], uint32(activeID))
	binary.LittleEndian.PutUint16(data[lbPairBinStepOffset:], binStep)
	xBytes, _ := base58.Decode(tokenX)
	yBytes, _ := base58.Decode(tokenY)
	copy(data[lbPairTokenXOffset:], xBytes)
	copy(data[lbPairTokenYOffset:], yBytes)
	return base64.StdEncoding.EncodeToString(data)
}

func mintData(decimals uint8) string {
	data := make([]byte, mintMinLen)
	data[mintDecimalsOffset] = decimals
	return base64.StdEncoding.EncodeToString(data)
}

type recordingBuilder struct {
	removes  []string
	adds     []string
	collects []string
	err      error
}

func (b *recordingBuilder) BuildRemoveLiquidity(_ context.Context, positionID string, bps uint16) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	tx := fmt.Sprintf("remove:%s:%d", positionID, bps)
	b.removes = append(b.removes, tx)
	return tx, nil
}

func (b *recordingBuilder) BuildAddLiquidity(_ context.Context, pool string, lowerBin, upperBin int32, amountX, amountY uint64) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	tx := fmt.Sprintf("add:%s:%d:%d:%d:%d", pool, lowerBin, upperBin, amountX, amountY)
	b.adds = append(b.adds, tx)
	return tx, nil
}

func (b *recordingBuilder) BuildCollectFees(_ context.Context, positionID string) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	tx := "collect:" + positionID
	b.collects = append(b.collects, tx)
	return tx, nil
}

func newVenue(rpc solana.RPCClient, builder TxBuilder, now func() time.Time) *Venue {
	return New(Options{
		RPC:     rpc,
		Builder: builder,
		Logger:  log.New(io.Discard, "", 0),
		Now:     now,
	})
}

func TestDecodeLbPair(t *testing.T) {
	tokenX := testPubkey(1)
	tokenY := testPubkey(2)

	state, err := decodeLbPair(lbPairData(-1500, 25, tokenX, tokenY))
	if err != nil {
		t.Fatalf("decodeLbPair: %v", err)
	}
	if state.ActiveID != -1500 {
		t.Errorf("ActiveID = %d, want -1500", state.ActiveID)
	}
	if state.BinStep != 25 {
		t.Errorf("BinStep = %d, want 25", state.BinStep)
	}
	if state.TokenXMint != tokenX || state.TokenYMint != tokenY {
		t.Errorf("mints = %s / %s", state.TokenXMint, state.TokenYMint)
	}

	if _, err := decodeLbPair(base64.StdEncoding.EncodeToString(make([]byte, 10))); err == nil {
		t.Error("short data accepted")
	}
	if _, err := decodeLbPair("not-base64!!"); err == nil {
		t.Error("malformed base64 accepted")
	}
}

func TestDecodeMintDecimals(t *testing.T) {
	d, err := decodeMintDecimals(mintData(9))
	if err != nil {
		t.Fatalf("decodeMintDecimals: %v", err)
	}
	if d != 9 {
		t.Errorf("decimals = %d, want 9", d)
	}

	if _, err := decodeMintDecimals(base64.StdEncoding.EncodeToString(make([]byte, 10))); err == nil {
		t.Error("short mint data accepted")
	}
}

func TestBinArrayIndex(t *testing.T) {
	cases := []struct {
		bin  int32
		want int64
	}{
		{0, 0},
		{69, 0},
		{70, 1},
		{139, 1},
		{-1, -1},
		{-70, -1},
		{-71, -2},
	}
	for _, tc := range cases {
		if got := binArrayIndex(tc.bin); got != tc.want {
			t.Errorf("binArrayIndex(%d) = %d, want %d", tc.bin, got, tc.want)
		}
	}
}

func TestDeriveBinArrayPDA(t *testing.T) {
	pool := testPubkey(7)

	pda := deriveBinArrayPDA(pool, 3)
	if pda == "" {
		t.Fatal("derivation failed")
	}

	decoded, err := base58.Decode(pda)
	if err != nil || len(decoded) != 32 {
		t.Fatalf("PDA %q is not a 32-byte base58 key", pda)
	}
	if isOnCurve(decoded) {
		t.Error("PDA is on the ed25519 curve")
	}

	if again := deriveBinArrayPDA(pool, 3); again != pda {
		t.Errorf("derivation not deterministic: %s vs %s", pda, again)
	}
	if other := deriveBinArrayPDA(pool, 4); other == pda {
		t.Error("different indices produced the same PDA")
	}

	if got := deriveBinArrayPDA("not a pubkey", 0); got != "" {
		t.Errorf("invalid pool produced PDA %q", got)
	}
}

func TestVenue_GetPoolConfig(t *testing.T) {
	pool := testPubkey(7)
	tokenX := testPubkey(1)
	tokenY := testPubkey(2)

	rpc := solanastub.NewRPCClient()
	rpc.SetAccount(pool, &solana.AccountInfo{Owner: ProgramID, Data: lbPairData(8195, 10, tokenX, tokenY)})
	rpc.SetAccount(tokenX, &solana.AccountInfo{Data: mintData(9)})
	rpc.SetAccount(tokenY, &solana.AccountInfo{Data: mintData(6)})

	v := newVenue(rpc, &recordingBuilder{}, nil)

	snap, err := v.GetPoolConfig(context.Background(), pool)
	if err != nil {
		t.Fatalf("GetPoolConfig: %v", err)
	}
	if snap.ActiveID != 8195 || snap.BinStep != 10 {
		t.Errorf("snapshot = activeID %d binStep %d", snap.ActiveID, snap.BinStep)
	}
	if snap.TokenX.Decimals != 9 || snap.TokenY.Decimals != 6 {
		t.Errorf("decimals = %d / %d, want 9 / 6", snap.TokenX.Decimals, snap.TokenY.Decimals)
	}
	want := rangecalc.PriceFromBin(8195, 10)
	if math.Abs(snap.Price-want) > want*1e-12 {
		t.Errorf("price = %v, want %v", snap.Price, want)
	}
}

func TestVenue_GetPoolConfig_CachesWithinTTL(t *testing.T) {
	pool := testPubkey(7)
	tokenX := testPubkey(1)
	tokenY := testPubkey(2)

	rpc := solanastub.NewRPCClient()
	rpc.SetAccount(pool, &solana.AccountInfo{Data: lbPairData(100, 10, tokenX, tokenY)})
	rpc.SetAccount(tokenX, &solana.AccountInfo{Data: mintData(9)})
	rpc.SetAccount(tokenY, &solana.AccountInfo{Data: mintData(6)})

	current := time.UnixMilli(1_700_000_000_000)
	v := newVenue(rpc, &recordingBuilder{}, func() time.Time { return current })

	first, err := v.GetPoolConfig(context.Background(), pool)
	if err != nil {
		t.Fatalf("GetPoolConfig: %v", err)
	}

	// The chain moves but the TTL has not elapsed: the snapshot is reused.
	rpc.SetAccount(pool, &solana.AccountInfo{Data: lbPairData(200, 10, tokenX, tokenY)})
	current = current.Add(DefaultPoolCacheTTL / 2)

	cached, err := v.GetPoolConfig(context.Background(), pool)
	if err != nil {
		t.Fatalf("GetPoolConfig: %v", err)
	}
	if cached.ActiveID != first.ActiveID {
		t.Errorf("cache miss within TTL: activeID %d", cached.ActiveID)
	}

	current = current.Add(DefaultPoolCacheTTL)
	fresh, err := v.GetPoolConfig(context.Background(), pool)
	if err != nil {
		t.Fatalf("GetPoolConfig: %v", err)
	}
	if fresh.ActiveID != 200 {
		t.Errorf("stale snapshot after TTL: activeID %d", fresh.ActiveID)
	}
}

func TestVenue_GetPoolConfig_NotFound(t *testing.T) {
	v := newVenue(solanastub.NewRPCClient(), &recordingBuilder{}, nil)

	_, err := v.GetPoolConfig(context.Background(), testPubkey(9))
	if !errors.Is(err, venue.ErrPoolNotFound) {
		t.Fatalf("err = %v, want ErrPoolNotFound", err)
	}
}

func TestVenue_RemoveLiquidity(t *testing.T) {
	rpc := solanastub.NewRPCClient()
	builder := &recordingBuilder{}
	v := newVenue(rpc, builder, nil)

	if err := v.RemoveLiquidity(context.Background(), "pos1", venue.BPS); err != nil {
		t.Fatalf("RemoveLiquidity: %v", err)
	}
	if len(builder.removes) != 1 || len(rpc.SentTransactions) != 1 {
		t.Fatalf("builds=%d sends=%d, want 1/1", len(builder.removes), len(rpc.SentTransactions))
	}
	if rpc.SentTransactions[0] != builder.removes[0] {
		t.Error("sent transaction is not the built one")
	}
}

func TestVenue_SendFailureIsCallFailed(t *testing.T) {
	rpc := solanastub.NewRPCClient()
	rpc.SendErr = errors.New("blockhash expired")
	v := newVenue(rpc, &recordingBuilder{}, nil)

	err := v.AddLiquidity(context.Background(), testPubkey(7), 100, 200, 1, 2)
	if !errors.Is(err, venue.ErrCallFailed) {
		t.Fatalf("err = %v, want ErrCallFailed", err)
	}

	if _, _, err := v.CollectFees(context.Background(), "pos1"); !errors.Is(err, venue.ErrCallFailed) {
		t.Fatalf("collect err = %v, want ErrCallFailed", err)
	}
}

func TestVenue_GetBinPrices_SkipsMissingArrays(t *testing.T) {
	pool := testPubkey(7)
	tokenX := testPubkey(1)
	tokenY := testPubkey(2)

	rpc := solanastub.NewRPCClient()
	rpc.SetAccount(pool, &solana.AccountInfo{Data: lbPairData(100, 10, tokenX, tokenY)})
	rpc.SetAccount(tokenX, &solana.AccountInfo{Data: mintData(9)})
	rpc.SetAccount(tokenY, &solana.AccountInfo{Data: mintData(6)})

	// Only the array covering bins [70, 139] exists.
	rpc.SetAccount(deriveBinArrayPDA(pool, 1), &solana.AccountInfo{Data: ""})

	v := newVenue(rpc, &recordingBuilder{}, nil)

	prices, err := v.GetBinPrices(context.Background(), pool, 60, 80)
	if err != nil {
		t.Fatalf("GetBinPrices: %v", err)
	}

	// Bins 60..69 live in the missing array 0; bins 70..80 in array 1.
	if len(prices) != 11 {
		t.Fatalf("len(prices) = %d, want 11", len(prices))
	}
	want := rangecalc.PriceFromBin(70, 10)
	if math.Abs(prices[0]-want) > want*1e-12 {
		t.Errorf("prices[0] = %v, want %v", prices[0], want)
	}
}
