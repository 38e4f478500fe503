package sho

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func sampleVoucher() Voucher {
	return Voucher{
		Participant: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		SaleID:      "S1",
		Asset:       common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Amount:      big.NewInt(500),
		Deadline:    1_700_000_000,
		Receiver:    common.HexToAddress("0x3333333333333333333333333333333333333333"),
		MaxAmount:   big.NewInt(1000),
	}
}

func word(hexValue string) string {
	return strings.Repeat("0", 64-len(hexValue)) + hexValue
}

func TestEncodeAssetCappedLayout(t *testing.T) {
	got := hex.EncodeToString(Encode(LayoutAssetCapped, sampleVoucher()))
	want := strings.Repeat("11", 20) +
		hex.EncodeToString([]byte("S1")) +
		strings.Repeat("22", 20) +
		word("1f4") +
		word("6553f100") +
		strings.Repeat("33", 20) +
		word("3e8")
	require.Equal(t, want, got)
}

func TestEncodeLayoutLengths(t *testing.T) {
	v := sampleVoucher()
	base := 20 + len(v.SaleID) + 32 + 32 + 20
	cases := map[Layout]int{
		LayoutBasic:       base,
		LayoutCapped:      base + 32,
		LayoutAsset:       base + 20,
		LayoutAssetCapped: base + 20 + 32,
	}
	for layout, want := range cases {
		require.Len(t, Encode(layout, v), want, layout.String())
	}
}

func TestDigestDependsOnEveryField(t *testing.T) {
	base := Digest(LayoutAssetCapped, sampleVoucher())
	require.Equal(t, ethcrypto.Keccak256Hash(Encode(LayoutAssetCapped, sampleVoucher())), base)

	mutations := map[string]func(v *Voucher){
		"participant": func(v *Voucher) { v.Participant = common.HexToAddress("0x01") },
		"sale":        func(v *Voucher) { v.SaleID = "S2" },
		"asset":       func(v *Voucher) { v.Asset = common.HexToAddress("0x02") },
		"amount":      func(v *Voucher) { v.Amount = big.NewInt(501) },
		"deadline":    func(v *Voucher) { v.Deadline++ },
		"receiver":    func(v *Voucher) { v.Receiver = common.HexToAddress("0x03") },
		"max":         func(v *Voucher) { v.MaxAmount = big.NewInt(1001) },
	}
	for name, mutate := range mutations {
		v := sampleVoucher()
		mutate(&v)
		require.NotEqual(t, base, Digest(LayoutAssetCapped, v), name)
	}

	// fields outside the layout do not contribute
	v := sampleVoucher()
	v.Asset = common.Address{}
	v.MaxAmount = nil
	require.Equal(t, Digest(LayoutBasic, sampleVoucher()), Digest(LayoutBasic, v))
	require.NotEqual(t, Digest(LayoutBasic, v), Digest(LayoutCapped, v))
}

func TestEncodeAbsentIntegersAsZero(t *testing.T) {
	v := sampleVoucher()
	v.MaxAmount = nil
	zero := sampleVoucher()
	zero.MaxAmount = new(big.Int)
	require.Equal(t, Encode(LayoutCapped, zero), Encode(LayoutCapped, v))

	v.Amount = big.NewInt(-5)
	zero.Amount = new(big.Int)
	require.Equal(t, Encode(LayoutCapped, zero), Encode(LayoutCapped, v))
}

func TestOversizedIntegersCollideAndAreRejected(t *testing.T) {
	wrapped := sampleVoucher()
	wrapped.MaxAmount = new(big.Int).Add(big.NewInt(1000), new(big.Int).Lsh(big.NewInt(1), 256))
	require.Equal(t, Digest(LayoutAssetCapped, sampleVoucher()), Digest(LayoutAssetCapped, wrapped))

	require.NoError(t, sampleVoucher().CheckRange())
	require.ErrorIs(t, wrapped.CheckRange(), ErrWordRange)

	negative := sampleVoucher()
	negative.Amount = big.NewInt(-1)
	require.ErrorIs(t, negative.CheckRange(), ErrWordRange)

	largest := sampleVoucher()
	largest.Amount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	require.NoError(t, largest.CheckRange())

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	_, err = SignVoucher(key, SchemeEthSign, LayoutAssetCapped, wrapped)
	require.ErrorIs(t, err, ErrWordRange)
}

func TestParseLayout(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Layout
	}{
		{"", LayoutAssetCapped},
		{"basic", LayoutBasic},
		{" Capped ", LayoutCapped},
		{"asset", LayoutAsset},
		{"asset_capped", LayoutAssetCapped},
	} {
		got, err := ParseLayout(tc.in)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}
	_, err := ParseLayout("packed")
	require.Error(t, err)
	require.False(t, Layout(9).Valid())
}
