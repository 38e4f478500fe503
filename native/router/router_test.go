package router

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"shodeposit/core/state"
	"shodeposit/native/asset"
	"shodeposit/native/sho"
	"shodeposit/storage"
)

var (
	usdc     = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	weth     = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	receiver = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	buyer    = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	routerAt = common.HexToAddress("0x00000000000000000000000000000000000000e1")
)

func TestEncodeDecodeSwap(t *testing.T) {
	payload, err := EncodeSwap(SwapCall{TokenIn: weth, TokenOut: usdc, AmountIn: big.NewInt(3), AmountOut: big.NewInt(9000)})
	require.NoError(t, err)
	require.Len(t, payload, 4+4*32)

	call, err := DecodeSwap(payload)
	require.NoError(t, err)
	require.Equal(t, weth, call.TokenIn)
	require.Equal(t, usdc, call.TokenOut)
	require.Equal(t, int64(3), call.AmountIn.Int64())
	require.Equal(t, int64(9000), call.AmountOut.Int64())

	_, err = DecodeSwap(payload[:3])
	require.ErrorIs(t, err, ErrPayloadMalformed)
	_, err = DecodeSwap([]byte{0xde, 0xad, 0xbe, 0xef})
	require.ErrorIs(t, err, ErrUnknownMethod)
	_, err = DecodeSwap(payload[:40])
	require.ErrorIs(t, err, ErrPayloadMalformed)
	_, err = EncodeSwap(SwapCall{TokenIn: weth, TokenOut: usdc})
	require.ErrorIs(t, err, ErrPayloadMalformed)
}

func TestQuotes(t *testing.T) {
	r := NewQuotedRouter()
	_, err := r.MaxOutput(weth, usdc, big.NewInt(1))
	require.ErrorIs(t, err, ErrNoQuote)

	require.Error(t, r.SetQuote(weth, usdc, Quote{Num: big.NewInt(1), Den: big.NewInt(0)}))
	require.NoError(t, r.SetQuote(weth, usdc, Quote{Num: big.NewInt(3001), Den: big.NewInt(1)}))
	out, err := r.MaxOutput(weth, usdc, big.NewInt(2))
	require.NoError(t, err)
	require.Equal(t, int64(6002), out.Int64())
}

func TestRouterThroughEngine(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	bank := asset.NewBank(st)
	require.NoError(t, bank.Register(asset.Metadata{Address: usdc, Symbol: "usdc", Decimals: 6}))
	require.NoError(t, bank.Register(asset.Metadata{Address: weth, Symbol: "weth", Decimals: 18}))

	organizer, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	engine := sho.NewEngine(st, "router-test")
	engine.SetMetrics(nil)
	engine.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	engine.SetNowFunc(func() int64 { return 1_000 })
	require.NoError(t, engine.Deploy(owner, sho.Config{
		Organizer: ethcrypto.PubkeyToAddress(organizer.PublicKey),
		Receiver:  receiver,
	}))

	router := NewQuotedRouter()
	require.NoError(t, router.SetQuote(weth, usdc, Quote{Num: big.NewInt(3000), Den: big.NewInt(1)}))
	require.NoError(t, engine.RegisterSwapTarget(owner, routerAt, router))
	require.NoError(t, bank.Mint(usdc, routerAt, big.NewInt(1_000_000)))
	require.NoError(t, bank.Mint(weth, buyer, big.NewInt(1)))
	require.NoError(t, bank.Approve(weth, buyer, engine.Address(), big.NewInt(1)))

	req := sho.DepositRequest{
		SaleID:    "IDO-1",
		Asset:     usdc,
		Amount:    big.NewInt(2500),
		Deadline:  2_000,
		MaxAmount: big.NewInt(100_000),
	}
	req.Signature, err = sho.SignVoucher(organizer, sho.SchemeEthSign, sho.LayoutAssetCapped, sho.Voucher{
		Participant: buyer, SaleID: req.SaleID, Asset: usdc, Amount: req.Amount,
		Deadline: req.Deadline, Receiver: receiver, MaxAmount: req.MaxAmount,
	})
	require.NoError(t, err)

	greedy, err := EncodeSwap(SwapCall{TokenIn: weth, TokenOut: usdc, AmountIn: big.NewInt(1), AmountOut: big.NewInt(3001)})
	require.NoError(t, err)
	_, err = engine.DepositWithSwap(buyer, req, sho.SwapInstruction{Target: routerAt, InputAsset: weth, InputAmount: big.NewInt(1), Payload: greedy})
	require.ErrorIs(t, err, sho.ErrSwapFailed)
	require.ErrorIs(t, err, ErrQuoteExceeded)

	payload, err := EncodeSwap(SwapCall{TokenIn: weth, TokenOut: usdc, AmountIn: big.NewInt(1), AmountOut: big.NewInt(3000)})
	require.NoError(t, err)
	receipt, err := engine.DepositWithSwap(buyer, req, sho.SwapInstruction{Target: routerAt, InputAsset: weth, InputAmount: big.NewInt(1), Payload: payload})
	require.NoError(t, err)
	require.Equal(t, int64(500), receipt.Refund.Int64())

	got, err := bank.BalanceOf(usdc, receiver)
	require.NoError(t, err)
	require.Equal(t, int64(2500), got.Int64())
	got, err = bank.BalanceOf(usdc, buyer)
	require.NoError(t, err)
	require.Equal(t, int64(500), got.Int64())
	got, err = bank.BalanceOf(weth, routerAt)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Int64())
}
