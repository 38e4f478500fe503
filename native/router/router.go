package router

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"shodeposit/native/sho"
)

const routerABI = `[{"type":"function","name":"swap","stateMutability":"nonpayable","inputs":[` +
	`{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},` +
	`{"name":"amountIn","type":"uint256"},{"name":"amountOut","type":"uint256"}],"outputs":[]}]`

var (
	ErrPayloadMalformed = errors.New("router: malformed swap payload")
	ErrUnknownMethod    = errors.New("router: unknown method")
	ErrNoQuote          = errors.New("router: no quote for pair")
	ErrQuoteExceeded    = errors.New("router: requested output exceeds quote")
)

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		panic(fmt.Sprintf("router: parse abi: %v", err))
	}
	return parsed
}

// SwapCall is the decoded form of a swap payload.
type SwapCall struct {
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
}

// EncodeSwap packs a swap(address,address,uint256,uint256) call.
func EncodeSwap(call SwapCall) ([]byte, error) {
	if call.AmountIn == nil || call.AmountOut == nil {
		return nil, fmt.Errorf("%w: amounts required", ErrPayloadMalformed)
	}
	return parsedABI.Pack("swap", call.TokenIn, call.TokenOut, call.AmountIn, call.AmountOut)
}

// DecodeSwap unpacks a payload produced by EncodeSwap.
func DecodeSwap(payload []byte) (*SwapCall, error) {
	if len(payload) < 4 {
		return nil, ErrPayloadMalformed
	}
	method, err := parsedABI.MethodById(payload[:4])
	if err != nil || method.Name != "swap" {
		return nil, ErrUnknownMethod
	}
	values, err := method.Inputs.Unpack(payload[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}
	if len(values) != 4 {
		return nil, ErrPayloadMalformed
	}
	tokenIn, ok1 := values[0].(common.Address)
	tokenOut, ok2 := values[1].(common.Address)
	amountIn, ok3 := values[2].(*big.Int)
	amountOut, ok4 := values[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, ErrPayloadMalformed
	}
	return &SwapCall{TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: amountIn, AmountOut: amountOut}, nil
}

// Quote is the price of one pair as a ratio: amountOut <= amountIn*Num/Den.
type Quote struct {
	Num *big.Int
	Den *big.Int
}

type pair struct {
	in  common.Address
	out common.Address
}

// QuotedRouter pays out of its own inventory at owner-set quotes. It pulls the
// input from the calling account using the allowance that account granted.
type QuotedRouter struct {
	mu     sync.RWMutex
	quotes map[pair]Quote
}

func NewQuotedRouter() *QuotedRouter {
	return &QuotedRouter{quotes: make(map[pair]Quote)}
}

// SetQuote sets the price for swapping tokenIn into tokenOut.
func (r *QuotedRouter) SetQuote(tokenIn, tokenOut common.Address, q Quote) error {
	if q.Num == nil || q.Den == nil || q.Num.Sign() < 0 || q.Den.Sign() <= 0 {
		return fmt.Errorf("router: invalid quote")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotes[pair{in: tokenIn, out: tokenOut}] = Quote{Num: new(big.Int).Set(q.Num), Den: new(big.Int).Set(q.Den)}
	return nil
}

// MaxOutput returns the most tokenOut the router pays for amountIn of tokenIn.
func (r *QuotedRouter) MaxOutput(tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	r.mu.RLock()
	q, ok := r.quotes[pair{in: tokenIn, out: tokenOut}]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNoQuote
	}
	out := new(big.Int).Mul(amountIn, q.Num)
	return out.Quo(out, q.Den), nil
}

// Execute implements sho.SwapTarget.
func (r *QuotedRouter) Execute(w sho.Wallet, call sho.SwapCall) error {
	req, err := DecodeSwap(call.Payload)
	if err != nil {
		return err
	}
	limit, err := r.MaxOutput(req.TokenIn, req.TokenOut, req.AmountIn)
	if err != nil {
		return err
	}
	if req.AmountOut.Cmp(limit) > 0 {
		return ErrQuoteExceeded
	}
	if err := w.TransferFrom(req.TokenIn, call.Caller, w.Self(), req.AmountIn); err != nil {
		return err
	}
	return w.Transfer(req.TokenOut, call.Caller, req.AmountOut)
}

var _ sho.SwapTarget = (*QuotedRouter)(nil)
