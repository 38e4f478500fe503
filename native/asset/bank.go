package asset

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"shodeposit/core/events"
)

// Native failures surfaced by the asset contract. Callers such as the deposit
// engine propagate these unchanged.
var (
	ErrTransferExceedsBalance = errors.New("asset: transfer amount exceeds balance")
	ErrInsufficientAllowance  = errors.New("asset: insufficient allowance")
	ErrTransferFromZero       = errors.New("asset: transfer from the zero address")
	ErrTransferToZero         = errors.New("asset: transfer to the zero address")
	ErrApproveZero            = errors.New("asset: approve to the zero address")
	ErrMintToZero             = errors.New("asset: mint to the zero address")

	ErrUnknownAsset   = errors.New("asset: not registered")
	ErrAssetExists    = errors.New("asset: already registered")
	ErrInvalidAmount  = errors.New("asset: amount must not be negative")
	ErrSupplyOverflow = errors.New("asset: total supply overflows uint256")
)

// MaxAllowance marks an approval that is never decremented.
var MaxAllowance = new(uint256.Int).SetAllOne().ToBig()

// State captures the subset of the state manager used by the bank.
type State interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

var (
	metaPrefix      = []byte("asset/meta/")
	balancePrefix   = []byte("asset/balance/")
	allowancePrefix = []byte("asset/allowance/")
	assetListKey    = []byte("asset/list")
)

// Metadata describes a registered fungible asset.
type Metadata struct {
	Address     common.Address
	Symbol      string
	Name        string
	Decimals    uint8
	TotalSupply *big.Int
}

// Clone returns a deep copy.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	out := *m
	if m.TotalSupply != nil {
		out.TotalSupply = new(big.Int).Set(m.TotalSupply)
	} else {
		out.TotalSupply = big.NewInt(0)
	}
	return &out
}

// Bank implements ERC20-style balances and allowances for every registered
// asset on top of a key/value state.
type Bank struct {
	state   State
	emitter events.Emitter
}

// NewBank binds a bank to the supplied state.
func NewBank(state State) *Bank {
	return &Bank{state: state, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used by the bank. Passing nil resets
// the emitter to a no-op implementation.
func (b *Bank) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		b.emitter = events.NoopEmitter{}
		return
	}
	b.emitter = emitter
}

func (b *Bank) withState() (State, error) {
	if b == nil || b.state == nil {
		return nil, fmt.Errorf("asset: state not configured")
	}
	return b.state, nil
}

func metaKey(asset common.Address) []byte {
	return append(append([]byte(nil), metaPrefix...), asset.Bytes()...)
}

func balanceKey(asset, holder common.Address) []byte {
	key := append(append([]byte(nil), balancePrefix...), asset.Bytes()...)
	key = append(key, '/')
	return append(key, holder.Bytes()...)
}

func allowanceKey(asset, owner, spender common.Address) []byte {
	key := append(append([]byte(nil), allowancePrefix...), asset.Bytes()...)
	key = append(key, '/')
	key = append(key, owner.Bytes()...)
	key = append(key, '/')
	return append(key, spender.Bytes()...)
}

// Register adds a new asset with zero supply.
func (b *Bank) Register(meta Metadata) error {
	state, err := b.withState()
	if err != nil {
		return err
	}
	if meta.Address == (common.Address{}) {
		return fmt.Errorf("asset: address required")
	}
	symbol := strings.ToUpper(strings.TrimSpace(meta.Symbol))
	if symbol == "" {
		return fmt.Errorf("asset: symbol required")
	}
	if _, ok, err := b.Metadata(meta.Address); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", ErrAssetExists, meta.Address.Hex())
	}
	stored := &Metadata{
		Address:     meta.Address,
		Symbol:      symbol,
		Name:        strings.TrimSpace(meta.Name),
		Decimals:    meta.Decimals,
		TotalSupply: big.NewInt(0),
	}
	if err := state.KVPut(metaKey(meta.Address), stored); err != nil {
		return err
	}
	var list []common.Address
	if _, err := state.KVGet(assetListKey, &list); err != nil {
		return err
	}
	list = append(list, meta.Address)
	return state.KVPut(assetListKey, list)
}

// Metadata loads the registration record for asset.
func (b *Bank) Metadata(asset common.Address) (*Metadata, bool, error) {
	state, err := b.withState()
	if err != nil {
		return nil, false, err
	}
	var meta Metadata
	ok, err := state.KVGet(metaKey(asset), &meta)
	if err != nil || !ok {
		return nil, ok, err
	}
	return meta.Clone(), true, nil
}

// Assets lists registered assets in registration order.
func (b *Bank) Assets() ([]common.Address, error) {
	state, err := b.withState()
	if err != nil {
		return nil, err
	}
	var list []common.Address
	if _, err := state.KVGet(assetListKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (b *Bank) requireAsset(asset common.Address) (*Metadata, error) {
	meta, ok, err := b.Metadata(asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}
	return meta, nil
}

func (b *Bank) loadAmount(key []byte) (*big.Int, error) {
	state, err := b.withState()
	if err != nil {
		return nil, err
	}
	amount := new(big.Int)
	ok, err := state.KVGet(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// storeAmount writes amount under key. Zero balances and allowances are
// removed rather than stored.
func storeAmount(state State, key []byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return state.KVDelete(key)
	}
	return state.KVPut(key, amount)
}

func checkAmount(amount *big.Int) (*big.Int, error) {
	if amount == nil {
		return big.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	return new(big.Int).Set(amount), nil
}

// BalanceOf returns holder's balance of asset.
func (b *Bank) BalanceOf(asset, holder common.Address) (*big.Int, error) {
	if _, err := b.requireAsset(asset); err != nil {
		return nil, err
	}
	return b.loadAmount(balanceKey(asset, holder))
}

// Allowance returns how much spender may move on behalf of owner.
func (b *Bank) Allowance(asset, owner, spender common.Address) (*big.Int, error) {
	if _, err := b.requireAsset(asset); err != nil {
		return nil, err
	}
	return b.loadAmount(allowanceKey(asset, owner, spender))
}

// Mint credits new supply to to.
func (b *Bank) Mint(asset, to common.Address, amount *big.Int) error {
	state, err := b.withState()
	if err != nil {
		return err
	}
	amt, err := checkAmount(amount)
	if err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrMintToZero
	}
	meta, err := b.requireAsset(asset)
	if err != nil {
		return err
	}
	supply := new(big.Int).Add(meta.TotalSupply, amt)
	if _, overflow := uint256.FromBig(supply); overflow {
		return ErrSupplyOverflow
	}
	balance, err := b.loadAmount(balanceKey(asset, to))
	if err != nil {
		return err
	}
	meta.TotalSupply = supply
	if err := state.KVPut(metaKey(asset), meta); err != nil {
		return err
	}
	if err := storeAmount(state, balanceKey(asset, to), balance.Add(balance, amt)); err != nil {
		return err
	}
	b.emitter.Emit(events.AssetTransfer{Asset: asset, To: to, Amount: amt})
	return nil
}

// Transfer moves amount of asset from from to to.
func (b *Bank) Transfer(asset, from, to common.Address, amount *big.Int) error {
	state, err := b.withState()
	if err != nil {
		return err
	}
	amt, err := checkAmount(amount)
	if err != nil {
		return err
	}
	if from == (common.Address{}) {
		return ErrTransferFromZero
	}
	if to == (common.Address{}) {
		return ErrTransferToZero
	}
	if _, err := b.requireAsset(asset); err != nil {
		return err
	}
	fromBal, err := b.loadAmount(balanceKey(asset, from))
	if err != nil {
		return err
	}
	if fromBal.Cmp(amt) < 0 {
		return ErrTransferExceedsBalance
	}
	if err := storeAmount(state, balanceKey(asset, from), fromBal.Sub(fromBal, amt)); err != nil {
		return err
	}
	toBal, err := b.loadAmount(balanceKey(asset, to))
	if err != nil {
		return err
	}
	if err := storeAmount(state, balanceKey(asset, to), toBal.Add(toBal, amt)); err != nil {
		return err
	}
	b.emitter.Emit(events.AssetTransfer{Asset: asset, From: from, To: to, Amount: amt})
	return nil
}

// Approve sets spender's allowance over owner's balance.
func (b *Bank) Approve(asset, owner, spender common.Address, amount *big.Int) error {
	state, err := b.withState()
	if err != nil {
		return err
	}
	amt, err := checkAmount(amount)
	if err != nil {
		return err
	}
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrApproveZero
	}
	if _, err := b.requireAsset(asset); err != nil {
		return err
	}
	if err := storeAmount(state, allowanceKey(asset, owner, spender), amt); err != nil {
		return err
	}
	b.emitter.Emit(events.AssetApproval{Asset: asset, Owner: owner, Spender: spender, Amount: amt})
	return nil
}

// TransferFrom spends spender's allowance to move amount from from to to. The
// allowance is checked before the balance.
func (b *Bank) TransferFrom(asset, spender, from, to common.Address, amount *big.Int) error {
	state, err := b.withState()
	if err != nil {
		return err
	}
	amt, err := checkAmount(amount)
	if err != nil {
		return err
	}
	allowance, err := b.Allowance(asset, from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(MaxAllowance) != 0 {
		if allowance.Cmp(amt) < 0 {
			return ErrInsufficientAllowance
		}
		if from == (common.Address{}) || to == (common.Address{}) {
			return b.Transfer(asset, from, to, amt)
		}
		balance, err := b.loadAmount(balanceKey(asset, from))
		if err != nil {
			return err
		}
		if balance.Cmp(amt) < 0 {
			return ErrTransferExceedsBalance
		}
		if err := storeAmount(state, allowanceKey(asset, from, spender), allowance.Sub(allowance, amt)); err != nil {
			return err
		}
	}
	return b.Transfer(asset, from, to, amt)
}
