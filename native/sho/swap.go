package sho

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"shodeposit/native/asset"
)

// SwapInstruction describes the external swap that converts the participant's
// input into the deposit asset.
type SwapInstruction struct {
	Target      common.Address
	InputAsset  common.Address
	InputAmount *big.Int
	// Payload is passed to the target untouched.
	Payload []byte
}

// Wallet is the asset surface handed to a swap target. It acts on behalf of
// the target's own account.
type Wallet interface {
	Self() common.Address
	BalanceOf(asset, holder common.Address) (*big.Int, error)
	Transfer(asset, to common.Address, amount *big.Int) error
	TransferFrom(asset, from, to common.Address, amount *big.Int) error
	Approve(asset, spender common.Address, amount *big.Int) error
}

// SwapCall is the invocation context of a swap target. Caller is the engine
// account that approved the input; Origin is the depositing participant.
type SwapCall struct {
	Caller  common.Address
	Origin  common.Address
	Payload []byte
	// Engine is the only way a target reaches the engine that invoked it.
	Engine *Reentry
}

// SwapTarget is an external exchange the engine can route deposits through.
// The engine holds its lock while Execute runs, so a target must not call the
// *Engine directly; it goes through call.Engine instead.
type SwapTarget interface {
	Execute(w Wallet, call SwapCall) error
}

// SwapFunc adapts a plain function to SwapTarget.
type SwapFunc func(w Wallet, call SwapCall) error

func (f SwapFunc) Execute(w Wallet, call SwapCall) error { return f(w, call) }

type wallet struct {
	bank *asset.Bank
	self common.Address
}

func (w *wallet) Self() common.Address { return w.self }

func (w *wallet) BalanceOf(a, holder common.Address) (*big.Int, error) {
	return w.bank.BalanceOf(a, holder)
}

func (w *wallet) Transfer(a, to common.Address, amount *big.Int) error {
	return w.bank.Transfer(a, w.self, to, amount)
}

func (w *wallet) TransferFrom(a, from, to common.Address, amount *big.Int) error {
	return w.bank.TransferFrom(a, w.self, from, to, amount)
}

func (w *wallet) Approve(a, spender common.Address, amount *big.Int) error {
	return w.bank.Approve(a, w.self, spender, amount)
}

func (s SwapInstruction) validate() error {
	if s.Target == (common.Address{}) || s.InputAsset == (common.Address{}) {
		return ErrInvalidSwap
	}
	if s.InputAmount == nil || s.InputAmount.Sign() <= 0 {
		return ErrInvalidSwap
	}
	return nil
}

// DepositWithSwap redeems the voucher in req while paying with a different
// asset. The input is pulled into engine custody and approved to the swap
// target; the engine's balance increase in the deposit asset must cover the
// voucher amount. Exactly the voucher amount is forwarded to the receiver and
// any surplus, together with unspent input, is refunded to caller. Any failure
// leaves state untouched.
func (e *Engine) DepositWithSwap(caller common.Address, req DepositRequest, swap SwapInstruction) (*Receipt, error) {
	var receipt *Receipt
	err := e.execute(func(tx *txn) error {
		auth, err := e.authorize(tx, caller, req)
		if err != nil {
			return err
		}
		if err := swap.validate(); err != nil {
			return err
		}
		target, ok := e.targets[swap.Target]
		if !ok || target == nil {
			return ErrSwapTargetUnknown
		}
		gained, err := e.runSwap(tx, caller, auth.asset, swap, target)
		if err != nil {
			return err
		}
		if gained.Cmp(req.Amount) < 0 {
			return ErrSwapShortfall
		}
		if err := tx.bank.Transfer(auth.asset, e.address, tx.cfg.Receiver, req.Amount); err != nil {
			return err
		}
		refund := new(big.Int).Sub(gained, req.Amount)
		if refund.Sign() > 0 {
			if err := tx.bank.Transfer(auth.asset, e.address, caller, refund); err != nil {
				return err
			}
		}
		receipt, err = e.record(tx, caller, req, auth, refund)
		return err
	})
	e.metrics.ObserveSwap(err == nil)
	e.observeDeposit(caller, req, receipt, err)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// runSwap moves the input into custody, invokes target and returns the
// engine's balance increase in depositAsset. Unspent input of another asset is
// returned to caller.
func (e *Engine) runSwap(tx *txn, caller, depositAsset common.Address, swap SwapInstruction, target SwapTarget) (*big.Int, error) {
	before, err := tx.bank.BalanceOf(depositAsset, e.address)
	if err != nil {
		return nil, err
	}
	inputBefore, err := tx.bank.BalanceOf(swap.InputAsset, e.address)
	if err != nil {
		return nil, err
	}
	if err := tx.bank.TransferFrom(swap.InputAsset, e.address, caller, e.address, swap.InputAmount); err != nil {
		return nil, err
	}
	if err := tx.bank.Approve(swap.InputAsset, e.address, swap.Target, swap.InputAmount); err != nil {
		return nil, err
	}

	call := SwapCall{
		Caller:  e.address,
		Origin:  caller,
		Payload: append([]byte(nil), swap.Payload...),
	}
	if err := e.invoke(target, &wallet{bank: tx.bank, self: swap.Target}, call); err != nil {
		e.logger.Debug("sho swap target failed",
			slog.String("target", swap.Target.Hex()),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrSwapFailed, err)
	}

	if err := tx.bank.Approve(swap.InputAsset, e.address, swap.Target, new(big.Int)); err != nil {
		return nil, err
	}
	after, err := tx.bank.BalanceOf(depositAsset, e.address)
	if err != nil {
		return nil, err
	}
	gained := new(big.Int).Sub(after, before)
	if gained.Sign() < 0 {
		gained.SetInt64(0)
	}
	if swap.InputAsset != depositAsset {
		inputAfter, err := tx.bank.BalanceOf(swap.InputAsset, e.address)
		if err != nil {
			return nil, err
		}
		if leftover := new(big.Int).Sub(inputAfter, inputBefore); leftover.Sign() > 0 {
			if err := tx.bank.Transfer(swap.InputAsset, e.address, caller, leftover); err != nil {
				return nil, err
			}
		}
	}
	return gained, nil
}

// invoke runs target with a handle that refuses to re-enter the engine until
// the target returns.
func (e *Engine) invoke(target SwapTarget, w Wallet, call SwapCall) error {
	handle := &Reentry{engine: e}
	handle.live.Store(true)
	defer handle.live.Store(false)
	call.Engine = handle
	return target.Execute(w, call)
}

// Reentry is the engine as seen from one swap invocation. While that
// invocation runs every mutating call fails with ErrReentrantCall; after it
// returns calls pass through to the engine. Reads are always served from
// committed state.
type Reentry struct {
	engine *Engine
	live   atomic.Bool
}

func (r *Reentry) enter() (*Engine, error) {
	if r == nil || r.engine == nil {
		return nil, errNilState
	}
	if r.live.Load() {
		return nil, ErrReentrantCall
	}
	return r.engine, nil
}

func (r *Reentry) Deposit(caller common.Address, req DepositRequest) (*Receipt, error) {
	e, err := r.enter()
	if err != nil {
		if e = r.observer(); e != nil {
			e.observeDeposit(caller, req, nil, err)
		}
		return nil, err
	}
	return e.Deposit(caller, req)
}

func (r *Reentry) DepositWithSwap(caller common.Address, req DepositRequest, swap SwapInstruction) (*Receipt, error) {
	e, err := r.enter()
	if err != nil {
		if e = r.observer(); e != nil {
			e.metrics.ObserveSwap(false)
			e.observeDeposit(caller, req, nil, err)
		}
		return nil, err
	}
	return e.DepositWithSwap(caller, req, swap)
}

func (r *Reentry) observer() *Engine {
	if r == nil {
		return nil
	}
	return r.engine
}

func (r *Reentry) Pause(caller common.Address) error {
	e, err := r.enter()
	if err != nil {
		return err
	}
	return e.Pause(caller)
}

func (r *Reentry) Unpause(caller common.Address) error {
	e, err := r.enter()
	if err != nil {
		return err
	}
	return e.Unpause(caller)
}

func (r *Reentry) SetDepositReceiver(caller, receiver common.Address) error {
	e, err := r.enter()
	if err != nil {
		return err
	}
	return e.SetDepositReceiver(caller, receiver)
}

func (r *Reentry) SetShoOrganizer(caller, organizer common.Address) error {
	e, err := r.enter()
	if err != nil {
		return err
	}
	return e.SetShoOrganizer(caller, organizer)
}

func (r *Reentry) SetDepositToken(caller, token common.Address) error {
	e, err := r.enter()
	if err != nil {
		return err
	}
	return e.SetDepositToken(caller, token)
}

func (r *Reentry) TransferOwnership(caller, newOwner common.Address) error {
	e, err := r.enter()
	if err != nil {
		return err
	}
	return e.TransferOwnership(caller, newOwner)
}

func (r *Reentry) RecoverAsset(caller, assetAddr common.Address) (*big.Int, error) {
	e, err := r.enter()
	if err != nil {
		return nil, err
	}
	return e.RecoverAsset(caller, assetAddr)
}

func (r *Reentry) RegisterSwapTarget(caller, addr common.Address, target SwapTarget) error {
	e, err := r.enter()
	if err != nil {
		return err
	}
	return e.RegisterSwapTarget(caller, addr, target)
}

// HasDeposited reads committed state and never blocks.
func (r *Reentry) HasDeposited(sale string, participant common.Address) (bool, error) {
	if r.observer() == nil {
		return false, errNilState
	}
	return r.engine.HasDeposited(sale, participant)
}

// Accumulated reads committed state and never blocks.
func (r *Reentry) Accumulated(sale string) (*big.Int, error) {
	if r.observer() == nil {
		return nil, errNilState
	}
	return r.engine.Accumulated(sale)
}
