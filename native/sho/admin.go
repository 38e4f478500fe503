package sho

import (
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"shodeposit/core/events"
)

// admin runs an owner-only operation. Ownership is checked before anything
// else so non-owners learn nothing about the requested change.
func (e *Engine) admin(op string, caller common.Address, fn func(tx *txn) error) error {
	err := e.execute(func(tx *txn) error {
		if caller != tx.cfg.Owner {
			return ErrNotOwner
		}
		return fn(tx)
	})
	e.metrics.ObserveAdmin(op, err == nil)
	if err != nil {
		e.logger.Debug("sho admin operation rejected",
			slog.String("operation", op),
			slog.String("caller", caller.Hex()),
			slog.String("error", err.Error()))
		return err
	}
	e.logger.Info("sho admin operation applied",
		slog.String("operation", op),
		slog.String("caller", caller.Hex()))
	return nil
}

func (e *Engine) setAddress(op, field string, caller, value common.Address, slot func(*Config) *common.Address) error {
	return e.admin(op, caller, func(tx *txn) error {
		if value == (common.Address{}) {
			return ErrZeroAddress
		}
		current := slot(tx.cfg)
		if current == nil {
			return ErrLayoutMismatch
		}
		previous := *current
		*current = value
		if err := storeConfig(tx.state, e.address, tx.cfg); err != nil {
			return err
		}
		tx.emit(events.SHOConfigUpdated{Field: field, Previous: previous, Current: value, Actor: caller})
		return nil
	})
}

// SetDepositReceiver changes the account deposits are forwarded to. Vouchers
// signed for the previous receiver stop verifying.
func (e *Engine) SetDepositReceiver(caller, receiver common.Address) error {
	return e.setAddress("set_receiver", "receiver", caller, receiver, func(c *Config) *common.Address { return &c.Receiver })
}

// SetShoOrganizer rotates the identity vouchers must be signed by.
func (e *Engine) SetShoOrganizer(caller, organizer common.Address) error {
	return e.setAddress("set_organizer", "organizer", caller, organizer, func(c *Config) *common.Address { return &c.Organizer })
}

// SetDepositToken changes the fixed deposit asset. Layouts that sign the asset
// per voucher reject it with ErrLayoutMismatch.
func (e *Engine) SetDepositToken(caller, token common.Address) error {
	return e.setAddress("set_token", "deposit_asset", caller, token, func(c *Config) *common.Address {
		if c.Layout.PerVoucherAsset() {
			return nil
		}
		return &c.DepositAsset
	})
}

// TransferOwnership hands every admin right to newOwner.
func (e *Engine) TransferOwnership(caller, newOwner common.Address) error {
	return e.admin("transfer_ownership", caller, func(tx *txn) error {
		if newOwner == (common.Address{}) {
			return ErrZeroAddress
		}
		previous := tx.cfg.Owner
		tx.cfg.Owner = newOwner
		if err := storeConfig(tx.state, e.address, tx.cfg); err != nil {
			return err
		}
		tx.emit(events.SHOOwnershipTransferred{Previous: previous, Current: newOwner})
		return nil
	})
}

// Pause halts deposits. Admin operations stay available.
func (e *Engine) Pause(caller common.Address) error {
	return e.setPaused("pause", caller, true)
}

// Unpause resumes deposits.
func (e *Engine) Unpause(caller common.Address) error {
	return e.setPaused("unpause", caller, false)
}

func (e *Engine) setPaused(op string, caller common.Address, paused bool) error {
	return e.admin(op, caller, func(tx *txn) error {
		if tx.cfg.Paused == paused {
			if paused {
				return ErrPaused
			}
			return ErrNotPaused
		}
		tx.cfg.Paused = paused
		if err := storeConfig(tx.state, e.address, tx.cfg); err != nil {
			return err
		}
		tx.emit(events.SHOPauseChanged{Paused: paused, Actor: caller})
		return nil
	})
}

// RecoverAsset sweeps the engine account's current balance of asset to the
// owner and returns the amount moved.
func (e *Engine) RecoverAsset(caller, assetAddr common.Address) (*big.Int, error) {
	var swept *big.Int
	err := e.admin("recover_asset", caller, func(tx *txn) error {
		balance, err := tx.bank.BalanceOf(assetAddr, e.address)
		if err != nil {
			return err
		}
		if balance.Sign() > 0 {
			if err := tx.bank.Transfer(assetAddr, e.address, tx.cfg.Owner, balance); err != nil {
				return err
			}
		}
		swept = balance
		tx.emit(events.SHOAssetRecovered{Asset: assetAddr, To: tx.cfg.Owner, Amount: balance})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return swept, nil
}

// RegisterSwapTarget makes target callable from DepositWithSwap under addr.
// Registering nil removes the target.
func (e *Engine) RegisterSwapTarget(caller, addr common.Address, target SwapTarget) error {
	return e.admin("register_swap_target", caller, func(tx *txn) error {
		if addr == (common.Address{}) {
			return ErrZeroAddress
		}
		previous := common.Address{}
		if _, ok := e.targets[addr]; ok {
			previous = addr
		}
		current := addr
		if target == nil {
			current = common.Address{}
		}
		tx.onCommit = append(tx.onCommit, func() {
			if target == nil {
				delete(e.targets, addr)
				return
			}
			e.targets[addr] = target
		})
		tx.emit(events.SHOConfigUpdated{Field: "swap_target", Previous: previous, Current: current, Actor: caller})
		return nil
	})
}
