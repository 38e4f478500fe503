package sho

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// KVStore is the subset of the state manager used by the engine.
type KVStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVKeys(prefix []byte) ([][]byte, error)
}

// Ledger records which participants redeemed a voucher for a sale and the
// running total deposited per sale. Records are never cleared and totals never
// decrease.
type Ledger struct {
	store  KVStore
	engine common.Address
}

// NewLedger binds a ledger to store under the engine's namespace.
func NewLedger(store KVStore, engine common.Address) *Ledger {
	return &Ledger{store: store, engine: engine}
}

func saleHash(sale string) []byte {
	return ethcrypto.Keccak256([]byte(sale))
}

func (l *Ledger) depositPrefix(sale string) []byte {
	key := namespace(l.engine, depositSuffix)
	key = append(key, saleHash(sale)...)
	return append(key, '/')
}

func (l *Ledger) depositKey(sale string, participant common.Address) []byte {
	return append(l.depositPrefix(sale), participant.Bytes()...)
}

func (l *Ledger) totalKey(sale string) []byte {
	return append(namespace(l.engine, totalSuffix), saleHash(sale)...)
}

func (l *Ledger) saleKey(sale string) []byte {
	return append(namespace(l.engine, saleSuffix), saleHash(sale)...)
}

// HasDeposited reports whether participant already redeemed a voucher for sale.
func (l *Ledger) HasDeposited(sale string, participant common.Address) (bool, error) {
	var done bool
	ok, err := l.store.KVGet(l.depositKey(sale, participant), &done)
	if err != nil {
		return false, fmt.Errorf("sho: load deposit record: %w", err)
	}
	return ok && done, nil
}

// Accumulated returns the total deposited for sale, zero when nothing was
// recorded.
func (l *Ledger) Accumulated(sale string) (*big.Int, error) {
	total := new(big.Int)
	ok, err := l.store.KVGet(l.totalKey(sale), total)
	if err != nil {
		return nil, fmt.Errorf("sho: load sale total: %w", err)
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return total, nil
}

// Record marks participant as deposited for sale and adds amount to the sale
// total, returning the new total. Recording twice is refused.
func (l *Ledger) Record(sale string, participant common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	done, err := l.HasDeposited(sale, participant)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, ErrAlreadyDeposited
	}
	total, err := l.Accumulated(sale)
	if err != nil {
		return nil, err
	}
	if total.Sign() == 0 {
		if err := l.store.KVPut(l.saleKey(sale), sale); err != nil {
			return nil, err
		}
	}
	total.Add(total, amount)
	if err := l.store.KVPut(l.depositKey(sale, participant), true); err != nil {
		return nil, err
	}
	if err := l.store.KVPut(l.totalKey(sale), total); err != nil {
		return nil, err
	}
	return new(big.Int).Set(total), nil
}

// Sales lists every sale with at least one deposit, ordered by sale hash.
func (l *Ledger) Sales() ([]string, error) {
	prefix := namespace(l.engine, saleSuffix)
	keys, err := l.store.KVKeys(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		var sale string
		ok, err := l.store.KVGet(key, &sale)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, sale)
		}
	}
	return out, nil
}

// Participants lists the participants recorded for sale in address order.
func (l *Ledger) Participants(sale string) ([]common.Address, error) {
	prefix := l.depositPrefix(sale)
	keys, err := l.store.KVKeys(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]common.Address, 0, len(keys))
	for _, key := range keys {
		rest := bytes.TrimPrefix(key, prefix)
		if len(rest) != common.AddressLength {
			continue
		}
		out = append(out, common.BytesToAddress(rest))
	}
	return out, nil
}
