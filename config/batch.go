package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"shodeposit/native/sho"
)

// VoucherBatch is a YAML file describing many vouchers for one sale. Entry
// fields override the batch defaults.
type VoucherBatch struct {
	Sale      string       `yaml:"sale"`
	Asset     string       `yaml:"asset"`
	Receiver  string       `yaml:"receiver"`
	Deadline  uint64       `yaml:"deadline"`
	TTL       string       `yaml:"ttl"`
	MaxAmount string       `yaml:"max_amount"`
	Layout    string       `yaml:"layout"`
	Scheme    string       `yaml:"scheme"`
	Vouchers  []BatchEntry `yaml:"vouchers"`
}

// BatchEntry is one voucher in a VoucherBatch.
type BatchEntry struct {
	Participant string `yaml:"participant"`
	Amount      string `yaml:"amount"`
	Sale        string `yaml:"sale,omitempty"`
	Asset       string `yaml:"asset,omitempty"`
	Deadline    uint64 `yaml:"deadline,omitempty"`
	MaxAmount   string `yaml:"max_amount,omitempty"`
}

// LoadVoucherBatch reads a voucher batch from path.
func LoadVoucherBatch(path string) (*VoucherBatch, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open voucher batch: %w", err)
	}
	defer file.Close()
	var batch VoucherBatch
	if err := yaml.NewDecoder(file).Decode(&batch); err != nil {
		return nil, fmt.Errorf("decode voucher batch: %w", err)
	}
	if len(batch.Vouchers) == 0 {
		return nil, fmt.Errorf("voucher batch %s has no vouchers", path)
	}
	return &batch, nil
}

// Resolve turns the batch into vouchers. now anchors a relative ttl;
// defaultReceiver is used when the batch names none.
func (b *VoucherBatch) Resolve(now time.Time, defaultReceiver common.Address) ([]sho.Voucher, error) {
	receiver := defaultReceiver
	if strings.TrimSpace(b.Receiver) != "" {
		addr, err := parseOptional("receiver", b.Receiver)
		if err != nil {
			return nil, err
		}
		receiver = addr
	}
	if receiver == (common.Address{}) {
		return nil, fmt.Errorf("voucher batch: receiver required")
	}
	deadline := b.Deadline
	if deadline == 0 && strings.TrimSpace(b.TTL) != "" {
		ttl, err := time.ParseDuration(strings.TrimSpace(b.TTL))
		if err != nil {
			return nil, fmt.Errorf("voucher batch ttl: %w", err)
		}
		deadline = uint64(now.Add(ttl).Unix())
	}

	out := make([]sho.Voucher, 0, len(b.Vouchers))
	seen := make(map[string]struct{})
	for i, entry := range b.Vouchers {
		participant, err := parseOptional("participant", entry.Participant)
		if err != nil {
			return nil, fmt.Errorf("vouchers[%d]: %w", i, err)
		}
		if participant == (common.Address{}) {
			return nil, fmt.Errorf("vouchers[%d]: participant required", i)
		}
		sale := firstNonEmpty(entry.Sale, b.Sale)
		if sale == "" {
			return nil, fmt.Errorf("vouchers[%d]: sale required", i)
		}
		key := sale + "/" + participant.Hex()
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("vouchers[%d]: duplicate voucher for %s in sale %s", i, participant.Hex(), sale)
		}
		seen[key] = struct{}{}

		amount, err := ParseAmount(entry.Amount)
		if err != nil {
			return nil, fmt.Errorf("vouchers[%d] amount: %w", i, err)
		}
		if amount.Sign() == 0 {
			return nil, fmt.Errorf("vouchers[%d]: amount must be positive", i)
		}
		assetAddr, err := parseOptional("asset", firstNonEmpty(entry.Asset, b.Asset))
		if err != nil {
			return nil, fmt.Errorf("vouchers[%d]: %w", i, err)
		}
		maxAmount, err := ParseAmount(firstNonEmpty(entry.MaxAmount, b.MaxAmount))
		if err != nil {
			return nil, fmt.Errorf("vouchers[%d] max_amount: %w", i, err)
		}
		entryDeadline := deadline
		if entry.Deadline != 0 {
			entryDeadline = entry.Deadline
		}
		if entryDeadline == 0 {
			return nil, fmt.Errorf("vouchers[%d]: deadline required", i)
		}
		out = append(out, sho.Voucher{
			Participant: participant,
			SaleID:      sale,
			Asset:       assetAddr,
			Amount:      amount,
			Deadline:    entryDeadline,
			Receiver:    receiver,
			MaxAmount:   new(big.Int).Set(maxAmount),
		})
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
