package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"shodeposit/cmd/internal/passphrase"
	"shodeposit/config"
	"shodeposit/crypto"
	"shodeposit/native/sho"
	"shodeposit/observability/logging"
)

const defaultPassEnv = "SHO_ORGANIZER_PASS"

type signedVoucher struct {
	Participant string `json:"participant"`
	Sale        string `json:"sale"`
	Asset       string `json:"asset,omitempty"`
	Amount      string `json:"amount"`
	Deadline    uint64 `json:"deadline"`
	Receiver    string `json:"receiver"`
	MaxAmount   string `json:"maxAmount,omitempty"`
	Layout      string `json:"layout"`
	Scheme      string `json:"scheme"`
	Digest      string `json:"digest"`
	Signature   string `json:"signature"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr, time.Now); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	keystore    string
	passEnv     string
	configPath  string
	layout      string
	scheme      string
	participant string
	sale        string
	asset       string
	amount      string
	deadline    uint64
	ttl         time.Duration
	receiver    string
	max         string
	batch       string
	compact     bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("sho-sign", flag.ContinueOnError)
	fs.SetOutput(stderr)
	o := &options{}
	fs.StringVar(&o.keystore, "keystore", "", "Organizer keystore file")
	fs.StringVar(&o.passEnv, "pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	fs.StringVar(&o.configPath, "config", "", "Optional sho.toml supplying receiver, layout and scheme defaults")
	fs.StringVar(&o.layout, "layout", "", "Voucher layout: basic, capped, asset, asset-capped")
	fs.StringVar(&o.scheme, "scheme", "", "Signature scheme: eth_sign or raw")
	fs.StringVar(&o.participant, "participant", "", "Participant address")
	fs.StringVar(&o.sale, "sale", "", "Sale identifier")
	fs.StringVar(&o.asset, "asset", "", "Deposit asset address (asset layouts)")
	fs.StringVar(&o.amount, "amount", "", "Deposit amount in base units")
	fs.Uint64Var(&o.deadline, "deadline", 0, "Unix deadline; exactly this second is still accepted")
	fs.DurationVar(&o.ttl, "ttl", 0, "Deadline relative to now when -deadline is unset")
	fs.StringVar(&o.receiver, "receiver", "", "Deposit receiver address")
	fs.StringVar(&o.max, "max", "", "Cumulative sale cap in base units (capped layouts)")
	fs.StringVar(&o.batch, "batch", "", "YAML voucher batch to sign instead of a single voucher")
	fs.BoolVar(&o.compact, "compact", false, "Emit 64-byte EIP-2098 signatures")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.keystore == "" {
		return nil, fmt.Errorf("-keystore is required")
	}
	return o, nil
}

func run(args []string, stdout, stderr io.Writer, now func() time.Time) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	logger := logging.New(stderr, "sho-sign", "", nil)

	layoutName, schemeName, receiverValue := o.layout, o.scheme, o.receiver
	if o.configPath != "" {
		cfg, err := config.Load(o.configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		layoutName = firstSet(layoutName, cfg.Layout)
		schemeName = firstSet(schemeName, cfg.SignatureScheme)
		receiverValue = firstSet(receiverValue, cfg.Receiver)
	}
	layout, err := sho.ParseLayout(layoutName)
	if err != nil {
		return err
	}
	scheme, err := sho.ParseScheme(schemeName)
	if err != nil {
		return err
	}
	var receiver common.Address
	if receiverValue != "" {
		if receiver, err = crypto.ParseAddress(receiverValue); err != nil {
			return fmt.Errorf("-receiver: %w", err)
		}
	}

	var vouchers []sho.Voucher
	if o.batch != "" {
		batch, err := config.LoadVoucherBatch(o.batch)
		if err != nil {
			return err
		}
		if batch.Layout != "" {
			if layout, err = sho.ParseLayout(batch.Layout); err != nil {
				return err
			}
		}
		if batch.Scheme != "" {
			if scheme, err = sho.ParseScheme(batch.Scheme); err != nil {
				return err
			}
		}
		if vouchers, err = batch.Resolve(now(), receiver); err != nil {
			return err
		}
	} else {
		v, err := singleVoucher(o, receiver, now)
		if err != nil {
			return err
		}
		vouchers = []sho.Voucher{v}
	}
	for i, v := range vouchers {
		if layout.PerVoucherAsset() && v.Asset == (common.Address{}) {
			return fmt.Errorf("voucher %d: layout %s requires an asset", i, layout)
		}
		if layout.Capped() && (v.MaxAmount == nil || v.MaxAmount.Sign() == 0) {
			return fmt.Errorf("voucher %d: layout %s requires a max amount", i, layout)
		}
	}

	pass, err := passphrase.NewSource(o.passEnv, "organizer").Get()
	if err != nil {
		return err
	}
	key, err := crypto.LoadFromKeystore(o.keystore, pass)
	if err != nil {
		return fmt.Errorf("failed to unlock organizer keystore: %w", err)
	}

	out := make([]signedVoucher, 0, len(vouchers))
	for _, v := range vouchers {
		sig, err := sho.SignVoucher(key.PrivateKey, scheme, layout, v)
		if err != nil {
			return err
		}
		if o.compact {
			if sig, err = sho.CompactSignature(sig); err != nil {
				return err
			}
		}
		digest := sho.Digest(layout, v)
		signed := signedVoucher{
			Participant: v.Participant.Hex(),
			Sale:        v.SaleID,
			Amount:      v.Amount.String(),
			Deadline:    v.Deadline,
			Receiver:    v.Receiver.Hex(),
			Layout:      layout.String(),
			Scheme:      scheme.String(),
			Digest:      digest.Hex(),
			Signature:   hexutil.Encode(sig),
		}
		if layout.PerVoucherAsset() {
			signed.Asset = v.Asset.Hex()
		}
		if layout.Capped() && v.MaxAmount != nil {
			signed.MaxAmount = v.MaxAmount.String()
		}
		logger.Info("voucher signed",
			slog.String("sale", v.SaleID),
			slog.String("digest", digest.Hex()),
			logging.Account("participant", v.Participant),
			logging.Secret("signature", signed.Signature))
		out = append(out, signed)
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(stdout, string(encoded))
	return err
}

func singleVoucher(o *options, receiver common.Address, now func() time.Time) (sho.Voucher, error) {
	var v sho.Voucher
	if receiver == (common.Address{}) {
		return v, fmt.Errorf("-receiver is required")
	}
	participant, err := crypto.ParseAddress(o.participant)
	if err != nil {
		return v, fmt.Errorf("-participant: %w", err)
	}
	if o.sale == "" {
		return v, fmt.Errorf("-sale is required")
	}
	amount, err := config.ParseAmount(o.amount)
	if err != nil || amount.Sign() == 0 {
		return v, fmt.Errorf("-amount must be a positive integer")
	}
	deadline := o.deadline
	if deadline == 0 {
		if o.ttl <= 0 {
			return v, fmt.Errorf("one of -deadline or -ttl is required")
		}
		deadline = uint64(now().Add(o.ttl).Unix())
	}
	var assetAddr common.Address
	if o.asset != "" {
		if assetAddr, err = crypto.ParseAddress(o.asset); err != nil {
			return v, fmt.Errorf("-asset: %w", err)
		}
	}
	maxAmount := new(big.Int)
	if o.max != "" {
		if maxAmount, err = config.ParseAmount(o.max); err != nil {
			return v, fmt.Errorf("-max: %w", err)
		}
	}
	return sho.Voucher{
		Participant: participant,
		SaleID:      o.sale,
		Asset:       assetAddr,
		Amount:      amount,
		Deadline:    deadline,
		Receiver:    receiver,
		MaxAmount:   maxAmount,
	}, nil
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
