package sho

import (
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"shodeposit/core/events"
	"shodeposit/core/state"
	"shodeposit/native/asset"
	nativecommon "shodeposit/native/common"
	"shodeposit/observability/metrics"
)

// ModuleName identifies the engine to host pause views.
const ModuleName = "sho"

var (
	errNilState        = errors.New("sho: state not configured")
	ErrNotDeployed     = errors.New("sho: engine not deployed")
	ErrAlreadyDeployed = errors.New("sho: engine already deployed")
)

// DepositRequest carries the caller-supplied voucher arguments. The
// participant is always the caller and the receiver bound into the digest is
// always the configured one.
type DepositRequest struct {
	SaleID   string
	Asset    common.Address
	Amount   *big.Int
	Deadline uint64
	// MaxAmount is the signed cumulative cap. Capped layouts treat a missing
	// cap as zero.
	MaxAmount *big.Int
	// Receiver, when set, must equal the configured receiver.
	Receiver  *common.Address
	Signature []byte
}

// Receipt describes an accepted deposit.
type Receipt struct {
	SaleID      string
	Participant common.Address
	Asset       common.Address
	Receiver    common.Address
	Amount      *big.Int
	Accumulated *big.Int
	// Refund is the swap surplus returned to the participant, nil for plain
	// deposits.
	Refund *big.Int
}

// Engine redeems organizer-signed vouchers against the host state. Every
// mutating operation runs on a state overlay that is committed only when the
// whole operation succeeds; events are published after the commit.
type Engine struct {
	mu sync.Mutex

	state    *state.Manager
	address  common.Address
	verifier Verifier
	pauses   nativecommon.PauseView
	emitter  events.Emitter
	logger   *slog.Logger
	metrics  *metrics.SHOMetrics
	nowFn    func() int64
	targets  map[common.Address]SwapTarget
}

// NewEngine binds an engine deployed under label to st.
func NewEngine(st *state.Manager, label string) *Engine {
	return &Engine{
		state:   st,
		address: EngineAddress(label),
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		metrics: metrics.SHO(),
		nowFn:   func() int64 { return time.Now().Unix() },
		targets: make(map[common.Address]SwapTarget),
	}
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetNowFunc overrides the clock used for deadline checks.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetVerifier overrides the verifier derived from the configured scheme.
func (e *Engine) SetVerifier(v Verifier) { e.verifier = v }

// SetPauseView attaches a host-level pause switch consulted on every deposit.
func (e *Engine) SetPauseView(p nativecommon.PauseView) { e.pauses = p }

// SetMetrics replaces the metrics sink. nil disables metrics.
func (e *Engine) SetMetrics(m *metrics.SHOMetrics) { e.metrics = m }

// Address returns the engine's custody account.
func (e *Engine) Address() common.Address { return e.address }

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// IsPaused implements native/common.PauseView for the engine's own flag.
func (e *Engine) IsPaused(module string) bool {
	if module != ModuleName {
		return false
	}
	cfg, err := e.Config()
	return err == nil && cfg.Paused
}

// txn is the working set of one engine operation.
type txn struct {
	cfg      *Config
	state    *state.Manager
	bank     *asset.Bank
	ledger   *Ledger
	buffer   *events.Buffer
	onCommit []func()
}

func (tx *txn) emit(evt events.Event) { tx.buffer.Emit(evt) }

func (e *Engine) begin() (*txn, error) {
	if e.state == nil {
		return nil, errNilState
	}
	overlay := e.state.Copy()
	buffer := &events.Buffer{}
	bank := asset.NewBank(overlay)
	bank.SetEmitter(buffer)
	return &txn{
		state:  overlay,
		bank:   bank,
		ledger: NewLedger(overlay, e.address),
		buffer: buffer,
	}, nil
}

// execute runs fn against a fresh overlay of the deployed engine and commits
// only when fn succeeds.
func (e *Engine) execute(fn func(tx *txn) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.begin()
	if err != nil {
		return err
	}
	cfg, ok, err := loadConfig(tx.state, e.address)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotDeployed
	}
	tx.cfg = cfg
	return e.finish(tx, fn(tx))
}

func (e *Engine) finish(tx *txn, err error) error {
	if err != nil {
		tx.state.Discard()
		return err
	}
	if err := tx.state.Commit(); err != nil {
		return err
	}
	for _, hook := range tx.onCommit {
		hook()
	}
	tx.buffer.Flush(e.emitter)
	return nil
}

// Deploy writes the initial configuration. The owner defaults to deployer and
// unset layout and scheme default to LayoutAssetCapped and eth_sign.
func (e *Engine) Deploy(deployer common.Address, cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.begin()
	if err != nil {
		return err
	}
	if _, ok, err := loadConfig(tx.state, e.address); err != nil {
		return err
	} else if ok {
		return ErrAlreadyDeployed
	}
	if cfg.Owner == (common.Address{}) {
		cfg.Owner = deployer
	}
	if cfg.Layout == 0 {
		cfg.Layout = DefaultLayout
	}
	if cfg.Scheme == 0 {
		cfg.Scheme = SchemeEthSign
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	err = storeConfig(tx.state, e.address, &cfg)
	if err == nil {
		tx.emit(events.SHOOwnershipTransferred{Current: cfg.Owner})
	}
	if err := e.finish(tx, err); err != nil {
		return err
	}
	e.logger.Info("sho engine deployed",
		slog.String("engine", e.address.Hex()),
		slog.String("owner", cfg.Owner.Hex()),
		slog.String("layout", cfg.Layout.String()),
		slog.String("scheme", cfg.Scheme.String()))
	return nil
}

// Config returns the committed configuration.
func (e *Engine) Config() (*Config, error) {
	if e.state == nil {
		return nil, errNilState
	}
	cfg, ok, err := loadConfig(e.state, e.address)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotDeployed
	}
	return cfg, nil
}

// HasDeposited reports whether participant redeemed a voucher for sale.
func (e *Engine) HasDeposited(sale string, participant common.Address) (bool, error) {
	if e.state == nil {
		return false, errNilState
	}
	return NewLedger(e.state, e.address).HasDeposited(sale, participant)
}

// Accumulated returns the committed total deposited for sale.
func (e *Engine) Accumulated(sale string) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return NewLedger(e.state, e.address).Accumulated(sale)
}

// Sales lists the sales that received at least one deposit.
func (e *Engine) Sales() ([]string, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return NewLedger(e.state, e.address).Sales()
}

// Participants lists the participants recorded for sale.
func (e *Engine) Participants(sale string) ([]common.Address, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return NewLedger(e.state, e.address).Participants(sale)
}

// authorization is the outcome of the shared voucher checks.
type authorization struct {
	asset common.Address
	total *big.Int
}

// authorize runs every check that precedes moving funds: pause, signature,
// receiver, replay, deadline and cap, in that order.
func (e *Engine) authorize(tx *txn, caller common.Address, req DepositRequest) (*authorization, error) {
	cfg := tx.cfg
	if cfg.Paused || nativecommon.Guard(e.pauses, ModuleName) != nil {
		return nil, ErrPaused
	}
	if strings.TrimSpace(req.SaleID) == "" {
		return nil, ErrInvalidSale
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	depositAsset := cfg.DepositAsset
	if cfg.Layout.PerVoucherAsset() {
		depositAsset = req.Asset
	} else if req.Asset != (common.Address{}) && req.Asset != cfg.DepositAsset {
		return nil, ErrSignatureVerification
	}
	voucher := Voucher{
		Participant: caller,
		SaleID:      req.SaleID,
		Asset:       depositAsset,
		Amount:      req.Amount,
		Deadline:    req.Deadline,
		Receiver:    cfg.Receiver,
		MaxAmount:   req.MaxAmount,
	}
	if voucher.CheckRange() != nil {
		return nil, ErrSignatureVerification
	}
	verifier := e.verifier
	if verifier == nil {
		verifier = NewVerifier(cfg.Scheme)
	}
	if !Authorized(verifier, Digest(cfg.Layout, voucher), req.Signature, cfg.Organizer) {
		return nil, ErrSignatureVerification
	}
	if req.Receiver != nil && *req.Receiver != cfg.Receiver {
		return nil, ErrInvalidDepositReceiver
	}

	done, err := tx.ledger.HasDeposited(req.SaleID, caller)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, ErrAlreadyDeposited
	}
	// a clock at or before the epoch is broken; refuse rather than skip
	if now := e.now(); now <= 0 || uint64(now) > req.Deadline {
		return nil, ErrDeadlinePassed
	}

	total, err := tx.ledger.Accumulated(req.SaleID)
	if err != nil {
		return nil, err
	}
	limit := req.MaxAmount
	if limit == nil && cfg.Layout.Capped() {
		limit = new(big.Int)
	}
	if limit != nil && new(big.Int).Add(total, req.Amount).Cmp(limit) > 0 {
		return nil, ErrCapReached
	}
	return &authorization{asset: depositAsset, total: total}, nil
}

// Deposit redeems the voucher in req for caller: after authorization the
// amount is pulled from caller straight to the configured receiver using the
// allowance caller granted the engine.
func (e *Engine) Deposit(caller common.Address, req DepositRequest) (*Receipt, error) {
	var receipt *Receipt
	err := e.execute(func(tx *txn) error {
		auth, err := e.authorize(tx, caller, req)
		if err != nil {
			return err
		}
		if err := tx.bank.TransferFrom(auth.asset, e.address, caller, tx.cfg.Receiver, req.Amount); err != nil {
			return err
		}
		receipt, err = e.record(tx, caller, req, auth, nil)
		return err
	})
	e.observeDeposit(caller, req, receipt, err)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (e *Engine) record(tx *txn, caller common.Address, req DepositRequest, auth *authorization, refund *big.Int) (*Receipt, error) {
	total, err := tx.ledger.Record(req.SaleID, caller, req.Amount)
	if err != nil {
		return nil, err
	}
	receipt := &Receipt{
		SaleID:      req.SaleID,
		Participant: caller,
		Asset:       auth.asset,
		Receiver:    tx.cfg.Receiver,
		Amount:      new(big.Int).Set(req.Amount),
		Accumulated: total,
		Refund:      refund,
	}
	tx.emit(events.SHODeposit{
		SaleID:      receipt.SaleID,
		Participant: receipt.Participant,
		Asset:       receipt.Asset,
		Receiver:    receipt.Receiver,
		Amount:      receipt.Amount,
		Accumulated: receipt.Accumulated,
		Refund:      receipt.Refund,
	})
	return receipt, nil
}

func (e *Engine) observeDeposit(caller common.Address, req DepositRequest, receipt *Receipt, err error) {
	if err != nil {
		e.metrics.ObserveDeposit(false, reason(err))
		e.logger.Debug("sho deposit rejected",
			slog.String("sale", req.SaleID),
			slog.String("participant", caller.Hex()),
			slog.String("kind", Classify(err).String()),
			slog.String("error", err.Error()))
		return
	}
	e.metrics.ObserveDeposit(true, "")
	e.metrics.SetAccumulated(receipt.SaleID, receipt.Accumulated)
	e.logger.Info("sho deposit accepted",
		slog.String("sale", receipt.SaleID),
		slog.String("participant", receipt.Participant.Hex()),
		slog.String("asset", receipt.Asset.Hex()),
		slog.String("amount", receipt.Amount.String()),
		slog.String("accumulated", receipt.Accumulated.String()))
}
