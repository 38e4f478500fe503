package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"shodeposit/cmd/internal/passphrase"
	"shodeposit/config"
	"shodeposit/core/events"
	"shodeposit/core/state"
	"shodeposit/crypto"
	"shodeposit/native/asset"
	nativecommon "shodeposit/native/common"
	"shodeposit/native/sho"
	"shodeposit/observability/logging"
	"shodeposit/report"
	"shodeposit/storage"
)

const (
	defaultConfig  = "./sho.toml"
	defaultPassEnv = "SHO_OWNER_PASS"
	// pauseEnv lists modules to pause on top of the config file, comma
	// separated.
	pauseEnv = "SHO_PAUSE"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			usage(os.Stderr)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

// run dispatches one sub-command. Results are written to stdout as JSON.
func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "keygen":
		return runKeygen(rest, stdout)
	case "deploy":
		return runDeploy(rest, stdout)
	case "inspect":
		return runInspect(rest, stdout)
	case "export":
		return runExport(rest, stdout)
	case "pause", "unpause":
		return runAdmin(cmd, rest, stdout, false, func(e *sho.Engine, owner, _ common.Address) (any, error) {
			if cmd == "pause" {
				return nil, e.Pause(owner)
			}
			return nil, e.Unpause(owner)
		})
	case "set-receiver":
		return runAdmin(cmd, rest, stdout, true, func(e *sho.Engine, owner, addr common.Address) (any, error) {
			return nil, e.SetDepositReceiver(owner, addr)
		})
	case "set-organizer":
		return runAdmin(cmd, rest, stdout, true, func(e *sho.Engine, owner, addr common.Address) (any, error) {
			return nil, e.SetShoOrganizer(owner, addr)
		})
	case "set-token":
		return runAdmin(cmd, rest, stdout, true, func(e *sho.Engine, owner, addr common.Address) (any, error) {
			return nil, e.SetDepositToken(owner, addr)
		})
	case "transfer-ownership":
		return runAdmin(cmd, rest, stdout, true, func(e *sho.Engine, owner, addr common.Address) (any, error) {
			return nil, e.TransferOwnership(owner, addr)
		})
	case "recover":
		return runAdmin(cmd, rest, stdout, true, func(e *sho.Engine, owner, addr common.Address) (any, error) {
			amount, err := e.RecoverAsset(owner, addr)
			if err != nil {
				return nil, err
			}
			return map[string]string{"asset": addr.Hex(), "amount": amount.String()}, nil
		})
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	default:
		return errUsage
	}
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// eventLogger writes engine events to the structured log.
type eventLogger struct {
	logger *slog.Logger
}

func (l eventLogger) Emit(evt events.Event) {
	typed, ok := evt.(events.Typed)
	if !ok {
		return
	}
	rendered := typed.Event()
	if rendered == nil {
		return
	}
	keys := make([]string, 0, len(rendered.Attributes))
	for k := range rendered.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)+1)
	args = append(args, slog.String("event", rendered.Type))
	for _, k := range keys {
		args = append(args, slog.String(k, rendered.Attributes[k]))
	}
	l.logger.Info("engine event", args...)
}

// deployment bundles the opened store and engine for one config file.
type deployment struct {
	cfg     *config.Config
	db      *storage.LevelDB
	state   *state.Manager
	engine  *sho.Engine
	pauses  nativecommon.PauseView
	logger  *slog.Logger
	logFile io.Closer
}

// hostPauses merges the configured switches with the pauseEnv override.
func hostPauses(cfg *config.Config, getenv func(string) string) nativecommon.PauseView {
	var modules []string
	for _, m := range strings.Split(getenv(pauseEnv), ",") {
		if m = strings.TrimSpace(m); m != "" {
			modules = append(modules, m)
		}
	}
	override := nativecommon.PauseFunc(func(module string) bool {
		for _, m := range modules {
			if strings.EqualFold(m, module) {
				return true
			}
		}
		return false
	})
	return nativecommon.AnyPaused{cfg.Pauses, override}
}

func open(configPath string) (*deployment, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	var out io.Writer = os.Stderr
	logFile := logging.FileWriter(logging.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if logFile != nil {
		out = io.MultiWriter(os.Stderr, logFile)
	}
	logger := logging.SetupWriter(out, cfg.Logging.Service, cfg.Logging.Env)
	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("failed to open data dir %s: %w", cfg.DataDir, err)
	}
	st := state.NewManager(db)
	engine := sho.NewEngine(st, cfg.EngineLabel)
	engine.SetLogger(logger)
	engine.SetEmitter(eventLogger{logger: logger})
	pauses := hostPauses(cfg, os.Getenv)
	engine.SetPauseView(pauses)
	d := &deployment{cfg: cfg, db: db, state: st, engine: engine, pauses: pauses, logger: logger}
	if logFile != nil {
		d.logFile = logFile
	}
	return d, nil
}

func (d *deployment) Close() {
	d.db.Close()
	if d.logFile != nil {
		d.logFile.Close()
	}
}

func (d *deployment) ownerKey(passEnv string) (*crypto.PrivateKey, error) {
	if d.cfg.OwnerKeystorePath == "" {
		return nil, fmt.Errorf("config does not set OwnerKeystorePath")
	}
	pass, err := passphrase.NewSource(passEnv, "owner").Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(d.cfg.OwnerKeystorePath, pass)
	if err != nil {
		return nil, fmt.Errorf("failed to unlock owner keystore: %w", err)
	}
	return key, nil
}

func runKeygen(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	out := fs.String("out", "", "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	light := fs.Bool("light", false, "Use light scrypt parameters (local testing only)")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("keygen: -out is required")
	}
	if !*force {
		if _, err := os.Stat(*out); err == nil {
			return fmt.Errorf("keystore file %s already exists (use -force to overwrite)", *out)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	pass, err := passphrase.NewSource(*passEnv, "new").WithConfirmation().Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	params := crypto.StandardKeystore
	if *light {
		params = crypto.LightKeystore
	}
	if err := crypto.SaveToKeystoreWithParams(*out, key, pass, params); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	return writeJSON(stdout, map[string]string{
		"keystore": *out,
		"address":  key.Address().Hex(),
		"bech32":   key.Bech32(),
	})
}

func runDeploy(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("deploy", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the deployment config file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the owner keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := open(*configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	key, err := d.ownerKey(*passEnv)
	if err != nil {
		return err
	}
	engineCfg, err := d.cfg.Engine()
	if err != nil {
		return err
	}
	if err := seedAssets(d); err != nil {
		return err
	}
	if err := d.engine.Deploy(key.Address(), engineCfg); err != nil {
		return err
	}
	deployed, err := d.engine.Config()
	if err != nil {
		return err
	}
	return writeJSON(stdout, describeConfig(d.engine.Address(), deployed))
}

// seedAssets registers the configured assets and mints their allocations in
// one batch. Assets already present are left alone.
func seedAssets(d *deployment) error {
	entries, err := d.cfg.AssetTable()
	if err != nil {
		return err
	}
	overlay := d.state.Copy()
	bank := asset.NewBank(overlay)
	bank.SetEmitter(eventLogger{logger: d.logger})
	for _, entry := range entries {
		_, exists, err := bank.Metadata(entry.Metadata.Address)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := bank.Register(entry.Metadata); err != nil {
			return err
		}
		for _, alloc := range entry.Allocations {
			if err := bank.Mint(entry.Metadata.Address, alloc.Holder, alloc.Amount); err != nil {
				return fmt.Errorf("mint %s to %s: %w", entry.Metadata.Symbol, alloc.Holder.Hex(), err)
			}
		}
	}
	return overlay.Commit()
}

type configView struct {
	Engine       string `json:"engine"`
	Owner        string `json:"owner"`
	Organizer    string `json:"organizer"`
	Receiver     string `json:"receiver"`
	DepositAsset string `json:"depositAsset,omitempty"`
	Layout       string `json:"layout"`
	Scheme       string `json:"scheme"`
	Paused       bool   `json:"paused"`
}

func describeConfig(engine common.Address, cfg *sho.Config) configView {
	view := configView{
		Engine:    engine.Hex(),
		Owner:     cfg.Owner.Hex(),
		Organizer: cfg.Organizer.Hex(),
		Receiver:  cfg.Receiver.Hex(),
		Layout:    cfg.Layout.String(),
		Scheme:    cfg.Scheme.String(),
		Paused:    cfg.Paused,
	}
	if cfg.DepositAsset != (common.Address{}) {
		view.DepositAsset = cfg.DepositAsset.Hex()
	}
	return view
}

type saleView struct {
	Sale         string   `json:"sale"`
	Accumulated  string   `json:"accumulated"`
	Participants []string `json:"participants"`
}

type inspectReport struct {
	Config     configView `json:"config"`
	Sales      []saleView `json:"sales"`
	Deposited  *bool      `json:"deposited,omitempty"`
	Custody    []string   `json:"custody,omitempty"`
	HostPaused bool       `json:"hostPaused"`
}

func runInspect(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the deployment config file")
	sale := fs.String("sale", "", "Only report this sale")
	participant := fs.String("participant", "", "Report whether this participant deposited for -sale")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := open(*configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	cfg, err := d.engine.Config()
	if err != nil {
		return err
	}
	summary := inspectReport{
		Config:     describeConfig(d.engine.Address(), cfg),
		Sales:      []saleView{},
		HostPaused: d.pauses.IsPaused(sho.ModuleName),
	}

	sales := []string{*sale}
	if *sale == "" {
		if sales, err = d.engine.Sales(); err != nil {
			return err
		}
	}
	for _, id := range sales {
		total, err := d.engine.Accumulated(id)
		if err != nil {
			return err
		}
		participants, err := d.engine.Participants(id)
		if err != nil {
			return err
		}
		view := saleView{Sale: id, Accumulated: total.String(), Participants: []string{}}
		for _, p := range participants {
			view.Participants = append(view.Participants, p.Hex())
		}
		summary.Sales = append(summary.Sales, view)
	}

	if *participant != "" {
		if *sale == "" {
			return fmt.Errorf("inspect: -participant requires -sale")
		}
		addr, err := crypto.ParseAddress(*participant)
		if err != nil {
			return err
		}
		done, err := d.engine.HasDeposited(*sale, addr)
		if err != nil {
			return err
		}
		summary.Deposited = &done
	}

	bank := asset.NewBank(d.state)
	assets, err := bank.Assets()
	if err != nil {
		return err
	}
	for _, a := range assets {
		bal, err := bank.BalanceOf(a, d.engine.Address())
		if err != nil {
			return err
		}
		if bal.Sign() > 0 {
			summary.Custody = append(summary.Custody, fmt.Sprintf("%s:%s", a.Hex(), bal.String()))
		}
	}
	return writeJSON(stdout, summary)
}

func runExport(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the deployment config file")
	outDir := fs.String("out", "./reports", "Directory receiving the CSV and parquet files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	d, err := open(*configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	files, err := report.Export(*outDir, d.engine, time.Now())
	if err != nil {
		return err
	}
	d.logger.Info("deposit report written",
		slog.String("engine", d.engine.Address().Hex()),
		slog.Int("rows", files.Rows))
	return writeJSON(stdout, files)
}

type adminFunc func(e *sho.Engine, owner, addr common.Address) (any, error)

func runAdmin(name string, args []string, stdout io.Writer, needsAddr bool, fn adminFunc) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the deployment config file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the owner keystore passphrase")
	target := fs.String("addr", "", "Address argument (hex or bech32)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var addr common.Address
	if needsAddr {
		parsed, err := crypto.ParseAddress(*target)
		if err != nil {
			return fmt.Errorf("%s: -addr: %w", name, err)
		}
		addr = parsed
	}

	d, err := open(*configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	key, err := d.ownerKey(*passEnv)
	if err != nil {
		return err
	}
	result, err := fn(d.engine, key.Address(), addr)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if result == nil {
		cfg, err := d.engine.Config()
		if err != nil {
			return err
		}
		result = describeConfig(d.engine.Address(), cfg)
	}
	return writeJSON(stdout, result)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "shoctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  keygen              Generate an encrypted keystore")
	fmt.Fprintln(w, "  deploy              Register assets and write the initial engine configuration")
	fmt.Fprintln(w, "  export              Write the deposit ledger as CSV and parquet")
	fmt.Fprintln(w, "  inspect             Print configuration, sale totals and custody balances")
	fmt.Fprintln(w, "  pause | unpause     Toggle deposits")
	fmt.Fprintln(w, "  set-receiver        Change the deposit receiver (-addr)")
	fmt.Fprintln(w, "  set-organizer       Rotate the voucher signer (-addr)")
	fmt.Fprintln(w, "  set-token           Change the fixed deposit asset (-addr)")
	fmt.Fprintln(w, "  transfer-ownership  Hand admin rights to -addr")
	fmt.Fprintln(w, "  recover             Sweep the engine's balance of asset -addr to the owner")
}
