// Package config loads the node's chainspec-derived configuration from TOML,
// per SPEC_FULL.md §10.3, and watches it for hot-reloadable changes. This is
// the teacher's own config-loading library choice
// (github.com/naoina/toml) carried over unchanged — op-geth-family nodes load
// their TOML config the same way in cmd/utils.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fsnotify/fsnotify"
	"github.com/naoina/toml"
	"golang.org/x/time/rate"

	"github.com/casper-network/casper-node-go/acceptor"
	"github.com/casper-network/casper-node-go/common"
	"github.com/casper-network/casper-node-go/dial"
	"github.com/casper-network/casper-node-go/feeengine"
	"github.com/casper-network/casper-node-go/overlay"
	"github.com/casper-network/casper-node-go/pricing"
	"github.com/casper-network/casper-node-go/ratelimit"
	"github.com/casper-network/casper-node-go/txn"
)

// LaneConfig mirrors txn.Lane in TOML-friendly form.
type LaneConfig struct {
	ID                          uint8
	MaxSerializedLength         uint64
	MaxRuntimeArgsLength        uint64
	MaxTransactionGasLimit      uint64
	MaxTransactionCountPerBlock uint32
}

func (l LaneConfig) toLane() txn.Lane {
	return txn.Lane{
		ID:                          txn.LaneID(l.ID),
		MaxSerializedLength:         l.MaxSerializedLength,
		MaxRuntimeArgsLength:        l.MaxRuntimeArgsLength,
		MaxTransactionGasLimit:      l.MaxTransactionGasLimit,
		MaxTransactionCountPerBlock: l.MaxTransactionCountPerBlock,
	}
}

// Network groups the overlay/dial section of the config file.
type Network struct {
	BindAddr             string
	PublicAddr           string
	MaxIncomingPeerConns int
	GossipIntervalMs     int64
	BaseBackoffMs        int64
	MaxAddrPendingTimeMs int64
	UnblockMinMs         int64
	UnblockMaxMs         int64
}

// RateLimits groups §5's resource-policy tuning.
type RateLimits struct {
	ValidatorMessagesPerSec    float64
	ValidatorBurstMessages     int
	ValidatorBytesPerSec       float64
	ValidatorBurstBytes        int
	NonValidatorMessagesPerSec float64
	NonValidatorBurstMessages  int
	NonValidatorBytesPerSec    float64
	NonValidatorBurstBytes     int
}

// Accounting groups §4.E's refund/fee policy.
type Accounting struct {
	RefundKind              string // "none" | "ratio" | "burn_ratio"
	RefundRatioNumerator    uint64
	RefundRatioDenominator  uint64
	FeeKind                 string // "pay_to_proposer" | "burn" | "accumulate" | "no_fee"
	GasHoldAmortized        bool
	BalanceHoldIntervalMs   int64
	HoldRemainingOnShortfall bool
}

// Config is the node's full TOML-loaded configuration.
type Config struct {
	ChainName                string
	MinGasPrice              uint64
	MaxGasPrice              uint64
	MaxFutureTimestampSecs   int64
	MaxTTLSecs               int64
	MaxApprovals             int
	NativeTransferMinimum    string // decimal motes, parsed via common.Motes.UnmarshalText
	BaselineMotes            string // decimal motes, parsed via common.Motes.UnmarshalText
	BlockGasLimit            uint64
	MintTransferCost         uint64
	MintLane                 LaneConfig
	AuctionLane              LaneConfig
	WasmLanes                []LaneConfig

	Network    Network
	RateLimits RateLimits
	Accounting Accounting

	LogFormat string // "terminal" | "json"
	LogFile   string
}

// Load reads and parses a TOML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// AcceptorConfig derives the acceptor's Config from the loaded file.
func (c *Config) AcceptorConfig() (acceptor.Config, error) {
	var minimum common.Motes
	if err := minimum.UnmarshalText([]byte(c.NativeTransferMinimum)); err != nil {
		return acceptor.Config{}, fmt.Errorf("config: native_transfer_minimum: %w", err)
	}
	var baseline common.Motes
	if c.BaselineMotes != "" {
		if err := baseline.UnmarshalText([]byte(c.BaselineMotes)); err != nil {
			return acceptor.Config{}, fmt.Errorf("config: baseline_motes: %w", err)
		}
	}
	wasm := make([]txn.Lane, len(c.WasmLanes))
	for i, l := range c.WasmLanes {
		wasm[i] = l.toLane()
	}

	handling := txn.HoldAccrued
	if c.Accounting.GasHoldAmortized {
		handling = txn.HoldAmortized
	}

	return acceptor.Config{
		ChainName:                c.ChainName,
		MinGasPrice:              c.MinGasPrice,
		MaxGasPrice:              c.MaxGasPrice,
		MaxFutureTimestampLeeway: time.Duration(c.MaxFutureTimestampSecs) * time.Second,
		MaxTTL:                   time.Duration(c.MaxTTLSecs) * time.Second,
		MaxApprovals:             c.MaxApprovals,
		NativeTransferMinimum:    minimum,
		BaselineMotes:            baseline,
		BlockGasLimit:            c.BlockGasLimit,
		MintTransferCost:         pricing.MintTransferCost(c.MintTransferCost),
		Lanes: txn.LaneTable{
			Mint:    c.MintLane.toLane(),
			Auction: c.AuctionLane.toLane(),
			Wasm:    wasm,
		},
		BalanceHoldHandling: handling,
		BalanceHoldInterval: time.Duration(c.Accounting.BalanceHoldIntervalMs) * time.Millisecond,
	}, nil
}

// OverlayConfig derives the overlay's Config from the loaded file.
func (c *Config) OverlayConfig() overlay.Config {
	cfg := overlay.DefaultConfig()
	cfg.BindAddr = c.Network.BindAddr
	cfg.ChainName = c.ChainName
	cfg.PublicAddr = parseAddr(c.Network.PublicAddr)
	if c.Network.MaxIncomingPeerConns > 0 {
		cfg.MaxIncomingPeerConns = c.Network.MaxIncomingPeerConns
	}
	if c.Network.GossipIntervalMs > 0 {
		cfg.GossipInterval = time.Duration(c.Network.GossipIntervalMs) * time.Millisecond
	}
	cfg.RateLimits = c.RateLimitConfig()
	return cfg
}

// DialConfig derives the outgoing connection manager's Config.
func (c *Config) DialConfig() dial.Config {
	cfg := dial.DefaultConfig()
	if c.Network.BaseBackoffMs > 0 {
		cfg.BaseBackoff = time.Duration(c.Network.BaseBackoffMs) * time.Millisecond
	}
	if c.Network.MaxAddrPendingTimeMs > 0 {
		cfg.MaxAddrPendingTime = time.Duration(c.Network.MaxAddrPendingTimeMs) * time.Millisecond
	}
	if c.Network.UnblockMinMs > 0 {
		cfg.UnblockMin = time.Duration(c.Network.UnblockMinMs) * time.Millisecond
	}
	if c.Network.UnblockMaxMs > 0 {
		cfg.UnblockMax = time.Duration(c.Network.UnblockMaxMs) * time.Millisecond
	}
	return cfg
}

// RateLimitConfig derives the per-tier rate-limit configuration.
func (c *Config) RateLimitConfig() ratelimit.Config {
	r := c.RateLimits
	return ratelimit.Config{
		ValidatorMessagesPerSec:    rateLimit(r.ValidatorMessagesPerSec),
		ValidatorBurstMessages:     r.ValidatorBurstMessages,
		ValidatorBytesPerSec:       rateLimit(r.ValidatorBytesPerSec),
		ValidatorBurstBytes:        r.ValidatorBurstBytes,
		NonValidatorMessagesPerSec: rateLimit(r.NonValidatorMessagesPerSec),
		NonValidatorBurstMessages:  r.NonValidatorBurstMessages,
		NonValidatorBytesPerSec:    rateLimit(r.NonValidatorBytesPerSec),
		NonValidatorBurstBytes:     r.NonValidatorBurstBytes,
	}
}

// FeeEngineConfig derives §4.E's accounting configuration.
func (c *Config) FeeEngineConfig() feeengine.Config {
	a := c.Accounting
	refund := feeengine.RefundHandling{Ratio: feeengine.Ratio{Numerator: a.RefundRatioNumerator, Denominator: a.RefundRatioDenominator}}
	switch a.RefundKind {
	case "ratio":
		refund.Kind = feeengine.RefundRatio
	case "burn_ratio":
		refund.Kind = feeengine.RefundBurnRatio
	default:
		refund.Kind = feeengine.RefundNone
	}

	var fee feeengine.FeeHandling
	switch a.FeeKind {
	case "burn":
		fee.Kind = feeengine.FeeBurn
	case "accumulate":
		fee.Kind = feeengine.FeeAccumulate
	case "no_fee":
		fee.Kind = feeengine.FeeNoFee
	default:
		fee.Kind = feeengine.FeePayToProposer
	}

	handling := txn.HoldAccrued
	if a.GasHoldAmortized {
		handling = txn.HoldAmortized
	}
	policy := txn.InsufficientFundsNoop
	if a.HoldRemainingOnShortfall {
		policy = txn.InsufficientFundsHoldRemaining
	}

	return feeengine.Config{
		Refund:                  refund,
		Fee:                     fee,
		GasHoldBalanceHandling:  handling,
		BalanceHoldInterval:     time.Duration(a.BalanceHoldIntervalMs) * time.Millisecond,
		InsufficientFundsPolicy: policy,
	}
}

func rateLimit(perSec float64) rate.Limit { return rate.Limit(perSec) }

func parseAddr(s string) dial.Addr {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return dial.Addr{}
	}
	var port uint16
	fmt.Sscanf(portStr, "%d", &port)
	return dial.Addr{Host: host, Port: port}
}

// Watch watches path for changes (chainspec/config hot-reload, per
// SPEC_FULL.md §10.3) and invokes onChange with the freshly reloaded Config.
// Only non-consensus-critical values should actually be applied by onChange;
// callers are responsible for rejecting changes to consensus-critical fields
// (chain name, lanes, pricing) at reload time.
func Watch(path string, onChange func(*Config)) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.Warn("config: reload failed", "path", path, "err", err)
					continue
				}
				log.Info("config: reloaded", "path", path)
				onChange(cfg)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("config: watcher error", "err", err)
			}
		}
	}()
	return w, nil
}
