// Command casper-node runs the transaction-admission and peer-overlay
// subsystem: an urfave/cli/v2 app in the teacher's cmd/geth style, bootstrapped
// with automaxprocs so the work-stealing goroutine pool behind the overlay's
// per-connection loops sees the container's real CPU quota.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/casper-network/casper-node-go/acceptor"
	"github.com/casper-network/casper-node-go/config"
	"github.com/casper-network/casper-node-go/crypto/identity"
	"github.com/casper-network/casper-node-go/dial"
	"github.com/casper-network/casper-node-go/overlay"
	"github.com/casper-network/casper-node-go/storage"
)

var (
	configFlag = &cli.StringFlag{Name: "config", Usage: "path to the node's TOML configuration file", Required: true}
	dataDirFlag = &cli.StringFlag{Name: "datadir", Usage: "directory for the transaction buffer database", Value: "./casper-node-data"}
	logFormatFlag = &cli.StringFlag{Name: "log.format", Usage: "terminal or json", Value: "terminal"}
	logFileFlag   = &cli.StringFlag{Name: "log.file", Usage: "rotate structured logs to this file instead of stderr"}
)

func main() {
	app := &cli.App{
		Name:  "casper-node",
		Usage: "transaction admission, pricing and peer overlay node",
		Commands: []*cli.Command{
			runCommand,
			peersCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "start the node",
	Flags: []cli.Flag{configFlag, dataDirFlag, logFormatFlag, logFileFlag},
	Action: func(c *cli.Context) error {
		setupLogging(c.String("log.format"), c.String("log.file"))

		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}

		id, err := identity.Generate(0)
		if err != nil {
			return fmt.Errorf("generate node identity: %w", err)
		}
		log.Info("casper-node starting", "node", id.ID)

		store, err := storage.NewPebbleStore(c.String("datadir"), 64<<20)
		if err != nil {
			return err
		}
		defer store.Close()

		dialMgr := dial.NewManager(cfg.DialConfig())
		net := overlay.New(cfg.OverlayConfig(), id, dialMgr)

		acceptorCfg, err := cfg.AcceptorConfig()
		if err != nil {
			return err
		}
		acc := acceptor.New(acceptorCfg, store, acceptorCfg.MinGasPrice)
		_ = acc // wired to the overlay's message feed by the reactor, out of this entrypoint's scope

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := net.Start(ctx); err != nil {
			return err
		}
		go reportHostMetrics(ctx, 15*time.Second)

		watcher, err := config.Watch(c.String("config"), func(reloaded *config.Config) {
			log.Info("casper-node: config file reloaded", "chain", reloaded.ChainName)
		})
		if err == nil {
			defer watcher.Close()
		} else {
			log.Warn("casper-node: config hot-reload disabled", "err", err)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("casper-node shutting down")
		return net.Stop()
	},
}

func setupLogging(format, file string) {
	var handler log.Handler
	switch format {
	case "json":
		handler = log.JSONHandler(os.Stderr)
	default:
		handler = log.NewTerminalHandler(os.Stderr, true)
	}
	if file != "" {
		rotated := &lumberjack.Logger{Filename: file, MaxSize: 100, MaxBackups: 5, MaxAge: 28}
		handler = log.JSONHandler(rotated)
	}
	log.SetDefault(log.NewLogger(handler))
}
