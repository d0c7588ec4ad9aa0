// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	flag "github.com/spf13/pflag"
	"golang.org/x/exp/slog"

	"github.com/stratumlabs/stratum/chain"
	"github.com/stratumlabs/stratum/cmd/genericconf"
	"github.com/stratumlabs/stratum/cmd/util/confighelpers"
	"github.com/stratumlabs/stratum/cranker"
	"github.com/stratumlabs/stratum/orderbook"
	"github.com/stratumlabs/stratum/orderstore"
)

type CrankerAppConfig struct {
	cranker.Config `koanf:",squash"`

	Conf        bool                          `koanf:"conf"`
	LogLevel    int                           `koanf:"log-level"`
	FileLogging genericconf.FileLoggingConfig `koanf:"file-logging"`
}

func main() {
	if err := startup(); err != nil {
		log.Error("error running cranker", "err", err)
		os.Exit(1)
	}
}

func parseCranker(args []string) (*CrankerAppConfig, error) {
	f := flag.NewFlagSet("cranker", flag.ContinueOnError)
	cranker.ConfigAddOptions(f)
	f.Bool("conf", false, "print out the resolved configuration and exit")
	f.Int("log-level", int(slog.LevelInfo), "log level as a slog level; -8: TRACE, -4: DEBUG, 0: INFO, 4: WARN, 8: ERROR")
	genericconf.FileLoggingConfigAddOptions("file-logging", f)

	k, err := confighelpers.BeginCommonParse(f, args)
	if err != nil {
		return nil, err
	}
	var config CrankerAppConfig
	if err := confighelpers.EndCommonParse(k, &config); err != nil {
		return nil, err
	}
	if config.Conf {
		if err := confighelpers.DumpConfig(k); err != nil {
			return nil, err
		}
		os.Exit(0)
	}
	return &config, nil
}

func startup() error {
	config, err := parseCranker(os.Args[1:])
	if err != nil {
		confighelpers.PrintSampleUsage(os.Args[0])
		if !flagUsageRequested(err) {
			fmt.Printf("%v\n", err)
		}
		return nil
	}
	genericconf.InitLog(slog.Level(config.LogLevel), &config.FileLogging)

	// Missing required configuration fails here, before anything runs.
	if err := config.Config.Validate(); err != nil {
		return err
	}

	storeConfig := config.Config.StoreConfig()
	store, err := orderstore.NewStore(&storeConfig)
	if err != nil {
		return err
	}

	// The demo wiring drives an in-process settlement engine; a remote
	// deployment substitutes an RPC-backed ChainSubmitter here.
	clock := chain.SystemClock()
	engine := orderbook.NewEngine(clock)
	authority := chain.Derive([]byte("authority"), []byte(config.Config.KeypairPath))
	crankerKey := chain.Derive([]byte("cranker"), []byte(config.Config.KeypairPath))
	baseMint := chain.Derive([]byte("base_mint"), []byte(config.Config.OrderBookAddress))
	quoteMint := chain.Derive([]byte("quote_mint"), []byte(config.Config.OrderBookAddress))
	bookAddr, err := engine.CreateOrderBook(orderbook.CreateBookParams{
		Authority:     authority,
		Cranker:       crankerKey,
		BaseMint:      baseMint,
		QuoteMint:     quoteMint,
		FeeVault:      chain.Derive([]byte("fee_vault"), authority.Bytes()),
		TickSize:      1,
		FeeBps:        25,
		SettlementTTL: 7 * 24 * 3600,
		GracePeriod:   24 * 3600,
		CleanupReward: 5000,
	})
	if err != nil {
		return err
	}
	submitter := cranker.NewLocalSubmitter(engine, bookAddr, crankerKey, authority)

	service, err := cranker.NewCranker(&config.Config, store, submitter, clock)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := service.Start(ctx); err != nil {
		return err
	}

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint
	log.Info("shutting down")
	service.StopAndWait()
	return nil
}

func flagUsageRequested(err error) bool {
	return err == flag.ErrHelp
}
