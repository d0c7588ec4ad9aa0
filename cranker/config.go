// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package cranker

import (
	"time"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"github.com/stratumlabs/stratum/orderstore"
)

var ErrMissingConfig = errors.New("missing required configuration")

type Config struct {
	RPCURL           string `koanf:"rpc-url"`
	KeypairPath      string `koanf:"keypair-path"`
	OrderBookAddress string `koanf:"order-book-address"`

	MaxOrdersPerEpoch     uint32        `koanf:"max-orders-per-epoch"`
	EpochRotationInterval time.Duration `koanf:"epoch-rotation-interval"`
	MatchInterval         time.Duration `koanf:"match-interval"`
	SettlementInterval    time.Duration `koanf:"settlement-interval"`

	ErrorDelay    time.Duration `koanf:"error-delay"`
	MaxErrorDelay time.Duration `koanf:"max-error-delay"`

	Store orderstore.Config `koanf:"store"`
}

var DefaultConfig = Config{
	RPCURL:                "",
	KeypairPath:           "",
	OrderBookAddress:      "",
	MaxOrdersPerEpoch:     2048,
	EpochRotationInterval: time.Minute,
	MatchInterval:         time.Second,
	SettlementInterval:    5 * time.Second,
	ErrorDelay:            time.Second,
	MaxErrorDelay:         time.Minute,
	Store:                 orderstore.DefaultConfig,
}

// ConfigAddOptions registers the daemon's flags. The cranker config is
// the binary's top level, so its environment surface stays flat:
// STRATUM_RPC_URL, STRATUM_ORDER_BOOK_ADDRESS, and so on.
func ConfigAddOptions(f *flag.FlagSet) {
	f.String("rpc-url", DefaultConfig.RPCURL, "chain RPC endpoint")
	f.String("keypair-path", DefaultConfig.KeypairPath, "path to the cranker signing keypair")
	f.String("order-book-address", DefaultConfig.OrderBookAddress, "address of the order book to crank")
	f.Uint32("max-orders-per-epoch", DefaultConfig.MaxOrdersPerEpoch, "orders per epoch before rotation")
	f.Duration("epoch-rotation-interval", DefaultConfig.EpochRotationInterval, "how often to rotate the epoch regardless of fill level")
	f.Duration("match-interval", DefaultConfig.MatchInterval, "how often to run the matcher over the book snapshot")
	f.Duration("settlement-interval", DefaultConfig.SettlementInterval, "how often to submit settlements for finalized matches")
	f.Duration("error-delay", DefaultConfig.ErrorDelay, "initial backoff after a transient submission error")
	f.Duration("max-error-delay", DefaultConfig.MaxErrorDelay, "backoff ceiling for repeated submission errors")
	orderstore.ConfigAddOptions("store", f)
}

// Validate fails startup when a required value is absent.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return errors.Wrap(ErrMissingConfig, "rpc-url")
	}
	if c.KeypairPath == "" {
		return errors.Wrap(ErrMissingConfig, "keypair-path")
	}
	if c.OrderBookAddress == "" {
		return errors.Wrap(ErrMissingConfig, "order-book-address")
	}
	if c.MaxOrdersPerEpoch == 0 {
		return errors.Wrap(ErrMissingConfig, "max-orders-per-epoch")
	}
	return nil
}

// StoreConfig is the store view of the cranker configuration: the epoch
// capacity is surfaced at the top level but owned by the store.
func (c *Config) StoreConfig() orderstore.Config {
	store := c.Store
	store.MaxOrdersPerEpoch = c.MaxOrdersPerEpoch
	return store
}
