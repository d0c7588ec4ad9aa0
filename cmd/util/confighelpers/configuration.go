// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package confighelpers

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf"
	koanfjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
)

// EnvPrefix is stripped from environment variables before they are mapped
// onto configuration keys: STRATUM_RPC_URL becomes rpc-url, and a double
// underscore descends into a nested config (STRATUM_STORE__SNAPSHOT_DIR
// becomes store.snapshot-dir).
const EnvPrefix = "STRATUM_"

// BeginCommonParse loads flags and prefixed environment variables, flags
// winning, into one koanf instance.
func BeginCommonParse(f *flag.FlagSet, args []string) (*koanf.Koanf, error) {
	if err := f.Parse(args); err != nil {
		return nil, err
	}
	k := koanf.New(".")
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		lowered := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(strings.ReplaceAll(lowered, "__", "."), "_", "-")
	}), nil); err != nil {
		return nil, errors.Wrap(err, "loading environment variables")
	}
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, errors.Wrap(err, "loading command line flags")
	}
	return k, nil
}

// EndCommonParse unmarshals the merged configuration onto config.
func EndCommonParse(k *koanf.Koanf, config interface{}) error {
	decoderConfig := koanf.UnmarshalConf{Tag: "koanf"}
	if err := k.UnmarshalWithConf("", config, decoderConfig); err != nil {
		return errors.Wrap(err, "unmarshalling configuration")
	}
	return nil
}

// DumpConfig prints the resolved configuration as JSON.
func DumpConfig(k *koanf.Koanf) error {
	c, err := k.Marshal(koanfjson.Parser())
	if err != nil {
		return errors.Wrap(err, "marshalling config")
	}
	fmt.Println(string(c))
	return nil
}

func PrintSampleUsage(progname string) {
	fmt.Printf("\n")
	fmt.Printf("Sample usage:                  %s --help \n", progname)
}
