package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// bindFlags binds each flag name to its viper key.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f := flags.Lookup(name)
		if f == nil {
			return fmt.Errorf("bind flag --%s: not defined", name)
		}
		if err := v.BindPFlag(keys[name], f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}
