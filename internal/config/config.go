// Package config loads effs' mount-time options, layering flags over
// environment variables over an optional config file over built-in
// defaults, the way gcsfuse's cmd package binds cobra/pflag/viper
// together.
package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the options that govern a single mount.
type Config struct {
	MirrorSource string
	Verbose      bool
	EntryTTL     time.Duration
	MaxWrite     uint32
}

const (
	keyMirrorSource = "mirror-source"
	keyVerbose      = "verbose"
	keyEntryTTL     = "entry-ttl"
	keyMaxWrite     = "max-write"
)

// BindFlags registers effs' flags on fs and returns a *viper.Viper bound
// to them, to environment variables under the EFFS_ prefix, and to
// built-in defaults, in that order of decreasing precedence.
func BindFlags(fs *pflag.FlagSet) *viper.Viper {
	fs.String(keyMirrorSource, "", "host directory to mirror at the mount root")
	fs.Bool(keyVerbose, false, "enable debug-level logging")
	fs.Duration(keyEntryTTL, 1*time.Second, "lookup/attr cache TTL reported to the kernel")
	fs.Uint32(keyMaxWrite, 1024, "maximum write payload reported at init")

	v := viper.New()
	v.SetEnvPrefix("EFFS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(fs)

	v.SetDefault(keyEntryTTL, 1*time.Second)
	v.SetDefault(keyMaxWrite, uint32(1024))

	return v
}

// Load reads a config file (if configPath is non-empty) into v and
// returns the resolved Config.
func Load(v *viper.Viper, configPath string) (Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	return Config{
		MirrorSource: v.GetString(keyMirrorSource),
		Verbose:      v.GetBool(keyVerbose),
		EntryTTL:     v.GetDuration(keyEntryTTL),
		MaxWrite:     v.GetUint32(keyMaxWrite),
	}, nil
}
