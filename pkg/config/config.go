// Package config loads the server's configuration using viper, backed
// by pflag-bound command-line flags and a config file located relative
// to the user's home directory. Later edits to the config file are
// logged; the Config already returned by Load is not updated.
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	clog "github.com/xds-controlplane/control-plane/pkg/log"
)

// Config is the full set of server-tunable settings.
type Config struct {
	GRPCAddr  string `mapstructure:"grpc_addr"`
	AdminAddr string `mapstructure:"admin_addr"`
	ADS       bool   `mapstructure:"ads"`

	MinProxyVersion string `mapstructure:"min_proxy_version"`

	SourceKind string `mapstructure:"source_kind"`
	SourceDir  string `mapstructure:"source_dir"`

	CIDRGroups map[string]string `mapstructure:"cidr_groups"`
}

// BindFlags registers the flags that map onto Config fields. Call
// before pflag.Parse / cobra's Execute.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("grpc-addr", ":18000", "address the xDS gRPC server listens on")
	fs.String("admin-addr", ":18001", "address the debug/introspection HTTP server listens on")
	fs.Bool("ads", true, "enforce the ADS superset consistency rule")
	fs.String("min-proxy-version", "", "minimum supported proxy build version constraint, e.g. '>= 1.18.0'")
	fs.String("source-kind", "file", "snapshot source kind (file, kube, or blob); xds-server does not read it and starts the file source whenever --source-dir is set")
	fs.String("source-dir", "", "directory watched by the file snapshot source")
}

// Load resolves Config from (in ascending priority) a config file
// discovered via viper's search path, environment variables prefixed
// XDS_, and flags already bound via BindFlags.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	// Flags use hyphens, Config's mapstructure keys use underscores:
	// bind each flag under its underscore key so Unmarshal finds it.
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	home, err := homedir.Dir()
	if err == nil {
		v.AddConfigPath(home)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/xds-controlplane")
	v.SetConfigName("xds-controlplane")

	v.SetEnvPrefix("xds")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		clog.Config.Infof("configuration file changed: %s", e.Name)
	})

	return &c, nil
}
