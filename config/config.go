// Package config builds this server's runtime configuration from flags,
// environment variables, and an optional config file, the way
// Comcast-tr1d1um/src/tr1d1um/tr1d1um.go's tr1d1um(arguments) builds a
// Tr1d1umConfig: a pflag.FlagSet registers the handful of overridable
// settings, viper binds them plus an optional config file, and the result
// is unmarshaled into a plain struct the rest of the program reads from.
//
// The per-device-family "configuration database" spec.md §4.5/§9 call for
// (HTTP fan-out's endpoint list and discovery toggle, HID's discovery
// glob) is split out
// the way jduranf-device-sdk-go/internal/config/loader.go splits its
// profile list from its top-level service config: one struct, one viper
// key namespace per family.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const applicationName = "idcpd"

// HTTPEndpointConfig names one HTTP fan-out device, resolving spec.md §9's
// first Open Question: the sample devices are configured, not hard-coded.
type HTTPEndpointConfig struct {
	Name string
	URL  string
}

// HIDConfig configures the HID family's discovery.
type HIDConfig struct {
	// Glob is the filesystem glob a real Lister enumerates, e.g.
	// "/dev/hidraw*".
	Glob string
}

// HTTPFanoutConfig configures the HTTP fan-out family.
type HTTPFanoutConfig struct {
	DiscoveryEnabled bool
	Endpoints        []HTTPEndpointConfig
	Timeout          time.Duration
}

// ServerConfig is this server's full runtime configuration, unmarshaled
// from viper exactly as tr1d1um.go unmarshals Tr1d1umConfig.
type ServerConfig struct {
	// ListenAddress is the websocket control-plane listener.
	ListenAddress string

	// AdminListenAddress is the read-only admin HTTP surface's listener.
	// Empty disables the admin surface entirely.
	AdminListenAddress string

	// PingTimeout is the Server Event Loop's watchdog per spec.md §4.6.
	// Zero disables the watchdog.
	PingTimeout time.Duration

	HID        HIDConfig
	HTTPFanout HTTPFanoutConfig
}

// DefaultListenAddress is used when the flag/config/env chain leaves
// ListenAddress unset.
const DefaultListenAddress = ":8080"

// DefaultAdminListenAddress is used when the flag/config/env chain leaves
// AdminListenAddress unset.
const DefaultAdminListenAddress = ":8081"

// DefaultPingTimeout mirrors spec.md §5's negotiated keepalive default.
const DefaultPingTimeout = 30 * time.Second

// Initialize registers applicationName's flags on f, binds them into v
// alongside any config file named by --config-file, and unmarshals the
// result into a ServerConfig. Mirrors server.Initialize's signature from
// the teacher, minus the webPA/secure/health machinery that package also
// built, none of which this protocol's Non-goals (no auth, no clustering)
// call for.
func Initialize(applicationName string, arguments []string, f *pflag.FlagSet, v *viper.Viper) (*ServerConfig, error) {
	f.String("listen", "", "websocket control-plane listen address")
	f.String("admin-listen", "", "admin HTTP surface listen address (empty disables it)")
	f.Duration("ping-timeout", 0, "server event loop ping watchdog (0 disables it)")
	f.String("config-file", "", "path to a YAML/JSON/TOML config file")
	f.String("hid-glob", "", "glob pattern for HID device enumeration")
	f.Bool("http-discovery-enabled", false, "advertise configured HTTP fan-out endpoints")

	if err := f.Parse(arguments); err != nil {
		return nil, fmt.Errorf("config: parsing flags: %w", err)
	}
	if err := v.BindPFlags(f); err != nil {
		return nil, fmt.Errorf("config: binding flags: %w", err)
	}

	v.SetEnvPrefix(applicationName)
	v.AutomaticEnv()

	v.SetDefault("listen", DefaultListenAddress)
	v.SetDefault("admin-listen", DefaultAdminListenAddress)
	v.SetDefault("ping-timeout", DefaultPingTimeout)

	if cfgFile := v.GetString("config-file"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", cfgFile, err)
		}
	}

	cfg := &ServerConfig{
		ListenAddress:      v.GetString("listen"),
		AdminListenAddress: v.GetString("admin-listen"),
		PingTimeout:        v.GetDuration("ping-timeout"),
		HID: HIDConfig{
			Glob: v.GetString("hid-glob"),
		},
	}

	if err := v.UnmarshalKey("httpfanout", &cfg.HTTPFanout); err != nil {
		return nil, fmt.Errorf("config: unmarshaling httpfanout: %w", err)
	}
	if v.IsSet("http-discovery-enabled") {
		cfg.HTTPFanout.DiscoveryEnabled = v.GetBool("http-discovery-enabled")
	}

	return cfg, nil
}
