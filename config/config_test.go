package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAppliesDefaultsWithNoFlags(t *testing.T) {
	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()

	cfg, err := Initialize("idcpd", nil, f, v)
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddress, cfg.ListenAddress)
	assert.Equal(t, DefaultAdminListenAddress, cfg.AdminListenAddress)
	assert.Equal(t, DefaultPingTimeout, cfg.PingTimeout)
	assert.False(t, cfg.HTTPFanout.DiscoveryEnabled)
}

func TestInitializeFlagsOverrideDefaults(t *testing.T) {
	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()

	cfg, err := Initialize("idcpd", []string{
		"--listen=:9000",
		"--admin-listen=:9001",
		"--ping-timeout=5s",
		"--hid-glob=/dev/hidraw*",
		"--http-discovery-enabled",
	}, f, v)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddress)
	assert.Equal(t, ":9001", cfg.AdminListenAddress)
	assert.Equal(t, 5*time.Second, cfg.PingTimeout)
	assert.Equal(t, "/dev/hidraw*", cfg.HID.Glob)
	assert.True(t, cfg.HTTPFanout.DiscoveryEnabled)
}

func TestInitializeRejectsUnknownFlag(t *testing.T) {
	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()

	_, err := Initialize("idcpd", []string{"--does-not-exist"}, f, v)
	assert.Error(t, err)
}
