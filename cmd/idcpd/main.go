// Command idcpd runs the Intimate Device Control Protocol server: a
// websocket control-plane listener (server/wsserver), an optional
// read-only admin HTTP surface (admin), and the comm managers for every
// transport family this build supports. Wiring mirrors
// Comcast-tr1d1um/src/tr1d1um/tr1d1um.go's tr1d1um(arguments) shape: parse
// flags into viper, build the handlers, start the listeners, and block on
// concurrent.Await until a signal arrives or a listener dies.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-kit/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xmidt-org/idcp/admin"
	"github.com/xmidt-org/idcp/config"
	"github.com/xmidt-org/idcp/devicemanager"
	"github.com/xmidt-org/idcp/internal/concurrent"
	"github.com/xmidt-org/idcp/internal/xlog"
	"github.com/xmidt-org/idcp/protocol"
	"github.com/xmidt-org/idcp/server"
	"github.com/xmidt-org/idcp/server/wsserver"
	"github.com/xmidt-org/idcp/transport/hid"
	"github.com/xmidt-org/idcp/transport/httpfanout"
	"github.com/xmidt-org/idcp/wire"
)

const applicationName = "idcpd"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(arguments []string) (exitCode int) {
	var (
		f = pflag.NewFlagSet(applicationName, pflag.ContinueOnError)
		v = viper.New()
	)

	cfg, err := config.Initialize(applicationName, arguments, f, v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to initialize configuration: %s\n", err)
		return 1
	}

	logger := xlog.New(log.NewLogfmtLogger(os.Stdout))
	infoLogger := xlog.Info(logger)
	infoLogger.Log(xlog.MessageKey, "starting", "listen", cfg.ListenAddress, "admin", cfg.AdminListenAddress)

	devices := devicemanager.New()
	registry := buildRegistry()
	scanners := buildScanners(cfg, logger)

	wsSrv := wsserver.New(devices, registry, scanners, cfg.PingTimeout, logger)
	controlPlane := &http.Server{Addr: cfg.ListenAddress, Handler: wsSrv}

	tasks := []concurrent.Runnable{
		concurrent.RunnableFunc(func() error {
			if err := controlPlane.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		}),
	}

	var adminSrv *http.Server
	if cfg.AdminListenAddress != "" {
		adminHandler := (&admin.Server{Devices: devices, Logger: logger}).NewRouter()
		adminSrv = &http.Server{Addr: cfg.AdminListenAddress, Handler: adminHandler}
		tasks = append(tasks, concurrent.RunnableFunc(func() error {
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		}))
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	awaitErr := concurrent.Await(signals, tasks...)

	shutdownCtx := context.Background()
	controlPlane.Shutdown(shutdownCtx)
	if adminSrv != nil {
		adminSrv.Shutdown(shutdownCtx)
	}

	if awaitErr != nil {
		xlog.Error(logger).Log(xlog.MessageKey, "exiting on error", xlog.ErrorKey, awaitErr)
		return 4
	}
	return 0
}

// buildRegistry registers the two sample protocol families from spec.md
// §6, the way a deployment's configuration database would associate a
// transport-family/name fingerprint with a Protocol Handler factory.
func buildRegistry() *protocol.Registry {
	registry := protocol.NewRegistry()

	registry.Register(protocol.Fingerprint{
		TransportFamily: "ble",
		Match: func(name, address string) bool {
			return len(name) >= 3 && name[:3] == "Ear"
		},
	}, func(name string) protocol.Handler {
		return protocol.NewEarHaptics(name, oneFeatureAttrs(wire.VibrateCmd))
	})

	registry.Register(protocol.Fingerprint{
		TransportFamily: "ble",
		Match: func(name, address string) bool {
			return len(name) >= 7 && name[:7] == "Joy-Con"
		},
	}, func(name string) protocol.Handler {
		return protocol.NewSwitchJoycon(oneFeatureAttrs(wire.VibrateCmd))
	})

	return registry
}

// oneFeatureAttrs declares a single-actuator device for messageType,
// matching ear_haptics.rs/switch_joycon.rs's single-motor capability
// declarations.
func oneFeatureAttrs(messageType wire.DeviceMessageType) wire.MessageAttributesMap {
	n := uint32(1)
	return wire.MessageAttributesMap{messageType: {FeatureCount: &n}}
}

// buildScanners wires every transport family's CommManager this portable
// build supports into server.Scanner entries. XInput is omitted: it has no
// discovery half (spec.md §9's gamepad slots are statically configured, not
// scanned), so a deployment that needs it creates the Driver directly via
// devicemanager.Manager.Create instead of through a Scanner.
func buildScanners(cfg *config.ServerConfig, logger log.Logger) []server.Scanner {
	var scanners []server.Scanner

	hidGlob := cfg.HID.Glob
	if hidGlob != "" {
		scanners = append(scanners, server.Scanner{
			Family: "hid",
			Manager: hid.NewCommManager(func() ([]hid.Candidate, error) {
				paths, err := filepath.Glob(hidGlob)
				if err != nil {
					return nil, err
				}
				candidates := make([]hid.Candidate, len(paths))
				for i, p := range paths {
					candidates[i] = hid.Candidate{Name: filepath.Base(p), Path: p}
				}
				return candidates, nil
			}, nil),
		})
	}

	endpoints := make([]httpfanout.EndpointConfig, len(cfg.HTTPFanout.Endpoints))
	for i, e := range cfg.HTTPFanout.Endpoints {
		endpoints[i] = httpfanout.EndpointConfig{Name: e.Name, URL: e.URL}
	}
	scanners = append(scanners, server.Scanner{
		Family: "httpfanout",
		Manager: httpfanout.NewCommManager(httpfanout.Config{
			Endpoints:        endpoints,
			DiscoveryEnabled: cfg.HTTPFanout.DiscoveryEnabled,
			Client:           &http.Client{Timeout: cfg.HTTPFanout.Timeout},
		}),
	})

	return scanners
}
