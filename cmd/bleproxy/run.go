package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bleproxy/internal/api"
	"github.com/srg/bleproxy/internal/groutine"
	"github.com/srg/bleproxy/internal/mqtt"
	"github.com/srg/bleproxy/internal/proxy"
	"github.com/srg/bleproxy/internal/radio"
	"github.com/srg/bleproxy/internal/restart"
	"github.com/srg/bleproxy/internal/xiaomi"
	"github.com/srg/bleproxy/pkg/config"
	"github.com/srg/bleproxy/scanner"
)

const shutdownTimeout = 5 * time.Second

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the BLE to MQTT proxy",
	Long: `Scan for Xiaomi sensor advertisements and publish their readings to MQTT.

The configuration file is taken from --config or searched for in:
  ./bleproxy.yaml
  ~/.config/bleproxy/bleproxy.yaml
  /etc/bleproxy/bleproxy.yaml`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg.LogLevel)
	if err != nil {
		return err
	}

	// Configuration validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

// loadConfig finds, loads and validates the configuration file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	explicit, _ := cmd.Flags().GetString("config")
	path, err := config.FindConfig(explicit)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func proxyConfig(cfg *config.Config) proxy.Config {
	return proxy.Config{
		Hostname:            cfg.Hostname,
		Allow:               cfg.Filter.Allow,
		Deny:                cfg.Filter.Deny,
		Rename:              cfg.Filter.Rename,
		ThrottleInterval:    cfg.Throttle.Interval,
		VisitInterval:       cfg.Visits.Interval,
		RebootInterval:      cfg.Reboot.Interval,
		RebootSettle:        cfg.Reboot.Settle,
		SkipRandomAddresses: cfg.Scan.SkipRandomAddresses,
		QueueSize:           cfg.Scan.QueueSize,
	}
}

func mqttConfig(cfg *config.Config) mqtt.Config {
	return mqtt.Config{
		Broker:         cfg.MQTT.Broker,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		ClientID:       cfg.MQTT.ClientID,
		Hostname:       cfg.Hostname,
		KeepAlive:      cfg.MQTT.KeepAlive,
		PublishTimeout: cfg.MQTT.PublishTimeout,
	}
}

func scanOptions(cfg *config.Config) scanner.Options {
	opts := scanner.DefaultOptions()
	opts.Adapter = cfg.Radio.Adapter
	opts.AllowDuplicates = cfg.Scan.Duplicates
	opts.ServiceData = []string{xiaomi.ServiceUUID, xiaomi.ATCServiceUUID}
	return opts
}

// newRestarter returns nil when scheduled restarts are disabled.
func newRestarter(cfg *config.Config, logger *logrus.Logger) (proxy.Restarter, error) {
	if cfg.Reboot.Interval <= 0 {
		return nil, nil
	}
	r, err := restart.New(restart.Options{Strategy: cfg.Reboot.Strategy, Unit: cfg.Reboot.Unit}, logger)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// openBlueZ connects the secondary radio driver.
var openBlueZ = func(adapter string, logger *logrus.Logger) (radio.Driver, error) {
	return radio.NewBlueZ(adapter, logger)
}

// newRadioToggle switches the radio through the scanner, which owns the
// adapter, and mirrors the change to BlueZ when the system bus is reachable.
func newRadioToggle(s *scanner.Scanner, adapter string, logger *logrus.Logger) *proxy.RadioToggle {
	var secondary radio.Driver
	if drv, err := openBlueZ(adapter, logger); err != nil {
		logger.WithError(err).WithField("adapter", adapter).Debug("BlueZ radio control unavailable")
	} else {
		secondary = drv
	}
	return proxy.NewRadioToggle(radio.NewSwitch(s, secondary, logger), logger)
}

func serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	client, err := mqtt.New(mqttConfig(cfg), logger)
	if err != nil {
		return err
	}
	restarter, err := newRestarter(cfg, logger)
	if err != nil {
		return err
	}
	p, err := proxy.New(proxyConfig(cfg), client, restarter, logger)
	if err != nil {
		return err
	}

	s := scanner.NewScanner(scanOptions(cfg), logger)
	toggle := newRadioToggle(s, cfg.Radio.Adapter, logger)
	client.OnRadioCommand(toggle.SetEnabled)

	// The broker session outlives ctx so the offline status can be sent.
	mqttCtx, stopMQTT := context.WithCancel(context.Background())
	defer stopMQTT()
	if err := client.Start(mqttCtx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopDone := groutine.Go(runCtx, "proxy-loop", p.Run)
	scanDone := groutine.Go(runCtx, "ble-scan", func(ctx context.Context) error {
		return s.Run(ctx, p.HandleAdvertisement)
	})

	var apiDone <-chan error
	if cfg.API.Listen != "" {
		srv := api.NewServer(runCtx, toggle, p.Registry(), client, logger)
		apiDone = groutine.Go(runCtx, "api", func(ctx context.Context) error {
			return srv.ListenAndServe(ctx, cfg.API.Listen)
		})
	}

	restart.NotifyReady(logger)
	logger.WithFields(logrus.Fields{
		"hostname":  cfg.Hostname,
		"broker":    cfg.MQTT.Broker,
		"client_id": client.ClientID(),
	}).Info("BLE proxy started")

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-scanDone:
		runErr = err
		if runErr == nil {
			runErr = errors.New("BLE scan stopped unexpectedly")
		}
	case err := <-apiDone:
		runErr = errors.New("api server stopped unexpectedly")
		if err != nil {
			runErr = fmt.Errorf("api server: %w", err)
		}
	}

	logger.Info("Shutting down")
	cancel()
	<-loopDone
	<-scanDone
	if apiDone != nil {
		<-apiDone
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelStop()
	if err := client.Stop(stopCtx); err != nil {
		logger.WithError(err).Warn("MQTT disconnect failed")
	}

	stats := p.QueueStats()
	logger.WithFields(logrus.Fields{
		"devices": p.Registry().Len(),
		"dropped": stats.Dropped,
	}).Info("BLE proxy stopped")
	return runErr
}
