// Package restart implements the ways the proxy can restart itself when the
// reboot timer expires.
package restart

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/coreos/go-systemd/v22/daemon"
	sdbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Strategy names accepted in configuration.
const (
	StrategyExec    = "exec"
	StrategySystemd = "systemd"
	StrategyExit    = "exit"
)

// Strategies lists the valid strategy names.
var Strategies = []string{StrategyExec, StrategySystemd, StrategyExit}

// Restarter restarts the running process.
type Restarter interface {
	Restart(ctx context.Context) error
}

// Options selects and configures a strategy.
type Options struct {
	Strategy string
	// Unit is the systemd unit restarted by the systemd strategy.
	Unit string
}

// New returns the restarter for opts.Strategy.
func New(opts Options, logger *logrus.Logger) (Restarter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	switch opts.Strategy {
	case "", StrategyExec:
		return &ExecRestarter{logger: logger, executable: os.Executable, exec: unix.Exec}, nil
	case StrategySystemd:
		if opts.Unit == "" {
			return nil, errors.New("systemd restart strategy requires a unit name")
		}
		unit := opts.Unit
		if !strings.Contains(unit, ".") {
			unit += ".service"
		}
		return &SystemdRestarter{unit: unit, logger: logger, dial: dialSystemd}, nil
	case StrategyExit:
		return &ExitRestarter{logger: logger, notify: daemon.SdNotify, exit: os.Exit}, nil
	default:
		return nil, fmt.Errorf("unknown restart strategy %q (valid: %s)", opts.Strategy, strings.Join(Strategies, ", "))
	}
}

// ExecRestarter replaces the process image with a fresh copy of the running
// binary, keeping pid, arguments and environment.
type ExecRestarter struct {
	logger     *logrus.Logger
	executable func() (string, error)
	exec       func(argv0 string, argv []string, envv []string) error
}

func (r *ExecRestarter) Restart(context.Context) error {
	path, err := r.executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	r.logger.WithField("path", path).Info("Re-executing")
	if err := r.exec(path, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("exec %s: %w", path, err)
	}
	return nil
}

// unitRestarter is the part of the systemd D-Bus connection used here.
type unitRestarter interface {
	RestartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	Close()
}

func dialSystemd(ctx context.Context) (unitRestarter, error) {
	return sdbus.NewWithContext(ctx)
}

// SystemdRestarter asks systemd to restart the unit the proxy runs in.
type SystemdRestarter struct {
	unit   string
	logger *logrus.Logger
	dial   func(ctx context.Context) (unitRestarter, error)
}

func (r *SystemdRestarter) Restart(ctx context.Context) error {
	conn, err := r.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to systemd: %w", err)
	}
	defer conn.Close()

	r.logger.WithField("unit", r.unit).Info("Requesting unit restart")
	result := make(chan string, 1)
	if _, err := conn.RestartUnitContext(ctx, r.unit, "replace", result); err != nil {
		return fmt.Errorf("restart %s: %w", r.unit, err)
	}

	// systemd usually stops us before the job completes
	select {
	case res := <-result:
		if res != "done" {
			return fmt.Errorf("restart %s: job %s", r.unit, res)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExitRestarter tells systemd the service is stopping and exits non-zero so
// the supervisor starts it again.
type ExitRestarter struct {
	logger *logrus.Logger
	notify func(unsetEnvironment bool, state string) (bool, error)
	exit   func(code int)
}

func (r *ExitRestarter) Restart(context.Context) error {
	if _, err := r.notify(false, daemon.SdNotifyStopping); err != nil {
		r.logger.WithError(err).Warn("Failed to notify systemd")
	}
	r.logger.Info("Exiting for supervisor restart")
	r.exit(1)
	return nil
}

// NotifyReady reports start-up completion to systemd. It is a no-op outside
// systemd.
func NotifyReady(logger *logrus.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	switch {
	case err != nil:
		logger.WithError(err).Warn("Failed to notify systemd")
	case sent:
		logger.Debug("Notified systemd: ready")
	}
}
