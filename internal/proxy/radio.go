package proxy

import (
	"context"

	"github.com/sirupsen/logrus"
)

// RadioDriver switches the Bluetooth adapter on and off.
type RadioDriver interface {
	Powered(ctx context.Context) (bool, error)
	SetPowered(ctx context.Context, on bool) error
}

// RadioToggle enables or disables the radio on request. Outcomes are logged;
// callers never see an error.
type RadioToggle struct {
	driver RadioDriver
	logger *logrus.Logger
}

func NewRadioToggle(driver RadioDriver, logger *logrus.Logger) *RadioToggle {
	if logger == nil {
		logger = logrus.New()
	}
	return &RadioToggle{driver: driver, logger: logger}
}

func (r *RadioToggle) Enable(ctx context.Context)  { r.SetEnabled(ctx, true) }
func (r *RadioToggle) Disable(ctx context.Context) { r.SetEnabled(ctx, false) }

// SetEnabled switches the radio to the requested state. Requests matching
// the current state are no-ops. When the current state cannot be read the
// request is passed to the driver anyway.
func (r *RadioToggle) SetEnabled(ctx context.Context, enabled bool) {
	log := r.logger.WithField("enabled", enabled)

	powered, err := r.driver.Powered(ctx)
	switch {
	case err != nil:
		log.WithError(err).Warn("Failed to read radio state")
	case powered == enabled:
		log.Info("Radio already in requested state")
		return
	}

	if err := r.driver.SetPowered(ctx, enabled); err != nil {
		log.WithError(err).Error("Failed to switch radio")
		return
	}
	log.Info("Radio switched")
}
