package radio

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Driver reads and sets the power state of a radio.
type Driver interface {
	Powered(ctx context.Context) (bool, error)
	SetPowered(ctx context.Context, on bool) error
}

// Switch drives the component holding the adapter and mirrors the change to
// a secondary driver. The primary state is authoritative; secondary failures
// are logged and ignored.
//
// The BLE scanner opens the controller on a raw HCI user channel, which hides
// it from BlueZ, so the scanner is the primary and BlueZ only powers the
// controller down once the scanner has let it go.
type Switch struct {
	primary   Driver
	secondary Driver
	logger    *logrus.Logger
}

// NewSwitch returns a Switch. secondary may be nil.
func NewSwitch(primary, secondary Driver, logger *logrus.Logger) *Switch {
	if logger == nil {
		logger = logrus.New()
	}
	return &Switch{primary: primary, secondary: secondary, logger: logger}
}

func (s *Switch) Powered(ctx context.Context) (bool, error) {
	return s.primary.Powered(ctx)
}

// SetPowered releases the primary before powering the secondary off, and
// powers the secondary on before the primary reopens the adapter.
func (s *Switch) SetPowered(ctx context.Context, on bool) error {
	if !on {
		if err := s.primary.SetPowered(ctx, false); err != nil {
			return err
		}
		s.mirror(ctx, false)
		return nil
	}
	s.mirror(ctx, true)
	return s.primary.SetPowered(ctx, true)
}

func (s *Switch) mirror(ctx context.Context, on bool) {
	if s.secondary == nil {
		return
	}
	if err := s.secondary.SetPowered(ctx, on); err != nil {
		s.logger.WithError(err).WithField("powered", on).Debug("Secondary radio driver failed")
	}
}
