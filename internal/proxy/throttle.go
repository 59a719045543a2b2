package proxy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bleproxy/internal/device"
)

type sensorKey struct {
	device    string
	attribute Attribute
}

type accumulator struct {
	sum          float64
	count        int
	lastNotified time.Time
}

// Throttle forwards sensor values, averaging them over an interval once the
// sensor has been announced. It is not safe for concurrent use.
//
// The first value of a sensor is published together with its discovery
// document. Later values accumulate and their mean is published once more
// than interval has passed since the last publish. Accumulators are reset
// only after a successful publish, so values observed while the bus is down
// are carried into the next average.
type Throttle struct {
	pub      Publisher
	interval time.Duration
	logger   *logrus.Logger
	acc      map[sensorKey]*accumulator
}

func NewThrottle(pub Publisher, interval time.Duration, logger *logrus.Logger) *Throttle {
	if logger == nil {
		logger = logrus.New()
	}
	return &Throttle{
		pub:      pub,
		interval: interval,
		logger:   logger,
		acc:      make(map[sensorKey]*accumulator),
	}
}

// Observe feeds one value. The returned error is the publish failure, if a
// publish was attempted and failed.
func (t *Throttle) Observe(ctx context.Context, deviceName string, attr Attribute, value float64, now time.Time) error {
	key := sensorKey{device: deviceName, attribute: attr}

	a, known := t.acc[key]
	if !known {
		if err := t.send(ctx, deviceName, attr, value, true); err != nil {
			return err
		}
		t.acc[key] = &accumulator{lastNotified: now}
		return nil
	}

	a.sum += value
	a.count++
	if t.interval > 0 && now.Sub(a.lastNotified) <= t.interval {
		return nil
	}

	avg := a.sum / float64(a.count)
	if err := t.send(ctx, deviceName, attr, avg, false); err != nil {
		t.logger.WithFields(logrus.Fields{
			"device":    deviceName,
			"attribute": attr.String(),
			"pending":   a.count,
		}).Debug("Average not published, keeping accumulator")
		return err
	}
	a.sum, a.count, a.lastNotified = 0, 0, now
	return nil
}

// Pending returns the accumulated sum and count for a sensor.
func (t *Throttle) Pending(deviceName string, attr Attribute) (sum float64, count int, ok bool) {
	a, ok := t.acc[sensorKey{device: deviceName, attribute: attr}]
	if !ok {
		return 0, 0, false
	}
	return a.sum, a.count, true
}

// Len returns the number of announced sensors.
func (t *Throttle) Len() int {
	return len(t.acc)
}

func (t *Throttle) send(ctx context.Context, deviceName string, attr Attribute, value float64, announce bool) error {
	if !t.pub.IsConnected() {
		t.logger.Debug("MQTT not connected")
		return fmt.Errorf("%w: %s %s dropped", device.ErrNotConnected, deviceName, attr)
	}

	if announce {
		d := NewDiscovery(deviceName, attr)
		payload, err := d.Payload()
		if err != nil {
			return fmt.Errorf("failed to encode discovery for %s: %w", d.UniqueID, err)
		}
		topic := DiscoveryTopic(deviceName, attr)
		if err := t.pub.Publish(ctx, topic, payload, 0, true); err != nil {
			return fmt.Errorf("failed to publish discovery for %s: %w", d.UniqueID, err)
		}
		t.logger.WithFields(logrus.Fields{"topic": topic}).Debug("Published discovery")
	}

	topic := StateTopic(deviceName, attr)
	text := FormatValue(value)
	if err := t.pub.Publish(ctx, topic, []byte(text), 0, true); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	t.logger.WithFields(logrus.Fields{"topic": topic, "value": text}).Debug("MQTT published")
	return nil
}

// FormatValue renders a value with one fractional digit.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
