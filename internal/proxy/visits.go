package proxy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bleproxy/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// VisitCounter counts how often each device was seen and reports the counts
// once per interval under {hostname}/seen/. It is not safe for concurrent use.
//
// A device first seen while the bus is disconnected is not recorded at all;
// it is picked up on a later sighting once the bus is back.
type VisitCounter struct {
	pub      Publisher
	hostname string
	interval time.Duration
	deadline time.Time
	counts   *orderedmap.OrderedMap[string, int]
	logger   *logrus.Logger
}

// NewVisitCounter schedules the first report one interval after start.
func NewVisitCounter(pub Publisher, hostname string, interval time.Duration, start time.Time, logger *logrus.Logger) *VisitCounter {
	if logger == nil {
		logger = logrus.New()
	}
	return &VisitCounter{
		pub:      pub,
		hostname: hostname,
		interval: interval,
		deadline: start.Add(interval),
		counts:   orderedmap.New[string, int](),
		logger:   logger,
	}
}

// Sighting describes one accepted advertisement.
type Sighting struct {
	Name        string
	LocalName   string
	RSSI        int
	AddressType device.AddressType
}

func (v *VisitCounter) seenTopic(name, leaf string) string {
	return fmt.Sprintf("%s/seen/%s/%s", v.hostname, name, leaf)
}

// RecordSeen counts a sighting. The first sighting of a name publishes its
// advertised name, signal strength and address type.
func (v *VisitCounter) RecordSeen(ctx context.Context, s Sighting) {
	if pair := v.counts.GetPair(s.Name); pair != nil {
		pair.Value++
		return
	}
	if !v.pub.IsConnected() {
		v.logger.WithField("device", s.Name).Debug("MQTT not connected, first sighting not recorded")
		return
	}

	v.counts.Set(s.Name, 1)
	v.publish(ctx, v.seenTopic(s.Name, "name"), s.LocalName)
	v.publish(ctx, v.seenTopic(s.Name, "rssi"), strconv.Itoa(s.RSSI))
	v.publish(ctx, v.seenTopic(s.Name, "type"), s.AddressType.String())

	v.logger.WithFields(logrus.Fields{
		"device": s.Name,
		"rssi":   s.RSSI,
		"type":   s.AddressType.String(),
	}).Info("New device seen")
}

// Sweep reports and zeroes every count when the deadline has passed, then
// moves the deadline forward by whole intervals until it is after now, so a
// stalled loop reports once rather than once per missed interval. A deadline
// more than one interval in the future (clock stepped backwards) also
// triggers a report and is reset relative to now. Sweep reports whether a
// report was made.
func (v *VisitCounter) Sweep(ctx context.Context, now time.Time) bool {
	switch {
	case now.After(v.deadline):
		for !v.deadline.After(now) {
			v.deadline = v.deadline.Add(v.interval)
		}
	case v.deadline.After(now.Add(v.interval)):
		v.deadline = now.Add(v.interval)
	default:
		return false
	}

	for pair := v.counts.Oldest(); pair != nil; pair = pair.Next() {
		v.logger.WithFields(logrus.Fields{"device": pair.Key, "count": pair.Value}).Debug("Seen count for last interval")
		v.publish(ctx, v.seenTopic(pair.Key, "viewcount"), strconv.Itoa(pair.Value))
		pair.Value = 0
	}
	return true
}

// Count returns the current count for name.
func (v *VisitCounter) Count(name string) (int, bool) {
	return v.counts.Get(name)
}

// Deadline returns when the next report is due.
func (v *VisitCounter) Deadline() time.Time {
	return v.deadline
}

func (v *VisitCounter) publish(ctx context.Context, topic, payload string) {
	if err := v.pub.Publish(ctx, topic, []byte(payload), 0, true); err != nil {
		v.logger.WithError(err).WithField("topic", topic).Warn("Failed to publish")
	}
}
