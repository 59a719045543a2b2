package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/bleproxy/internal/device"
	"github.com/srg/bleproxy/internal/devicefactory"
	"github.com/srg/bleproxy/internal/ringchan"
)

// DeviceEventType marks if the device was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

type DeviceEvent struct {
	Type  DeviceEventType
	Entry DeviceEntry
}

// DeviceEntry summarises the advertisements received from one address.
type DeviceEntry struct {
	Address     string    `json:"address"`
	Name        string    `json:"name"`
	RSSI        int       `json:"rssi"`
	AddressType string    `json:"address_type"`
	Services    []string  `json:"services,omitempty"`
	Count       int       `json:"count"`
	LastSeen    time.Time `json:"last_seen"`
}

// Options configures scanning behavior
type Options struct {
	// Adapter names the controller to open, "hci0" when empty.
	Adapter string
	// Duration limits the scan; zero scans until the context is done.
	Duration time.Duration
	// AllowDuplicates reports every advertisement instead of one per device.
	AllowDuplicates bool
	// ServiceData keeps only advertisements carrying service data for one of
	// these UUIDs. Empty keeps everything.
	ServiceData []string
	// RetryDelay is the initial pause before retrying a failed scan; it
	// doubles up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// DefaultOptions returns the options used by the daemon.
func DefaultOptions() Options {
	return Options{
		AllowDuplicates: true,
		RetryDelay:      time.Second,
		MaxRetryDelay:   time.Minute,
	}
}

// Scanner runs BLE discovery and keeps a table of seen devices.
//
// The scanner owns the adapter handle, so it is also the radio switch:
// SetPowered(false) stops scanning and releases the adapter, and
// SetPowered(true) reopens it.
type Scanner struct {
	opts    Options
	filter  map[string]struct{}
	devices *hashmap.Map[string, *DeviceEntry]
	events  *ringchan.RingChannel[DeviceEvent]
	logger  *logrus.Logger
	now     func() time.Time

	mu       sync.Mutex
	enabled  bool
	running  bool
	stopScan context.CancelFunc
	released chan struct{}
	wake     chan struct{}
}

// NewScanner creates a new BLE scanner
func NewScanner(opts Options, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.MaxRetryDelay < opts.RetryDelay {
		opts.MaxRetryDelay = opts.RetryDelay
	}
	filter := make(map[string]struct{}, len(opts.ServiceData))
	for _, u := range opts.ServiceData {
		filter[device.NormalizeUUID(u)] = struct{}{}
	}
	return &Scanner{
		opts:    opts,
		filter:  filter,
		devices: hashmap.New[string, *DeviceEntry](),
		events:  ringchan.New[DeviceEvent](100),
		logger:  logger,
		now:     time.Now,
		enabled: true,
		wake:    make(chan struct{}, 1),
	}
}

// Run scans until ctx is done or Duration elapses, passing accepted
// advertisements to handler on the BLE backend goroutine. A failed adapter
// is closed and reopened with backoff. While the radio is switched off Run
// holds no adapter and waits.
func (s *Scanner) Run(ctx context.Context, handler func(device.Advertisement)) error {
	if s.opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Duration)
		defer cancel()
	}

	var dev device.ScanningDevice
	release := func() {
		if dev == nil {
			return
		}
		if err := dev.Close(); err != nil {
			s.logger.WithError(err).Debug("Failed to close BLE device")
		}
		dev = nil
	}
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer func() {
		release()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.markReleased()
	}()

	delay := s.opts.RetryDelay
	for {
		scanCtx, done, ok := s.beginScan(ctx)
		if !ok {
			release()
			s.markReleased()
			s.logger.Info("Radio off, scanning paused")
			select {
			case <-ctx.Done():
				s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")
				return nil
			case <-s.wake:
			}
			continue
		}

		var err error
		if dev == nil {
			dev, err = devicefactory.DeviceFactory(s.opts.Adapter)
			if err != nil {
				dev = nil
				err = fmt.Errorf("failed to create BLE device: %w", err)
			}
		}
		if dev != nil {
			s.logger.WithFields(logrus.Fields{
				"adapter":          s.opts.Adapter,
				"allow_duplicates": s.opts.AllowDuplicates,
			}).Info("Starting BLE scan...")
			err = dev.Scan(scanCtx, s.opts.AllowDuplicates, func(adv device.Advertisement) {
				s.handleAdvertisement(adv, handler)
			})
		}
		done()

		if ctx.Err() != nil {
			s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")
			return nil
		}
		if !s.Enabled() {
			// switched off mid-scan; the next iteration releases the adapter
			delay = s.opts.RetryDelay
			continue
		}
		if err == nil {
			return nil
		}

		// reopen on the next attempt
		release()

		log := s.logger.WithError(err).WithField("retry_in", delay)
		if errors.Is(err, device.ErrBluetoothOff) {
			log.Warn("Bluetooth is off, waiting")
		} else {
			log.Error("BLE scan failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
		case <-time.After(delay):
		}
		delay *= 2
		if delay > s.opts.MaxRetryDelay {
			delay = s.opts.MaxRetryDelay
		}
	}
}

// beginScan registers a scan attempt when the radio is on. done must be
// called once the attempt is over.
func (s *Scanner) beginScan(ctx context.Context) (context.Context, func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return nil, nil, false
	}
	scanCtx, cancel := context.WithCancel(ctx)
	s.stopScan = cancel
	return scanCtx, func() {
		cancel()
		s.mu.Lock()
		s.stopScan = nil
		s.mu.Unlock()
	}, true
}

func (s *Scanner) markReleased() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released != nil {
		close(s.released)
		s.released = nil
	}
}

// Enabled reports whether scanning is switched on.
func (s *Scanner) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Powered reports the radio state as controlled by SetPowered.
func (s *Scanner) Powered(context.Context) (bool, error) {
	return s.Enabled(), nil
}

// SetPowered switches scanning on or off. Switching off cancels the running
// scan and, while Run is active, waits until the adapter has been released
// or ctx is done. No advertisement is forwarded once it returns.
func (s *Scanner) SetPowered(ctx context.Context, on bool) error {
	s.mu.Lock()
	if s.enabled == on {
		s.mu.Unlock()
		return nil
	}
	s.enabled = on
	var released chan struct{}
	if !on && s.running {
		if s.stopScan != nil {
			s.stopScan()
		}
		if s.released == nil {
			s.released = make(chan struct{})
		}
		released = s.released
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	if released == nil {
		return nil
	}
	select {
	case <-released:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scanner) accepts(adv device.Advertisement) bool {
	if len(s.filter) == 0 {
		return true
	}
	for _, sd := range adv.ServiceData() {
		if _, ok := s.filter[sd.UUID]; ok {
			return true
		}
	}
	return false
}

// handleAdvertisement updates existing or adds a new device
func (s *Scanner) handleAdvertisement(adv device.Advertisement, handler func(device.Advertisement)) {
	if !s.accepts(adv) || !s.Enabled() {
		return
	}

	addr := device.NormalizeAddress(adv.Addr())
	entry := DeviceEntry{
		Address:     addr,
		Name:        adv.LocalName(),
		RSSI:        adv.RSSI(),
		AddressType: adv.AddressType().String(),
		Services:    adv.Services(),
		Count:       1,
		LastSeen:    s.now(),
	}

	event := DeviceEvent{Type: EventNew}
	if prev, ok := s.devices.Get(addr); ok {
		entry.Count = prev.Count + 1
		if entry.Name == "" {
			entry.Name = prev.Name
		}
		event.Type = EventUpdated
	} else {
		s.logger.WithFields(logrus.Fields{
			"device":  entry.Name,
			"address": addr,
			"rssi":    entry.RSSI,
		}).Debug("Discovered new device")
	}
	s.devices.Set(addr, &entry)

	event.Entry = entry
	s.events.Send(event)

	if handler != nil {
		handler(adv)
	}
}

// Devices returns a snapshot of discovered devices ordered by address.
func (s *Scanner) Devices() []DeviceEntry {
	devs := make([]DeviceEntry, 0, s.devices.Len())
	s.devices.Range(func(_ string, e *DeviceEntry) bool {
		devs = append(devs, *e)
		return true
	})
	sort.Slice(devs, func(i, j int) bool { return devs[i].Address < devs[j].Address })
	return devs
}

// Events return a read-only channel of device events
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}
