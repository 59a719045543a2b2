package proxy

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bleproxy/internal/device"
	"github.com/srg/bleproxy/internal/ringchan"
	"github.com/srg/bleproxy/internal/xiaomi"
)

// Config configures a Proxy.
type Config struct {
	Hostname string

	Allow  []string
	Deny   []string
	Rename []string

	ThrottleInterval time.Duration
	VisitInterval    time.Duration
	RebootInterval   time.Duration
	RebootSettle     time.Duration

	SkipRandomAddresses bool

	// QueueSize bounds the advertisements waiting for the event loop.
	QueueSize int
	// TickInterval is how often the reboot timer and visit sweep run when
	// no advertisements arrive.
	TickInterval time.Duration

	Now   func() time.Time
	Sleep func(time.Duration)
}

// Proxy turns sensor advertisements into MQTT messages. All state is owned
// by the goroutine running Run; HandleAdvertisement may be called from any
// goroutine.
type Proxy struct {
	cfg    Config
	logger *logrus.Logger

	filter    *Filter
	throttle  *Throttle
	visits    *VisitCounter
	reboot    *RebootTimer
	miFrames  *xiaomi.FrameTracker
	atcFrames *xiaomi.FrameTracker
	registry  *Registry
	queue     *ringchan.RingChannel[device.Advertisement]
}

// New builds a proxy publishing through pub. restarter is used by the
// reboot timer.
func New(cfg Config, pub Publisher, restarter Restarter, logger *logrus.Logger) (*Proxy, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if pub == nil {
		return nil, errors.New("proxy: publisher is required")
	}
	if cfg.Hostname == "" {
		return nil, errors.New("proxy: hostname is required")
	}
	if cfg.RebootInterval > 0 && restarter == nil {
		return nil, errors.New("proxy: reboot interval set without a restarter")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.RebootSettle <= 0 {
		cfg.RebootSettle = DefaultRebootSettle
	}
	if cfg.VisitInterval <= 0 {
		cfg.VisitInterval = time.Hour
	}

	filter, err := NewFilter(cfg.Allow, cfg.Deny, cfg.Rename, logger)
	if err != nil {
		return nil, err
	}

	start := cfg.Now()
	return &Proxy{
		cfg:       cfg,
		logger:    logger,
		filter:    filter,
		throttle:  NewThrottle(pub, cfg.ThrottleInterval, logger),
		visits:    NewVisitCounter(pub, cfg.Hostname, cfg.VisitInterval, start, logger),
		reboot:    NewRebootTimer(restarter, cfg.RebootInterval, cfg.RebootSettle, start, cfg.Sleep, logger),
		miFrames:  xiaomi.NewFrameTracker(),
		atcFrames: xiaomi.NewFrameTracker(),
		registry:  NewRegistry(),
		queue:     ringchan.New[device.Advertisement](cfg.QueueSize),
	}, nil
}

func (p *Proxy) Registry() *Registry        { return p.registry }
func (p *Proxy) Filter() *Filter            { return p.filter }
func (p *Proxy) Throttle() *Throttle        { return p.throttle }
func (p *Proxy) Visits() *VisitCounter      { return p.visits }
func (p *Proxy) RebootTimer() *RebootTimer  { return p.reboot }
func (p *Proxy) QueueStats() ringchan.Stats { return p.queue.Stats() }

// HandleAdvertisement queues adv for the event loop. It never blocks; when
// the queue is full the oldest advertisement is dropped.
func (p *Proxy) HandleAdvertisement(adv device.Advertisement) {
	if p.queue.Send(adv) {
		p.logger.Debug("Advertisement queue full, dropped oldest")
	}
}

// Run is the event loop. It returns when ctx is done.
func (p *Proxy) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	p.logger.WithFields(logrus.Fields{
		"hostname":          p.cfg.Hostname,
		"throttle_interval": p.cfg.ThrottleInterval,
		"visit_interval":    p.cfg.VisitInterval,
		"reboot_deadline":   p.reboot.Deadline(),
	}).Info("Proxy started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Proxy stopped")
			return nil
		case adv := <-p.queue.C():
			p.ProcessAdvertisement(ctx, adv)
		case <-ticker.C:
			p.Tick(ctx, p.cfg.Now())
		}
	}
}

// Tick runs the periodic housekeeping: reboot check and visit report.
func (p *Proxy) Tick(ctx context.Context, now time.Time) {
	p.reboot.MaybeReboot(ctx, now)
	p.visits.Sweep(ctx, now)
}

// ProcessAdvertisement decodes and forwards one advertisement. It reports
// whether at least one reading was forwarded.
func (p *Proxy) ProcessAdvertisement(ctx context.Context, adv device.Advertisement) bool {
	now := p.cfg.Now()
	defer p.Tick(ctx, now)

	if p.cfg.SkipRandomAddresses && adv.AddressType().IsRandom() {
		return false
	}

	mac := device.NormalizeAddress(adv.Addr())
	forwarded := false
	for _, sd := range adv.ServiceData() {
		var (
			reading xiaomi.Reading
			ok      bool
		)
		switch sd.UUID {
		case xiaomi.ServiceUUID:
			reading, ok = p.decodeMiBeacon(ctx, adv, mac, sd.Data)
		case xiaomi.ATCServiceUUID:
			reading, ok = p.decodeATC(ctx, adv, mac, sd.Data)
		default:
			continue
		}
		if !ok {
			continue
		}
		p.report(ctx, adv, mac, reading, now)
		forwarded = true
	}
	return forwarded
}

func (p *Proxy) decodeMiBeacon(ctx context.Context, adv device.Advertisement, mac string, data []byte) (xiaomi.Reading, bool) {
	log := p.logger.WithField("mac", mac)

	h, err := xiaomi.ParseHeader(data)
	if err != nil {
		log.WithError(err).Debug("Not a MiBeacon frame")
		return xiaomi.Reading{}, false
	}
	if p.miFrames.Duplicate(mac, h.FrameCounter) {
		return xiaomi.Reading{}, false
	}
	if h.Encrypted {
		log.WithField("model", h.Model).Debug("Skipping encrypted frame")
		return xiaomi.Reading{}, false
	}
	if !p.filter.IsTrackable(mac) {
		return xiaomi.Reading{}, false
	}

	p.recordSeen(ctx, adv, mac)

	reading, err := xiaomi.ParseMessage(data, h)
	if err != nil {
		log.WithError(err).WithField("model", h.Model).Debug("Failed to decode MiBeacon objects")
		return xiaomi.Reading{}, false
	}
	return reading, true
}

func (p *Proxy) decodeATC(ctx context.Context, adv device.Advertisement, mac string, data []byte) (xiaomi.Reading, bool) {
	frame, err := xiaomi.DecodeATC(data)
	if err != nil {
		p.logger.WithError(err).WithField("mac", mac).Debug("Not a custom firmware frame")
		return xiaomi.Reading{}, false
	}
	if p.atcFrames.Duplicate(mac, frame.FrameCounter) {
		return xiaomi.Reading{}, false
	}
	if !p.filter.IsTrackable(mac) {
		return xiaomi.Reading{}, false
	}

	p.recordSeen(ctx, adv, mac)
	return frame.Reading, true
}

func (p *Proxy) recordSeen(ctx context.Context, adv device.Advertisement, mac string) {
	p.visits.RecordSeen(ctx, Sighting{
		Name:        p.filter.ResolveName(mac),
		LocalName:   adv.LocalName(),
		RSSI:        adv.RSSI(),
		AddressType: adv.AddressType(),
	})
}

func (p *Proxy) report(ctx context.Context, adv device.Advertisement, mac string, r xiaomi.Reading, now time.Time) {
	if r.Humidity != nil {
		h := math.Trunc(*r.Humidity)
		r.Humidity = &h
	}

	name := p.filter.ResolveName(mac)
	fields := r.Fields()
	values := make(map[string]float64, len(fields))

	for _, f := range fields {
		values[f.Name] = f.Value
		attr, ok := ParseAttribute(f.Name)
		if !ok {
			continue
		}
		p.logger.WithFields(logrus.Fields{
			"device":    name,
			"attribute": f.Name,
			"value":     FormatValue(f.Value),
		}).Debug("Reading")
		if err := p.throttle.Observe(ctx, name, attr, f.Value, now); err != nil {
			p.logger.WithError(err).WithField("device", name).Debug("Reading not published")
		}
	}

	p.registry.Update(DeviceSnapshot{
		Name:        name,
		Address:     mac,
		Model:       r.Model,
		RSSI:        adv.RSSI(),
		AddressType: adv.AddressType().String(),
		LastSeen:    now,
	}, values)
}
