package proxy_test

import (
	"context"
	"testing"
	"time"

	"github.com/srg/bleproxy/internal/device"
	"github.com/srg/bleproxy/internal/proxy"
	"github.com/srg/bleproxy/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type ThrottleTestSuite struct {
	suite.Suite

	helper   *testutils.TestHelper
	pub      *testutils.RecordingPublisher
	clock    *testutils.ManualClock
	throttle *proxy.Throttle
	ctx      context.Context
}

func (s *ThrottleTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.pub = testutils.NewRecordingPublisher()
	s.clock = testutils.NewManualClock()
	s.throttle = proxy.NewThrottle(s.pub, 10*time.Minute, s.helper.Logger)
	s.ctx = context.Background()
}

func (s *ThrottleTestSuite) observe(attr proxy.Attribute, value float64) error {
	return s.throttle.Observe(s.ctx, "Kitchen", attr, value, s.clock.Now())
}

func (s *ThrottleTestSuite) TestFirstObservationPublishesWithDiscovery() {
	s.Require().NoError(s.observe(proxy.Temperature, 21.47))

	testutils.NewTextAsserter(s.T()).Assert(s.pub.Transcript(true), `
homeassistant/sensor/ble_proxy/kitchen__temperature/config = <discovery>
ble_proxy/Kitchen/temperature/state = 21.5
`)

	for _, m := range s.pub.Messages() {
		s.True(m.Retain, m.Topic)
		s.Equal(byte(0), m.QoS, m.Topic)
	}

	sum, count, ok := s.throttle.Pending("Kitchen", proxy.Temperature)
	s.True(ok)
	s.Zero(sum)
	s.Zero(count)
}

func (s *ThrottleTestSuite) TestAveragesAfterInterval() {
	s.Require().NoError(s.observe(proxy.Temperature, 19.0))
	s.pub.Reset()

	s.clock.Advance(time.Minute)
	s.Require().NoError(s.observe(proxy.Temperature, 20.0))
	s.clock.Advance(4 * time.Minute)
	s.Require().NoError(s.observe(proxy.Temperature, 22.0))
	s.Empty(s.pub.Messages(), "nothing is published within the interval")

	sum, count, _ := s.throttle.Pending("Kitchen", proxy.Temperature)
	s.Equal(42.0, sum)
	s.Equal(2, count)

	s.clock.Advance(6 * time.Minute)
	s.Require().NoError(s.observe(proxy.Temperature, 24.0))

	testutils.NewTextAsserter(s.T()).Assert(s.pub.Transcript(false), `
ble_proxy/Kitchen/temperature/state = 22.0
`)

	sum, count, _ = s.throttle.Pending("Kitchen", proxy.Temperature)
	s.Zero(sum)
	s.Zero(count)
}

func (s *ThrottleTestSuite) TestExactlyIntervalDoesNotPublish() {
	s.Require().NoError(s.observe(proxy.Humidity, 40))
	s.pub.Reset()

	s.clock.Advance(10 * time.Minute)
	s.Require().NoError(s.observe(proxy.Humidity, 41))
	s.Empty(s.pub.Messages())

	s.clock.Advance(time.Millisecond)
	s.Require().NoError(s.observe(proxy.Humidity, 43))
	msg, ok := s.pub.Find("ble_proxy/Kitchen/humidity/state")
	s.Require().True(ok)
	s.Equal("42.0", msg.Payload)
}

func (s *ThrottleTestSuite) TestFirstObservationDroppedWhileDisconnected() {
	s.pub.SetConnected(false)

	err := s.observe(proxy.Temperature, 21)
	s.ErrorIs(err, device.ErrNotConnected)
	s.Empty(s.pub.Messages())
	s.Zero(s.throttle.Len())

	s.pub.SetConnected(true)
	s.Require().NoError(s.observe(proxy.Temperature, 21))
	s.Len(s.pub.Messages(), 2, "sensor is announced once the bus is back")
}

func (s *ThrottleTestSuite) TestFailedDiscoveryLeavesSensorUnannounced() {
	s.pub.FailNext(1)

	s.Error(s.observe(proxy.Temperature, 21))
	s.Zero(s.throttle.Len())
}

func (s *ThrottleTestSuite) TestFailedAverageKeepsAccumulator() {
	s.Require().NoError(s.observe(proxy.Temperature, 10))
	s.pub.Reset()

	s.clock.Advance(11 * time.Minute)
	s.pub.SetConnected(false)
	s.Error(s.observe(proxy.Temperature, 20))

	sum, count, _ := s.throttle.Pending("Kitchen", proxy.Temperature)
	s.Equal(20.0, sum)
	s.Equal(1, count)

	s.pub.SetConnected(true)
	s.clock.Advance(time.Second)
	s.Require().NoError(s.observe(proxy.Temperature, 30))

	testutils.NewTextAsserter(s.T()).Assert(s.pub.Transcript(false), `
ble_proxy/Kitchen/temperature/state = 25.0
`)
}

func (s *ThrottleTestSuite) TestZeroIntervalPublishesEveryObservationAfterFirst() {
	s.throttle = proxy.NewThrottle(s.pub, 0, s.helper.Logger)

	s.Require().NoError(s.observe(proxy.BatteryLevel, 90))
	s.Require().NoError(s.observe(proxy.BatteryLevel, 89))
	s.Require().NoError(s.observe(proxy.BatteryLevel, 88))

	testutils.NewTextAsserter(s.T()).Assert(s.pub.Transcript(true), `
homeassistant/sensor/ble_proxy/kitchen__battery_level/config = <discovery>
ble_proxy/Kitchen/battery_level/state = 90.0
ble_proxy/Kitchen/battery_level/state = 89.0
ble_proxy/Kitchen/battery_level/state = 88.0
`)
}

func (s *ThrottleTestSuite) TestSensorsAreKeyedByDeviceAndAttribute() {
	now := s.clock.Now()
	s.Require().NoError(s.throttle.Observe(s.ctx, "Kitchen", proxy.Temperature, 20, now))
	s.Require().NoError(s.throttle.Observe(s.ctx, "Kitchen", proxy.Humidity, 50, now))
	s.Require().NoError(s.throttle.Observe(s.ctx, "Kitchen/temperature", proxy.Humidity, 50, now))
	s.Require().NoError(s.throttle.Observe(s.ctx, "Garden", proxy.Temperature, 15, now))

	s.Equal(4, s.throttle.Len())
	s.Len(s.pub.Messages(), 8)
}

func (s *ThrottleTestSuite) TestFormatValue() {
	s.Equal("21.0", proxy.FormatValue(21))
	s.Equal("-5.3", proxy.FormatValue(-5.27))
	s.Equal("0.1", proxy.FormatValue(0.05000001))
	s.Equal("1013.2", proxy.FormatValue(1013.24))
}

func TestThrottleTestSuite(t *testing.T) {
	suite.Run(t, new(ThrottleTestSuite))
}
