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

type VisitCounterTestSuite struct {
	suite.Suite

	pub    *testutils.RecordingPublisher
	clock  *testutils.ManualClock
	start  time.Time
	visits *proxy.VisitCounter
	ctx    context.Context
}

func (s *VisitCounterTestSuite) SetupTest() {
	s.pub = testutils.NewRecordingPublisher()
	s.clock = testutils.NewManualClock()
	s.start = s.clock.Now()
	s.visits = proxy.NewVisitCounter(s.pub, "garage", time.Hour, s.start, testutils.NewTestHelper(s.T()).Logger)
	s.ctx = context.Background()
}

func (s *VisitCounterTestSuite) see(name string) {
	s.visits.RecordSeen(s.ctx, proxy.Sighting{
		Name:        name,
		LocalName:   "LYWSD03MMC",
		RSSI:        -71,
		AddressType: device.AddressPublic,
	})
}

func (s *VisitCounterTestSuite) TestFirstSightingPublishesMetadata() {
	s.see("Kitchen")
	s.see("Kitchen")

	testutils.NewTextAsserter(s.T()).Assert(s.pub.Transcript(false), `
garage/seen/Kitchen/name = LYWSD03MMC
garage/seen/Kitchen/rssi = -71
garage/seen/Kitchen/type = PUBLIC
`)
	count, ok := s.visits.Count("Kitchen")
	s.True(ok)
	s.Equal(2, count)
}

func (s *VisitCounterTestSuite) TestFirstSightingWhileDisconnectedIsNotRecorded() {
	s.pub.SetConnected(false)
	s.see("Kitchen")

	_, ok := s.visits.Count("Kitchen")
	s.False(ok)

	s.pub.SetConnected(true)
	s.see("Kitchen")
	count, _ := s.visits.Count("Kitchen")
	s.Equal(1, count)
}

func (s *VisitCounterTestSuite) TestKnownDeviceCountsWhileDisconnected() {
	s.see("Kitchen")
	s.pub.SetConnected(false)
	s.see("Kitchen")

	count, _ := s.visits.Count("Kitchen")
	s.Equal(2, count)
}

func (s *VisitCounterTestSuite) TestSweepBeforeDeadlineDoesNothing() {
	s.see("Kitchen")
	s.pub.Reset()

	s.False(s.visits.Sweep(s.ctx, s.clock.Advance(30*time.Minute)))
	s.False(s.visits.Sweep(s.ctx, s.clock.Advance(30*time.Minute)), "deadline itself is not past")
	s.Empty(s.pub.Messages())
}

func (s *VisitCounterTestSuite) TestSweepPublishesAndZeroes() {
	s.see("Kitchen")
	s.see("Kitchen")
	s.see("Garden")
	s.pub.Reset()

	now := s.clock.Advance(time.Hour + 5*time.Minute)
	s.True(s.visits.Sweep(s.ctx, now))

	testutils.NewTextAsserter(s.T()).Assert(s.pub.Transcript(false), `
garage/seen/Kitchen/viewcount = 2
garage/seen/Garden/viewcount = 1
`)

	count, ok := s.visits.Count("Kitchen")
	s.True(ok, "keys persist after a sweep")
	s.Zero(count)
	s.Equal(s.start.Add(2*time.Hour), s.visits.Deadline(), "next deadline follows the previous one, not now")

	s.pub.Reset()
	s.see("Kitchen")
	s.Empty(s.pub.Messages(), "zeroed devices are not announced again")
	count, _ = s.visits.Count("Kitchen")
	s.Equal(1, count)
}

func (s *VisitCounterTestSuite) TestSweepWithoutDevicesStillReschedules() {
	s.True(s.visits.Sweep(s.ctx, s.clock.Advance(61*time.Minute)))
	s.Empty(s.pub.Messages())
	s.Equal(s.start.Add(2*time.Hour), s.visits.Deadline())
}

func (s *VisitCounterTestSuite) TestDeadlineTooFarAheadResetsRelativeToNow() {
	s.see("Kitchen")
	s.pub.Reset()

	earlier := s.start.Add(-3 * time.Hour)
	s.True(s.visits.Sweep(s.ctx, earlier))

	testutils.NewTextAsserter(s.T()).Assert(s.pub.Transcript(false), `
garage/seen/Kitchen/viewcount = 1
`)
	s.Equal(earlier.Add(time.Hour), s.visits.Deadline())
}

func (s *VisitCounterTestSuite) TestStalledLoopReportsOnce() {
	s.see("Kitchen")
	s.see("Kitchen")
	s.see("Kitchen")
	s.pub.Reset()

	now := s.clock.Advance(5*time.Hour + 10*time.Minute)
	s.True(s.visits.Sweep(s.ctx, now))
	s.Equal(s.start.Add(6*time.Hour), s.visits.Deadline(), "deadline catches up past now")

	s.see("Kitchen")
	s.False(s.visits.Sweep(s.ctx, now))
	s.False(s.visits.Sweep(s.ctx, s.clock.Advance(10*time.Minute)))

	testutils.NewTextAsserter(s.T()).Assert(s.pub.Transcript(false), `
garage/seen/Kitchen/viewcount = 3
`)
	count, _ := s.visits.Count("Kitchen")
	s.Equal(1, count, "sighting after the catch-up sweep is kept")
}

func TestVisitCounterTestSuite(t *testing.T) {
	suite.Run(t, new(VisitCounterTestSuite))
}
