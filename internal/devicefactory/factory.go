package devicefactory

import (
	"github.com/srg/bleproxy/internal/device"
	goble "github.com/srg/bleproxy/internal/device/go-ble"
)

// DeviceFactory creates device.ScanningDevice instances bound to an adapter
// ("hci0" when empty). This is a variable so that it can be overridden in tests.
var DeviceFactory = func(adapter string) (device.ScanningDevice, error) {
	return goble.NewScanner(adapter)
}
