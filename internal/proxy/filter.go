package proxy

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/srg/bleproxy/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Filter decides which senders are tracked and what they are called.
type Filter struct {
	allow  map[string]struct{}
	deny   map[string]struct{}
	rename *orderedmap.OrderedMap[string, string]
	logger *logrus.Logger
}

// NewFilter builds a filter from allow and deny MAC lists and "<mac>=<alias>"
// rename entries. MACs are compared case-insensitively. When a MAC is listed
// more than once in renames, the first entry wins.
func NewFilter(allow, deny, renames []string, logger *logrus.Logger) (*Filter, error) {
	if logger == nil {
		logger = logrus.New()
	}

	f := &Filter{
		allow:  toSet(allow),
		deny:   toSet(deny),
		rename: orderedmap.New[string, string](),
		logger: logger,
	}

	for _, entry := range renames {
		mac, alias, err := ParseRename(entry)
		if err != nil {
			return nil, err
		}
		if _, exists := f.rename.Get(mac); exists {
			logger.WithFields(logrus.Fields{"mac": mac, "alias": alias}).Warn("Duplicate rename entry ignored")
			continue
		}
		f.rename.Set(mac, alias)
	}

	return f, nil
}

// ParseRename splits a "<mac>=<alias>" entry.
func ParseRename(entry string) (mac, alias string, err error) {
	mac, alias, ok := strings.Cut(entry, "=")
	mac = device.NormalizeAddress(mac)
	alias = strings.TrimSpace(alias)
	if !ok || mac == "" || alias == "" {
		return "", "", fmt.Errorf("invalid rename entry %q: expected <mac>=<alias>", entry)
	}
	// the alias becomes a topic level
	if strings.ContainsAny(alias, "/+#") {
		return "", "", fmt.Errorf("invalid rename entry %q: alias must not contain '/', '+' or '#'", entry)
	}
	return mac, alias, nil
}

func toSet(macs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(macs))
	for _, m := range macs {
		if m = device.NormalizeAddress(m); m != "" {
			set[m] = struct{}{}
		}
	}
	return set
}

// IsTrackable reports whether readings from mac should be forwarded. A
// non-empty allow list must contain mac; the deny list always wins.
func (f *Filter) IsTrackable(mac string) bool {
	mac = device.NormalizeAddress(mac)

	if len(f.allow) > 0 {
		if _, ok := f.allow[mac]; !ok {
			f.logger.WithField("mac", mac).Debug("Device not trackable: not in allow list")
			return false
		}
	}
	if _, ok := f.deny[mac]; ok {
		f.logger.WithField("mac", mac).Debug("Device not trackable: in deny list")
		return false
	}
	return true
}

// ResolveName returns the alias configured for mac, or mac unchanged.
func (f *Filter) ResolveName(mac string) string {
	if alias, ok := f.rename.Get(device.NormalizeAddress(mac)); ok {
		return alias
	}
	return mac
}

// Renames returns the rename table in configuration order.
func (f *Filter) Renames() [][2]string {
	out := make([][2]string, 0, f.rename.Len())
	for pair := f.rename.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, [2]string{pair.Key, pair.Value})
	}
	return out
}
