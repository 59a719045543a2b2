package proxy_test

import (
	"testing"

	"github.com/srg/bleproxy/internal/proxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	macKitchen = "A4:C1:38:ED:C0:21"
	macGarden  = "C4:7C:8D:6A:11:02"
	macBedroom = "A4:C1:38:00:BE:D0"
)

func TestFilterIsTrackable(t *testing.T) {
	tests := []struct {
		name  string
		allow []string
		deny  []string
		mac   string
		want  bool
	}{
		{name: "no lists", mac: macKitchen, want: true},
		{name: "in allow list", allow: []string{macKitchen}, mac: macKitchen, want: true},
		{name: "not in allow list", allow: []string{macKitchen}, mac: macGarden, want: false},
		{name: "in deny list", deny: []string{macGarden}, mac: macGarden, want: false},
		{name: "deny wins over allow", allow: []string{macGarden}, deny: []string{macGarden}, mac: macGarden, want: false},
		{name: "case insensitive", allow: []string{"a4:c1:38:ed:c0:21"}, mac: macKitchen, want: true},
		{name: "lower-case lookup", deny: []string{macKitchen}, mac: "a4:c1:38:ed:c0:21", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := proxy.NewFilter(tt.allow, tt.deny, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.IsTrackable(tt.mac))
		})
	}
}

func TestFilterDenyAlwaysDisqualifies(t *testing.T) {
	allowSets := [][]string{nil, {macKitchen}, {macKitchen, macGarden, macBedroom}}
	for _, allow := range allowSets {
		f, err := proxy.NewFilter(allow, []string{macKitchen}, nil, nil)
		require.NoError(t, err)
		assert.False(t, f.IsTrackable(macKitchen), "allow=%v", allow)
	}
}

func TestFilterResolveName(t *testing.T) {
	f, err := proxy.NewFilter(nil, nil, []string{
		macKitchen + "=Kitchen",
		macGarden + "=Garden Ficus",
		macKitchen + "=Living room",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Kitchen", f.ResolveName(macKitchen), "first entry wins")
	assert.Equal(t, "Garden Ficus", f.ResolveName("c4:7c:8d:6a:11:02"))
	assert.Equal(t, macBedroom, f.ResolveName(macBedroom), "unknown MAC is returned unchanged")

	assert.Equal(t, [][2]string{
		{macKitchen, "Kitchen"},
		{macGarden, "Garden Ficus"},
	}, f.Renames())
}

func TestFilterResolveNameIsIdempotent(t *testing.T) {
	f, err := proxy.NewFilter(nil, nil, []string{macKitchen + "=Kitchen"}, nil)
	require.NoError(t, err)

	for _, mac := range []string{macKitchen, macGarden} {
		once := f.ResolveName(mac)
		assert.Equal(t, once, f.ResolveName(once))
	}
}

func TestNewFilterRejectsMalformedRename(t *testing.T) {
	for _, entry := range []string{"Kitchen", "=Kitchen", macKitchen + "=", macKitchen + "=  "} {
		_, err := proxy.NewFilter(nil, nil, []string{entry}, nil)
		assert.Error(t, err, entry)
	}
}

func TestParseRenameRejectsTopicWildcards(t *testing.T) {
	for _, alias := range []string{"kitchen/fridge", "kitchen+", "#", "a/+/#"} {
		_, _, err := proxy.ParseRename(macKitchen + "=" + alias)
		require.Error(t, err, alias)
		assert.Contains(t, err.Error(), "must not contain")
	}

	mac, alias, err := proxy.ParseRename("a4:c1:38:ed:c0:21= Fridge Door ")
	require.NoError(t, err)
	assert.Equal(t, "A4:C1:38:ED:C0:21", mac)
	assert.Equal(t, "Fridge Door", alias)
}
