package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/bleproxy/internal/device"
	"github.com/srg/bleproxy/internal/proxy"
	"github.com/srg/bleproxy/internal/xiaomi"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode a sensor payload offline",
	Long: `Decode raw service data as broadcast by a sensor, without scanning.

The payload is given in hex; spaces, colons and dashes are ignored.

Examples:
  bleproxy decode 50205B05AA21C038C138A40D1004D200C201
  bleproxy decode --uuid 181a A4C138EDC021 00D7 32 55 0B9A 2A`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

var (
	decodeUUID   string
	decodeFormat string
)

func init() {
	decodeCmd.Flags().StringVarP(&decodeUUID, "uuid", "u", xiaomi.ServiceUUID, "Service data UUID (fe95 for MiBeacon, 181a for custom firmware)")
	decodeCmd.Flags().StringVarP(&decodeFormat, "format", "f", "table", "Output format (table, json)")
}

// decodedFrame is one decoded service-data payload.
type decodedFrame struct {
	Address      string                                  `json:"address,omitempty"`
	Name         string                                  `json:"name,omitempty"`
	RSSI         int                                     `json:"rssi,omitempty"`
	Format       string                                  `json:"format"`
	Model        string                                  `json:"model,omitempty"`
	FrameCounter uint8                                   `json:"frame_counter"`
	Values       *orderedmap.OrderedMap[string, float64] `json:"values"`
	LastSeen     *time.Time                              `json:"last_seen,omitempty"`
}

// readings renders the values as "name=value" pairs in canonical order.
func (f *decodedFrame) readings() string {
	parts := make([]string, 0, f.Values.Len())
	for pair := f.Values.Oldest(); pair != nil; pair = pair.Next() {
		parts = append(parts, pair.Key+"="+proxy.FormatValue(pair.Value))
	}
	return strings.Join(parts, " ")
}

// merge copies newer values from other, keeping fields other lacks.
func (f *decodedFrame) merge(other decodedFrame) {
	for pair := other.Values.Oldest(); pair != nil; pair = pair.Next() {
		f.Values.Set(pair.Key, pair.Value)
	}
	f.FrameCounter = other.FrameCounter
	if other.Model != "" {
		f.Model = other.Model
	}
}

func validateFormat(format string) error {
	switch format {
	case "table", "json":
		return nil
	}
	return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
}

// parseHex accepts hex digits separated by optional spaces, colons or dashes.
func parseHex(args []string) ([]byte, error) {
	s := strings.Join(args, "")
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return data, nil
}

// decodeServiceData decodes one service-data entry of a known sensor format.
// Humidity is reported as broadcast, without the truncation applied before
// publishing.
func decodeServiceData(uuid string, data []byte) (decodedFrame, error) {
	frame := decodedFrame{Values: orderedmap.New[string, float64]()}

	var reading xiaomi.Reading
	switch device.NormalizeUUID(uuid) {
	case xiaomi.ServiceUUID:
		h, err := xiaomi.ParseHeader(data)
		if err != nil {
			return frame, err
		}
		reading, err = xiaomi.ParseMessage(data, h)
		if err != nil {
			return frame, fmt.Errorf("%s: %w", h.Model, err)
		}
		frame.Format = "mibeacon"
		frame.FrameCounter = h.FrameCounter
	case xiaomi.ATCServiceUUID:
		atc, err := xiaomi.DecodeATC(data)
		if err != nil {
			return frame, err
		}
		reading = atc.Reading
		frame.Format = "atc"
		frame.Address = atc.MAC
		frame.FrameCounter = atc.FrameCounter
	default:
		return frame, fmt.Errorf("unsupported service data UUID %q", uuid)
	}

	frame.Model = reading.Model
	for _, f := range reading.Fields() {
		frame.Values.Set(f.Name, f.Value)
	}
	return frame, nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	if err := validateFormat(decodeFormat); err != nil {
		return err
	}
	data, err := parseHex(args)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	frame, err := decodeServiceData(decodeUUID, data)
	if err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}

	if decodeFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), frame)
	}
	return displayFrame(cmd.OutOrStdout(), frame)
}

func displayFrame(out io.Writer, frame decodedFrame) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "format\t%s\n", frame.Format)
	if frame.Model != "" {
		fmt.Fprintf(w, "model\t%s\n", frame.Model)
	}
	if frame.Address != "" {
		fmt.Fprintf(w, "address\t%s\n", frame.Address)
	}
	fmt.Fprintf(w, "frame_counter\t%d\n", frame.FrameCounter)
	for pair := frame.Values.Oldest(); pair != nil; pair = pair.Next() {
		fmt.Fprintf(w, "%s\t%s\n", pair.Key, proxy.FormatValue(pair.Value))
	}
	return w.Flush()
}

func writeJSON(out io.Writer, v interface{}) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
