package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bleproxy/internal/device"
	"github.com/srg/bleproxy/internal/xiaomi"
	"github.com/srg/bleproxy/scanner"
	"golang.org/x/term"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for sensors and print decoded readings",
	Long: `Scan for Xiaomi sensor advertisements and print the latest decoded
reading of every sensor found. Nothing is published to MQTT.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration   time.Duration
	scanFormat     string
	scanAllowList  []string
	scanRandomAddr bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 30*time.Second, "Scan duration (0 for indefinite)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show sensors with these addresses")
	scanCmd.Flags().BoolVar(&scanRandomAddr, "random-addresses", false, "Include advertisements from random addresses")
}

// readingCollector keeps the latest decoded frame per address. handle is
// called on the BLE backend goroutine.
type readingCollector struct {
	mu       sync.Mutex
	frames   map[string]*decodedFrame
	allow    map[string]struct{}
	random   bool
	now      func() time.Time
	logger   *logrus.Logger
	rejected int
}

func newReadingCollector(allow []string, random bool, logger *logrus.Logger) *readingCollector {
	set := make(map[string]struct{}, len(allow))
	for _, a := range allow {
		set[device.NormalizeAddress(a)] = struct{}{}
	}
	return &readingCollector{
		frames: make(map[string]*decodedFrame),
		allow:  set,
		random: random,
		now:    time.Now,
		logger: logger,
	}
}

func (c *readingCollector) handle(adv device.Advertisement) {
	if !c.random && adv.AddressType().IsRandom() {
		return
	}
	addr := device.NormalizeAddress(adv.Addr())
	if len(c.allow) > 0 {
		if _, ok := c.allow[addr]; !ok {
			return
		}
	}

	for _, sd := range adv.ServiceData() {
		frame, err := decodeServiceData(sd.UUID, sd.Data)
		if err != nil {
			c.mu.Lock()
			c.rejected++
			c.mu.Unlock()
			c.logger.WithError(err).WithField("address", addr).Debug("Undecodable service data")
			continue
		}
		seen := c.now()
		frame.Address = addr
		frame.Name = adv.LocalName()
		frame.RSSI = adv.RSSI()
		frame.LastSeen = &seen

		c.mu.Lock()
		if existing, ok := c.frames[addr]; ok {
			existing.merge(frame)
			existing.RSSI = frame.RSSI
			existing.LastSeen = frame.LastSeen
			if frame.Name != "" {
				existing.Name = frame.Name
			}
		} else {
			c.frames[addr] = &frame
		}
		c.mu.Unlock()
	}
}

// results returns copies of the collected frames sorted by address.
func (c *readingCollector) results() []decodedFrame {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]decodedFrame, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address < out[j].Address
	})
	return out
}

func runScan(cmd *cobra.Command, _ []string) error {
	if err := validateFormat(scanFormat); err != nil {
		return err
	}
	logger, err := configureLogger(cmd, "warn")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := scanner.DefaultOptions()
	opts.Duration = scanDuration
	opts.ServiceData = []string{xiaomi.ServiceUUID, xiaomi.ATCServiceUUID}

	collector := newReadingCollector(scanAllowList, scanRandomAddr, logger)
	if err := scanner.NewScanner(opts, logger).Run(ctx, collector.handle); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	frames := collector.results()
	if scanFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), frames)
	}
	return displayReadingsTable(cmd.OutOrStdout(), frames, isTerminal(cmd.OutOrStdout()), time.Now())
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func displayReadingsTable(out io.Writer, frames []decodedFrame, colors bool, now time.Time) error {
	if len(frames) == 0 {
		fmt.Fprintln(out, "No sensors discovered")
		return nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tMODEL\tRSSI\tREADINGS\tLAST SEEN")
	for _, f := range frames {
		name := f.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		lastSeen := "-"
		if f.LastSeen != nil {
			lastSeen = now.Sub(*f.LastSeen).Truncate(time.Second).String() + " ago"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d dBm\t%s\t%s\n",
			f.Address, name, f.Model, f.RSSI, f.readings(), lastSeen)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	// Colors are applied per line so escape codes don't skew column widths.
	header := color.New(color.Bold, color.FgCyan)
	if colors {
		header.EnableColor()
	} else {
		header.DisableColor()
	}
	first, rest, _ := bytes.Cut(buf.Bytes(), []byte("\n"))
	if _, err := header.Fprintln(out, string(first)); err != nil {
		return err
	}
	_, err := out.Write(rest)
	return err
}
