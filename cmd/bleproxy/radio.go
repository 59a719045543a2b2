package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/bleproxy/internal/mqtt"
	"github.com/srg/bleproxy/internal/proxy"
	"github.com/srg/bleproxy/internal/radio"
)

// radioCmd represents the radio command
var radioCmd = &cobra.Command{
	Use:   "radio on|off",
	Short: "Switch the Bluetooth adapter on or off",
	Long: `Switch the local Bluetooth adapter through BlueZ.

While "bleproxy run" holds the adapter it is hidden from BlueZ; send the
daemon an MQTT or HTTP radio command instead.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE:      runRadio,
}

var radioAdapter string

func init() {
	radioCmd.Flags().StringVarP(&radioAdapter, "adapter", "a", radio.DefaultAdapter, "Bluetooth adapter name")
}

func runRadio(cmd *cobra.Command, args []string) error {
	enabled, err := mqtt.ParseSwitch(args[0])
	if err != nil {
		return fmt.Errorf("invalid radio state: %w", err)
	}
	logger, err := configureLogger(cmd, "info")
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	drv, err := radio.NewBlueZ(radioAdapter, logger)
	if err != nil {
		return err
	}
	proxy.NewRadioToggle(drv, logger).SetEnabled(cmd.Context(), enabled)
	return nil
}
