package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/blegate/internal/beacon"
	"github.com/nerrad567/blegate/internal/infrastructure/config"
)

// newRootCmd builds the command tree. Running the root command without a
// subcommand serves.
func newRootCmd() *cobra.Command {
	var configFlag string

	root := &cobra.Command{
		Use:   "blegate",
		Short: "blegate - BLE gateway presence tracker",
		Long: `blegate consumes BLE advertisement batches from an MQTT gateway,
tracks a home/away state per device and publishes transitions to MQTT,
SQLite and an HTTP/WebSocket API.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), getConfigPath(configFlag))
		},
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "path to config.yaml (default $BLEGATE_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(
		newServeCmd(&configFlag),
		newValidateCmd(&configFlag),
		newParseCmd(),
		newVersionCmd(),
	)
	return root
}

func newServeCmd(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the presence service until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), getConfigPath(*configFlag))
		},
	}
}

func newValidateCmd(configFlag *string) *cobra.Command {
	var ibeaconFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate preload configuration and print what would be tracked",
		Long: `validate checks the gateway preload block of the configuration file.
With --ibeacon-file it checks that file's text instead and ignores the
configuration file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ibeaconFile != "" {
				data, err := os.ReadFile(ibeaconFile)
				if err != nil {
					return fmt.Errorf("reading %s: %w", ibeaconFile, err)
				}
				return validatePreload(cmd.OutOrStdout(), string(data), "")
			}

			path := getConfigPath(*configFlag)
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config %s: ok\n", path)
			return validatePreload(cmd.OutOrStdout(), cfg.Gateway.PreloadIBeacon, cfg.Gateway.PreloadKeys)
		},
	}
	cmd.Flags().StringVar(&ibeaconFile, "ibeacon-file", "", "file holding preload iBeacon rows")
	return cmd
}

// validatePreload prints the parsed preload rows and raw keys, or the first
// invalid row.
func validatePreload(out io.Writer, ibeacons, keys string) error {
	if err := beacon.ValidatePreloadIBeacon(ibeacons); err != nil {
		return fmt.Errorf("preload_ibeacon: %w", err)
	}

	entries := beacon.ParsePreloadIBeacon(ibeacons)
	fmt.Fprintf(out, "%d iBeacon entries\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(out, "  %s  uuid=%s major=%s minor=%s\n", e.Key, e.UUID, e.Major, e.Minor)
	}

	rawKeys := beacon.ParsePreloadKeys(keys)
	fmt.Fprintf(out, "%d raw keys\n", len(rawKeys))
	for _, k := range rawKeys {
		fmt.Fprintf(out, "  %s  (%s)\n", k, k.Kind())
	}
	return nil
}

func newParseCmd() *cobra.Command {
	var mac, adv string

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Print the canonical key and entity name for one advertisement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if mac == "" {
				return errors.New("--mac is required")
			}
			key, err := beacon.Parse(strings.ToUpper(mac), adv)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:  %s\n", key)
			fmt.Fprintf(out, "name: %s\n", key.Name())
			fmt.Fprintf(out, "kind: %s\n", key.Kind())
			if uuid, major, minor, ok := key.IBeaconParts(); ok {
				fmt.Fprintf(out, "uuid: %s major: %s minor: %s\n", uuid, major, minor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mac, "mac", "", "advertiser MAC address")
	cmd.Flags().StringVar(&adv, "adv", "", "raw advertisement, hex encoded")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "blegate %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
