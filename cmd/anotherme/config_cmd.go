package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/anotherme/anotherme/internal/config"
)

// configCommand reads and edits the provider config and local state.
func configCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or edit the provider config",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective provider config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				view := *a.provider
				if view.APIKey != "" {
					view.APIKey = "********"
				}
				if a.jsonOutput() {
					return writeJSON(out, view)
				}
				fmt.Fprintf(out, "path: %s\napi_base_url: %s\ntimeout_ms: %d\nstream_timeout_ms: %d\napi_key: %s\n",
					mustProviderPath(), view.APIBaseURL, view.TimeoutMS, view.StreamTimeoutMS, view.APIKey)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <api_base_url|api_key|timeout_ms|stream_timeout_ms> <value>",
		Short: "Update one provider config field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := mustProviderPath()
			cfg, err := config.LoadProviderConfig(path)
			if err != nil {
				return err
			}
			switch args[0] {
			case "api_base_url":
				cfg.APIBaseURL = args[1]
			case "api_key":
				cfg.APIKey = args[1]
			case "timeout_ms", "stream_timeout_ms":
				value, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("%s must be a number: %w", args[0], err)
				}
				if args[0] == "timeout_ms" {
					cfg.TimeoutMS = value
				} else {
					cfg.StreamTimeoutMS = value
				}
			default:
				return fmt.Errorf("unknown config key: %s", args[0])
			}
			if err := config.SaveProviderConfig(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s in %s\n", args[0], path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear-state",
		Short: "Forget the persisted mode selection and other local state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, true, func(a *app, out io.Writer) error {
				keys, err := a.state.Keys()
				if err != nil {
					return err
				}
				for _, key := range keys {
					if err := a.state.Delete(key); err != nil {
						return err
					}
				}
				fmt.Fprintf(out, "removed %d key(s)\n", len(keys))
				return nil
			})
		},
	})
	return cmd
}

// providerConfigMode reports the permission bits of the provider config, if present.
func providerConfigMode(path string) (os.FileMode, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("stat provider config: %w", err)
	}
	return info.Mode().Perm(), true, nil
}
