package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anotherme/anotherme/internal/mode"
)

// modeView is the json shape of the current selection.
type modeView struct {
	Mode       mode.Mode           `json:"mode"`
	Capability mode.Capability     `json:"capability"`
	ModeConfig mode.ModeConfig     `json:"modeConfig"`
	Actions    []mode.ActionConfig `json:"actions"`
}

// modeCommand groups scene and capability management.
func modeCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode",
		Short: "Show or switch the current mode and capability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, true, func(a *app, out io.Writer) error {
				return printMode(a, out)
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current mode, capability and actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, true, func(a *app, out io.Writer) error {
				return printMode(a, out)
			})
		},
	})

	for _, m := range mode.Modes() {
		cmd.AddCommand(switchCommand(opts, string(m), "Switch to the "+string(m)+" scene", func(selector *mode.Selector) {
			selector.SwitchMode(m)
		}))
	}
	for _, c := range mode.Capabilities() {
		cmd.AddCommand(switchCommand(opts, string(c), "Switch to the "+string(c)+" capability", func(selector *mode.Selector) {
			selector.SwitchCapability(c)
		}))
	}
	cmd.AddCommand(switchCommand(opts, "reset", "Restore work/mimic", func(selector *mode.Selector) {
		selector.ResetMode()
	}))

	cmd.AddCommand(&cobra.Command{
		Use:   "detect <text>",
		Short: "Detect the scene of a message and switch to it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, true, func(a *app, out io.Writer) error {
				before := a.selector.Mode()
				detected := a.selector.AutoDetectMode(strings.Join(args, " "))
				if a.jsonOutput() {
					return writeJSON(out, map[string]any{"mode": detected, "switched": detected != before})
				}
				config, _ := mode.ConfigForMode(detected)
				fmt.Fprintf(out, "%s %s (%s)\n", config.Icon, config.Label, detected)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "actions",
		Short: "List the actions of the current mode and capability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, true, func(a *app, out io.Writer) error {
				actions := a.selector.AvailableActions()
				if a.jsonOutput() {
					return writeJSON(out, actions)
				}
				fmt.Fprint(out, renderActions(actions))
				return nil
			})
		},
	})
	return cmd
}

// switchCommand builds a subcommand that applies change and prints the result.
func switchCommand(opts *options, use string, short string, change func(*mode.Selector)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, true, func(a *app, out io.Writer) error {
				change(a.selector)
				return printMode(a, out)
			})
		},
	}
}

// printMode writes the current selection.
func printMode(a *app, out io.Writer) error {
	state := a.selector.State()
	if a.jsonOutput() {
		return writeJSON(out, modeView{
			Mode:       state.Mode,
			Capability: state.Capability,
			ModeConfig: a.selector.ModeConfig(),
			Actions:    a.selector.AvailableActions(),
		})
	}
	fmt.Fprintln(out, describeState(a.selector))
	fmt.Fprint(out, renderActions(a.selector.AvailableActions()))
	return nil
}

// describeState renders the one-line mode summary used by every surface.
func describeState(selector *mode.Selector) string {
	modeConfig := selector.ModeConfig()
	capability := selector.CapabilityConfig()
	return fmt.Sprintf("%s %s · %s %s", modeConfig.Icon, modeConfig.Label, capability.Icon, capability.Label)
}

// renderActions lists actions one per line.
func renderActions(actions []mode.ActionConfig) string {
	if len(actions) == 0 {
		return "No actions available.\n"
	}
	var builder strings.Builder
	for _, action := range actions {
		fmt.Fprintf(&builder, "  %s %-18s %s - %s\n", action.Icon, action.Key, action.Label, action.Description)
	}
	return builder.String()
}

// renderHistory lists mode switches oldest first.
func renderHistory(history []mode.Context) string {
	if len(history) == 0 {
		return "No mode switches yet.\n"
	}
	var builder strings.Builder
	for _, entry := range history {
		fmt.Fprintf(&builder, "  %s  %s/%s\n", entry.Timestamp.Format("15:04:05"), entry.Mode, entry.Capability)
	}
	return builder.String()
}
