package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/anotherme/anotherme/internal/api"
	"github.com/anotherme/anotherme/internal/config"
	"github.com/anotherme/anotherme/internal/kv"
	"github.com/anotherme/anotherme/internal/logging"
	"github.com/anotherme/anotherme/internal/mode"
)

// version is the CLI build version.
const version = "0.1.0"

// options holds all CLI flags.
type options struct {
	// APIBaseURL overrides api_base_url from the provider config.
	APIBaseURL string
	// Debug enables logging at the given level.
	Debug string
	// DebugFile writes logs to a file instead of stderr.
	DebugFile string
	// Settings provides a path or inline JSON for settings overrides.
	Settings string
	// SettingSources limits settings sources to load.
	SettingSources []string
	// OutputFormat selects text or json output.
	OutputFormat string
	// StateDB overrides the key-value database path.
	StateDB string
	// Version prints the CLI version.
	Version bool

	// Continue resumes the most recent session in the current project.
	Continue bool
	// Resume resumes a specific session id or the interactive picker.
	Resume string
	// SessionID sets a fixed session id.
	SessionID string
	// NoSessionPersistence disables saving transcripts to disk.
	NoSessionPersistence bool
	// Strict rejects stream frames without the data prefix.
	Strict bool
	// Sync uses the non-streaming chat endpoint.
	Sync bool
}

// main wires Cobra and executes the CLI.
func main() {
	rootCmd := newRootCommand(&options{})
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

// newRootCommand builds the command tree bound to opts.
func newRootCommand(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "anotherme [prompt]",
		Short:         "Another Me - a terminal companion that learns how you work and live",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Version {
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return nil
			}
			return runChat(cmd, opts, args)
		},
	}

	applyGlobalFlags(rootCmd.PersistentFlags(), opts)
	rootCmd.Flags().BoolVarP(&opts.Version, "version", "v", false, "Output the version number")
	applyChatFlags(rootCmd.Flags(), opts)

	rootCmd.AddCommand(chatCommand(opts))
	rootCmd.AddCommand(modeCommand(opts))
	rootCmd.AddCommand(actionCommand(opts))
	rootCmd.AddCommand(suggestCommand(opts))
	rootCmd.AddCommand(docsCommand(opts))
	rootCmd.AddCommand(memoriesCommand(opts))
	rootCmd.AddCommand(graphCommand(opts))
	rootCmd.AddCommand(healthCommand(opts))
	rootCmd.AddCommand(configCommand(opts))
	rootCmd.AddCommand(doctorCommand(opts))
	return rootCmd
}

// applyGlobalFlags defines flags shared by every command.
func applyGlobalFlags(flags *pflag.FlagSet, opts *options) {
	flags.SetNormalizeFunc(normalizeFlagName)

	flags.StringVar(&opts.APIBaseURL, "api-base-url", "", "Backend API root, e.g. http://localhost:8000/api/v1")
	flags.StringVar(&opts.Debug, "debug", "", "Enable logging at level (debug|info|warn|error)")
	flags.Lookup("debug").NoOptDefVal = "debug"
	flags.StringVar(&opts.DebugFile, "debug-file", "", "Write logs to a file")
	flags.StringVar(&opts.Settings, "settings", "", "Settings file path or JSON")
	flags.StringSliceVar(&opts.SettingSources, "setting-sources", nil, "Setting sources (user,project,local)")
	flags.StringVar(&opts.OutputFormat, "output-format", "text", "Output format (text|json)")
	flags.StringVar(&opts.StateDB, "state-db", "", "Path of the local state database")
	_ = flags.MarkHidden("state-db")
}

// applyChatFlags defines flags for chat runs.
func applyChatFlags(flags *pflag.FlagSet, opts *options) {
	flags.BoolVarP(&opts.Continue, "continue", "c", false, "Continue the most recent conversation")
	flags.StringVarP(&opts.Resume, "resume", "r", "", "Resume a conversation by session ID")
	flags.Lookup("resume").NoOptDefVal = "picker"
	flags.StringVar(&opts.SessionID, "session-id", "", "Use a specific session ID")
	flags.BoolVar(&opts.NoSessionPersistence, "no-session-persistence", false, "Disable session persistence")
	flags.BoolVar(&opts.Strict, "strict", false, "Reject stream frames without the data prefix")
	flags.BoolVar(&opts.Sync, "sync", false, "Wait for the full reply instead of streaming")
}

// normalizeFlagName accepts camel-case spellings of dashed flags.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "apiBaseUrl", "api-base":
		return "api-base-url"
	case "outputFormat":
		return "output-format"
	default:
		return pflag.NormalizedName(name)
	}
}

// app bundles the resolved configuration and long-lived clients of one run.
type app struct {
	// opts are the parsed flags.
	opts *options
	// settings are the merged user/project/local preferences.
	settings *config.Settings
	// provider describes how to reach the backend.
	provider *config.ProviderConfig
	// logger receives diagnostics.
	logger *slog.Logger
	// client talks to the backend.
	client *api.Client
	// state is the local key-value database, when opened.
	state *kv.Store
	// selector holds the current scene and capability, when state is opened.
	selector *mode.Selector
	// closers run in reverse order on close.
	closers []func() error
}

// loadApp resolves configuration and builds the API client. withState also
// opens the local database and restores the mode selection.
func loadApp(opts *options, withState bool) (*app, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get cwd: %w", err)
	}

	settings, err := config.LoadSettings(cwd, splitList(strings.Join(opts.SettingSources, ",")), opts.Settings)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	logger, closeLog, err := logging.New(logging.Options{Level: opts.Debug, File: opts.DebugFile, Stderr: os.Stderr})
	if err != nil {
		return nil, err
	}
	a := &app{opts: opts, settings: settings, logger: logger, closers: []func() error{closeLog}}

	provider, err := config.LoadProviderConfig("")
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("load provider config: %w", err)
	}
	provider, err = provider.WithBaseURL(opts.APIBaseURL)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.provider = provider
	a.client = api.NewClient(
		provider.APIBaseURL,
		provider.APIKey,
		time.Duration(provider.TimeoutMS)*time.Millisecond,
		api.WithLogger(logger),
		api.WithStreamTimeout(time.Duration(provider.StreamTimeoutMS)*time.Millisecond),
	)
	logger.Debug("configuration loaded", "api_base_url", provider.APIBaseURL, "settings_keys", len(settings.Raw))

	if !withState {
		return a, nil
	}
	if err := a.openState(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// openState opens the key-value database and restores the selector.
func (a *app) openState() error {
	path := a.opts.StateDB
	if path == "" {
		var err error
		path, err = kv.DefaultPath()
		if err != nil {
			return err
		}
	}
	store, err := kv.Open(path)
	if err != nil {
		return err
	}
	a.state = store
	a.closers = append(a.closers, store.Close)

	selectorOpts := []mode.Option{
		mode.WithLogger(a.logger),
		mode.WithHistoryLimit(a.settings.HistoryLimit),
		mode.WithInitialState(initialState(a.settings, a.logger)),
	}
	selector, err := mode.NewSelector(mode.NewKVStore(store), selectorOpts...)
	if err != nil {
		return err
	}
	a.selector = selector
	return nil
}

// initialState applies the settings defaults, ignoring unknown values.
func initialState(settings *config.Settings, logger *slog.Logger) mode.State {
	state := mode.DefaultState()
	if settings.DefaultMode != "" {
		if parsed, err := mode.ParseMode(settings.DefaultMode); err == nil {
			state.Mode = parsed
		} else {
			logger.Warn("ignoring defaultMode setting", "error", err)
		}
	}
	if settings.DefaultCapability != "" {
		if parsed, err := mode.ParseCapability(settings.DefaultCapability); err == nil {
			state.Capability = parsed
		} else {
			logger.Warn("ignoring defaultCapability setting", "error", err)
		}
	}
	return state
}

// Close releases everything the app opened.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// jsonOutput reports whether machine-readable output was requested.
func (a *app) jsonOutput() bool {
	return strings.EqualFold(a.opts.OutputFormat, "json")
}

// validateOutputFormat rejects unknown output formats early.
func validateOutputFormat(format string) error {
	switch strings.ToLower(format) {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// withApp loads the app, runs fn and closes the app afterwards.
func withApp(cmd *cobra.Command, opts *options, withState bool, fn func(a *app, out io.Writer) error) error {
	if err := validateOutputFormat(opts.OutputFormat); err != nil {
		return err
	}
	a, err := loadApp(opts, withState)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a, cmd.OutOrStdout())
}

// splitList parses comma/space-separated lists.
func splitList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' '
	})
	var list []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			list = append(list, part)
		}
	}
	return list
}

// mustCwd returns cwd or "." if unavailable.
func mustCwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// mustProviderPath returns the default config path or a fallback placeholder.
func mustProviderPath() string {
	path, err := config.ProviderConfigPath()
	if err != nil {
		return "~/.anotherme/config.json"
	}
	return path
}
