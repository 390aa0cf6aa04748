package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// CLI is the viper-configured nanogrid command line
type CLI struct {
	rootCmd *cobra.Command
	v       *viper.Viper
	logger  *slog.Logger
}

// NewCLI creates the command tree
func NewCLI() *CLI {
	cli := &CLI{v: viper.New(), logger: slog.Default()}

	cli.setupViperConfig()
	cli.createRootCommand()
	cli.addCommands()
	return cli
}

// Execute runs the command line
func (cli *CLI) Execute() error {
	return cli.rootCmd.Execute()
}

// setupViperConfig configures Viper with environment variables and config files
func (cli *CLI) setupViperConfig() {
	// NANOGRID_CONFIG names a config file explicitly
	if configFile := os.Getenv("NANOGRID_CONFIG"); configFile != "" {
		cli.v.SetConfigFile(configFile)
	} else {
		cli.v.SetConfigName(appName)
		cli.v.AddConfigPath(".")
		cli.v.AddConfigPath("$HOME/.nanogrid")
	}

	cli.v.SetEnvPrefix("NANOGRID")
	// Dashes become underscores, e.g. --state-file -> NANOGRID_STATE_FILE
	cli.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cli.v.AutomaticEnv()

	// A missing config file is fine
	_ = cli.v.ReadInConfig()
}

func (cli *CLI) createRootCommand() {
	cli.rootCmd = &cobra.Command{
		Use:   appName,
		Short: "nanogrid - filter tabular data the way a data grid does",
		Long: `nanogrid loads a data file into a filterable store and applies grid
filters to it: typed chooser queries, column value selections and JSON filters.
Filter state can be remembered in a local JSON file, a preferences database or
a saved view.

Configuration Sources (in order of precedence):
1. Command line flags
2. Environment variables (NANOGRID_*)
3. Configuration file (NANOGRID_CONFIG, ./nanogrid.{yaml,json}, ~/.nanogrid/)
4. Defaults

Examples:
  nanogrid --data orders.json filter "status = open" "priority > 3"
  nanogrid --data orders.json filter --or "region = east" "region = west"
  nanogrid --data orders.json values status "priority >= 3"
  nanogrid --data orders.json filter --remember "status = open"
  nanogrid state get filterChooser.value
  nanogrid --data orders.json serve --addr :8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = cli.v.BindPFlags(cmd.Flags())
			logger, _, err := initLogging(cli.v.GetString("log-level"), cli.v.GetBool("log-stderr"))
			if err != nil {
				return WrapError("initialize logging", err)
			}
			cli.logger = logger.With("command", cmd.Name())
			return nil
		},
	}
	cli.addGlobalFlags()
}

// addGlobalFlags adds persistent flags that apply to all commands
func (cli *CLI) addGlobalFlags() {
	flags := cli.rootCmd.PersistentFlags()

	flags.StringP("data", "d", "", "Data file (JSON or YAML with fields and records)")
	flags.Bool("tree", false, "Treat nested records as a tree; column values come from leaves")

	flags.StringP("format", "f", "table", "Output format (table|json|yaml|csv)")
	flags.BoolP("quiet", "q", false, "Suppress headers")

	flags.String("state-backend", "local", "Where remembered state lives (local|pref|view)")
	flags.String("state-file", "", "State file; defaults to a file in the XDG state directory")
	flags.String("state-key", appName, "Key (or view id) the state document is saved under")

	flags.String("log-level", "warn", "Log level (debug|info|warn|error)")
	flags.Bool("log-stderr", false, "Also log to stderr")

	for _, flag := range []string{
		"data", "tree", "format", "quiet",
		"state-backend", "state-file", "state-key",
		"log-level", "log-stderr",
	} {
		_ = cli.v.BindPFlag(flag, flags.Lookup(flag))
	}
}

func (cli *CLI) addCommands() {
	cli.addFilterCommand()
	cli.addValuesCommand()
	cli.addStateCommand()
	cli.addServeCommand()
}

// output writes t in the configured format
func (cli *CLI) output(cmd *cobra.Command, t table) error {
	of, err := NewOutputFormatter(cli.v.GetString("format"), cli.v.GetBool("quiet"))
	if err != nil {
		return err
	}
	if err := of.Write(cmd.OutOrStdout(), t); err != nil {
		return WrapError("write output", err)
	}
	return nil
}

func main() {
	if err := NewCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
