// Package cli implements the websql command-line interface: a thin shell
// over pkg/websql and the SQLite bridge for running statements, reading and
// migrating database versions, and writing a default configuration.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/websql/internal/paths"
	"github.com/mesh-intelligence/websql/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds the global flag values.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	logLevel  string
}

// app is the state shared by every subcommand of one invocation.
type app struct {
	flags rootFlags
	cfg   *viper.Viper
	log   *logrus.Logger
}

// NewRootCmd creates the top-level "websql" command with its global flags
// and subcommands.
func NewRootCmd() *cobra.Command {
	a := &app{log: logrus.New()}

	root := &cobra.Command{
		Use:           "websql",
		Short:         "Run Web SQL style transactions against local SQLite databases",
		Long:          "websql executes statements inside savepoint-backed transactions,\nreads database versions and runs version migrations.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: $"+paths.EnvConfigDir+" or the platform config dir)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/"+paths.DefaultDataDirName+")")
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	root.AddCommand(newVersionCmd(a))
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newExecCmd(a))
	root.AddCommand(newChangeVersionCmd(a))

	return root
}

// Execute runs the root command and exits with the matching code.
func Execute() {
	os.Exit(run(NewRootCmd(), os.Args[1:], os.Stderr))
}

func run(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// exitCode maps connection and statement failures to exitSysError and
// everything else, bad arguments included, to exitUserError.
func exitCode(err error) int {
	var uerr *usageError
	if errors.As(err, &uerr) {
		return exitUserError
	}
	switch types.KindOf(err) {
	case types.KindConnection, types.KindStatement:
		return exitSysError
	default:
		return exitUserError
	}
}

// usageError marks bad command-line input.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// setup resolves the config dir, loads config.yaml and configures logging.
func (a *app) setup(cmd *cobra.Command) error {
	a.log.SetOutput(cmd.ErrOrStderr())

	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	a.cfg, err = loadConfig(configDir)
	if err != nil {
		return err
	}

	level := a.flags.logLevel
	if level == "" {
		level = a.cfg.GetString(cfgKeyLogLevel)
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return usagef("invalid log level %q", level)
	}
	a.log.SetLevel(lvl)
	a.log.WithField("config_dir", configDir).Debug("configuration loaded")
	return nil
}
