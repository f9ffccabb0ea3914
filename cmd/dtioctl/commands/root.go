package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/dyluth/dtioctl/internal/config"
	"github.com/dyluth/dtioctl/internal/printer"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	configPath string
	overrides  []string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dtioctl",
	Short: "dtioctl - DTIO deployment configuration tool",
	Long: `dtioctl turns a DTIO deployment declaration into a ready-to-run environment.

It locates the DTIO interception libraries, builds the environment that
activates them (LD_PRELOAD, DTIO_* variables, HDF5 VOL connector settings),
compiles the path routing policy and the worker/scheduler topology into the
runtime documents, and optionally launches a test scenario under interception.`,
	Version: version,
	// Show help instead of silently succeeding without a subcommand
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "dtio.yml", "Deployment declaration (.yml/.yaml or .hcl)")
	rootCmd.PersistentFlags().StringArrayVar(&overrides, "set", nil, "Override an option, e.g. --set num_workers=8 (repeatable)")
}

// loadDeployment loads the declaration named by --config with --set overrides applied
func loadDeployment() (*config.Deployment, error) {
	d, err := config.LoadWithOverrides(configPath, overrides)
	if err == nil {
		return d, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return nil, printer.Error(
			"deployment declaration not found",
			fmt.Sprintf("No declaration at %s.", configPath),
			[]string{
				"Run 'dtioctl init' to create one",
				"Pass an existing file with --config",
			},
		)
	}

	return nil, printer.ErrorWithContext(
		"invalid deployment declaration",
		err.Error(),
		map[string]string{"Declaration": configPath},
		[]string{"Run 'dtioctl options' to list valid options and their types"},
	)
}
