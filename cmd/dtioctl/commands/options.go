package commands

import (
	"fmt"
	"strings"

	"github.com/dyluth/dtioctl/internal/config"
	"github.com/dyluth/dtioctl/internal/printer"
	"github.com/spf13/cobra"
)

var (
	optionsClass   string
	optionsCurrent bool
)

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "List every deployment option with its type and default",
	Long: `List every deployment option grouped by class.

With --current the value from the loaded declaration (after --set overrides)
is shown next to the default.

Examples:
  dtioctl options
  dtioctl options --class scheduling
  dtioctl options --current --set num_workers=16`,
	RunE: runOptions,
}

func init() {
	optionsCmd.Flags().StringVar(&optionsClass, "class", "", "Only list options of this class")
	optionsCmd.Flags().BoolVar(&optionsCurrent, "current", false, "Also show values from the loaded declaration")
	rootCmd.AddCommand(optionsCmd)
}

func runOptions(cmd *cobra.Command, args []string) error {
	if optionsClass != "" && !containsString(config.Classes(), optionsClass) {
		return printer.Error(
			"unknown option class",
			fmt.Sprintf("No option class named '%s'.", optionsClass),
			[]string{"Valid classes: " + strings.Join(config.Classes(), ", ")},
		)
	}

	var current *config.Deployment
	if optionsCurrent {
		d, err := loadDeployment()
		if err != nil {
			return err
		}
		current = d
	}

	for _, class := range config.Classes() {
		if optionsClass != "" && class != optionsClass {
			continue
		}

		printer.Heading(fmt.Sprintf("[%s]", class))
		for _, opt := range config.Options() {
			if opt.Class != class {
				continue
			}
			line := fmt.Sprintf("  %-22s %-6s default=%q", opt.Name, opt.Kind(), opt.Default)
			if current != nil {
				line += fmt.Sprintf(" current=%q", opt.Get(current))
			}
			printer.Printf("%s\n      %s\n", line, opt.Msg)
		}
		printer.Println()
	}

	return nil
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
