package commands

import (
	"fmt"
	"strings"

	"github.com/dyluth/dtioctl/internal/envpatch"
	"github.com/dyluth/dtioctl/internal/printer"
	"github.com/spf13/cobra"
)

var envFormat string

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Publish the runtime documents and print the activating environment",
	Long: `Publish the runtime documents (as 'dtioctl compile') and print the
environment that activates interception.

The default output is POSIX shell, suitable for eval:

  eval "$(dtioctl env)"

Use --format dotenv for NAME=value lines (e.g. for a compose env_file).
Values with characters outside [A-Za-z0-9/._:,+@%=-] are single-quoted.
Values containing a newline or a single quote cannot be written as dotenv.`,
	RunE: runEnv,
}

func init() {
	envCmd.Flags().StringVar(&envFormat, "format", "shell", "Output format: shell or dotenv")
	rootCmd.AddCommand(envCmd)
}

func runEnv(cmd *cobra.Command, args []string) error {
	if envFormat != "shell" && envFormat != "dotenv" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", envFormat),
			[]string{"Valid formats: shell, dotenv"},
		)
	}

	_, result, err := prepare(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if envFormat == "dotenv" {
		var lines []string
		for _, name := range result.Patch.Names() {
			line, err := dotenvLine(name, result.Env[name])
			if err != nil {
				return printer.Error(
					"cannot render dotenv",
					err.Error(),
					[]string{"Use the default shell format: eval \"$(dtioctl env)\""},
				)
			}
			lines = append(lines, line)
		}
		for _, line := range lines {
			fmt.Fprintln(out, line)
		}
		return nil
	}

	fmt.Fprint(out, envpatch.Render(result.Patch, result.Env))
	return nil
}

// dotenvLine renders one NAME=value line. Plain values are written bare and
// anything else is single-quoted, which dotenv readers take literally.
func dotenvLine(name, value string) (string, error) {
	if strings.ContainsAny(value, "\n\r") {
		return "", fmt.Errorf("%s contains a newline", name)
	}
	if strings.IndexFunc(value, needsDotenvQuote) < 0 {
		return name + "=" + value, nil
	}
	if strings.Contains(value, "'") {
		return "", fmt.Errorf("%s contains both a single quote and characters that need quoting", name)
	}
	return name + "='" + value + "'", nil
}

func needsDotenvQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("/._:,+@%=-", r):
		return false
	}
	return true
}
