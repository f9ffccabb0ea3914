package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dyluth/dtioctl/internal/config"
	"github.com/dyluth/dtioctl/internal/deploy"
	"github.com/dyluth/dtioctl/internal/envpatch"
	"github.com/dyluth/dtioctl/internal/mechanism"
	"github.com/dyluth/dtioctl/internal/printer"
	"github.com/spf13/cobra"
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Resolve libraries and publish the runtime documents",
	Long: `Resolve the interception libraries, compile the path routing policy and the
topology, and publish dtio_config.yaml and dtio_paths.yaml to shared_dir.

Nothing is written unless every step succeeds.

Examples:
  dtioctl compile
  dtioctl compile -f cluster.hcl --set num_workers=32`,
	RunE: runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)
}

func runCompile(cmd *cobra.Command, args []string) error {
	_, result, err := prepare(cmd.Context())
	if err != nil {
		return err
	}

	printer.Success("Published runtime documents for deployment '%s'\n\n", result.Deployment)
	printSummary(result)
	return nil
}

// prepare loads the declaration and publishes its documents against the process environment
func prepare(ctx context.Context) (*config.Deployment, *deploy.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	d, err := loadDeployment()
	if err != nil {
		return nil, nil, err
	}

	base := envpatch.FromEnviron(os.Environ())
	result, err := deploy.NewHostDeployer().Prepare(ctx, d, base)
	if err != nil {
		return nil, nil, prepareError(d, err)
	}

	return d, result, nil
}

func prepareError(d *config.Deployment, err error) error {
	var notFound *mechanism.LibraryNotFoundError
	if errors.As(err, &notFound) {
		return printer.ErrorWithContext(
			"interception library not found",
			fmt.Sprintf("Could not locate %s for the %s interceptor.",
				mechanism.HostPlatform().FileName(notFound.Mechanism), notFound.Mechanism),
			map[string]string{
				"Deployment": d.Name,
				"Searched":   strings.Join(notFound.Searched, ":"),
			},
			[]string{
				"Add the directory holding the library to library_paths",
				"Add it to LD_LIBRARY_PATH",
				fmt.Sprintf("Disable the interceptor with --set %s=false", notFound.Mechanism),
			},
		)
	}

	return printer.ErrorWithContext(
		"failed to prepare deployment",
		err.Error(),
		map[string]string{"Deployment": d.Name, "Shared dir": d.SharedDir},
		nil,
	)
}

func printSummary(result *deploy.Result) {
	keys := []string{"Run ID", "Config", "Paths", "Root"}
	values := map[string]string{
		"Run ID": result.RunID,
		"Config": result.ConfigPath,
		"Paths":  result.PolicyPath,
		"Root":   result.Resolution.Root(),
	}
	for _, m := range result.Resolution.Mechanisms() {
		lib, _ := result.Resolution.Get(m)
		key := "Library (" + string(m) + ")"
		keys = append(keys, key)
		values[key] = lib.Path
	}
	printer.KeyValues(keys, values)
}
