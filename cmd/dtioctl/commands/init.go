package commands

import (
	"fmt"

	"github.com/dyluth/dtioctl/internal/mechanism"
	"github.com/dyluth/dtioctl/internal/scaffold"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	forceInit     bool
	initName      string
	initSharedDir string
	initFormat    string
	initEnable    []string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter deployment declaration",
	Long: `Create a starter deployment declaration in the current directory.

Creates dtio.yml (or dtio.hcl with --format hcl) holding every option at its
default, with POSIX interception enabled unless --enable says otherwise.

Use --force to replace an existing declaration.`,
	RunE: runInit,
}

func init() {
	// Note: Cannot use -f shorthand because it conflicts with global --config flag
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Replace an existing declaration")
	initCmd.Flags().StringVarP(&initName, "name", "n", "default", "Deployment name")
	initCmd.Flags().StringVar(&initSharedDir, "shared-dir", "/tmp/dtio-shared", "Directory that receives the compiled documents")
	initCmd.Flags().StringVar(&initFormat, "format", "yaml", "Declaration format: yaml or hcl")
	initCmd.Flags().StringSliceVar(&initEnable, "enable", []string{"posix"}, "Interceptors to enable: posix, hdf5")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	var enable []mechanism.Mechanism
	for _, name := range initEnable {
		m, err := mechanism.Parse(name)
		if err != nil {
			return err
		}
		enable = append(enable, m)
	}

	path, err := scaffold.Initialize(afero.NewOsFs(), scaffold.Options{
		Dir:       ".",
		Name:      initName,
		SharedDir: initSharedDir,
		Format:    scaffold.Format(initFormat),
		Enable:    enable,
		Force:     forceInit,
	})
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	scaffold.PrintSuccess(path)
	return nil
}
