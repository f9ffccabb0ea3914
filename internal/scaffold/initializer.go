package scaffold

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/dyluth/dtioctl/internal/config"
	"github.com/dyluth/dtioctl/internal/mechanism"
	"github.com/spf13/afero"
)

//go:embed templates/*
var templatesFS embed.FS

// Format selects the declaration syntax written by Initialize
type Format string

const (
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
)

// FileName returns the declaration file name for the format
func (f Format) FileName() string {
	if f == FormatHCL {
		return "dtio.hcl"
	}
	return "dtio.yml"
}

// Options control the generated declaration
type Options struct {
	Dir       string
	Name      string
	SharedDir string
	Format    Format
	Enable    []mechanism.Mechanism // Defaults to posix when empty
	Force     bool
}

type templateData struct {
	Name      string
	SharedDir string
	POSIX     bool
	HDF5      bool
}

// Initialize writes a starter declaration into opts.Dir and returns its path.
// Existing declarations are only replaced when opts.Force is set.
func Initialize(fs afero.Fs, opts Options) (string, error) {
	if opts.Format == "" {
		opts.Format = FormatYAML
	}
	if opts.Format != FormatYAML && opts.Format != FormatHCL {
		return "", fmt.Errorf("unsupported format '%s' (must be one of: yaml, hcl)", opts.Format)
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.SharedDir == "" {
		opts.SharedDir = "/tmp/dtio-shared"
	}
	if err := config.ValidateName(opts.Name); err != nil {
		return "", err
	}

	if opts.Force {
		if err := handleForce(fs, opts.Dir); err != nil {
			return "", err
		}
	} else if err := CheckExisting(fs, opts.Dir); err != nil {
		return "", err
	}

	content, err := render(opts)
	if err != nil {
		return "", err
	}

	// Parse what we are about to write so a broken template never reaches disk
	path := filepath.Join(opts.Dir, opts.Format.FileName())
	if err := validateContent(path, content, opts.Format); err != nil {
		return "", err
	}

	if err := fs.MkdirAll(opts.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", opts.Dir, err)
	}
	if err := afero.WriteFile(fs, path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	return path, nil
}

func render(opts Options) ([]byte, error) {
	data := templateData{Name: opts.Name, SharedDir: opts.SharedDir}
	enabled := opts.Enable
	if len(enabled) == 0 {
		enabled = []mechanism.Mechanism{mechanism.POSIX}
	}
	for _, m := range enabled {
		switch m {
		case mechanism.POSIX:
			data.POSIX = true
		case mechanism.HDF5:
			data.HDF5 = true
		default:
			// stdio and mpi are left for the operator to switch on in the file
			return nil, fmt.Errorf("init can enable posix or hdf5; enable %s by editing the generated file", m)
		}
	}

	name := "templates/dtio.yml.tmpl"
	if opts.Format == FormatHCL {
		name = "templates/dtio.hcl.tmpl"
		// Keep ${VAR} literal; HCL would otherwise treat it as interpolation
		data.SharedDir = strings.ReplaceAll(data.SharedDir, "${", "$${")
	}

	tmpl, err := template.ParseFS(templatesFS, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s template: %w", opts.Format.FileName(), err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", opts.Format.FileName(), err)
	}
	return buf.Bytes(), nil
}

func validateContent(path string, content []byte, format Format) error {
	var (
		d   *config.Deployment
		err error
	)
	if format == FormatHCL {
		environ := os.Environ()
		if _, ok := os.LookupEnv("HOME"); !ok {
			environ = append(environ, "HOME=/")
		}
		d, err = config.ParseHCL(path, content, environ)
	} else {
		d, err = config.ParseYAML(content)
	}
	if err != nil {
		return fmt.Errorf("generated %s does not parse: %w", format.FileName(), err)
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("generated %s is invalid: %w", format.FileName(), err)
	}
	return nil
}

// handleForce removes existing declarations if --force was specified
func handleForce(fs afero.Fs, dir string) error {
	for _, format := range []Format{FormatYAML, FormatHCL} {
		path := filepath.Join(dir, format.FileName())
		if exists, _ := afero.Exists(fs, path); exists {
			fmt.Printf("⚠️  Removing existing %s...\n", format.FileName())
			if err := fs.Remove(path); err != nil {
				return fmt.Errorf("failed to remove %s: %w", path, err)
			}
		}
	}
	return nil
}

// PrintSuccess prints the success message and next steps
func PrintSuccess(path string) {
	fmt.Println("\n✅ Successfully initialized DTIO deployment!")
	fmt.Println("\nCreated:")
	fmt.Printf("  ✓ %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Point library_paths at your DTIO install (or set LD_LIBRARY_PATH)")
	fmt.Println("  2. Run 'dtioctl compile' to publish the runtime documents")
	fmt.Println("  3. Run 'dtioctl run' to launch the test scenario under interception")
}
