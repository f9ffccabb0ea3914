package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dyluth/dtioctl/internal/mechanism"
	"github.com/dyluth/dtioctl/internal/pathpolicy"
	"github.com/dyluth/dtioctl/internal/topology"
	"github.com/hashicorp/go-multierror"
	"github.com/mattn/go-shellwords"
	"gopkg.in/yaml.v3"
)

const (
	// SupportedVersion is the only declaration version this tool understands
	SupportedVersion = "1.0"

	// MaxNameLength is the maximum length for a deployment name (DNS-compatible)
	MaxNameLength = 63

	// TestDirPlaceholder is replaced with the expanded test directory in scenario commands
	TestDirPlaceholder = "{test_dir}"
)

// NamePattern matches valid deployment names: lowercase alphanumeric, hyphens inside
var NamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// Deployment represents the top-level dtio.yml declaration
type Deployment struct {
	Version      string              `yaml:"version"`
	Name         string              `yaml:"name"`
	SharedDir    string              `yaml:"shared_dir"`
	LibraryPaths []string            `yaml:"library_paths,omitempty"`
	Interceptors mechanism.Selection `yaml:"interceptors"`
	Runtime      topology.Params     `yaml:"runtime"`
	Paths        PathsConfig         `yaml:"paths"`
	Scenario     ScenarioConfig      `yaml:"scenario"`
}

// PathsConfig holds the ordered include/exclude path patterns
type PathsConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// ScenarioConfig describes the test program launched under interception
type ScenarioConfig struct {
	TestDir string `yaml:"test_dir"`
	Command string `yaml:"command"`
	Image   string `yaml:"image,omitempty"` // Optional: run inside this Docker image
}

// Default returns a declaration populated with every option default
func Default() *Deployment {
	d := &Deployment{}
	for _, opt := range Options() {
		if err := opt.Set(d, opt.Default); err != nil {
			// Defaults are static; a failure here is a programming error
			panic(fmt.Sprintf("invalid default for option %s: %v", opt.Name, err))
		}
	}
	return d
}

// Validate performs strict validation on the declaration.
// All problems are reported together so the operator can fix them in one pass.
func (d *Deployment) Validate() error {
	var result *multierror.Error

	if d.Version != SupportedVersion {
		result = multierror.Append(result, fmt.Errorf("unsupported version: %s (expected: %s)", d.Version, SupportedVersion))
	}

	if err := ValidateName(d.Name); err != nil {
		result = multierror.Append(result, err)
	}

	if strings.TrimSpace(d.SharedDir) == "" {
		result = multierror.Append(result, fmt.Errorf("shared_dir is required"))
	}

	if d.Interceptors.Empty() {
		result = multierror.Append(result, mechanism.ErrNoMechanismSelected)
	}

	if _, err := pathpolicy.Compile(d.Paths.Include, d.Paths.Exclude); err != nil {
		result = multierror.Append(result, fmt.Errorf("paths: %w", err))
	}

	if _, err := d.ScenarioArgs(d.Scenario.TestDir); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

// ScenarioArgs splits the scenario command into argv, substituting testDir for {test_dir}
func (d *Deployment) ScenarioArgs(testDir string) ([]string, error) {
	command := strings.ReplaceAll(d.Scenario.Command, TestDirPlaceholder, testDir)
	args, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("scenario.command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("scenario.command is required")
	}
	return args, nil
}

// ValidateName checks that a deployment name is a valid DNS label
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("deployment name cannot be empty")
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("deployment name too long: %d characters (max: %d)", len(name), MaxNameLength)
	}

	if !NamePattern.MatchString(name) {
		return fmt.Errorf("invalid deployment name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}

	return nil
}

// Load reads and validates a declaration. Files ending in .hcl are parsed as
// HCL, everything else as YAML. Options absent from the file keep their defaults.
func Load(path string) (*Deployment, error) {
	return LoadWithOverrides(path, nil)
}

// LoadWithOverrides is Load with name=value assignments applied after parsing
// and before validation, so an override can complete an otherwise invalid file.
func LoadWithOverrides(path string, overrides []string) (*Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var d *Deployment
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		d, err = ParseHCL(path, data, os.Environ())
	} else {
		d, err = ParseYAML(data)
	}
	if err != nil {
		return nil, err
	}

	if err := ApplyOverrides(d, overrides); err != nil {
		return nil, fmt.Errorf("invalid override: %w", err)
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return d, nil
}

// ParseYAML decodes a YAML declaration on top of the defaults
func ParseYAML(data []byte) (*Deployment, error) {
	d := Default()
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return d, nil
}
