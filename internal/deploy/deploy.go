// Package deploy turns a validated deployment declaration into the documents
// and environment a DTIO run needs. Preparation is all-or-nothing: either both
// runtime documents are published to the shared directory or the previous
// documents, if any, are left in place.
package deploy

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/dyluth/dtioctl/internal/config"
	"github.com/dyluth/dtioctl/internal/envpatch"
	"github.com/dyluth/dtioctl/internal/mechanism"
	"github.com/dyluth/dtioctl/internal/pathpolicy"
	"github.com/dyluth/dtioctl/internal/topology"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const (
	// ConfigFileName is the runtime topology document written to the shared directory
	ConfigFileName = "dtio_config.yaml"

	// PolicyFileName is the path routing document written to the shared directory
	PolicyFileName = "dtio_paths.yaml"
)

// Result describes one prepared run
type Result struct {
	RunID      string
	Deployment string
	CreatedAt  time.Time

	SharedDir  string
	ConfigPath string
	PolicyPath string

	Resolution *mechanism.Resolution
	Topology   *topology.Config
	Policy     *pathpolicy.Policy

	// Patch activates interception and points DTIO at both documents.
	// Env is the base environment with Patch applied.
	Patch *envpatch.Patch
	Env   envpatch.Env

	TestDir string
	Args    []string
	Image   string
}

// Deployer prepares runs against a filesystem and environment
type Deployer struct {
	fs        afero.Fs
	platform  mechanism.Platform
	lookupEnv func(string) (string, bool)
	compiler  *topology.Compiler
	now       func() time.Time
}

// NewDeployer creates a deployer. A nil lookupEnv reads the process environment.
func NewDeployer(fs afero.Fs, platform mechanism.Platform, lookupEnv func(string) (string, bool)) *Deployer {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	return &Deployer{
		fs:        fs,
		platform:  platform,
		lookupEnv: lookupEnv,
		compiler:  topology.NewCompiler(lookupEnv),
		now:       time.Now,
	}
}

// NewHostDeployer creates a deployer for the local filesystem and process environment
func NewHostDeployer() *Deployer {
	return NewDeployer(afero.NewOsFs(), mechanism.HostPlatform(), os.LookupEnv)
}

// Prepare resolves libraries, compiles both documents and publishes them to the
// declaration's shared directory. No file is written unless every step succeeds.
func (d *Deployer) Prepare(ctx context.Context, decl *config.Deployment, base envpatch.Env) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sharedDir, err := d.compiler.ExpandPath(decl.SharedDir)
	if err != nil {
		return nil, fmt.Errorf("shared_dir: %w", err)
	}

	libDirs := make([]string, 0, len(decl.LibraryPaths))
	for _, dir := range decl.LibraryPaths {
		expanded, err := d.compiler.ExpandPath(dir)
		if err != nil {
			return nil, fmt.Errorf("library_paths: %w", err)
		}
		libDirs = append(libDirs, expanded)
	}

	resolver := mechanism.NewResolver(d.fs, d.platform, libDirs, d.lookupEnv)
	res, err := resolver.ResolveAll(decl.Interceptors)
	if err != nil {
		return nil, err
	}

	policy, err := pathpolicy.Compile(decl.Paths.Include, decl.Paths.Exclude)
	if err != nil {
		return nil, fmt.Errorf("paths: %w", err)
	}

	topo, err := d.compiler.Compile(decl.Runtime)
	if err != nil {
		return nil, err
	}

	configData, err := topo.Marshal()
	if err != nil {
		return nil, err
	}
	policyData, err := policy.Marshal()
	if err != nil {
		return nil, err
	}

	testDir, err := d.compiler.ExpandPath(decl.Scenario.TestDir)
	if err != nil {
		return nil, fmt.Errorf("scenario.test_dir: %w", err)
	}
	args, err := decl.ScenarioArgs(testDir)
	if err != nil {
		return nil, err
	}

	result := &Result{
		RunID:      uuid.New().String(),
		Deployment: decl.Name,
		CreatedAt:  d.now(),
		SharedDir:  sharedDir,
		ConfigPath: filepath.Join(sharedDir, ConfigFileName),
		PolicyPath: filepath.Join(sharedDir, PolicyFileName),
		Resolution: res,
		Topology:   topo,
		Policy:     policy,
		TestDir:    testDir,
		Args:       args,
		Image:      decl.Scenario.Image,
	}

	result.Patch = activationPatch(res, base, d.platform, result.ConfigPath, result.PolicyPath)
	result.Env = result.Patch.Apply(base)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = d.publish(sharedDir, []document{
		{path: result.ConfigPath, data: configData},
		{path: result.PolicyPath, data: policyData},
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] Prepared run %s for deployment '%s': %s, %s",
		result.RunID, result.Deployment, result.ConfigPath, result.PolicyPath)

	return result, nil
}

// ContainerEnv is the environment for a scenario container: only the
// activating variables, composed for Linux against an empty base. The image
// supplies everything else, such as PATH and HOME.
func (r *Result) ContainerEnv() envpatch.Env {
	empty := envpatch.Env{}
	return activationPatch(r.Resolution, empty, mechanism.Linux, r.ConfigPath, r.PolicyPath).Apply(empty)
}

func activationPatch(res *mechanism.Resolution, base envpatch.Env, platform mechanism.Platform, configPath, policyPath string) *envpatch.Patch {
	patch := envpatch.Compose(res, base, platform)
	patch.Set(topology.ConfigPathVar, configPath)
	patch.Set(pathpolicy.PathVar, policyPath)
	return patch
}

type document struct {
	path      string
	data      []byte
	temp      string // staged copy, until renamed into place
	backup    string // previous document moved aside, until publishing succeeds
	published bool
}

// publish stages every document next to its destination, moves any previous
// documents aside, then renames the staged files into place. If any step
// fails the shared directory is restored to its previous state.
func (d *Deployer) publish(dir string, docs []document) error {
	if err := d.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create shared directory %s: %w", dir, err)
	}

	for i := range docs {
		temp, err := d.stage(dir, docs[i])
		if err != nil {
			d.rollback(docs)
			return err
		}
		docs[i].temp = temp
	}

	for i, doc := range docs {
		exists, err := afero.Exists(d.fs, doc.path)
		if err != nil {
			d.rollback(docs)
			return fmt.Errorf("failed to check %s: %w", doc.path, err)
		}
		if !exists {
			continue
		}
		backup := doc.temp + ".prev"
		if err := d.fs.Rename(doc.path, backup); err != nil {
			d.rollback(docs)
			return fmt.Errorf("failed to move aside %s: %w", doc.path, err)
		}
		docs[i].backup = backup
	}

	for i, doc := range docs {
		if err := d.fs.Rename(doc.temp, doc.path); err != nil {
			d.rollback(docs)
			return fmt.Errorf("failed to publish %s: %w", doc.path, err)
		}
		docs[i].temp = ""
		docs[i].published = true
	}

	for _, doc := range docs {
		if doc.backup != "" {
			d.remove(doc.backup)
		}
	}
	return nil
}

// rollback removes whatever this publish wrote and puts previous documents back
func (d *Deployer) rollback(docs []document) {
	for _, doc := range docs {
		if doc.temp != "" {
			d.remove(doc.temp)
		}
		if doc.published {
			d.remove(doc.path)
		}
		if doc.backup != "" {
			if err := d.fs.Rename(doc.backup, doc.path); err != nil {
				log.Printf("[ERROR] Failed to restore %s from %s: %v", doc.path, doc.backup, err)
			}
		}
	}
}

func (d *Deployer) remove(path string) {
	if err := d.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("[WARN] Failed to remove %s: %v", path, err)
	}
}

func (d *Deployer) stage(dir string, doc document) (string, error) {
	f, err := afero.TempFile(d.fs, dir, "."+filepath.Base(doc.path)+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", doc.path, err)
	}

	if _, err := f.Write(doc.data); err != nil {
		f.Close()
		d.fs.Remove(f.Name())
		return "", fmt.Errorf("failed to write %s: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		d.fs.Remove(f.Name())
		return "", fmt.Errorf("failed to write %s: %w", f.Name(), err)
	}

	if err := d.fs.Chmod(f.Name(), 0644); err != nil {
		d.fs.Remove(f.Name())
		return "", fmt.Errorf("failed to set permissions on %s: %w", f.Name(), err)
	}

	return f.Name(), nil
}
