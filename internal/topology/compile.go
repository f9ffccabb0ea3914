package topology

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// KnownPolicies are the assignment policies the DTIO scheduler documents.
var KnownPolicies = []string{"RANDOM", "ROUND_ROBIN", "GREEDY", "DP", "DEFAULT"}

// InvalidTopologyError names the parameter that made a topology unusable.
type InvalidTopologyError struct {
	Field  string
	Reason string
}

func (e *InvalidTopologyError) Error() string {
	return fmt.Sprintf("invalid topology: %s %s", e.Field, e.Reason)
}

// Compiler turns Params into a Config.
type Compiler struct {
	lookupEnv func(string) (string, bool)
}

// NewCompiler returns a compiler that expands references against lookupEnv.
// A nil lookupEnv uses the process environment.
func NewCompiler(lookupEnv func(string) (string, bool)) *Compiler {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	return &Compiler{lookupEnv: lookupEnv}
}

// Compile validates p and returns the expanded runtime configuration.
// Unrecognized assignment policies are passed through with a warning since
// the scheduler owns the full policy set.
func (c *Compiler) Compile(p Params) (*Config, error) {
	if p.NumWorkers < 1 {
		return nil, &InvalidTopologyError{Field: "num_workers", Reason: fmt.Sprintf("must be >= 1, got %d", p.NumWorkers)}
	}
	if p.NumSchedulers < 1 {
		return nil, &InvalidTopologyError{Field: "num_schedulers", Reason: fmt.Sprintf("must be >= 1, got %d", p.NumSchedulers)}
	}
	if p.TSNumWorkerThreads < 1 {
		return nil, &InvalidTopologyError{Field: "ts_num_worker_threads", Reason: fmt.Sprintf("must be >= 1, got %d", p.TSNumWorkerThreads)}
	}

	policy := strings.TrimSpace(p.AssignmentPolicy)
	if policy == "" {
		return nil, &InvalidTopologyError{Field: "assignment_policy", Reason: "is required"}
	}
	if !IsKnownPolicy(policy) {
		log.Printf("[WARN] Assignment policy '%s' is not one of %v; passing it through to the scheduler", policy, KnownPolicies)
	}

	endpoints := []struct {
		field, value string
		nats         bool
	}{
		{"nats_url_client", p.NATSURLClient, true},
		{"nats_url_server", p.NATSURLServer, true},
		{"memcached_url_client", p.MemcachedURLClient, false},
		{"memcached_url_server", p.MemcachedURLServer, false},
	}
	for _, ep := range endpoints {
		if strings.TrimSpace(ep.value) == "" {
			return nil, &InvalidTopologyError{Field: ep.field, Reason: "is required"}
		}
		if ep.nats {
			if err := checkNATSURL(ep.value); err != nil {
				return nil, &InvalidTopologyError{Field: ep.field, Reason: err.Error()}
			}
		}
	}

	cfg := &Config{
		NATSURLClient:      p.NATSURLClient,
		NATSURLServer:      p.NATSURLServer,
		MemcachedURLClient: p.MemcachedURLClient,
		MemcachedURLServer: p.MemcachedURLServer,
		AssignmentPolicy:   policy,
		TSNumWorkerThreads: p.TSNumWorkerThreads,
		NumWorkers:         p.NumWorkers,
		NumSchedulers:      p.NumSchedulers,
		CheckFS:            p.CheckFS,
		NeverTrace:         p.NeverTrace,
		AsyncMode:          p.AsyncMode,
		UseURing:           p.UseURing,
		UseCache:           p.UseCache,
		WorkerStagingSize:  uint64(p.WorkerStagingSize),
	}

	paths := []struct {
		field string
		value string
		dst   *string
	}{
		{"worker_path", p.WorkerPath, &cfg.WorkerPath},
		{"pfs_path", p.PFSPath, &cfg.PFSPath},
		{"hcl_server_list_path", p.HCLServerListPath, &cfg.HCLServerListPath},
	}
	for _, pf := range paths {
		if strings.TrimSpace(pf.value) == "" {
			return nil, &InvalidTopologyError{Field: pf.field, Reason: "is required"}
		}
		expanded, err := c.ExpandPath(pf.value)
		if err != nil {
			return nil, &InvalidTopologyError{Field: pf.field, Reason: err.Error()}
		}
		*pf.dst = expanded
	}

	return cfg, nil
}

// ExpandPath resolves a leading "~" and $VAR / ${VAR} references.
// References to unset variables are left as written.
func (c *Compiler) ExpandPath(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("cannot expand %s: %w", path, err)
	}
	return os.Expand(expanded, func(name string) string {
		if value, ok := c.lookupEnv(name); ok {
			return value
		}
		return "${" + name + "}"
	}), nil
}

// IsKnownPolicy reports whether policy is one the scheduler documents.
func IsKnownPolicy(policy string) bool {
	for _, known := range KnownPolicies {
		if policy == known {
			return true
		}
	}
	return false
}

func checkNATSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a valid URL: %v", err)
	}
	if u.Scheme != "nats" && u.Scheme != "tls" {
		return fmt.Errorf("must use the nats:// or tls:// scheme, got '%s'", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("has no host: '%s'", raw)
	}
	return nil
}
