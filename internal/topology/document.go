package topology

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ConfigPathVar is the variable every worker and scheduler reads to locate the document.
const ConfigPathVar = "DTIO_CONF_PATH"

// Config is the compiled runtime configuration. Paths are already expanded.
type Config struct {
	WorkerPath        string
	PFSPath           string
	HCLServerListPath string

	NATSURLClient      string
	NATSURLServer      string
	MemcachedURLClient string
	MemcachedURLServer string

	AssignmentPolicy   string
	TSNumWorkerThreads int
	NumWorkers         int
	NumSchedulers      int

	CheckFS           bool
	NeverTrace        bool
	AsyncMode         bool
	UseURing          bool
	UseCache          bool
	WorkerStagingSize uint64
}

// document is the on-disk layout. Field order is the key order in the file.
// Booleans are lowercase strings so every runtime language reads them the same way.
type document struct {
	WorkerPath         string `yaml:"WORKER_PATH"`
	PFSPath            string `yaml:"PFS_PATH"`
	HCLServerListPath  string `yaml:"HCL_SERVER_LIST_PATH"`
	NATSURLClient      string `yaml:"NATS_URL_CLIENT"`
	NATSURLServer      string `yaml:"NATS_URL_SERVER"`
	MemcachedURLClient string `yaml:"MEMCACHED_URL_CLIENT"`
	MemcachedURLServer string `yaml:"MEMCACHED_URL_SERVER"`
	AssignmentPolicy   string `yaml:"ASSIGNMENT_POLICY"`
	TSNumWorkerThreads int    `yaml:"TS_NUM_WORKER_THREADS"`
	NumWorkers         int    `yaml:"NUM_WORKERS"`
	NumSchedulers      int    `yaml:"NUM_SCHEDULERS"`
	CheckFS            string `yaml:"CHECK_FS"`
	NeverTrace         string `yaml:"NEVER_TRACE"`
	AsyncMode          string `yaml:"ASYNC_MODE"`
	UseURing           string `yaml:"USE_URING"`
	UseCache           string `yaml:"USE_CACHE"`
	WorkerStagingSize  uint64 `yaml:"WORKER_STAGING_SIZE"`
}

// Marshal serializes the configuration as a flat YAML mapping.
func (c *Config) Marshal() ([]byte, error) {
	doc := document{
		WorkerPath:         c.WorkerPath,
		PFSPath:            c.PFSPath,
		HCLServerListPath:  c.HCLServerListPath,
		NATSURLClient:      c.NATSURLClient,
		NATSURLServer:      c.NATSURLServer,
		MemcachedURLClient: c.MemcachedURLClient,
		MemcachedURLServer: c.MemcachedURLServer,
		AssignmentPolicy:   c.AssignmentPolicy,
		TSNumWorkerThreads: c.TSNumWorkerThreads,
		NumWorkers:         c.NumWorkers,
		NumSchedulers:      c.NumSchedulers,
		CheckFS:            boolString(c.CheckFS),
		NeverTrace:         boolString(c.NeverTrace),
		AsyncMode:          boolString(c.AsyncMode),
		UseURing:           boolString(c.UseURing),
		UseCache:           boolString(c.UseCache),
		WorkerStagingSize:  c.WorkerStagingSize,
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal runtime configuration: %w", err)
	}
	return data, nil
}

// Parse reads a serialized runtime configuration.
func Parse(data []byte) (*Config, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := &Config{
		WorkerPath:         doc.WorkerPath,
		PFSPath:            doc.PFSPath,
		HCLServerListPath:  doc.HCLServerListPath,
		NATSURLClient:      doc.NATSURLClient,
		NATSURLServer:      doc.NATSURLServer,
		MemcachedURLClient: doc.MemcachedURLClient,
		MemcachedURLServer: doc.MemcachedURLServer,
		AssignmentPolicy:   doc.AssignmentPolicy,
		TSNumWorkerThreads: doc.TSNumWorkerThreads,
		NumWorkers:         doc.NumWorkers,
		NumSchedulers:      doc.NumSchedulers,
		WorkerStagingSize:  doc.WorkerStagingSize,
	}

	flags := []struct {
		key string
		raw string
		dst *bool
	}{
		{"CHECK_FS", doc.CheckFS, &cfg.CheckFS},
		{"NEVER_TRACE", doc.NeverTrace, &cfg.NeverTrace},
		{"ASYNC_MODE", doc.AsyncMode, &cfg.AsyncMode},
		{"USE_URING", doc.UseURing, &cfg.UseURing},
		{"USE_CACHE", doc.UseCache, &cfg.UseCache},
	}

	for _, f := range flags {
		v, err := parseBoolString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = v
	}

	return cfg, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func parseBoolString(s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false", "":
		return false, nil
	}
	return false, fmt.Errorf("expected \"true\" or \"false\", got %q", s)
}
