// Package topology compiles DTIO worker/scheduler deployment parameters into
// the single runtime configuration document read by every DTIO process.
package topology

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Params are the declared deployment parameters, before expansion and validation.
type Params struct {
	// Storage
	WorkerPath        string `yaml:"worker_path"`
	PFSPath           string `yaml:"pfs_path"`
	HCLServerListPath string `yaml:"hcl_server_list_path"`

	// Coordination endpoints
	NATSURLClient      string `yaml:"nats_url_client"`
	NATSURLServer      string `yaml:"nats_url_server"`
	MemcachedURLClient string `yaml:"memcached_url_client"`
	MemcachedURLServer string `yaml:"memcached_url_server"`

	// Scheduling
	AssignmentPolicy   string `yaml:"assignment_policy"`
	TSNumWorkerThreads int    `yaml:"ts_num_worker_threads"`
	NumWorkers         int    `yaml:"num_workers"`
	NumSchedulers      int    `yaml:"num_schedulers"`

	// Features
	CheckFS           bool     `yaml:"check_fs"`
	NeverTrace        bool     `yaml:"never_trace"`
	AsyncMode         bool     `yaml:"async_mode"`
	UseURing          bool     `yaml:"use_uring"`
	UseCache          bool     `yaml:"use_cache"`
	WorkerStagingSize ByteSize `yaml:"worker_staging_size"`
}

// DefaultParams returns the parameters used when a deployment declares nothing.
func DefaultParams() Params {
	return Params{
		WorkerPath:         "${HOME}/DTIO/run-test/test",
		PFSPath:            "${HOME}/DTIO/run-test/pfs",
		HCLServerListPath:  "${HOME}/DTIO/conf/hcl_servers",
		NATSURLClient:      "nats://localhost:4222/",
		NATSURLServer:      "nats://localhost:4223/",
		MemcachedURLClient: "--SERVER=localhost:11211",
		MemcachedURLServer: "--SERVER=localhost:11212",
		AssignmentPolicy:   "RANDOM",
		TSNumWorkerThreads: 8,
		NumWorkers:         4,
		NumSchedulers:      1,
		NeverTrace:         true,
	}
}

// ByteSize is a byte count that may be declared as an integer or a
// human-readable size such as "64MiB".
type ByteSize uint64

// ParseByteSize parses "0", "1048576", "64MiB", "1 GB".
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return ByteSize(n), nil
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("size must be non-negative: %s", s)
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size '%s': %w", s, err)
	}
	return ByteSize(n), nil
}

// UnmarshalYAML accepts integer and string scalars.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", value.Line)
	}
	n, err := ParseByteSize(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*b = n
	return nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}
