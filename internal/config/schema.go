package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dyluth/dtioctl/internal/topology"
)

// Kind is the declared type of an option
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
	KindSize   Kind = "size"
	KindList   Kind = "list"
)

// Option classes group options in menus and name the HCL block they live in.
// Deployment-class options are top-level attributes.
const (
	ClassDeployment   = "deployment"
	ClassInterceptors = "interceptors"
	ClassPaths        = "paths"
	ClassStorage      = "storage"
	ClassNetworking   = "networking"
	ClassScheduling   = "scheduling"
	ClassFeatures     = "features"
	ClassScenario     = "scenario"
)

// Option is one named, typed, defaulted setting of a deployment
type Option struct {
	Name    string
	Msg     string
	Class   string
	Default string
	Choices []string // Optional closed set of accepted values

	field func(d *Deployment) any
}

// Kind reports the declared type, derived from the field the option binds to
func (o Option) Kind() Kind {
	switch o.field(&Deployment{}).(type) {
	case *int:
		return KindInt
	case *bool:
		return KindBool
	case *topology.ByteSize:
		return KindSize
	case *[]string:
		return KindList
	default:
		return KindString
	}
}

// Set parses raw according to the option's type and stores it in d.
// Lists are comma separated; an empty string yields an empty list.
func (o Option) Set(d *Deployment, raw string) error {
	if len(o.Choices) > 0 && !contains(o.Choices, raw) {
		return fmt.Errorf("%s: invalid value '%s' (must be one of: %s)", o.Name, raw, strings.Join(o.Choices, ", "))
	}

	switch dst := o.field(d).(type) {
	case *string:
		*dst = raw
	case *int:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s: expected an integer, got '%s'", o.Name, raw)
		}
		*dst = n
	case *bool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s: expected true or false, got '%s'", o.Name, raw)
		}
		*dst = b
	case *topology.ByteSize:
		n, err := topology.ParseByteSize(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", o.Name, err)
		}
		*dst = n
	case *[]string:
		*dst = splitList(raw)
	default:
		return fmt.Errorf("%s: unsupported option type %T", o.Name, dst)
	}
	return nil
}

// SetList stores items verbatim in a list option. Unlike Set, items are
// never split on commas, so globs such as "/data/{a,b}" survive intact.
func (o Option) SetList(d *Deployment, items []string) error {
	dst, ok := o.field(d).(*[]string)
	if !ok {
		return fmt.Errorf("%s: expected a %s, got a list", o.Name, o.Kind())
	}
	*dst = append([]string{}, items...)
	return nil
}

// Section is the declaration section (YAML mapping or HCL block) holding the option.
// Deployment-class options live at the top level and return "".
func (o Option) Section() string {
	switch o.Class {
	case ClassDeployment:
		return ""
	case ClassStorage, ClassNetworking, ClassScheduling, ClassFeatures:
		return "runtime"
	default:
		return o.Class
	}
}

// Get formats the current value of the option in d
func (o Option) Get(d *Deployment) string {
	switch v := o.field(d).(type) {
	case *string:
		return *v
	case *int:
		return strconv.Itoa(*v)
	case *bool:
		return strconv.FormatBool(*v)
	case *topology.ByteSize:
		return strconv.FormatUint(uint64(*v), 10)
	case *[]string:
		return strings.Join(*v, ",")
	}
	return ""
}

// Options returns the full option schema in menu order
func Options() []Option {
	return options
}

// Lookup finds an option by name
func Lookup(name string) (Option, bool) {
	for _, opt := range options {
		if opt.Name == name {
			return opt, true
		}
	}
	return Option{}, false
}

// Classes returns the distinct option classes in menu order
func Classes() []string {
	var classes []string
	seen := make(map[string]bool)
	for _, opt := range options {
		if !seen[opt.Class] {
			seen[opt.Class] = true
			classes = append(classes, opt.Class)
		}
	}
	return classes
}

// ApplyOverrides applies name=value assignments (e.g. from --set flags) in order
func ApplyOverrides(d *Deployment, assignments []string) error {
	for _, a := range assignments {
		name, value, ok := strings.Cut(a, "=")
		if !ok {
			return fmt.Errorf("invalid override '%s' (expected name=value)", a)
		}
		opt, found := Lookup(strings.TrimSpace(name))
		if !found {
			return fmt.Errorf("unknown option '%s' (run 'dtioctl options' to list options)", name)
		}
		if err := opt.Set(d, value); err != nil {
			return err
		}
	}
	return nil
}

// OptionNames returns all option names sorted, for completion and help text
func OptionNames() []string {
	names := make([]string, 0, len(options))
	for _, opt := range options {
		names = append(names, opt.Name)
	}
	sort.Strings(names)
	return names
}

func splitList(raw string) []string {
	out := []string{}
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

var options = []Option{
	// Deployment
	{Name: "version", Msg: "Declaration format version", Class: ClassDeployment, Default: SupportedVersion, Choices: []string{SupportedVersion},
		field: func(d *Deployment) any { return &d.Version }},
	{Name: "name", Msg: "Deployment name (DNS label)", Class: ClassDeployment, Default: "default",
		field: func(d *Deployment) any { return &d.Name }},
	{Name: "shared_dir", Msg: "Shared directory that receives the compiled documents", Class: ClassDeployment, Default: "${HOME}/DTIO/shared",
		field: func(d *Deployment) any { return &d.SharedDir }},
	{Name: "library_paths", Msg: "Extra directories searched for interceptor libraries", Class: ClassDeployment, Default: "",
		field: func(d *Deployment) any { return &d.LibraryPaths }},

	// Interceptors
	{Name: "posix", Msg: "Intercept POSIX I/O", Class: ClassInterceptors, Default: "false",
		field: func(d *Deployment) any { return &d.Interceptors.POSIX }},
	{Name: "stdio", Msg: "Intercept STDIO I/O", Class: ClassInterceptors, Default: "false",
		field: func(d *Deployment) any { return &d.Interceptors.STDIO }},
	{Name: "mpi", Msg: "Intercept MPI-IO", Class: ClassInterceptors, Default: "false",
		field: func(d *Deployment) any { return &d.Interceptors.MPI }},
	{Name: "hdf5", Msg: "Intercept HDF5 I/O via VOL connector", Class: ClassInterceptors, Default: "false",
		field: func(d *Deployment) any { return &d.Interceptors.HDF5 }},

	// Paths
	{Name: "include", Msg: "Path prefixes or globs routed to DTIO", Class: ClassPaths, Default: "/tmp,/scratch,/shared,/data",
		field: func(d *Deployment) any { return &d.Paths.Include }},
	{Name: "exclude", Msg: "Path prefixes or globs never routed to DTIO", Class: ClassPaths, Default: "/tmp/systemd,/tmp/.X11-unix,/scratch/logs",
		field: func(d *Deployment) any { return &d.Paths.Exclude }},

	// Storage
	{Name: "worker_path", Msg: "Path to the DTIO worker directory", Class: ClassStorage, Default: "${HOME}/DTIO/run-test/test",
		field: func(d *Deployment) any { return &d.Runtime.WorkerPath }},
	{Name: "pfs_path", Msg: "Path to the parallel filesystem directory", Class: ClassStorage, Default: "${HOME}/DTIO/run-test/pfs",
		field: func(d *Deployment) any { return &d.Runtime.PFSPath }},
	{Name: "hcl_server_list_path", Msg: "Path to the HCL server list configuration", Class: ClassStorage, Default: "${HOME}/DTIO/conf/hcl_servers",
		field: func(d *Deployment) any { return &d.Runtime.HCLServerListPath }},

	// Networking
	{Name: "nats_url_client", Msg: "NATS client URL", Class: ClassNetworking, Default: "nats://localhost:4222/",
		field: func(d *Deployment) any { return &d.Runtime.NATSURLClient }},
	{Name: "nats_url_server", Msg: "NATS server URL", Class: ClassNetworking, Default: "nats://localhost:4223/",
		field: func(d *Deployment) any { return &d.Runtime.NATSURLServer }},
	{Name: "memcached_url_client", Msg: "Memcached client URL", Class: ClassNetworking, Default: "--SERVER=localhost:11211",
		field: func(d *Deployment) any { return &d.Runtime.MemcachedURLClient }},
	{Name: "memcached_url_server", Msg: "Memcached server URL", Class: ClassNetworking, Default: "--SERVER=localhost:11212",
		field: func(d *Deployment) any { return &d.Runtime.MemcachedURLServer }},

	// Scheduling
	{Name: "assignment_policy", Msg: "Policy for assigning tasks to workers", Class: ClassScheduling, Default: "RANDOM",
		field: func(d *Deployment) any { return &d.Runtime.AssignmentPolicy }},
	{Name: "ts_num_worker_threads", Msg: "Number of worker threads per task scheduler", Class: ClassScheduling, Default: "8",
		field: func(d *Deployment) any { return &d.Runtime.TSNumWorkerThreads }},
	{Name: "num_workers", Msg: "Number of worker processes", Class: ClassScheduling, Default: "4",
		field: func(d *Deployment) any { return &d.Runtime.NumWorkers }},
	{Name: "num_schedulers", Msg: "Number of scheduler processes", Class: ClassScheduling, Default: "1",
		field: func(d *Deployment) any { return &d.Runtime.NumSchedulers }},

	// Features
	{Name: "check_fs", Msg: "Enable filesystem checking", Class: ClassFeatures, Default: "false",
		field: func(d *Deployment) any { return &d.Runtime.CheckFS }},
	{Name: "never_trace", Msg: "Disable tracing functionality", Class: ClassFeatures, Default: "true",
		field: func(d *Deployment) any { return &d.Runtime.NeverTrace }},
	{Name: "async_mode", Msg: "Enable asynchronous mode", Class: ClassFeatures, Default: "false",
		field: func(d *Deployment) any { return &d.Runtime.AsyncMode }},
	{Name: "use_uring", Msg: "Enable io_uring support", Class: ClassFeatures, Default: "false",
		field: func(d *Deployment) any { return &d.Runtime.UseURing }},
	{Name: "use_cache", Msg: "Enable caching functionality", Class: ClassFeatures, Default: "false",
		field: func(d *Deployment) any { return &d.Runtime.UseCache }},
	{Name: "worker_staging_size", Msg: "Size of worker staging area (bytes or e.g. 64MiB)", Class: ClassFeatures, Default: "0",
		field: func(d *Deployment) any { return &d.Runtime.WorkerStagingSize }},

	// Scenario
	{Name: "test_dir", Msg: "Path to the test directory", Class: ClassScenario, Default: "${HOME}/DTIO",
		field: func(d *Deployment) any { return &d.Scenario.TestDir }},
	{Name: "command", Msg: "Test command; {test_dir} is replaced with the test directory", Class: ClassScenario, Default: "dtio_simple_write_posix {test_dir}/test.txt",
		field: func(d *Deployment) any { return &d.Scenario.Command }},
	{Name: "image", Msg: "Docker image to run the test command in (empty runs locally)", Class: ClassScenario, Default: "",
		field: func(d *Deployment) any { return &d.Scenario.Image }},
}
