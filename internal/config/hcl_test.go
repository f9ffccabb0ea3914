package config

import (
	"testing"

	"github.com/dyluth/dtioctl/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHCL(t *testing.T) {
	src := `
version       = "1.0"
name          = "hdf5-demo"
shared_dir    = "${env.SCRATCH}/dtio"
library_paths = ["/opt/dtio/lib"]

interceptors {
  posix = true
  hdf5  = true
}

runtime {
  num_workers         = 8
  use_cache           = true
  worker_staging_size = "16MiB"
}

paths {
  include = ["/scratch", "/data/**/*.h5"]
  exclude = []
}

scenario {
  command = "h5_write {test_dir}/out.h5"
}
`
	d, err := ParseHCL("dtio.hcl", []byte(src), []string{"SCRATCH=/scratch/u1"})
	require.NoError(t, err)

	assert.Equal(t, "hdf5-demo", d.Name)
	assert.Equal(t, "/scratch/u1/dtio", d.SharedDir)
	assert.Equal(t, []string{"/opt/dtio/lib"}, d.LibraryPaths)
	assert.True(t, d.Interceptors.POSIX)
	assert.True(t, d.Interceptors.HDF5)
	assert.False(t, d.Interceptors.MPI)
	assert.Equal(t, 8, d.Runtime.NumWorkers)
	assert.True(t, d.Runtime.UseCache)
	assert.Equal(t, topology.ByteSize(16<<20), d.Runtime.WorkerStagingSize)
	assert.Equal(t, []string{"/scratch", "/data/**/*.h5"}, d.Paths.Include)
	assert.Empty(t, d.Paths.Exclude)
	assert.Equal(t, "h5_write {test_dir}/out.h5", d.Scenario.Command)

	// Untouched options keep their defaults
	assert.Equal(t, "RANDOM", d.Runtime.AssignmentPolicy)
	assert.NoError(t, d.Validate())
}

func TestParseHCL_UnknownAttribute(t *testing.T) {
	src := `
runtime {
  posix = true
}
`
	_, err := ParseHCL("dtio.hcl", []byte(src), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported option 'posix' in runtime block")
}

func TestParseHCL_UnknownBlock(t *testing.T) {
	_, err := ParseHCL("dtio.hcl", []byte("cluster {\n}\n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse HCL")
}

func TestParseHCL_SyntaxError(t *testing.T) {
	_, err := ParseHCL("dtio.hcl", []byte("name = \n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse HCL")
}

func TestParseHCL_WrongType(t *testing.T) {
	src := `
runtime {
  num_workers = ["a"]
}
`
	_, err := ParseHCL("dtio.hcl", []byte(src), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "num_workers")
}

func TestParseHCL_UndefinedEnv(t *testing.T) {
	_, err := ParseHCL("dtio.hcl", []byte(`shared_dir = env.MISSING`), []string{"HOME=/home/u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to evaluate shared_dir")
}

func TestLoad_HCLExtension(t *testing.T) {
	path := writeConfig(t, "dtio.hcl", `
name = "from-hcl"
interceptors {
  stdio = true
}
`)

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-hcl", d.Name)
	assert.True(t, d.Interceptors.STDIO)
}

func TestParseHCL_ListItemsKeepCommas(t *testing.T) {
	src := `
library_paths = ["/opt/dtio,v2/lib"]

interceptors {
  posix = true
}

paths {
  include = ["/data/{a,b}", "/scratch/x,y"]
  exclude = ["/data/{a,b}/tmp"]
}
`
	d, err := ParseHCL("dtio.hcl", []byte(src), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/{a,b}", "/scratch/x,y"}, d.Paths.Include)
	assert.Equal(t, []string{"/data/{a,b}/tmp"}, d.Paths.Exclude)
	assert.Equal(t, []string{"/opt/dtio,v2/lib"}, d.LibraryPaths)
	assert.NoError(t, d.Validate())
}
