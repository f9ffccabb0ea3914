package envpatch

import (
	"path/filepath"

	"github.com/dyluth/dtioctl/internal/mechanism"
)

const (
	// PluginPathVar is where the HDF5 library looks for VOL connector plugins.
	PluginPathVar = "HDF5_PLUGIN_PATH"
	// ConnectorVar selects the active HDF5 VOL connector.
	ConnectorVar = "HDF5_VOL_CONNECTOR"
	// ConnectorSpec selects the DTIO connector with an empty under-connector configuration.
	ConnectorSpec = "dtio under_vol=0;under_info={};"
	// RootVar carries the DTIO installation root.
	RootVar = "DTIO_ROOT"
)

// Compose builds the patch that activates every resolved mechanism.
//
// Preloaded mechanisms are appended to the platform preload chain in canonical
// order (posix, stdio, mpi) so interceptors registered earlier keep priority.
// A library already present in the base chain is not appended again. The HDF5
// connector is activated through the plugin path and connector selection
// variables. The output depends only on the arguments.
func Compose(res *mechanism.Resolution, base Env, platform mechanism.Platform) *Patch {
	patch := &Patch{}
	chain := base[platform.PreloadVar]

	for _, m := range mechanism.All {
		lib, ok := res.Get(m)
		if !ok {
			continue
		}

		patch.Set(m.ExportVar(), lib.Path)

		if m.Preloaded() {
			if listContains(chain, lib.Path, platform.ListSeparator) {
				continue
			}
			patch.Add(Entry{
				Name:      platform.PreloadVar,
				Value:     lib.Path,
				Mode:      Append,
				Separator: platform.ListSeparator,
			})
			chain = appendList(chain, lib.Path, platform.ListSeparator)
			continue
		}

		// Plugin loaders expect the directory holding the connector, not the file.
		patch.Set(PluginPathVar, filepath.Dir(lib.Path))
		patch.Set(ConnectorVar, ConnectorSpec)
	}

	if root := res.Root(); root != "" {
		patch.Add(Entry{Name: RootVar, Value: root, Mode: SetIfAbsent})
	}

	return patch
}
