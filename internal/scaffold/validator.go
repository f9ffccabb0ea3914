package scaffold

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// CheckExisting returns an error if dir already holds a declaration in either format
func CheckExisting(fs afero.Fs, dir string) error {
	var existingFiles []string

	for _, format := range []Format{FormatYAML, FormatHCL} {
		if exists, _ := afero.Exists(fs, filepath.Join(dir, format.FileName())); exists {
			existingFiles = append(existingFiles, format.FileName())
		}
	}

	if len(existingFiles) > 0 {
		errMsg := "deployment already initialized\n\nFound existing"
		if len(existingFiles) == 1 {
			errMsg += fmt.Sprintf(": %s\n", existingFiles[0])
		} else {
			errMsg += " files:\n"
			for _, file := range existingFiles {
				errMsg += fmt.Sprintf("  - %s\n", file)
			}
		}
		errMsg += "\nUse 'dtioctl init --force' to reinitialize (this will overwrite existing configuration)"

		return fmt.Errorf("%s", errMsg)
	}

	return nil
}
