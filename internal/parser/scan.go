package parser

import (
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"k8s.io/klog/v2"
)

// Scan walks root and parses every definition file below it. Files that
// fail to parse are logged and skipped.
func Scan(root string) ([]*Definition, error) {
	found := []*Definition{}

	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path != root && strings.HasPrefix(filepath.Base(path), ".") {
				if de.IsDir() {
					return godirwalk.SkipThis
				}
				return nil
			}
			if de.IsDir() || !IsDefinitionFile(path) {
				return nil
			}

			def, err := ParseDefinition(path)
			if err != nil {
				klog.Errorf("[Definitions] skipping %s: %v", path, err)
				return nil
			}
			klog.V(1).Infof("[Definitions] found %q in %s", def.Name, path)
			found = append(found, def)
			return nil
		},
	})

	return found, err
}
