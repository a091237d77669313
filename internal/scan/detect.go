package scan

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tasknexus/decomp-engine/internal/domain"
)

type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// DetectType classifies the project by its manifest files. A package.json
// wins over other manifests; within it, framework dependencies decide the
// flavor. Detection is cheap enough to run every scan, but callers keep the
// first detected value stable once persisted.
func DetectType(root string) domain.ProjectType {
	if data, err := os.ReadFile(filepath.Join(root, "package.json")); err == nil {
		var pkg packageJSON
		if err := json.Unmarshal(data, &pkg); err == nil {
			deps := make(map[string]struct{}, len(pkg.Dependencies)+len(pkg.DevDependencies))
			for name := range pkg.Dependencies {
				deps[name] = struct{}{}
			}
			for name := range pkg.DevDependencies {
				deps[name] = struct{}{}
			}
			switch {
			case hasKey(deps, "react"):
				return domain.TypeReact
			case hasKey(deps, "vue"):
				return domain.TypeVue
			case hasKey(deps, "@angular/core"):
				return domain.TypeAngular
			default:
				return domain.TypeNode
			}
		}
		// Unparseable package.json falls through to the other manifests.
	}

	if exists(root, "requirements.txt") || exists(root, "pyproject.toml") {
		return domain.TypePython
	}
	if exists(root, "Cargo.toml") {
		return domain.TypeRust
	}
	if exists(root, "go.mod") {
		return domain.TypeGo
	}
	return domain.TypeUnknown
}

func hasKey(m map[string]struct{}, k string) bool {
	_, ok := m[k]
	return ok
}

func exists(root, name string) bool {
	_, err := os.Stat(filepath.Join(root, name))
	return err == nil
}
