package scan

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/mod/modfile"

	"github.com/tasknexus/decomp-engine/internal/domain"
)

// Dependencies reads the declared dependencies for the given project type.
// Results are deduplicated and sorted; any read or parse failure yields nil.
func Dependencies(root string, ptype domain.ProjectType) []string {
	switch ptype {
	case domain.TypeReact, domain.TypeVue, domain.TypeAngular, domain.TypeNode:
		return npmDependencies(root)
	case domain.TypePython:
		return pythonDependencies(root)
	case domain.TypeRust:
		return cargoDependencies(root)
	case domain.TypeGo:
		return goDependencies(root)
	}
	return nil
}

// npmDependencies merges dependencies and devDependencies from package.json.
func npmDependencies(root string) []string {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return nil
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil
	}
	names := make([]string, 0, len(pkg.Dependencies)+len(pkg.DevDependencies))
	for name := range pkg.Dependencies {
		names = append(names, name)
	}
	for name := range pkg.DevDependencies {
		names = append(names, name)
	}
	return sortedSet(names)
}

type pyProject struct {
	Project struct {
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
}

// pythonDependencies merges requirements.txt and pyproject.toml entries.
func pythonDependencies(root string) []string {
	var names []string

	if data, err := os.ReadFile(filepath.Join(root, "requirements.txt")); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if name := requirementName(line); name != "" {
				names = append(names, name)
			}
		}
	}

	if data, err := os.ReadFile(filepath.Join(root, "pyproject.toml")); err == nil {
		var proj pyProject
		if err := toml.Unmarshal(data, &proj); err == nil {
			for _, spec := range proj.Project.Dependencies {
				if name := requirementName(spec); name != "" {
					names = append(names, name)
				}
			}
			for _, specs := range proj.Project.OptionalDependencies {
				for _, spec := range specs {
					if name := requirementName(spec); name != "" {
						names = append(names, name)
					}
				}
			}
		}
	}

	return sortedSet(names)
}

// requirementName extracts the bare package name from a PEP 508-ish
// requirement line. Comments, options, and empty lines yield "".
func requirementName(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
		return ""
	}
	if i := strings.IndexAny(line, " =<>!~[;("); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

type cargoManifest struct {
	Dependencies    map[string]any `toml:"dependencies"`
	DevDependencies map[string]any `toml:"dev-dependencies"`
}

// cargoDependencies merges dependencies and dev-dependencies from Cargo.toml.
func cargoDependencies(root string) []string {
	data, err := os.ReadFile(filepath.Join(root, "Cargo.toml"))
	if err != nil {
		return nil
	}
	var manifest cargoManifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil
	}
	names := make([]string, 0, len(manifest.Dependencies)+len(manifest.DevDependencies))
	for name := range manifest.Dependencies {
		names = append(names, name)
	}
	for name := range manifest.DevDependencies {
		names = append(names, name)
	}
	return sortedSet(names)
}

// goDependencies lists direct requirements from go.mod. Indirect modules are
// skipped to match the declared-dependency semantics of the other manifests.
func goDependencies(root string) []string {
	path := filepath.Join(root, "go.mod")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	file, err := modfile.Parse(path, data, nil)
	if err != nil {
		return nil
	}
	var names []string
	for _, req := range file.Require {
		if req.Indirect {
			continue
		}
		names = append(names, req.Mod.Path)
	}
	return sortedSet(names)
}
