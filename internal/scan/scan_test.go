package scan

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tasknexus/decomp-engine/internal/domain"
	"github.com/tasknexus/decomp-engine/internal/logging"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func newScanner(t *testing.T, root string) *Scanner {
	t.Helper()
	return New(root,
		[]string{"src", "components", "services", "utils"},
		[]string{".git", "node_modules", ".next", "build", "dist"},
		logging.NewNop())
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  domain.ProjectType
	}{
		{
			name:  "react",
			files: map[string]string{"package.json": `{"dependencies": {"react": "^18.0.0"}}`},
			want:  domain.TypeReact,
		},
		{
			name:  "vue",
			files: map[string]string{"package.json": `{"devDependencies": {"vue": "^3.0.0"}}`},
			want:  domain.TypeVue,
		},
		{
			name:  "angular",
			files: map[string]string{"package.json": `{"dependencies": {"@angular/core": "^17.0.0"}}`},
			want:  domain.TypeAngular,
		},
		{
			name:  "plain node",
			files: map[string]string{"package.json": `{"dependencies": {"express": "^4.0.0"}}`},
			want:  domain.TypeNode,
		},
		{
			name:  "python via requirements",
			files: map[string]string{"requirements.txt": "requests==2.31.0\n"},
			want:  domain.TypePython,
		},
		{
			name:  "python via pyproject",
			files: map[string]string{"pyproject.toml": "[project]\nname = \"x\"\n"},
			want:  domain.TypePython,
		},
		{
			name:  "rust",
			files: map[string]string{"Cargo.toml": "[package]\nname = \"x\"\n"},
			want:  domain.TypeRust,
		},
		{
			name:  "go",
			files: map[string]string{"go.mod": "module example.com/x\n\ngo 1.22\n"},
			want:  domain.TypeGo,
		},
		{
			name:  "empty directory",
			files: nil,
			want:  domain.TypeUnknown,
		},
		{
			name: "broken package.json falls through",
			files: map[string]string{
				"package.json": "{not json",
				"Cargo.toml":   "[package]\nname = \"x\"\n",
			},
			want: domain.TypeRust,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, root, name, content)
			}
			if got := DetectType(root); got != tt.want {
				t.Errorf("DetectType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDependencies_NPM(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{
		"dependencies": {"react": "^18.0.0", "axios": "^1.0.0"},
		"devDependencies": {"jest": "^29.0.0", "axios": "^1.0.0"}
	}`)

	got := Dependencies(root, domain.TypeReact)
	want := []string{"axios", "jest", "react"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dependencies = %v, want %v", got, want)
	}
}

func TestDependencies_Python(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "requirements.txt", `
# web stack
requests==2.31.0
flask>=2.0
pytest ; python_version > "3.8"
-r other.txt
`)
	writeFile(t, root, "pyproject.toml", `
[project]
name = "demo"
dependencies = ["click>=8.0", "requests"]
`)

	got := Dependencies(root, domain.TypePython)
	want := []string{"click", "flask", "pytest", "requests"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dependencies = %v, want %v", got, want)
	}
}

func TestDependencies_Cargo(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Cargo.toml", `
[package]
name = "demo"

[dependencies]
serde = { version = "1.0", features = ["derive"] }
tokio = "1.0"

[dev-dependencies]
criterion = "0.5"
`)

	got := Dependencies(root, domain.TypeRust)
	want := []string{"criterion", "serde", "tokio"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dependencies = %v, want %v", got, want)
	}
}

func TestDependencies_GoSkipsIndirect(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", `module example.com/demo

go 1.22

require (
	github.com/google/uuid v1.6.0
	go.uber.org/zap v1.27.0
)

require go.uber.org/multierr v1.10.0 // indirect
`)

	got := Dependencies(root, domain.TypeGo)
	want := []string{"github.com/google/uuid", "go.uber.org/zap"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dependencies = %v, want %v", got, want)
	}
}

func TestDependencies_MissingManifest(t *testing.T) {
	root := t.TempDir()
	if got := Dependencies(root, domain.TypeReact); len(got) != 0 {
		t.Errorf("Dependencies on empty dir = %v, want empty", got)
	}
}

func TestSnapshot_FilesWalk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/App.js", "export default {}\n")
	writeFile(t, root, "src/components/Button.jsx", "export const B = 1\n")
	writeFile(t, root, "components/Nav.js", "export const N = 1\n")
	writeFile(t, root, "src/node_modules/pkg/index.js", "ignored\n")
	writeFile(t, root, "docs/readme.md", "not a source dir\n")

	snap := newScanner(t, root).Snapshot(context.Background())

	want := []string{"components/Nav.js", "src/App.js", "src/components/Button.jsx"}
	if !reflect.DeepEqual(snap.Files, want) {
		t.Errorf("Files = %v, want %v", snap.Files, want)
	}
}

func TestSnapshot_Notes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.js", `
// TODO: wire the profile endpoint
/* FIXME: drop the legacy fallback */
const x = 1;
`)
	writeFile(t, root, "src/setup.py", "# NOTE: pin the CI image\n")
	writeFile(t, root, "src/data.csv", "# TODO: not a scanned extension\n")

	snap := newScanner(t, root).Snapshot(context.Background())

	want := []domain.Note{
		{Location: "src/app.js", Text: "wire the profile endpoint"},
		{Location: "src/app.js", Text: "drop the legacy fallback"},
		{Location: "src/setup.py", Text: "pin the CI image"},
	}
	if !reflect.DeepEqual(snap.Notes, want) {
		t.Errorf("Notes = %v, want %v", snap.Notes, want)
	}
}

func TestSnapshot_EmptyProject(t *testing.T) {
	snap := newScanner(t, t.TempDir()).Snapshot(context.Background())

	if snap.Type != domain.TypeUnknown {
		t.Errorf("Type = %q, want unknown", snap.Type)
	}
	if len(snap.Files) != 0 || len(snap.Dependencies) != 0 || len(snap.Notes) != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}
