package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/redhatinsights/envconfig/internal/properties"
	"github.com/redhatinsights/envconfig/internal/source"
)

// countingProvider records how often the source files were requested.
type countingProvider struct {
	root  string
	err   error
	calls int
}

func (p *countingProvider) PrepareSourceFiles() (string, error) {
	p.calls++
	return p.root, p.err
}

// writeTree creates files below root from slash separated relative paths.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
}

// snapshot reads every file directly inside dir.
func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read %s: %v", dir, err)
	}
	files := make(map[string]string)
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			t.Fatalf("failed to read %s: %v", entry.Name(), err)
		}
		files[entry.Name()] = string(data)
	}
	return files
}

func readValues(t *testing.T, path string) map[string]string {
	t.Helper()
	doc, err := properties.Load(path)
	if err != nil {
		t.Fatalf("failed to load %s: %v", path, err)
	}
	values := make(map[string]string)
	for _, key := range doc.Keys() {
		values[key], _ = doc.Get(key)
	}
	return values
}

func TestReconcileEnvironment_Example(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "example1", "conf")

	r := New(&source.Dir{Path: filepath.Join("testdata", "example1")})
	result, err := r.ReconcileEnvironment("alpha", configDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := os.Stat(configDir)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected %s to be created as a directory: %v", configDir, err)
	}

	expected := map[string]string{
		"conf1.properties": "z.y.x = test1\r\n" +
			"z.y = test1\r\n" +
			"z = test1\r\n" +
			"\r\n" +
			"a.b = test\r\n" +
			"a.b.c = test\r\n" +
			"a.b.c.d = test\r\n",
		"conf2.properties": "# conf2 defaults\nhost = localhost\nport = 8080\n",
	}
	if diff := cmp.Diff(expected, snapshot(t, configDir)); diff != "" {
		t.Errorf("destination mismatch (-want +got):\n%s", diff)
	}

	if len(result.Seeded) != 2 || len(result.Merged) != 1 || result.Overridden != 3 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestReconcileEnvironment(t *testing.T) {
	tests := []struct {
		name        string
		source      map[string]string
		destination map[string]string
		environment string
		expected    map[string]map[string]string
	}{
		{
			name: "override wins over fresh default",
			source: map[string]string{
				"defaults/conf1.properties": "a=1\n",
				"alpha/conf1.properties":    "a=2\nb=3\n",
			},
			environment: "alpha",
			expected: map[string]map[string]string{
				"conf1.properties": {"a": "2", "b": "3"},
			},
		},
		{
			name: "unrelated destination file is untouched",
			source: map[string]string{
				"defaults/conf1.properties": "a=1\n",
				"alpha/conf1.properties":    "a=2\n",
			},
			destination: map[string]string{
				"conf2.properties": "x=old\ny=keep\n",
			},
			environment: "alpha",
			expected: map[string]map[string]string{
				"conf1.properties": {"a": "2"},
				"conf2.properties": {"x": "old", "y": "keep"},
			},
		},
		{
			name: "keys missing from override are kept",
			source: map[string]string{
				"alpha/app.properties": "x=new\nz=added\n",
			},
			destination: map[string]string{
				"app.properties": "x=old\ny=keep\n",
			},
			environment: "alpha",
			expected: map[string]map[string]string{
				"app.properties": {"x": "new", "y": "keep", "z": "added"},
			},
		},
		{
			name: "override creates missing destination file",
			source: map[string]string{
				"alpha/new.properties": "k=v\n",
			},
			environment: "alpha",
			expected: map[string]map[string]string{
				"new.properties": {"k": "v"},
			},
		},
		{
			name: "other environments are ignored",
			source: map[string]string{
				"defaults/conf1.properties": "a=1\n",
				"beta/conf1.properties":     "a=beta\n",
				"beta/trash.properties":     "t=1\n",
			},
			environment: "alpha",
			expected: map[string]map[string]string{
				"conf1.properties": {"a": "1"},
			},
		},
		{
			name: "directories are matched at any depth",
			source: map[string]string{
				"bundle/web/defaults/web.properties":    "port=80\nhost=web\n",
				"bundle/web/alpha/web.properties":       "port=8080\n",
				"bundle/db/conf/defaults/db.properties": "url=jdbc:none\n",
				"bundle/db/conf/alpha/db.properties":    "url=jdbc:alpha\n",
			},
			environment: "alpha",
			expected: map[string]map[string]string{
				"web.properties": {"port": "8080", "host": "web"},
				"db.properties":  {"url": "jdbc:alpha"},
			},
		},
		{
			name: "nested directories of a match are not read",
			source: map[string]string{
				"defaults/top.properties":        "a=1\n",
				"defaults/nested/low.properties": "b=2\n",
			},
			environment: "alpha",
			expected: map[string]map[string]string{
				"top.properties": {"a": "1"},
			},
		},
		{
			name: "same name from several directories, last visited wins",
			source: map[string]string{
				"a/defaults/dup.properties": "from=a\n",
				"b/defaults/dup.properties": "from=b\n",
			},
			environment: "alpha",
			expected: map[string]map[string]string{
				"dup.properties": {"from": "b"},
			},
		},
		{
			name: "no matching directories",
			source: map[string]string{
				"readme.txt": "nothing here",
			},
			destination: map[string]string{
				"keep.properties": "k=v\n",
			},
			environment: "alpha",
			expected: map[string]map[string]string{
				"keep.properties": {"k": "v"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srcDir := t.TempDir()
			destDir := t.TempDir()
			writeTree(t, srcDir, tt.source)
			writeTree(t, destDir, tt.destination)

			r := New(&source.Dir{Path: srcDir})
			if _, err := r.ReconcileEnvironment(tt.environment, destDir); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got := make(map[string]map[string]string)
			for name := range snapshot(t, destDir) {
				got[name] = readValues(t, filepath.Join(destDir, name))
			}
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("destination mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReconcileEnvironment_DefaultsReplaceExisting(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	writeTree(t, srcDir, map[string]string{
		"defaults/logging.xml":     "<logging level=\"info\"/>\n",
		"defaults/app.properties":  "# shipped\r\nname = app\r\n",
		"alpha/other.properties":   "o=1\n",
		"defaults/server.conf":     "listen 80\n",
		"defaults/sub/ignored.xml": "<x/>",
	})
	writeTree(t, destDir, map[string]string{
		"logging.xml":                "<logging level=\"trace\"/>\n",
		"app.properties":             "name = local\nextra = 1\n",
		"server.conf/old/stale.conf": "listen 8080\n",
	})

	r := New(&source.Dir{Path: srcDir})
	if _, err := r.ReconcileEnvironment("alpha", destDir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := map[string]string{
		"logging.xml":      "<logging level=\"info\"/>\n",
		"app.properties":   "# shipped\r\nname = app\r\n",
		"server.conf":      "listen 80\n",
		"other.properties": "o = 1\n",
	}
	if diff := cmp.Diff(expected, snapshot(t, destDir)); diff != "" {
		t.Errorf("destination mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileEnvironment_PreservesLayout(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	writeTree(t, srcDir, map[string]string{
		"alpha/app.properties": "port=9090\nmode=alpha\n",
	})
	writeTree(t, destDir, map[string]string{
		"app.properties": "# Application\n\nhost:localhost\n! legacy\nport=80\n",
	})

	r := New(&source.Dir{Path: srcDir})
	if _, err := r.ReconcileEnvironment("alpha", destDir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "# Application\n\nhost:localhost\n! legacy\nport = 9090\nmode = alpha\n"
	if diff := cmp.Diff(expected, snapshot(t, destDir)["app.properties"]); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileEnvironment_Idempotent(t *testing.T) {
	srcDir := t.TempDir()
	destDir := filepath.Join(t.TempDir(), "etc", "app")
	writeTree(t, srcDir, map[string]string{
		"defaults/conf1.properties": "# defaults\na=1\nc=3\n",
		"defaults/plain.conf":       "raw\n",
		"alpha/conf1.properties":    "a=2\nb=3\n",
		"alpha/extra.properties":    "e=1\n",
	})

	r := New(&source.Dir{Path: srcDir})
	if _, err := r.ReconcileEnvironment("alpha", destDir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := snapshot(t, destDir)

	if _, err := r.ReconcileEnvironment("alpha", destDir); err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}
	second := snapshot(t, destDir)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second run changed the destination (-first +second):\n%s", diff)
	}
}

func TestReconcileEnvironment_InvalidArgument(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		destination string
	}{
		{name: "empty environment", environment: "", destination: "conf"},
		{name: "blank environment", environment: " \t", destination: "conf"},
		{name: "empty destination", environment: "alpha", destination: ""},
		{name: "blank destination", environment: "alpha", destination: "  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workDir := t.TempDir()
			destination := tt.destination
			if destination == "conf" {
				destination = filepath.Join(workDir, destination)
			}

			p := &countingProvider{root: t.TempDir()}
			_, err := New(p).ReconcileEnvironment(tt.environment, destination)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
			if p.calls != 0 {
				t.Errorf("source files must not be prepared, got %d calls", p.calls)
			}
			entries, err := os.ReadDir(workDir)
			if err != nil {
				t.Fatalf("failed to read work dir: %v", err)
			}
			if len(entries) != 0 {
				t.Errorf("expected no filesystem changes, found %d entries", len(entries))
			}
		})
	}
}

func TestReconcileEnvironment_InvalidState(t *testing.T) {
	destination := filepath.Join(t.TempDir(), "conf")
	if err := os.WriteFile(destination, []byte("a file"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	p := &countingProvider{root: t.TempDir()}
	_, err := New(p).ReconcileEnvironment("alpha", destination)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if p.calls != 0 {
		t.Errorf("source files must not be prepared, got %d calls", p.calls)
	}
}

func TestReconcileEnvironment_SourceFailure(t *testing.T) {
	destination := filepath.Join(t.TempDir(), "conf")
	p := &countingProvider{err: errors.New("bundle not found")}

	_, err := New(p).ReconcileEnvironment("alpha", destination)
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if _, err := os.Stat(destination); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("destination must not be created when the source is unavailable")
	}
}

func TestReconcileEnvironment_MalformedOverride(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	writeTree(t, srcDir, map[string]string{
		"defaults/app.properties": "a=1\n",
		"alpha/app.properties":    "a=\\uXYZW\n",
	})

	_, err := New(&source.Dir{Path: srcDir}).ReconcileEnvironment("alpha", destDir)
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if !errors.Is(err, properties.ErrMalformedEscape) {
		t.Errorf("expected the parse failure to be wrapped, got %v", err)
	}

	if got := snapshot(t, destDir)["app.properties"]; got != "a=1\n" {
		t.Errorf("seeded default must stay written, got %q", got)
	}
}

func TestReconcileEnvironment_MergeLogAttributes(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	srcDir := t.TempDir()
	destDir := t.TempDir()
	writeTree(t, srcDir, map[string]string{
		"alpha/app.properties": "a=1\nb=2\n",
	})

	if _, err := New(&source.Dir{Path: srcDir}).ReconcileEnvironment("alpha", destDir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dest := filepath.Join(destDir, "app.properties")
	var found bool
	for _, record := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		if err := json.Unmarshal(record, &entry); err != nil {
			t.Fatalf("failed to decode log record %q: %v", record, err)
		}
		if entry["msg"] != "file updated" {
			continue
		}
		found = true
		want := map[string]any{"file": dest, "overridden": float64(2)}
		got := map[string]any{"file": entry["file"], "overridden": entry["overridden"]}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("log attributes mismatch (-want +got):\n%s", diff)
		}
	}
	if !found {
		t.Errorf("no \"file updated\" record in %s", buf.String())
	}
}
