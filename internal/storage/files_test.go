package storage

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestManager(t *testing.T, maxBytes int64) *FileManager {
	t.Helper()

	fm, err := NewFileManager(t.TempDir(), maxBytes)
	if err != nil {
		t.Fatalf("new file manager: %v", err)
	}
	return fm
}

func makeOutputDir(t *testing.T, fm *FileManager, files map[string]string) string {
	t.Helper()

	dir, err := fm.CreateOutputDir("test_run")
	if err != nil {
		t.Fatalf("create output dir: %v", err)
	}
	for name, content := range files {
		path := filepath.Join(fm.ProcessedDir(), dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestSaveUploadRejectsExtension(t *testing.T) {
	fm := newTestManager(t, 1<<20)

	if _, err := fm.SaveUpload(strings.NewReader("data"), "ride.kml"); err != ErrInvalidExtension {
		t.Fatalf("expected ErrInvalidExtension, got %v", err)
	}
	if _, err := fm.SaveUpload(strings.NewReader("data"), "ride"); err != ErrInvalidExtension {
		t.Fatalf("expected ErrInvalidExtension for no extension, got %v", err)
	}
}

func TestSaveUploadAcceptsCaseInsensitiveExtension(t *testing.T) {
	fm := newTestManager(t, 1<<20)

	path, err := fm.SaveUpload(strings.NewReader("<gpx/>"), "Ride.GPX")
	if err != nil {
		t.Fatalf("save upload: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(content) != "<gpx/>" {
		t.Fatalf("stored content mismatch: %q", content)
	}
}

func TestSaveUploadEnforcesSizeCap(t *testing.T) {
	fm := newTestManager(t, 16)

	_, err := fm.SaveUpload(strings.NewReader(strings.Repeat("x", 64)), "big.gpx")
	if err != ErrFileTooLarge {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}

	entries, readErr := os.ReadDir(filepath.Join(fm.baseDir, "uploads"))
	if readErr != nil {
		t.Fatalf("read upload dir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Fatal("partial upload should be removed")
	}
}

func TestCreateOutputDirNeverReusesDirectory(t *testing.T) {
	fm := newTestManager(t, 1<<20)

	seen := map[string]struct{}{}
	for i := 0; i < 3; i++ {
		name, err := fm.CreateOutputDir("same_run")
		if err != nil {
			t.Fatalf("create output dir: %v", err)
		}
		if _, dup := seen[name]; dup {
			t.Fatalf("directory name %q handed out twice", name)
		}
		seen[name] = struct{}{}

		info, err := os.Stat(filepath.Join(fm.ProcessedDir(), name))
		if err != nil || !info.IsDir() {
			t.Fatalf("directory %q not created: %v", name, err)
		}
	}
}

func TestResolveOutputDirRejectsTraversal(t *testing.T) {
	fm := newTestManager(t, 1<<20)
	dir := makeOutputDir(t, fm, map[string]string{"a.gpx": "<gpx/>"})

	for _, bad := range []string{"", "..", "../" + dir, ".hidden", "no_such_dir"} {
		if _, err := fm.ResolveOutputDir(bad); err != ErrNotFound {
			t.Fatalf("expected ErrNotFound for %q, got %v", bad, err)
		}
	}
	if _, err := fm.ResolveOutputDir(dir); err != nil {
		t.Fatalf("valid dir rejected: %v", err)
	}
	if _, err := fm.ResolveOutputFile(dir, "../a.gpx"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for traversal filename, got %v", err)
	}
}

func TestListOutputsClassifiesAndSorts(t *testing.T) {
	fm := newTestManager(t, 1<<20)
	dir := makeOutputDir(t, fm, map[string]string{
		"run_track_01_stage.gpx": "<gpx/>",
		"run_waypoints.gpx":      "<gpx/>",
		"run_route_01_alt.gpx":   "<gpx/>",
		"summary.txt":            "summary",
	})

	files, err := fm.ListOutputs(dir)
	if err != nil {
		t.Fatalf("list outputs: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 gpx files, got %d", len(files))
	}

	types := []string{files[0].Type, files[1].Type, files[2].Type}
	want := []string{"route", "track", "waypoints"}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected type order %v, got %v", want, types)
		}
	}
}

func TestZipFilesSkipsMissing(t *testing.T) {
	fm := newTestManager(t, 1<<20)
	dir := makeOutputDir(t, fm, map[string]string{"a.gpx": "<gpx>a</gpx>"})

	var buf bytes.Buffer
	if err := fm.ZipFiles(dir, []string{"a.gpx", "missing.gpx", "../evil.gpx"}, &buf); err != nil {
		t.Fatalf("zip files: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "a.gpx" {
		t.Fatalf("expected only a.gpx in archive, got %v", zr.File)
	}
}

func TestZipAllIncludesSummary(t *testing.T) {
	fm := newTestManager(t, 1<<20)
	dir := makeOutputDir(t, fm, map[string]string{
		"a.gpx":       "<gpx>a</gpx>",
		"summary.txt": "summary",
	})

	var buf bytes.Buffer
	if err := fm.ZipAll(dir, &buf); err != nil {
		t.Fatalf("zip all: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(zr.File))
	}
}

func TestReadSummary(t *testing.T) {
	fm := newTestManager(t, 1<<20)
	dir := makeOutputDir(t, fm, map[string]string{"summary.txt": "GPX Extraction Summary"})

	if got := fm.ReadSummary(dir); got != "GPX Extraction Summary" {
		t.Fatalf("unexpected summary %q", got)
	}
	if got := fm.ReadSummary("no_such_dir"); got != "" {
		t.Fatalf("expected empty summary for unknown dir, got %q", got)
	}
}
