package storage

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/amrheing/mytools-gps-suite/internal/domain"
)

var (
	// ErrInvalidExtension marks uploads that are not .gpx files.
	ErrInvalidExtension = errors.New("only .gpx files are accepted")
	// ErrFileTooLarge marks uploads exceeding the configured cap.
	ErrFileTooLarge = errors.New("file exceeds maximum upload size")
	// ErrNotFound marks a referenced directory or file that does not exist.
	ErrNotFound = errors.New("file or directory not found")
)

// FileManager owns the on-disk layout: uploads/ for stored source files and
// processed/ for per-run output directories.
type FileManager struct {
	baseDir        string
	uploadDir      string
	processedDir   string
	maxUploadBytes int64
}

func NewFileManager(baseDir string, maxUploadBytes int64) (*FileManager, error) {
	fm := &FileManager{
		baseDir:        baseDir,
		uploadDir:      filepath.Join(baseDir, "uploads"),
		processedDir:   filepath.Join(baseDir, "processed"),
		maxUploadBytes: maxUploadBytes,
	}

	for _, dir := range []string{fm.baseDir, fm.uploadDir, fm.processedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	return fm, nil
}

// SaveUpload streams an uploaded file to disk under a timestamped name,
// enforcing the extension check and the size cap before any parsing happens.
func (fm *FileManager) SaveUpload(file io.Reader, filename string) (string, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".gpx") {
		return "", ErrInvalidExtension
	}

	safeName := sanitizeFilename(filepath.Base(filename))
	storedName := fmt.Sprintf("%s_%s", time.Now().Format("20060102_150405"), safeName)
	path := filepath.Join(fm.uploadDir, storedName)

	if err := fm.writeWithLimit(path, file); err != nil {
		return "", err
	}
	return path, nil
}

func (fm *FileManager) writeWithLimit(path string, file io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}

	cleanup := func(err error) error {
		out.Close()
		os.Remove(path)
		return err
	}

	total := int64(0)
	buf := make([]byte, 32*1024)
	for {
		n, err := file.Read(buf)
		if n > 0 {
			total += int64(n)
			if fm.maxUploadBytes > 0 && total > fm.maxUploadBytes {
				return cleanup(ErrFileTooLarge)
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				return cleanup(fmt.Errorf("write upload file: %w", werr))
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return cleanup(fmt.Errorf("read upload content: %w", err))
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close upload file: %w", err)
	}
	return nil
}

// CreateOutputDir makes a fresh per-run directory named after the run's
// suggested name, and returns its bare name. Two runs landing in the same
// second get distinct directories: an existing name is retried with a
// numeric suffix instead of being reused.
func (fm *FileManager) CreateOutputDir(suggestedName string) (string, error) {
	base := fmt.Sprintf("%s_%s_extracted", time.Now().Format("20060102_150405"), suggestedName)

	name := base
	for attempt := 2; ; attempt++ {
		err := os.Mkdir(filepath.Join(fm.processedDir, name), 0o755)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("create output dir: %w", err)
		}
		name = fmt.Sprintf("%s_%d", base, attempt)
	}
}

// ResolveOutputDir maps a directory reference from a client to its absolute
// path, rejecting traversal and unknown directories.
func (fm *FileManager) ResolveOutputDir(directory string) (string, error) {
	if directory == "" || directory != filepath.Base(directory) || strings.HasPrefix(directory, ".") {
		return "", ErrNotFound
	}

	path := filepath.Join(fm.processedDir, directory)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return "", ErrNotFound
	}
	return path, nil
}

// ResolveOutputFile maps directory+filename to an existing file path.
func (fm *FileManager) ResolveOutputFile(directory, filename string) (string, error) {
	dir, err := fm.ResolveOutputDir(directory)
	if err != nil {
		return "", err
	}
	if filename != filepath.Base(filename) {
		return "", ErrNotFound
	}

	path := filepath.Join(dir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", ErrNotFound
	}
	return path, nil
}

// ListOutputs enumerates the GPX files of a processed directory, classifying
// each by the kind its name encodes.
func (fm *FileManager) ListOutputs(directory string) ([]domain.ExtractedFile, error) {
	dir, err := fm.ResolveOutputDir(directory)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	var files []domain.ExtractedFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".gpx") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, domain.ExtractedFile{
			Name: entry.Name(),
			Size: info.Size(),
			Type: classifyOutput(entry.Name()),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Type != files[j].Type {
			return files[i].Type < files[j].Type
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// ReadSummary returns the run's summary text, or empty when none exists.
func (fm *FileManager) ReadSummary(directory string) string {
	dir, err := fm.ResolveOutputDir(directory)
	if err != nil {
		return ""
	}
	content, err := os.ReadFile(filepath.Join(dir, "summary.txt"))
	if err != nil {
		return ""
	}
	return string(content)
}

// ZipFiles streams a ZIP of the named files from a processed directory,
// silently skipping names that do not exist.
func (fm *FileManager) ZipFiles(directory string, names []string, w io.Writer) error {
	dir, err := fm.ResolveOutputDir(directory)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	for _, name := range names {
		if name != filepath.Base(name) {
			continue
		}
		path := filepath.Join(dir, name)
		if err := addToZip(zw, path, name); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

// ZipAll streams a ZIP of every file in a processed directory.
func (fm *FileManager) ZipAll(directory string, w io.Writer) error {
	dir, err := fm.ResolveOutputDir(directory)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read output dir: %w", err)
	}

	zw := zip.NewWriter(w)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := addToZip(zw, filepath.Join(dir, entry.Name()), entry.Name()); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

func addToZip(zw *zip.Writer, path, name string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	entry, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", name, err)
	}
	if _, err := io.Copy(entry, in); err != nil {
		return fmt.Errorf("write zip entry %s: %w", name, err)
	}
	return nil
}

func classifyOutput(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "waypoint"):
		return "waypoints"
	case strings.Contains(lower, "route"):
		return "route"
	default:
		return "track"
	}
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// ProcessedDir exposes the processed/ root for the job pipeline.
func (fm *FileManager) ProcessedDir() string {
	return fm.processedDir
}
