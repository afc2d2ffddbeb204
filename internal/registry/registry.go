// Package registry persists upload records and decides whether a new upload
// supersedes a stored one sharing the same derived identity.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/amrheing/mytools-gps-suite/internal/domain"
)

// ErrNotFound is returned when no record exists for an identifier.
var ErrNotFound = errors.New("upload record not found")

// Registry maps derived identifiers to stored uploads. Identity is the
// heuristic clean name, so the supersede policy is last-write-wins on an
// approximation: colliding clean names merge unrelated uploads, divergent
// derivations fork the same trail. That trade-off is accepted.
type Registry struct {
	db     *gorm.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// Decision is the outcome of admitting one upload.
type Decision struct {
	Accepted   bool
	Record     *domain.UploadRecord
	Existing   *domain.UploadRecord
	Superseded *domain.UploadRecord
}

func NewRegistry(dataDir string, logger *zap.Logger) (*Registry, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "registry.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}

	if err := db.AutoMigrate(&domain.UploadRecord{}); err != nil {
		return nil, fmt.Errorf("migrate registry: %w", err)
	}

	return &Registry{db: db, logger: logger}, nil
}

// Register admits a candidate upload. An existing record with the same clean
// name is superseded (its file and record deleted) when the candidate's build
// date is absent, unparseable, or strictly later; otherwise the candidate is
// rejected and the existing record returned so its output can be served.
func (r *Registry) Register(meta domain.Metadata, originalFilename, filePath string) (Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	var existing domain.UploadRecord
	err := r.db.Where("clean_name = ?", meta.CleanName).First(&existing).Error
	switch {
	case err == nil:
		if !isNewerBuild(existing.BuildDate, meta.BuildDate) {
			return Decision{Accepted: false, Existing: &existing}, nil
		}
		if removeErr := os.Remove(existing.FilePath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			r.logger.Warn("remove superseded file",
				zap.String("path", existing.FilePath),
				zap.Error(removeErr))
		}
		if delErr := r.db.Delete(&domain.UploadRecord{}, "unique_id = ?", existing.UniqueID).Error; delErr != nil {
			return Decision{}, fmt.Errorf("delete superseded record: %w", delErr)
		}
		record, createErr := r.createLocked(meta, originalFilename, filePath, now)
		if createErr != nil {
			return Decision{}, createErr
		}
		r.logger.Info("superseded upload",
			zap.String("cleanName", meta.CleanName),
			zap.String("old", existing.UniqueID),
			zap.String("new", record.UniqueID))
		return Decision{Accepted: true, Record: record, Superseded: &existing}, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		record, createErr := r.createLocked(meta, originalFilename, filePath, now)
		if createErr != nil {
			return Decision{}, createErr
		}
		return Decision{Accepted: true, Record: record}, nil
	default:
		return Decision{}, fmt.Errorf("lookup upload record: %w", err)
	}
}

func (r *Registry) createLocked(meta domain.Metadata, originalFilename, filePath string, now time.Time) (*domain.UploadRecord, error) {
	record := &domain.UploadRecord{
		UniqueID:           UniqueID(meta, now),
		CleanName:          meta.CleanName,
		OriginalFilename:   originalFilename,
		FilePath:           filePath,
		DisplayName:        displayName(meta),
		UploadDate:         now,
		BuildDate:          meta.BuildDate,
		Creator:            meta.Creator,
		TrailType:          meta.TrailType,
		GeographicRegion:   meta.GeographicRegion,
		SectionMarkers:     strings.Join(meta.SectionMarkers, ","),
		LatestModification: meta.LatestModification,
		ContentHash:        meta.ContentHash,
		SuggestedName:      meta.SuggestedName,
		WaypointCount:      meta.WaypointCount,
		TrackCount:         meta.TrackCount,
		RouteCount:         meta.RouteCount,
	}

	if err := r.db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("create upload record: %w", err)
	}
	return record, nil
}

// UniqueID derives the registry key: clean name plus the build date as
// YYYYMMDD, falling back to the upload timestamp.
func UniqueID(meta domain.Metadata, uploadTime time.Time) string {
	datePart := compactDate(meta.BuildDate)
	if datePart == "" {
		datePart = uploadTime.Format("20060102_150405")
	}
	return meta.CleanName + "_" + datePart
}

func (r *Registry) Get(uniqueID string) (*domain.UploadRecord, error) {
	var record domain.UploadRecord
	if err := r.db.First(&record, "unique_id = ?", uniqueID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get upload record: %w", err)
	}
	return &record, nil
}

// List returns records whose stored file still exists, newest upload first.
func (r *Registry) List() ([]domain.UploadRecord, error) {
	var records []domain.UploadRecord
	if err := r.db.Order("upload_date desc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list upload records: %w", err)
	}

	available := records[:0]
	for _, record := range records {
		if _, err := os.Stat(record.FilePath); err == nil {
			available = append(available, record)
		}
	}
	return available, nil
}

func (r *Registry) UpdateDescription(uniqueID, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := r.db.Model(&domain.UploadRecord{}).
		Where("unique_id = ?", uniqueID).
		Update("description", description)
	if result.Error != nil {
		return fmt.Errorf("update description: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetOutputDirectory persists where a completed run left its files, so later
// selections of the same identifier skip reprocessing.
func (r *Registry) SetOutputDirectory(uniqueID, directory string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := r.db.Model(&domain.UploadRecord{}).
		Where("unique_id = ?", uniqueID).
		Update("output_directory", directory)
	if result.Error != nil {
		return fmt.Errorf("set output directory: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes both the stored file and the record.
func (r *Registry) Delete(uniqueID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.Get(uniqueID)
	if err != nil {
		return err
	}

	if err := os.Remove(record.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stored file: %w", err)
	}
	if err := r.db.Delete(&domain.UploadRecord{}, "unique_id = ?", uniqueID).Error; err != nil {
		return fmt.Errorf("delete upload record: %w", err)
	}
	return nil
}

// isNewerBuild treats the candidate as newer when either date is absent or
// unparseable; only a provably not-later build date rejects it.
func isNewerBuild(existingDate, newDate string) bool {
	if existingDate == "" || newDate == "" {
		return true
	}

	existing, err := parseBuildDate(existingDate)
	if err != nil {
		return true
	}
	candidate, err := parseBuildDate(newDate)
	if err != nil {
		return true
	}
	return candidate.After(existing)
}

var buildDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseBuildDate(value string) (time.Time, error) {
	for _, layout := range buildDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized build date %q", value)
}

func compactDate(buildDate string) string {
	if len(buildDate) < 10 {
		return ""
	}
	if _, err := parseBuildDate(buildDate[:10]); err != nil {
		return ""
	}
	return strings.ReplaceAll(buildDate[:10], "-", "")
}

func displayName(meta domain.Metadata) string {
	if len(meta.BuildDate) >= 10 {
		if _, err := parseBuildDate(meta.BuildDate[:10]); err == nil {
			return fmt.Sprintf("%s (%s)", meta.CleanName, meta.BuildDate[:10])
		}
	}
	if meta.BuildDate != "" {
		return fmt.Sprintf("%s (%s)", meta.CleanName, meta.BuildDate)
	}
	return meta.CleanName
}
