package domain

import "time"

// Metadata is derived from a parsed GPX document. It is computed once per
// load and never written back into the source file.
type Metadata struct {
	Name               string   `json:"name,omitempty"`
	Creator            string   `json:"creator,omitempty"`
	Version            string   `json:"version,omitempty"`
	BuildDate          string   `json:"buildDate,omitempty"`
	WaypointCount      int      `json:"waypointCount"`
	TrackCount         int      `json:"trackCount"`
	RouteCount         int      `json:"routeCount"`
	TrailType          string   `json:"trailType,omitempty"`
	GeographicRegion   string   `json:"geographicRegion,omitempty"`
	SectionMarkers     []string `json:"sectionMarkers,omitempty"`
	LatestModification string   `json:"latestModification,omitempty"`
	ContentHash        string   `json:"contentHash,omitempty"`
	SuggestedName      string   `json:"suggestedName"`
	CleanName          string   `json:"cleanName"`
}

// UploadRecord associates a derived unique identifier with a stored upload.
// At most one record exists per UniqueID; a newer build sharing the same
// CleanName supersedes and deletes the older one.
type UploadRecord struct {
	UniqueID           string    `gorm:"primaryKey" json:"uniqueId"`
	CleanName          string    `gorm:"index" json:"cleanName"`
	OriginalFilename   string    `json:"originalFilename"`
	FilePath           string    `json:"filePath"`
	DisplayName        string    `json:"displayName"`
	Description        string    `json:"description"`
	OutputDirectory    string    `json:"outputDirectory,omitempty"`
	UploadDate         time.Time `json:"uploadDate"`
	BuildDate          string    `json:"buildDate,omitempty"`
	Creator            string    `json:"creator,omitempty"`
	TrailType          string    `json:"trailType,omitempty"`
	GeographicRegion   string    `json:"geographicRegion,omitempty"`
	SectionMarkers     string    `json:"sectionMarkers,omitempty"`
	LatestModification string    `json:"latestModification,omitempty"`
	ContentHash        string    `json:"contentHash,omitempty"`
	SuggestedName      string    `json:"suggestedName,omitempty"`
	WaypointCount      int       `json:"waypointCount"`
	TrackCount         int       `json:"trackCount"`
	RouteCount         int       `json:"routeCount"`
}

func (UploadRecord) TableName() string {
	return "upload_records"
}

// ExtractedFile describes one output file of an extraction run.
type ExtractedFile struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// JobResult is the payload carried by a completed job.
type JobResult struct {
	ExtractedFiles   []ExtractedFile `json:"extractedFiles"`
	OriginalFilename string          `json:"originalFilename"`
	OutputDirectory  string          `json:"outputDirectory"`
	Summary          string          `json:"summary"`
	Metadata         Metadata        `json:"metadata"`
}

const (
	JobStatePending    = "pending"
	JobStateProcessing = "processing"
	JobStateCompleted  = "completed"
	JobStateFailed     = "failed"
)

// Job tracks one extraction run. Jobs live only in process memory and are
// pruned after their result is consumed or after the retention window.
type Job struct {
	ID        string     `json:"id"`
	State     string     `json:"state"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message"`
	StartTime time.Time  `json:"startTime"`
	Error     string     `json:"error,omitempty"`
	Result    *JobResult `json:"result,omitempty"`
}
