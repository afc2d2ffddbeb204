package http

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/amrheing/mytools-gps-suite/internal/config"
	"github.com/amrheing/mytools-gps-suite/internal/domain"
	"github.com/amrheing/mytools-gps-suite/internal/gpx"
	"github.com/amrheing/mytools-gps-suite/internal/jobs"
	"github.com/amrheing/mytools-gps-suite/internal/registry"
	"github.com/amrheing/mytools-gps-suite/internal/report"
	"github.com/amrheing/mytools-gps-suite/internal/services"
	"github.com/amrheing/mytools-gps-suite/internal/storage"
)

type API struct {
	cfg      config.Config
	logger   *zap.Logger
	files    *storage.FileManager
	registry *registry.Registry
	runner   *jobs.Runner
	share    *services.ShareService
	report   *report.ReportService
}

func NewAPI(cfg config.Config, logger *zap.Logger, fm *storage.FileManager, reg *registry.Registry, runner *jobs.Runner, share *services.ShareService, rep *report.ReportService) *API {
	return &API{cfg: cfg, logger: logger, files: fm, registry: reg, runner: runner, share: share, report: rep}
}

func registerRoutes(r *gin.Engine, api *API) {
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", api.handleHealth)

		apiGroup.GET("/files", api.handleListFiles)
		apiGroup.POST("/upload", api.handleUpload)
		apiGroup.POST("/files/select", api.handleSelectFile)
		apiGroup.POST("/files/description", api.handleUpdateDescription)
		apiGroup.POST("/files/delete", api.handleDeleteFile)

		apiGroup.GET("/jobs/:id", api.handleJobStatus)
		apiGroup.GET("/jobs/:id/result", api.handleJobResult)
		apiGroup.GET("/results/:id", api.handleDirectResult)
		apiGroup.POST("/results/:directory/share", api.handleCreateShare)
		apiGroup.GET("/outputs/:directory", api.handleOutputInfo)
	}

	r.GET("/download/:directory/:filename", api.handleDownloadFile)
	r.POST("/download/zip", api.handleDownloadZip)
	r.GET("/download/all/:directory", api.handleDownloadAll)
	r.GET("/download/report/:directory", api.handleDownloadReport)
	r.GET("/shared/:directory", api.handleShared)
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) handleListFiles(c *gin.Context) {
	records, err := a.registry.List()
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (a *API) handleUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondMessage(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("file too large, max allowed size is %dMB", a.cfg.MaxUploadBytes/(1024*1024)))
			return
		}
		respondMessage(c, http.StatusBadRequest, "no file selected")
		return
	}

	upload, err := fileHeader.Open()
	if err != nil {
		respondMessage(c, http.StatusInternalServerError, "unable to read uploaded file")
		return
	}
	defer upload.Close()

	path, err := a.files.SaveUpload(upload, fileHeader.Filename)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidExtension):
			respondMessage(c, http.StatusBadRequest, "please upload a valid GPX file")
		case errors.Is(err, storage.ErrFileTooLarge):
			respondMessage(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("file too large, max allowed size is %dMB", a.cfg.MaxUploadBytes/(1024*1024)))
		default:
			respondError(c, http.StatusInternalServerError, err)
		}
		return
	}

	saved, err := os.Open(path)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	doc, err := gpx.Load(saved)
	saved.Close()
	if err != nil {
		os.Remove(path)
		respondMessage(c, http.StatusBadRequest, "error processing GPX file, please check the file format")
		return
	}

	meta := gpx.Analyze(doc)

	// Filenames carrying an explicit TET identifier pin the identity,
	// whatever the embedded names suggest.
	stem := strings.TrimSuffix(fileHeader.Filename, filepath.Ext(fileHeader.Filename))
	if short := gpx.ShortName(stem); short != stem {
		meta.CleanName = short
	}

	decision, err := a.registry.Register(meta, fileHeader.Filename, path)
	if err != nil {
		os.Remove(path)
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	if !decision.Accepted {
		os.Remove(path)
		existing := decision.Existing
		alreadyProcessed := existing.OutputDirectory != ""
		if alreadyProcessed {
			if _, dirErr := a.files.ResolveOutputDir(existing.OutputDirectory); dirErr != nil {
				alreadyProcessed = false
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"duplicate":        true,
			"uniqueId":         existing.UniqueID,
			"alreadyProcessed": alreadyProcessed,
			"message":          fmt.Sprintf("%s is already in the archive", existing.CleanName),
		})
		return
	}

	jobID := a.runner.Submit(path, fileHeader.Filename, decision.Record.UniqueID)

	response := gin.H{
		"jobId":    jobID,
		"uniqueId": decision.Record.UniqueID,
		"status":   domain.JobStatePending,
	}
	if decision.Superseded != nil {
		response["superseded"] = decision.Superseded.UniqueID
		response["message"] = fmt.Sprintf("updated %s with newer version", decision.Record.CleanName)
	}
	c.JSON(http.StatusAccepted, response)
}

func (a *API) handleSelectFile(c *gin.Context) {
	var payload struct {
		UniqueID string `json:"uniqueId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	record, err := a.registry.Get(payload.UniqueID)
	if err != nil {
		respondNotFound(c, err, "file not found")
		return
	}

	if _, err := os.Stat(record.FilePath); err != nil {
		respondMessage(c, http.StatusNotFound, "file no longer exists")
		return
	}

	// Already-processed uploads are served from their stored output instead
	// of re-running the pipeline.
	if record.OutputDirectory != "" {
		if _, err := a.files.ResolveOutputDir(record.OutputDirectory); err == nil {
			c.JSON(http.StatusOK, gin.H{
				"alreadyProcessed": true,
				"uniqueId":         record.UniqueID,
				"message":          "file already processed, showing existing archive",
			})
			return
		}
	}

	jobID := a.runner.Submit(record.FilePath, record.OriginalFilename, record.UniqueID)
	c.JSON(http.StatusOK, gin.H{
		"jobId":  jobID,
		"status": domain.JobStatePending,
	})
}

func (a *API) handleUpdateDescription(c *gin.Context) {
	var payload struct {
		UniqueID    string `json:"uniqueId" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	if err := a.registry.UpdateDescription(payload.UniqueID, strings.TrimSpace(payload.Description)); err != nil {
		respondNotFound(c, err, "file not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *API) handleDeleteFile(c *gin.Context) {
	var payload struct {
		UniqueID string `json:"uniqueId" binding:"required"`
		Token    string `json:"token"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	if payload.Token != a.cfg.DeleteToken {
		respondMessage(c, http.StatusForbidden, "invalid delete token")
		return
	}

	if err := a.registry.Delete(payload.UniqueID); err != nil {
		respondNotFound(c, err, "file not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "file deleted"})
}

func (a *API) handleJobStatus(c *gin.Context) {
	job, err := a.runner.Status(c.Param("id"))
	if err != nil {
		respondMessage(c, http.StatusNotFound, "job not found")
		return
	}
	c.JSON(http.StatusOK, job)
}

func (a *API) handleJobResult(c *gin.Context) {
	result, err := a.runner.ConsumeResult(c.Param("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotCompleted) {
			respondMessage(c, http.StatusConflict, "job not completed")
			return
		}
		respondMessage(c, http.StatusNotFound, "job not found")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *API) handleDirectResult(c *gin.Context) {
	record, err := a.registry.Get(c.Param("id"))
	if err != nil {
		respondNotFound(c, err, "file not found")
		return
	}

	if record.OutputDirectory == "" {
		respondMessage(c, http.StatusNotFound, "processed archive not found, re-processing required")
		return
	}

	files, err := a.files.ListOutputs(record.OutputDirectory)
	if err != nil {
		respondMessage(c, http.StatusNotFound, "processed archive not found, re-processing required")
		return
	}

	result := domain.JobResult{
		ExtractedFiles:   files,
		OriginalFilename: record.OriginalFilename,
		OutputDirectory:  record.OutputDirectory,
		Summary:          a.files.ReadSummary(record.OutputDirectory),
		Metadata:         recordMetadata(record),
	}
	c.JSON(http.StatusOK, result)
}

func (a *API) handleOutputInfo(c *gin.Context) {
	files, err := a.files.ListOutputs(c.Param("directory"))
	if err != nil {
		respondMessage(c, http.StatusNotFound, "directory not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (a *API) handleDownloadFile(c *gin.Context) {
	path, err := a.files.ResolveOutputFile(c.Param("directory"), c.Param("filename"))
	if err != nil {
		respondMessage(c, http.StatusNotFound, "file not found")
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

func (a *API) handleDownloadZip(c *gin.Context) {
	var payload struct {
		Directory string   `json:"directory" binding:"required"`
		Files     []string `json:"files" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if len(payload.Files) == 0 {
		respondMessage(c, http.StatusBadRequest, "no files selected")
		return
	}

	if _, err := a.files.ResolveOutputDir(payload.Directory); err != nil {
		respondMessage(c, http.StatusNotFound, "directory not found")
		return
	}

	zipName := fmt.Sprintf("selected_gpx_files_%s.zip", time.Now().Format("20060102_150405"))
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", zipName))

	if err := a.files.ZipFiles(payload.Directory, payload.Files, c.Writer); err != nil {
		a.logger.Warn("stream zip", zap.Error(err))
	}
}

func (a *API) handleDownloadAll(c *gin.Context) {
	directory := c.Param("directory")
	if _, err := a.files.ResolveOutputDir(directory); err != nil {
		respondMessage(c, http.StatusNotFound, "directory not found")
		return
	}

	zipName := fmt.Sprintf("all_extracted_files_%s.zip", time.Now().Format("20060102_150405"))
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", zipName))

	if err := a.files.ZipAll(directory, c.Writer); err != nil {
		a.logger.Warn("stream zip", zap.Error(err))
	}
}

func (a *API) handleDownloadReport(c *gin.Context) {
	directory := c.Param("directory")
	files, err := a.files.ListOutputs(directory)
	if err != nil {
		respondMessage(c, http.StatusNotFound, "directory not found")
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", directory+"_report.pdf"))

	if err := a.report.Generate(c.Writer, directory, files, a.files.ReadSummary(directory)); err != nil {
		a.logger.Warn("stream report", zap.Error(err))
	}
}

func (a *API) handleCreateShare(c *gin.Context) {
	directory := c.Param("directory")
	if _, err := a.files.ResolveOutputDir(directory); err != nil {
		respondMessage(c, http.StatusNotFound, "directory not found")
		return
	}

	url, expiresAt, err := a.share.Generate(directory)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expiresAt": expiresAt.UTC()})
}

func (a *API) handleShared(c *gin.Context) {
	directory := c.Param("directory")
	expiresParam := c.Query("exp")
	signature := c.Query("sig")

	if expiresParam == "" || signature == "" {
		respondMessage(c, http.StatusBadRequest, "missing signature")
		return
	}

	expires, err := strconv.ParseInt(expiresParam, 10, 64)
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid expiration")
		return
	}
	if expires < time.Now().Unix() {
		respondMessage(c, http.StatusGone, "link expired")
		return
	}

	if !a.share.Validate(c.Request.URL.Path, expires, signature) {
		respondMessage(c, http.StatusForbidden, "invalid signature")
		return
	}

	if _, err := a.files.ResolveOutputDir(directory); err != nil {
		respondMessage(c, http.StatusNotFound, "directory not found")
		return
	}

	zipName := fmt.Sprintf("%s.zip", directory)
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", zipName))

	if err := a.files.ZipAll(directory, c.Writer); err != nil {
		a.logger.Warn("stream shared zip", zap.Error(err))
	}
}

func recordMetadata(record *domain.UploadRecord) domain.Metadata {
	meta := domain.Metadata{
		Creator:            record.Creator,
		BuildDate:          record.BuildDate,
		TrailType:          record.TrailType,
		GeographicRegion:   record.GeographicRegion,
		LatestModification: record.LatestModification,
		ContentHash:        record.ContentHash,
		SuggestedName:      record.SuggestedName,
		CleanName:          record.CleanName,
		WaypointCount:      record.WaypointCount,
		TrackCount:         record.TrackCount,
		RouteCount:         record.RouteCount,
	}
	if record.SectionMarkers != "" {
		meta.SectionMarkers = strings.Split(record.SectionMarkers, ",")
	}
	return meta
}

func respondNotFound(c *gin.Context, err error, message string) {
	if errors.Is(err, registry.ErrNotFound) {
		respondMessage(c, http.StatusNotFound, message)
		return
	}
	respondError(c, http.StatusInternalServerError, err)
}

func respondError(c *gin.Context, status int, err error) {
	respondMessage(c, status, err.Error())
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
