package gpx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/amrheing/mytools-gps-suite/internal/domain"
)

// ErrNoContent marks a well-formed document with no extractable elements.
var ErrNoContent = errors.New("no extractable content found")

const timestampLayout = "2006-01-02T15:04:05Z"

// Extractor writes the waypoint, track and route subtrees of one document
// into standalone GPX files under a dedicated output directory.
type Extractor struct {
	doc        *Document
	sourceName string
	outputDir  string
}

func NewExtractor(doc *Document, sourceName, outputDir string) *Extractor {
	return &Extractor{doc: doc, sourceName: sourceName, outputDir: outputDir}
}

// ExtractWaypoints writes every waypoint into a single "<base>_waypoints.gpx"
// file. It returns the written filename and the waypoint count; a document
// without waypoints yields an empty filename and no file.
func (e *Extractor) ExtractWaypoints(base string) (string, int, error) {
	waypoints := e.doc.FindAll("wpt")
	if len(waypoints) == 0 {
		return "", 0, nil
	}

	filename := fmt.Sprintf("%s_waypoints.gpx", base)
	var b strings.Builder
	b.WriteString(e.header("waypoints"))
	for _, wpt := range waypoints {
		b.WriteString("  ")
		b.WriteString(e.doc.SerializeNode(wpt, "  "))
		b.WriteString("\n")
	}
	b.WriteString("\n</gpx>")

	if err := e.writeFile(filename, b.String()); err != nil {
		return "", 0, err
	}
	return filename, len(waypoints), nil
}

// ExtractTracks writes each track into its own file, named after the track's
// own name element when present and a zero-padded position otherwise.
func (e *Extractor) ExtractTracks(base string) ([]string, error) {
	return e.extractNamed(base, "trk", "track")
}

// ExtractRoutes writes each route into its own file, mirroring ExtractTracks.
func (e *Extractor) ExtractRoutes(base string) ([]string, error) {
	return e.extractNamed(base, "rte", "route")
}

func (e *Extractor) extractNamed(base, tag, label string) ([]string, error) {
	elements := e.doc.FindAll(tag)
	if len(elements) == 0 {
		return nil, nil
	}

	var files []string
	for i, elem := range elements {
		name := fmt.Sprintf("%s_%02d", label, i+1)
		if nameElem := elem.Find("name"); nameElem != nil && nameElem.TrimmedText() != "" {
			name = nameElem.TrimmedText()
		}
		safeName := SanitizeName(name)
		if safeName == "" {
			safeName = fmt.Sprintf("%s_%02d", label, i+1)
		}

		filename := fmt.Sprintf("%s_%s_%02d_%s.gpx", base, label, i+1, safeName)

		var b strings.Builder
		b.WriteString(e.header(label))
		b.WriteString("  ")
		b.WriteString(e.doc.SerializeNode(elem, "  "))
		b.WriteString("\n\n</gpx>")

		if err := e.writeFile(filename, b.String()); err != nil {
			return nil, err
		}
		files = append(files, filename)
	}
	return files, nil
}

// header regenerates the document preamble: XML declaration, the original
// root attributes verbatim, and a metadata block with the time child replaced
// by the current UTC timestamp and any bounds child dropped.
func (e *Extractor) header(contentType string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString("\n<gpx")
	for _, attr := range e.doc.Root.Attrs {
		fmt.Fprintf(&b, ` %s="%s"`, e.doc.scope.attrName(attr.Name), escape(attr.Value))
	}
	b.WriteString(">\n")

	now := time.Now().UTC().Format(timestampLayout)
	b.WriteString("  <metadata>\n")
	if metadata := e.doc.Root.Child("metadata"); metadata != nil {
		for _, child := range metadata.Children {
			switch child.Name.Local {
			case "time":
				fmt.Fprintf(&b, "    <time>%s</time>\n", now)
			case "bounds":
				// recalculated downstream if anyone needs it
			default:
				b.WriteString("    ")
				b.WriteString(e.doc.SerializeNode(child, "  "))
				b.WriteString("\n")
			}
		}
	} else {
		fmt.Fprintf(&b, "    <time>%s</time>\n", now)
		fmt.Fprintf(&b, "    <desc>Extracted %s from %s</desc>\n", contentType, escape(e.sourceName))
	}
	b.WriteString("  </metadata>\n\n")

	return b.String()
}

// WriteSummary records what the run produced as a plain-text file and
// returns the summary filename.
func (e *Extractor) WriteSummary(meta domain.Metadata, waypointFile string, waypointCount int, trackFiles, routeFiles []string) (string, error) {
	var b strings.Builder
	b.WriteString("GPX Extraction Summary\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")
	fmt.Fprintf(&b, "Source file: %s\n", e.sourceName)
	fmt.Fprintf(&b, "Extraction date: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))

	if meta.Creator != "" {
		fmt.Fprintf(&b, "Creator: %s\n", meta.Creator)
	}
	if meta.TrailType != "" {
		fmt.Fprintf(&b, "Trail type: %s\n", meta.TrailType)
	}
	if meta.GeographicRegion != "" {
		fmt.Fprintf(&b, "Region: %s\n", meta.GeographicRegion)
	}
	if len(meta.SectionMarkers) > 0 {
		fmt.Fprintf(&b, "Sections: %s\n", strings.Join(meta.SectionMarkers, ", "))
	}
	if meta.BuildDate != "" {
		fmt.Fprintf(&b, "Build date: %s\n", meta.BuildDate)
	}
	if meta.LatestModification != "" {
		fmt.Fprintf(&b, "Latest modification: %s\n", meta.LatestModification)
	}
	if meta.ContentHash != "" {
		fmt.Fprintf(&b, "Content hash: %s\n", meta.ContentHash)
	}
	fmt.Fprintf(&b, "Suggested name: %s\n", meta.SuggestedName)

	b.WriteString("\n")
	if waypointFile != "" {
		fmt.Fprintf(&b, "Waypoints file: %s (%d waypoints)\n", waypointFile, waypointCount)
	} else {
		b.WriteString("Waypoints: None found\n")
	}

	fmt.Fprintf(&b, "\nTracks extracted: %d\n", len(trackFiles))
	for _, file := range trackFiles {
		fmt.Fprintf(&b, "  - %s\n", file)
	}

	fmt.Fprintf(&b, "\nRoutes extracted: %d\n", len(routeFiles))
	for _, file := range routeFiles {
		fmt.Fprintf(&b, "  - %s\n", file)
	}

	const summaryName = "summary.txt"
	if err := e.writeFile(summaryName, b.String()); err != nil {
		return "", err
	}
	return summaryName, nil
}

func (e *Extractor) writeFile(filename, content string) error {
	path := filepath.Join(e.outputDir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return nil
}
