// Command gpxsplit extracts the waypoints, tracks and routes of a GPX file
// into separate files, without the web frontend.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/amrheing/mytools-gps-suite/internal/gpx"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("gpxsplit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	outDir := fs.String("out", "", "output directory (default: <input>_extracted next to the file)")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [-out dir] <input.gpx>\n\n", fs.Name())
		fmt.Fprintln(stderr, "Extracts waypoints, tracks and routes from a GPX file into separate files.")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "error: exactly one GPX file argument is required")
		fs.Usage()
		return 2
	}
	inputPath := fs.Arg(0)

	if !strings.EqualFold(filepath.Ext(inputPath), ".gpx") {
		fmt.Fprintf(stderr, "error: %s is not a GPX file\n", inputPath)
		return 1
	}

	file, err := os.Open(inputPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	doc, err := gpx.Load(file)
	file.Close()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	meta := gpx.Analyze(doc)
	if meta.WaypointCount == 0 && meta.TrackCount == 0 && meta.RouteCount == 0 {
		fmt.Fprintln(stderr, "error: no extractable content found")
		return 1
	}

	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	dir := *outDir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(inputPath), stem+"_extracted")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Extracting components from %s\n", filepath.Base(inputPath))
	fmt.Fprintf(stdout, "Output directory: %s\n", dir)

	extractor := gpx.NewExtractor(doc, filepath.Base(inputPath), dir)

	waypointFile, waypointCount, err := extractor.ExtractWaypoints(meta.SuggestedName)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if waypointFile != "" {
		fmt.Fprintf(stdout, "Extracted %d waypoints to %s\n", waypointCount, waypointFile)
	} else {
		fmt.Fprintln(stdout, "No waypoints found")
	}

	trackFiles, err := extractor.ExtractTracks(meta.SuggestedName)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	for _, name := range trackFiles {
		fmt.Fprintf(stdout, "Extracted track to %s\n", name)
	}

	routeFiles, err := extractor.ExtractRoutes(meta.SuggestedName)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	for _, name := range routeFiles {
		fmt.Fprintf(stdout, "Extracted route to %s\n", name)
	}

	summaryFile, err := extractor.WriteSummary(meta, waypointFile, waypointCount, trackFiles, routeFiles)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Created extraction summary: %s\n", summaryFile)

	return 0
}
