package gpx

import (
	"strings"
	"testing"
)

func TestAnalyzeTrailDetection(t *testing.T) {
	meta := Analyze(loadSample(t))

	if meta.TrailType != "TET_Germany" {
		t.Fatalf("expected trail type TET_Germany, got %q", meta.TrailType)
	}
	if meta.GeographicRegion != "Germany" {
		t.Fatalf("expected region Germany, got %q", meta.GeographicRegion)
	}
	if len(meta.SectionMarkers) != 1 || meta.SectionMarkers[0] != "S03" {
		t.Fatalf("expected section markers [S03], got %v", meta.SectionMarkers)
	}
	if !strings.HasPrefix(meta.SuggestedName, "TET_Germany_S03_v") {
		t.Fatalf("expected suggested name to start with TET_Germany_S03_v, got %q", meta.SuggestedName)
	}
	if meta.CleanName != "TET_Germany_S03" {
		t.Fatalf("expected clean name TET_Germany_S03, got %q", meta.CleanName)
	}
}

func TestAnalyzeCounts(t *testing.T) {
	meta := Analyze(loadSample(t))

	if meta.WaypointCount != 2 || meta.TrackCount != 1 || meta.RouteCount != 1 {
		t.Fatalf("unexpected counts: %d waypoints, %d tracks, %d routes",
			meta.WaypointCount, meta.TrackCount, meta.RouteCount)
	}
}

func TestAnalyzeBuildDateAndCreator(t *testing.T) {
	meta := Analyze(loadSample(t))

	if meta.BuildDate != "2024-10-01T08:30:00Z" {
		t.Fatalf("unexpected build date %q", meta.BuildDate)
	}
	if meta.Creator != "BaseCamp" {
		t.Fatalf("unexpected creator %q", meta.Creator)
	}
	if meta.Name != "TET Germany" {
		t.Fatalf("unexpected document name %q", meta.Name)
	}
}

func TestAnalyzeLatestModification(t *testing.T) {
	meta := Analyze(loadSample(t))

	// waypoint 2024-10-01T11:00 beats waypoint 2024-09-30 and the trackpoint
	if meta.LatestModification != "2024-10-01" {
		t.Fatalf("unexpected latest modification %q", meta.LatestModification)
	}
	if !strings.HasSuffix(meta.SuggestedName, "_v20241001") {
		t.Fatalf("expected version suffix v20241001 in %q", meta.SuggestedName)
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	first := Analyze(loadSample(t))
	second := Analyze(loadSample(t))

	if first.ContentHash == "" || len(first.ContentHash) != 12 {
		t.Fatalf("unexpected content hash %q", first.ContentHash)
	}
	if first.ContentHash != second.ContentHash {
		t.Fatalf("content hash not stable: %q vs %q", first.ContentHash, second.ContentHash)
	}
	if first.WaypointCount != second.WaypointCount || first.SuggestedName != second.SuggestedName {
		t.Fatal("analysis not idempotent")
	}
}

func TestAnalyzeSectionRange(t *testing.T) {
	doc, err := Load(strings.NewReader(`<gpx creator="c">
		<trk><name>TET_D-01 S01</name></trk>
		<trk><name>TET_D-02 S07</name></trk>
		<trk><name>TET_D-03 S03</name></trk>
	</gpx>`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	meta := Analyze(doc)
	if len(meta.SectionMarkers) != 3 {
		t.Fatalf("expected 3 section markers, got %v", meta.SectionMarkers)
	}
	if !strings.Contains(meta.CleanName, "S01-S07") {
		t.Fatalf("expected inclusive range S01-S07 in clean name, got %q", meta.CleanName)
	}
}

func TestAnalyzeRegionFallback(t *testing.T) {
	doc, err := Load(strings.NewReader(`<gpx creator="c"><trk><name>Sweden day ride</name></trk></gpx>`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	meta := Analyze(doc)
	if meta.TrailType != "TET_Sweden" || meta.GeographicRegion != "Sweden" {
		t.Fatalf("expected Sweden fallback, got %q / %q", meta.TrailType, meta.GeographicRegion)
	}
}

func TestAnalyzeGenericTETMarker(t *testing.T) {
	doc, err := Load(strings.NewReader(`<gpx creator="c"><trk><name>TET scouting loop</name></trk></gpx>`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	meta := Analyze(doc)
	if meta.TrailType != "TET_Unknown" {
		t.Fatalf("expected TET_Unknown marker, got %q", meta.TrailType)
	}
	if meta.GeographicRegion != "" {
		t.Fatalf("expected empty region, got %q", meta.GeographicRegion)
	}
}

func TestAnalyzeNameFallbacks(t *testing.T) {
	doc, err := Load(strings.NewReader(`<gpx creator="c">
		<metadata><name>My Weekend Ride!</name></metadata>
		<trk><name>morning loop</name></trk>
	</gpx>`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	meta := Analyze(doc)
	if meta.CleanName != "My_Weekend_Ride" {
		t.Fatalf("expected sanitized document name, got %q", meta.CleanName)
	}

	doc, err = Load(strings.NewReader(`<gpx creator="c"><trk><name>morning loop</name></trk></gpx>`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	meta = Analyze(doc)
	if meta.CleanName != "gpx_extract" {
		t.Fatalf("expected generic fallback, got %q", meta.CleanName)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"TET_D-01_20241001_S03", "TET_D-01_20241001_S03"},
		{"Trail (v2) läuft!", "Trail_v2_luft"},
		{"a b  c ", "a_b__c"},
		{"***", ""},
	}

	for _, tc := range cases {
		if got := SanitizeName(tc.in); got != tc.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestShortName(t *testing.T) {
	got := ShortName("TET_Sweden_v20200619_track_01_TET_D-01_20241001_S01")
	if got != "TET_D-01_20241001" {
		t.Fatalf("unexpected short name %q", got)
	}

	if got := ShortName("random_ride"); got != "random_ride" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}
