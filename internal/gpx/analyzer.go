package gpx

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/amrheing/mytools-gps-suite/internal/domain"
)

// trailCode maps a TET country code to its trail and region labels.
type trailCode struct {
	Label  string
	Region string
}

var trailCodes = map[string]trailCode{
	"A":   {Label: "TET_Austria", Region: "Austria"},
	"B":   {Label: "TET_Belgium", Region: "Belgium"},
	"BG":  {Label: "TET_Bulgaria", Region: "Bulgaria"},
	"CH":  {Label: "TET_Switzerland", Region: "Switzerland"},
	"CZ":  {Label: "TET_Czechia", Region: "Czechia"},
	"D":   {Label: "TET_Germany", Region: "Germany"},
	"DK":  {Label: "TET_Denmark", Region: "Denmark"},
	"E":   {Label: "TET_Spain", Region: "Spain"},
	"EST": {Label: "TET_Estonia", Region: "Estonia"},
	"F":   {Label: "TET_France", Region: "France"},
	"FIN": {Label: "TET_Finland", Region: "Finland"},
	"GB":  {Label: "TET_United_Kingdom", Region: "United Kingdom"},
	"GR":  {Label: "TET_Greece", Region: "Greece"},
	"H":   {Label: "TET_Hungary", Region: "Hungary"},
	"I":   {Label: "TET_Italy", Region: "Italy"},
	"N":   {Label: "TET_Norway", Region: "Norway"},
	"NL":  {Label: "TET_Netherlands", Region: "Netherlands"},
	"P":   {Label: "TET_Portugal", Region: "Portugal"},
	"PL":  {Label: "TET_Poland", Region: "Poland"},
	"RO":  {Label: "TET_Romania", Region: "Romania"},
	"S":   {Label: "TET_Sweden", Region: "Sweden"},
}

var (
	trailPattern     = regexp.MustCompile(`TET_([A-Z]{1,3})-\d+`)
	sectionPattern   = regexp.MustCompile(`-?S(\d{1,3})\b`)
	isoDatePattern   = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	shortNamePattern = regexp.MustCompile(`(TET_[A-Z]{1,3}-\d+_\d{8})`)
)

const fallbackBaseName = "gpx_extract"

// Analyze derives a metadata record from a parsed document. It is a pure
// function of the tree: the same document always yields the same record,
// content hash included.
func Analyze(doc *Document) domain.Metadata {
	meta := domain.Metadata{
		Creator:       doc.Root.Attr("creator"),
		Version:       doc.Root.Attr("version"),
		WaypointCount: len(doc.FindAll("wpt")),
		TrackCount:    len(doc.FindAll("trk")),
		RouteCount:    len(doc.FindAll("rte")),
	}

	if metadata := doc.Root.Child("metadata"); metadata != nil {
		if name := metadata.Child("name"); name != nil {
			meta.Name = name.TrimmedText()
		}
		if buildTime := metadata.Child("time"); buildTime != nil {
			meta.BuildDate = buildTime.TrimmedText()
		}
	}

	names := collectNames(doc)
	meta.TrailType, meta.GeographicRegion = detectTrail(names)

	marker := ""
	meta.SectionMarkers, marker = detectSections(names)
	meta.LatestModification = latestModification(doc)
	meta.ContentHash = contentHash(doc, meta)

	base := meta.TrailType
	if base == "" {
		base = SanitizeName(meta.Name)
	}
	if base == "" {
		base = fallbackBaseName
	}

	parts := []string{base}
	if marker != "" {
		parts = append(parts, marker)
	}
	meta.CleanName = strings.Join(parts, "_")

	if version := versionSuffix(meta.LatestModification, meta.BuildDate); version != "" {
		parts = append(parts, version)
	}
	meta.SuggestedName = strings.Join(parts, "_")

	return meta
}

// ShortName reduces an upload's filename stem to its embedded TET identifier
// (e.g. "TET_Sweden_v20200619_track_01_TET_D-01_20241001_S01" becomes
// "TET_D-01_20241001"). Unmatched stems pass through unchanged.
func ShortName(stem string) string {
	if match := shortNamePattern.FindString(stem); match != "" {
		return match
	}
	return stem
}

// SanitizeName strips everything but alphanumerics, spaces, hyphens and
// underscores, then maps spaces to underscores.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return strings.ReplaceAll(strings.TrimRight(b.String(), " "), " ", "_")
}

// collectNames concatenates every name string found under waypoints and
// tracks; the heuristics below only ever look at this blob.
func collectNames(doc *Document) string {
	var parts []string
	for _, kind := range []string{"wpt", "trk"} {
		for _, elem := range doc.FindAll(kind) {
			for _, name := range elem.FindAll("name") {
				if text := name.TrimmedText(); text != "" {
					parts = append(parts, text)
				}
			}
		}
	}
	return strings.Join(parts, " ")
}

func detectTrail(names string) (trailType, region string) {
	if match := trailPattern.FindStringSubmatch(names); match != nil {
		if code, ok := trailCodes[match[1]]; ok {
			return code.Label, code.Region
		}
	}

	codes := make([]string, 0, len(trailCodes))
	for code := range trailCodes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		entry := trailCodes[code]
		if strings.Contains(names, entry.Region) {
			return entry.Label, entry.Region
		}
	}

	if strings.Contains(names, "TET") {
		return "TET_Unknown", ""
	}
	return "", ""
}

// detectSections reduces numeric section markers to a sorted distinct list
// and a single marker string: one value renders as "S03", several as the
// inclusive range "S01-S07".
func detectSections(names string) (markers []string, marker string) {
	seen := map[int]struct{}{}
	var sections []int
	for _, match := range sectionPattern.FindAllStringSubmatch(names, -1) {
		num, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		if _, dup := seen[num]; dup {
			continue
		}
		seen[num] = struct{}{}
		sections = append(sections, num)
	}

	if len(sections) == 0 {
		return nil, ""
	}
	sort.Ints(sections)

	for _, num := range sections {
		markers = append(markers, fmt.Sprintf("S%02d", num))
	}
	if len(sections) == 1 {
		return markers, markers[0]
	}
	return markers, fmt.Sprintf("S%02d-S%02d", sections[0], sections[len(sections)-1])
}

// latestModification picks the lexicographically maximal ISO date embedded in
// waypoint and trackpoint time fields; for same-format ISO strings that is
// also the chronologically latest.
func latestModification(doc *Document) string {
	latest := ""
	for _, kind := range []string{"wpt", "trkpt"} {
		for _, elem := range doc.FindAll(kind) {
			timeElem := elem.Child("time")
			if timeElem == nil {
				continue
			}
			if date := isoDatePattern.FindString(timeElem.Text); date > latest {
				latest = date
			}
		}
	}
	return latest
}

// contentHash is a cheap structural-identity signal, not a cryptographic
// guarantee: creator, bounding box and element counts, truncated.
func contentHash(doc *Document, meta domain.Metadata) string {
	var b strings.Builder
	b.WriteString(meta.Creator)
	b.WriteString("|")
	if metadata := doc.Root.Child("metadata"); metadata != nil {
		if bounds := metadata.Child("bounds"); bounds != nil {
			for _, attr := range bounds.Attrs {
				b.WriteString(attr.Name.Local)
				b.WriteString("=")
				b.WriteString(attr.Value)
				b.WriteString(";")
			}
		}
	}
	fmt.Fprintf(&b, "|%d|%d|%d", meta.WaypointCount, meta.TrackCount, meta.RouteCount)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:12]
}

func versionSuffix(latestModification, buildDate string) string {
	date := latestModification
	if date == "" {
		date = isoDatePattern.FindString(buildDate)
	}
	if date == "" {
		return ""
	}
	return "v" + strings.ReplaceAll(date, "-", "")
}
