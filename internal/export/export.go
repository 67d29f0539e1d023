package export

import (
	"archive/zip"
	"cmp"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/planbiir/gpace/internal/analysis"
	"github.com/planbiir/gpace/internal/track"
)

// DefaultActivity is the workout type analyzed when none is configured
const DefaultActivity = "HKWorkoutActivityTypeRunning"

// ErrNoExportXML is returned when an archive holds no health export document
var ErrNoExportXML = errors.New("no export XML found in archive")

// Options configures how an export is read
type Options struct {
	Activity string // workoutActivityType to keep, DefaultActivity when empty
	Logger   *zerolog.Logger
}

// Archive is an opened Apple Health export.zip
type Archive struct {
	files   []*zip.File
	byName  map[string]*zip.File
	xmlName string
	closer  io.Closer

	activity string
	logger   zerolog.Logger
}

// Open opens the export archive at path. The caller must Close it once
// every workout has been processed.
func Open(path string, opts Options) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	a, err := newArchive(&rc.Reader, opts)
	if err != nil {
		_ = rc.Close()
		return nil, err
	}
	a.closer = rc
	return a, nil
}

// NewArchive reads an export held by r. Close is a no-op for such archives.
// An archive without export document still serves RouteFiles; its
// Workouts fail with ErrNoExportXML.
func NewArchive(r io.ReaderAt, size int64, opts Options) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return newArchive(zr, opts)
}

func newArchive(zr *zip.Reader, opts Options) (*Archive, error) {
	a := &Archive{
		files:    zr.File,
		byName:   make(map[string]*zip.File, len(zr.File)),
		activity: cmp.Or(opts.Activity, DefaultActivity),
		logger:   zerolog.Nop(),
	}
	if opts.Logger != nil {
		a.logger = *opts.Logger
	}
	for _, f := range zr.File {
		a.byName[f.Name] = f
	}

	a.xmlName, _ = findExportXML(zr.File)
	return a, nil
}

// Close releases the underlying archive
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// XMLName is the entry holding the export document, empty when the
// archive has none
func (a *Archive) XMLName() string {
	return a.xmlName
}

// RouteFiles returns a source for every .gpx entry of the archive, in
// archive order, whether or not a workout references it
func (a *Archive) RouteFiles() []*track.Source {
	var out []*track.Source
	for _, f := range a.files {
		if strings.HasSuffix(strings.ToLower(f.Name), ".gpx") {
			out = append(out, track.NewSource(f.Name, f.Open))
		}
	}
	return out
}

// Workouts returns the workouts of the configured activity that have at
// least one route file, in document order. The export document is read
// when iteration starts; route files are opened only when their points
// are consumed.
func (a *Archive) Workouts() iter.Seq2[analysis.Workout, error] {
	return func(yield func(analysis.Workout, error) bool) {
		if a.xmlName == "" {
			yield(analysis.Workout{}, ErrNoExportXML)
			return
		}

		workouts, routes, err := a.collect()
		if err != nil {
			yield(analysis.Workout{}, err)
			return
		}

		matched := matchRoutes(workouts, routes)
		a.logger.Debug().
			Str("xml", a.xmlName).
			Int("workouts", len(workouts)).
			Int("routes", len(routes)).
			Int("matched", len(matched)).
			Msg("Export indexed")

		for _, w := range workouts {
			refs, ok := matched[w.id]
			if !ok {
				continue
			}

			workout := analysis.Workout{ID: w.id, Start: w.start, End: w.end}
			for _, ref := range refs {
				f, ok := a.resolve(ref)
				if !ok {
					a.logger.Debug().Str("workout", w.id).Str("path", ref).Msg("Route file not found in archive")
					continue
				}
				workout.Routes = append(workout.Routes, track.NewSource(f.Name, f.Open))
			}

			if !yield(workout, nil) {
				return
			}
		}
	}
}

// workoutRef is a workout element of the export document
type workoutRef struct {
	id         string
	start, end time.Time
}

// routeRef is a WorkoutRoute element and the route files it references
type routeRef struct {
	start, end time.Time
	paths      []string
}

func (a *Archive) collect() ([]workoutRef, []routeRef, error) {
	f := a.byName[a.xmlName]
	rc, err := f.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", a.xmlName, err)
	}
	workouts, routes, decodeErr := decodeExport(rc, a.activity)
	_ = rc.Close()

	if decodeErr != nil {
		a.logger.Warn().Err(decodeErr).Str("xml", a.xmlName).Msg("Export document is not well formed")
	}

	if len(routes) == 0 {
		routes, err = a.scanRoutes()
		if err != nil {
			return nil, nil, err
		}
		if len(routes) > 0 {
			a.logger.Info().Int("routes", len(routes)).Msg("Routes recovered by text scan")
		}
	}

	return workouts, routes, nil
}

// decodeExport streams the export document once, keeping workouts of the
// given activity and every WorkoutRoute with at least one file reference.
// What was gathered before a syntax error is returned with the error.
func decodeExport(r io.Reader, activity string) ([]workoutRef, []routeRef, error) {
	decoder := xml.NewDecoder(r)
	decoder.Strict = false

	var (
		workouts []workoutRef
		routes   []routeRef
		current  *routeRef
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return workouts, routes, err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "Workout":
				if attr(el.Attr, "workoutActivityType") != activity {
					continue
				}
				workouts = append(workouts, workoutRef{
					id:    fmt.Sprintf("wk_%d", len(workouts)),
					start: parseTime(attr(el.Attr, "startDate", "creationDate", "start")),
					end:   parseTime(attr(el.Attr, "endDate", "end")),
				})
			case "WorkoutRoute":
				current = &routeRef{
					start: parseTime(attr(el.Attr, "startDate", "creationDate")),
					end:   parseTime(attr(el.Attr, "endDate")),
				}
			case "FileReference":
				if current == nil {
					continue
				}
				var ref struct {
					Path string `xml:"path,attr"`
					Text string `xml:",chardata"`
				}
				if err := decoder.DecodeElement(&ref, &el); err != nil {
					return workouts, routes, err
				}
				if p := cmp.Or(ref.Path, strings.TrimSpace(ref.Text)); p != "" {
					current.paths = append(current.paths, p)
				}
			}
		case xml.EndElement:
			if el.Name.Local == "WorkoutRoute" && current != nil {
				if len(current.paths) > 0 {
					routes = append(routes, *current)
				}
				current = nil
			}
		}
	}

	return workouts, routes, nil
}

var (
	routeBlock  = regexp.MustCompile(`(?s)<WorkoutRoute([^>]*)>(.*?)</WorkoutRoute>`)
	fileRefPath = regexp.MustCompile(`<FileReference[^>]*path="([^"]+)"`)
	textAttrs   = regexp.MustCompile(`(\w+)="([^"]+)"`)
)

// scanRoutes finds WorkoutRoute blocks in the raw text of the export
// document. It recovers routes from documents the decoder rejects.
func (a *Archive) scanRoutes() ([]routeRef, error) {
	f := a.byName[a.xmlName]
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", a.xmlName, err)
	}
	defer func() {
		_ = rc.Close()
	}()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", a.xmlName, err)
	}

	return parseRouteText(data), nil
}

func parseRouteText(data []byte) []routeRef {
	var routes []routeRef
	for _, m := range routeBlock.FindAllSubmatch(data, -1) {
		opening, body := string(m[1]), m[2]

		var paths []string
		for _, p := range fileRefPath.FindAllSubmatch(body, -1) {
			paths = append(paths, string(p[1]))
		}
		if len(paths) == 0 {
			continue
		}

		routes = append(routes, routeRef{
			start: parseTime(cmp.Or(textAttr(opening, "startDate"), textAttr(opening, "creationDate"))),
			end:   parseTime(textAttr(opening, "endDate")),
			paths: paths,
		})
	}
	return routes
}

func textAttr(s, name string) string {
	for _, m := range textAttrs.FindAllStringSubmatch(s, -1) {
		if m[1] == name {
			return m[2]
		}
	}
	return ""
}

// matchRoutes attaches each route's files to every workout it overlaps in
// time. Paths keep first-seen order and appear once per workout.
func matchRoutes(workouts []workoutRef, routes []routeRef) map[string][]string {
	matched := make(map[string][]string)
	seen := make(map[string]map[string]bool)

	for _, r := range routes {
		for _, w := range workouts {
			if !overlaps(r.start, r.end, w.start, w.end) {
				continue
			}
			if seen[w.id] == nil {
				seen[w.id] = make(map[string]bool)
			}
			for _, p := range r.paths {
				if seen[w.id][p] {
					continue
				}
				seen[w.id][p] = true
				matched[w.id] = append(matched[w.id], p)
			}
		}
	}
	return matched
}

// overlaps reports whether [aStart, aEnd] and [bStart, bEnd] share at least
// one instant. A range with an unknown bound overlaps nothing.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aStart.IsZero() || aEnd.IsZero() || bStart.IsZero() || bEnd.IsZero() {
		return false
	}
	latestStart := aStart
	if bStart.After(latestStart) {
		latestStart = bStart
	}
	earliestEnd := aEnd
	if bEnd.Before(earliestEnd) {
		earliestEnd = bEnd
	}
	return !latestStart.After(earliestEnd)
}

// resolve maps a FileReference path to an archive entry. Exports reference
// routes relative to the export root, while the archive nests them under
// apple_health_export/.
func (a *Archive) resolve(ref string) (*zip.File, bool) {
	if ref == "" {
		return nil, false
	}

	trimmed := strings.TrimLeft(ref, "/")
	candidates := []string{ref}
	if strings.HasPrefix(ref, "/") {
		candidates = append(candidates, trimmed)
	} else {
		candidates = append(candidates, "/"+ref)
	}
	if !strings.HasPrefix(ref, "apple_health_export") {
		candidates = append(candidates, "apple_health_export/"+trimmed, "apple_health_export"+ref)
	}

	for _, c := range candidates {
		if f, ok := a.byName[c]; ok {
			return f, true
		}
	}
	return nil, false
}

func findExportXML(files []*zip.File) (string, bool) {
	for _, f := range files {
		name := strings.ToLower(f.Name)
		if strings.HasSuffix(name, "export.xml") || strings.HasSuffix(name, "export_cda.xml") || strings.Contains(name, "/export.xml") {
			return f.Name, true
		}
	}
	for _, f := range files {
		name := strings.ToLower(f.Name)
		if strings.HasSuffix(name, ".xml") && strings.Contains(name, "export") {
			return f.Name, true
		}
	}
	return "", false
}

func attr(attrs []xml.Attr, names ...string) string {
	for _, name := range names {
		for _, a := range attrs {
			if a.Name.Local == name && a.Value != "" {
				return a.Value
			}
		}
	}
	return ""
}

// parseTime returns the zero time for missing or unparsable values
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := track.ParseTimestamp(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
