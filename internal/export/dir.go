package export

import (
	"fmt"
	"io/fs"
	"iter"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/planbiir/gpace/internal/analysis"
	"github.com/planbiir/gpace/internal/track"
)

// Dir returns one workout per .gpx or .xml file below root, in path order.
// A workout spans the first to the last valid timestamp of its file; files
// without any stay in the sequence with an unknown start.
func Dir(root string, logger *zerolog.Logger) iter.Seq2[analysis.Workout, error] {
	log := zerolog.Nop()
	if logger != nil {
		log = *logger
	}

	return func(yield func(analysis.Workout, error) bool) {
		var paths []string
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".gpx", ".xml":
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			yield(analysis.Workout{}, fmt.Errorf("failed to list %s: %w", root, err))
			return
		}
		slices.Sort(paths)

		for _, path := range paths {
			src := track.FileSource(path)
			id, err := filepath.Rel(root, path)
			if err != nil {
				id = path
			}

			w := analysis.Workout{ID: filepath.ToSlash(id), Routes: []*track.Source{src}}
			for p, err := range src.Positions() {
				if err != nil {
					continue
				}
				if w.Start.IsZero() || p.Time.Before(w.Start) {
					w.Start = p.Time
				}
				if p.Time.After(w.End) {
					w.End = p.Time
				}
			}
			log.Debug().Str("workout", w.ID).Time("start", w.Start).Msg("Route file found")

			if !yield(w, nil) {
				return
			}
		}
	}
}
