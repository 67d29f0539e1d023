package track

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/planbiir/gpace/internal/geo"
)

var (
	// ErrMalformedRoute marks a route whose raw encoding could not be read or parsed
	ErrMalformedRoute = errors.New("malformed route")

	// ErrUnparsableTimestamp marks a point whose timestamp is missing or invalid
	ErrUnparsableTimestamp = errors.New("unparsable timestamp")
)

// TimestampError reports one point that was skipped because of its timestamp.
// Index counts the position records of the route, valid or not.
type TimestampError struct {
	Index int
	Raw   string
	Err   error
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("point %d: %v", e.Index, e.Err)
}

func (e *TimestampError) Unwrap() error {
	return e.Err
}

// Opener returns a fresh reader over a route's raw encoding
type Opener func() (io.ReadCloser, error)

// Source is a restartable producer of positions for one route file.
type Source struct {
	Name string

	open Opener
	err  error
}

// NewSource creates a Source reading from open on every pass
func NewSource(name string, open Opener) *Source {
	return &Source{Name: name, open: open}
}

// FileSource creates a Source over a file on disk
func FileSource(path string) *Source {
	return NewSource(path, func() (io.ReadCloser, error) {
		return os.Open(path)
	})
}

// BytesSource creates a Source over an in-memory encoding
func BytesSource(name string, data []byte) *Source {
	return NewSource(name, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

// Err returns the structural error of the last completed pass, if any.
// It wraps ErrMalformedRoute.
func (s *Source) Err() error {
	return s.err
}

// Positions returns a lazy sequence of the route's positions. Every call
// re-opens the underlying encoding. A structurally invalid route yields
// nothing and sets Err; a bad timestamp yields a *TimestampError in place
// of that point and the sequence continues.
func (s *Source) Positions() iter.Seq2[geo.Position, error] {
	return func(yield func(geo.Position, error) bool) {
		s.err = nil

		records, err := s.load()
		if err != nil {
			s.err = err
			return
		}

		for i, rec := range records {
			ts, err := ParseTimestamp(rec.time)
			if err != nil {
				if !yield(geo.Position{}, &TimestampError{Index: i, Raw: rec.time, Err: err}) {
					return
				}
				continue
			}
			if !yield(geo.Position{Lat: rec.lat, Lon: rec.lon, Time: ts}, nil) {
				return
			}
		}
	}
}

// record is one position as found in the encoding, timestamp still raw
type record struct {
	lat, lon float64
	time     string
}

func (s *Source) load() ([]record, error) {
	if s.open == nil {
		return nil, fmt.Errorf("%w: %s: no opener", ErrMalformedRoute, s.Name)
	}

	rc, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: failed to open: %v", ErrMalformedRoute, s.Name, err)
	}
	defer func() {
		_ = rc.Close()
	}()

	// route files are small, read them whole
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: failed to read: %v", ErrMalformedRoute, s.Name, err)
	}

	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: %s: empty", ErrMalformedRoute, s.Name)
	}

	if trimmed[0] == '<' {
		records, err := decodeXML(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedRoute, s.Name, err)
		}
		return records, nil
	}

	return decodeText(trimmed), nil
}

// decodeXML extracts Location and trkpt records, matching local names only
// so any namespace prefix is accepted.
func decodeXML(data []byte) ([]record, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	var (
		records []record
		current *record
		hasTime bool
		sawRoot bool
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			sawRoot = true
			switch el.Name.Local {
			case "Location", "location":
				lat, lon, ok := coordinates(el.Attr, "latitude", "lat", "longitude", "lon")
				if ok {
					records = append(records, record{lat: lat, lon: lon, time: attr(el.Attr, "timestamp", "time")})
				}
			case "trkpt", "trkPoint":
				lat, lon, ok := coordinates(el.Attr, "lat", "latitude", "lon", "longitude")
				if ok {
					current = &record{lat: lat, lon: lon}
					hasTime = false
				}
			case "time":
				if current != nil && !hasTime {
					var text string
					if err := decoder.DecodeElement(&text, &el); err != nil {
						return nil, err
					}
					current.time = strings.TrimSpace(text)
					hasTime = true
				}
			}
		case xml.EndElement:
			if (el.Name.Local == "trkpt" || el.Name.Local == "trkPoint") && current != nil {
				records = append(records, *current)
				current = nil
			}
		}
	}

	if !sawRoot {
		return nil, errors.New("no XML elements")
	}

	return records, nil
}

var textPair = regexp.MustCompile(`(latitude|longitude|timestamp)\s*=\s*(?:"([^"]*)"|'([^']*)'|(\S+))`)

// decodeText is the fallback for non-XML exports: any line carrying
// latitude=, longitude= and timestamp= pairs is one record.
func decodeText(data []byte) []record {
	var records []record

	for _, line := range strings.Split(string(data), "\n") {
		if !strings.Contains(line, "latitude") || !strings.Contains(line, "longitude") {
			continue
		}

		values := map[string]string{}
		for _, m := range textPair.FindAllStringSubmatch(line, -1) {
			values[m[1]] = m[2] + m[3] + m[4]
		}

		lat, errLat := strconv.ParseFloat(values["latitude"], 64)
		lon, errLon := strconv.ParseFloat(values["longitude"], 64)
		if errLat != nil || errLon != nil {
			continue
		}
		records = append(records, record{lat: lat, lon: lon, time: values["timestamp"]})
	}

	return records
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

func coordinates(attrs []xml.Attr, latName, latAlt, lonName, lonAlt string) (float64, float64, bool) {
	lat, err := strconv.ParseFloat(attr(attrs, latName, latAlt), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(attr(attrs, lonName, lonAlt), 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}
