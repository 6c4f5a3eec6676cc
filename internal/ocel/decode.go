package ocel

import (
	"bufio"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Format names a serialization of an object-centric event log.
type Format string

const (
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
)

// Supported file extensions and their formats.
var extensionFormats = map[string]Format{
	".json":     FormatJSON,
	".jsonocel": FormatJSON,
	".xml":      FormatXML,
	".xmlocel":  FormatXML,
}

// timeLayouts are tried in order when parsing timestamps. Exported OCEL
// files in the wild omit the zone or the fractional part often enough that
// RFC 3339 alone is not sufficient.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// FormatFromPath returns the format for a file path based on its extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := extensionFormats[ext]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// ParseFormat maps a format name to a Format.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatXML:
		return FormatXML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// IsSupportedFile reports whether the file name has a loadable extension.
func IsSupportedFile(name string) bool {
	_, err := FormatFromPath(name)
	return err == nil
}

// LoadFile reads and decodes the log stored at path.
func LoadFile(path string) (*Log, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	return Decode(bufio.NewReader(f), format)
}

// Decode reads a log in the given format.
func Decode(r io.Reader, format Format) (*Log, error) {
	switch format {
	case FormatJSON:
		return DecodeJSON(r)
	case FormatXML:
		return DecodeXML(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// JSON wire types. Timestamps are decoded as strings so that the lenient
// layouts in timeLayouts can be applied.

type jsonObjectAttribute struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
	Time  string `json:"time"`
}

type jsonObject struct {
	ID            string                `json:"id"`
	Type          string                `json:"type"`
	Attributes    []jsonObjectAttribute `json:"attributes"`
	Relationships []Relationship        `json:"relationships"`
}

type jsonEvent struct {
	ID            string           `json:"id"`
	Type          string           `json:"type"`
	Time          string           `json:"time"`
	Attributes    []EventAttribute `json:"attributes"`
	Relationships []Relationship   `json:"relationships"`
}

type jsonLog struct {
	ObjectTypes []Type       `json:"objectTypes"`
	EventTypes  []Type       `json:"eventTypes"`
	Objects     []jsonObject `json:"objects"`
	Events      []jsonEvent  `json:"events"`
}

// DecodeJSON reads an OCEL 2.0 JSON log.
func DecodeJSON(r io.Reader) (*Log, error) {
	var raw jsonLog
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decoding JSON: %v", ErrMalformedLog, err)
	}

	log := &Log{
		ObjectTypes: raw.ObjectTypes,
		EventTypes:  raw.EventTypes,
		Objects:     make([]Object, len(raw.Objects)),
		Events:      make([]Event, len(raw.Events)),
	}

	for i, o := range raw.Objects {
		obj := Object{ID: o.ID, Type: o.Type, Relationships: o.Relationships}
		for _, a := range o.Attributes {
			t, err := parseTime(a.Time)
			if err != nil {
				return nil, fmt.Errorf("%w: object %s attribute %s: %v", ErrMalformedLog, o.ID, a.Name, err)
			}
			obj.Attributes = append(obj.Attributes, ObjectAttribute{Name: a.Name, Value: a.Value, Time: t})
		}
		log.Objects[i] = obj
	}

	for i, e := range raw.Events {
		t, err := parseTime(e.Time)
		if err != nil {
			return nil, fmt.Errorf("%w: event %s: %v", ErrMalformedLog, e.ID, err)
		}
		log.Events[i] = Event{
			ID:            e.ID,
			Type:          e.Type,
			Time:          t,
			Attributes:    e.Attributes,
			Relationships: e.Relationships,
		}
	}

	return log, nil
}

// XML wire types.

type xmlTypeAttribute struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

type xmlType struct {
	Name       string             `xml:"name,attr"`
	Attributes []xmlTypeAttribute `xml:"attributes>attribute"`
}

type xmlRelationship struct {
	ObjectID  string `xml:"object-id,attr"`
	Qualifier string `xml:"qualifier,attr"`
}

type xmlAttribute struct {
	Name  string `xml:"name,attr"`
	Time  string `xml:"time,attr"`
	Value string `xml:",chardata"`
}

type xmlObject struct {
	ID            string            `xml:"id,attr"`
	Type          string            `xml:"type,attr"`
	Attributes    []xmlAttribute    `xml:"attributes>attribute"`
	Relationships []xmlRelationship `xml:"objects>relationship"`
}

type xmlEvent struct {
	ID            string            `xml:"id,attr"`
	Type          string            `xml:"type,attr"`
	Time          string            `xml:"time,attr"`
	Attributes    []xmlAttribute    `xml:"attributes>attribute"`
	Relationships []xmlRelationship `xml:"objects>relationship"`
}

type xmlLog struct {
	XMLName     xml.Name    `xml:"log"`
	ObjectTypes []xmlType   `xml:"object-types>object-type"`
	EventTypes  []xmlType   `xml:"event-types>event-type"`
	Objects     []xmlObject `xml:"objects>object"`
	Events      []xmlEvent  `xml:"events>event"`
}

// DecodeXML reads an OCEL 2.0 XML log. Attribute values are kept as strings.
func DecodeXML(r io.Reader) (*Log, error) {
	var raw xmlLog
	if err := xml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decoding XML: %v", ErrMalformedLog, err)
	}

	log := &Log{
		ObjectTypes: convertXMLTypes(raw.ObjectTypes),
		EventTypes:  convertXMLTypes(raw.EventTypes),
		Objects:     make([]Object, len(raw.Objects)),
		Events:      make([]Event, len(raw.Events)),
	}

	for i, o := range raw.Objects {
		obj := Object{ID: o.ID, Type: o.Type, Relationships: convertXMLRelationships(o.Relationships)}
		for _, a := range o.Attributes {
			t, err := parseTime(a.Time)
			if err != nil {
				return nil, fmt.Errorf("%w: object %s attribute %s: %v", ErrMalformedLog, o.ID, a.Name, err)
			}
			obj.Attributes = append(obj.Attributes, ObjectAttribute{
				Name:  a.Name,
				Value: strings.TrimSpace(a.Value),
				Time:  t,
			})
		}
		log.Objects[i] = obj
	}

	for i, e := range raw.Events {
		t, err := parseTime(e.Time)
		if err != nil {
			return nil, fmt.Errorf("%w: event %s: %v", ErrMalformedLog, e.ID, err)
		}
		ev := Event{ID: e.ID, Type: e.Type, Time: t, Relationships: convertXMLRelationships(e.Relationships)}
		for _, a := range e.Attributes {
			ev.Attributes = append(ev.Attributes, EventAttribute{Name: a.Name, Value: strings.TrimSpace(a.Value)})
		}
		log.Events[i] = ev
	}

	return log, nil
}

func convertXMLTypes(in []xmlType) []Type {
	out := make([]Type, len(in))
	for i, t := range in {
		out[i] = Type{Name: t.Name}
		for _, a := range t.Attributes {
			out[i].Attributes = append(out[i].Attributes, TypeAttribute(a))
		}
	}
	return out
}

func convertXMLRelationships(in []xmlRelationship) []Relationship {
	if len(in) == 0 {
		return nil
	}
	out := make([]Relationship, len(in))
	for i, r := range in {
		out[i] = Relationship(r)
	}
	return out
}

// parseTime parses a timestamp; an empty string yields the zero time.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
