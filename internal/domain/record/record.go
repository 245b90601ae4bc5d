package record

import (
	"fmt"
	"time"
)

// Kind tags the origin of a captured activity record.
type Kind string

// Record kind constants, matching the activity index wire values.
const (
	OCR   Kind = "OCR"
	Audio Kind = "Audio"
	FTS   Kind = "FTS"
)

// IsValid checks if the kind is one of the supported values.
func (k Kind) IsValid() bool {
	return k == OCR || k == Audio || k == FTS
}

// Record is a single captured activity item returned by the index.
type Record struct {
	kind       Kind
	id         int64
	timestamp  time.Time
	text       string
	appName    string
	windowName string
	deviceName string
	filePath   string
	tags       []string
}

// NewOCR creates a screen-capture record.
func NewOCR(id int64, ts time.Time, text, appName, windowName string, tags []string) Record {
	return Record{
		kind: OCR, id: id, timestamp: ts.UTC(), text: text,
		appName: appName, windowName: windowName, tags: tags,
	}
}

// NewAudio creates an audio-transcription record.
func NewAudio(id int64, ts time.Time, transcription, deviceName string, tags []string) Record {
	return Record{
		kind: Audio, id: id, timestamp: ts.UTC(), text: transcription,
		deviceName: deviceName, tags: tags,
	}
}

// NewFTS creates a full-text-search record.
func NewFTS(id int64, ts time.Time, matchedText, filePath string, tags []string) Record {
	return Record{
		kind: FTS, id: id, timestamp: ts.UTC(), text: matchedText,
		filePath: filePath, tags: tags,
	}
}

// Kind returns the record origin.
func (r Record) Kind() Kind { return r.kind }

// ID returns the index-assigned identifier.
func (r Record) ID() int64 { return r.id }

// Timestamp returns the capture time (UTC).
func (r Record) Timestamp() time.Time { return r.timestamp }

// Text returns the text payload (OCR text, transcription, or matched text).
func (r Record) Text() string { return r.text }

// AppName returns the source application (OCR only).
func (r Record) AppName() string { return r.appName }

// WindowName returns the source window (OCR only).
func (r Record) WindowName() string { return r.windowName }

// DeviceName returns the capture device (audio only).
func (r Record) DeviceName() string { return r.deviceName }

// FilePath returns the matched file (FTS only).
func (r Record) FilePath() string { return r.filePath }

// Tags returns the record tags.
func (r Record) Tags() []string { return r.tags }

// Source describes where the record came from, for display.
func (r Record) Source() string {
	switch r.kind {
	case OCR:
		if r.windowName != "" {
			return fmt.Sprintf("%s (%s)", r.appName, r.windowName)
		}
		return r.appName
	case Audio:
		return r.deviceName
	case FTS:
		return r.filePath
	}
	return ""
}
