package types

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Accessibility event type bits as reported by the instrumentation backend
const (
	TypeWindowStateChanged   = 0x00000020
	TypeWindowContentChanged = 0x00000800
)

// EventKind classifies a normalized UI change event
type EventKind int

const (
	KindOther EventKind = iota
	KindWindowStateChanged
	KindContentChanged
)

func (k EventKind) String() string {
	switch k {
	case KindWindowStateChanged:
		return "window_state_changed"
	case KindContentChanged:
		return "content_changed"
	default:
		return "other"
	}
}

// RawEvent is an event exactly as the host backend delivered it
type RawEvent struct {
	Type               int    `json:"type"`
	Time               int64  `json:"time"` // unix ms
	PackageName        string `json:"packageName,omitempty"`
	ClassName          string `json:"className,omitempty"`
	ContentChangeTypes int    `json:"contentChangeTypes,omitempty"`
	WindowChanges      int    `json:"windowChanges,omitempty"`
}

// UIChangeEvent is the immutable, normalized form of a RawEvent
type UIChangeEvent struct {
	ID                string    `json:"id"`
	Kind              EventKind `json:"kind"`
	TimestampMs       int64     `json:"timestamp"`
	AppID             string    `json:"appId,omitempty"`
	ClassName         string    `json:"className,omitempty"`
	ContentChangeMask int       `json:"contentChangeMask"`
	WindowChangeMask  int       `json:"windowChangeMask"`
}

// FromRaw normalizes a raw backend event
func FromRaw(raw RawEvent) UIChangeEvent {
	kind := KindOther
	switch {
	case raw.Type&TypeWindowStateChanged != 0:
		kind = KindWindowStateChanged
	case raw.Type&TypeWindowContentChanged != 0:
		kind = KindContentChanged
	}
	return UIChangeEvent{
		ID:                uuid.New().String(),
		Kind:              kind,
		TimestampMs:       raw.Time,
		AppID:             raw.PackageName,
		ClassName:         raw.ClassName,
		ContentChangeMask: raw.ContentChangeTypes,
		WindowChangeMask:  raw.WindowChanges,
	}
}

// ParseRawEvent decodes one JSON encoded raw event.
// "type" may be given as a number or as "window_state_changed" / "content_changed".
func ParseRawEvent(data []byte) (RawEvent, error) {
	if !gjson.ValidBytes(data) {
		return RawEvent{}, fmt.Errorf("invalid event json")
	}
	doc := gjson.ParseBytes(data)

	var raw RawEvent
	t := doc.Get("type")
	switch t.Type {
	case gjson.Number:
		raw.Type = int(t.Int())
	case gjson.String:
		switch t.String() {
		case "window_state_changed":
			raw.Type = TypeWindowStateChanged
		case "content_changed":
			raw.Type = TypeWindowContentChanged
		default:
			return RawEvent{}, fmt.Errorf("unknown event type %q", t.String())
		}
	default:
		return RawEvent{}, fmt.Errorf("event type is required")
	}

	raw.Time = doc.Get("time").Int()
	raw.PackageName = doc.Get("packageName").String()
	raw.ClassName = doc.Get("className").String()
	raw.ContentChangeTypes = int(doc.Get("contentChangeTypes").Int())
	raw.WindowChanges = int(doc.Get("windowChanges").Int())
	return raw, nil
}
