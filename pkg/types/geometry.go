package types

import (
	"fmt"
	"regexp"
	"strconv"
)

var boundsPattern = regexp.MustCompile(`\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]`)

// Point is a screen coordinate in pixels
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rect is an on-screen rectangle in pixels
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// ParseRect parses Android bounds string "[x1,y1][x2,y2]"
func ParseRect(bounds string) (Rect, error) {
	matches := boundsPattern.FindStringSubmatch(bounds)
	if len(matches) != 5 {
		return Rect{}, fmt.Errorf("invalid bounds format: %s", bounds)
	}

	x1, _ := strconv.Atoi(matches[1])
	y1, _ := strconv.Atoi(matches[2])
	x2, _ := strconv.Atoi(matches[3])
	y2, _ := strconv.Atoi(matches[4])

	return Rect{Left: x1, Top: y1, Right: x2, Bottom: y2}, nil
}

func (r Rect) Width() int   { return r.Right - r.Left }
func (r Rect) Height() int  { return r.Bottom - r.Top }
func (r Rect) CenterX() int { return r.Left + r.Width()/2 }
func (r Rect) CenterY() int { return r.Top + r.Height()/2 }

// Empty reports whether the rectangle has no area
func (r Rect) Empty() bool {
	return r.Width() <= 0 || r.Height() <= 0
}

func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d][%d,%d]", r.Left, r.Top, r.Right, r.Bottom)
}

// Stroke is one continuous touch path of a gesture
type Stroke struct {
	Path         []Point `json:"path"`
	StartDelayMs int64   `json:"startDelayMs"`
	DurationMs   int64   `json:"durationMs"`
}

// Tap builds a single-point, zero-duration stroke
func Tap(x, y int) Stroke {
	return Stroke{Path: []Point{{X: x, Y: y}}}
}

// Swipe builds a straight two-point stroke
func Swipe(from, to Point, startDelayMs, durationMs int64) Stroke {
	return Stroke{Path: []Point{from, to}, StartDelayMs: startDelayMs, DurationMs: durationMs}
}
