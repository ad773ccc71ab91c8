package main

import (
	"encoding/xml"
	"fmt"
	"strings"

	"AutoFlip/pkg/types"
)

// ViewNode is one node of a uiautomator dump
type ViewNode struct {
	XMLName     xml.Name   `xml:"node" json:"-"`
	Text        string     `xml:"text,attr" json:"text"`
	ResourceID  string     `xml:"resource-id,attr" json:"resourceId"`
	Class       string     `xml:"class,attr" json:"class"`
	Package     string     `xml:"package,attr" json:"package"`
	ContentDesc string     `xml:"content-desc,attr" json:"contentDesc"`
	Clickable   bool       `xml:"clickable,attr" json:"clickable"`
	Enabled     bool       `xml:"enabled,attr" json:"enabled"`
	Scrollable  bool       `xml:"scrollable,attr" json:"scrollable"`
	Bounds      string     `xml:"bounds,attr" json:"bounds"`
	Nodes       []ViewNode `xml:"node" json:"nodes"`
}

// ViewHierarchy is the <hierarchy> document element
type ViewHierarchy struct {
	XMLName xml.Name   `xml:"hierarchy"`
	Nodes   []ViewNode `xml:"node"`
}

// ParseHierarchy parses uiautomator output into a single root node
func ParseHierarchy(xmlContent string) (*ViewNode, error) {
	// Basic cleanup if output has extra stuff (sometimes ADB adds headers or footers)
	if startIdx := strings.Index(xmlContent, "<?xml"); startIdx != -1 {
		xmlContent = xmlContent[startIdx:]
	}
	if endIdx := strings.LastIndex(xmlContent, ">"); endIdx != -1 && endIdx < len(xmlContent)-1 {
		xmlContent = xmlContent[:endIdx+1]
	}

	// Fix common XML escaping issues
	xmlContent = strings.ReplaceAll(xmlContent, "&", "&amp;")
	xmlContent = strings.ReplaceAll(xmlContent, "&amp;amp;", "&amp;")
	xmlContent = strings.ReplaceAll(xmlContent, "&amp;lt;", "&lt;")
	xmlContent = strings.ReplaceAll(xmlContent, "&amp;gt;", "&gt;")
	xmlContent = strings.ReplaceAll(xmlContent, "&amp;quot;", "&quot;")
	xmlContent = strings.ReplaceAll(xmlContent, "&amp;apos;", "&apos;")
	xmlContent = strings.ReplaceAll(xmlContent, "&amp;#", "&#")

	var doc ViewHierarchy
	if err := xml.Unmarshal([]byte(xmlContent), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse UI XML (length: %d): %w", len(xmlContent), err)
	}
	switch len(doc.Nodes) {
	case 0:
		return nil, fmt.Errorf("UI dump has no nodes")
	case 1:
		return &doc.Nodes[0], nil
	default:
		// several windows: wrap them in a container covering all of them
		return &ViewNode{
			Class:   "android.view.View",
			Package: doc.Nodes[0].Package,
			Enabled: true,
			Bounds:  unionBounds(doc.Nodes).String(),
			Nodes:   doc.Nodes,
		}, nil
	}
}

// unionBounds returns the smallest rect containing every parseable node's bounds
func unionBounds(nodes []ViewNode) types.Rect {
	var union types.Rect
	found := false
	for _, n := range nodes {
		r, err := types.ParseRect(n.Bounds)
		if err != nil || r.Empty() {
			continue
		}
		if !found {
			union, found = r, true
			continue
		}
		union.Left = min(union.Left, r.Left)
		union.Top = min(union.Top, r.Top)
		union.Right = max(union.Right, r.Right)
		union.Bottom = max(union.Bottom, r.Bottom)
	}
	return union
}

// ========================================
// adbNode - types.UINode over a dump
// ========================================

// horizontal containers page sideways, everything else scrolls vertically
var horizontalScrollers = []string{"ViewPager", "ViewPager2", "HorizontalScrollView"}

type adbNode struct {
	backend *AdbBackend
	node    *ViewNode
}

func newAdbNode(b *AdbBackend, n *ViewNode) types.UINode {
	if n == nil {
		return nil
	}
	return &adbNode{backend: b, node: n}
}

func (n *adbNode) ClassName() string {
	return n.node.Class
}

func (n *adbNode) ChildCount() int {
	return len(n.node.Nodes)
}

func (n *adbNode) Child(i int) types.UINode {
	if i < 0 || i >= len(n.node.Nodes) {
		return nil
	}
	return newAdbNode(n.backend, &n.node.Nodes[i])
}

func (n *adbNode) BoundsOnScreen() types.Rect {
	r, err := types.ParseRect(n.node.Bounds)
	if err != nil {
		return types.Rect{}
	}
	return r
}

// SupportedActions derives actions from the dump attributes. uiautomator
// does not report granularity support, so WebViews get the page keys.
func (n *adbNode) SupportedActions() []types.ActionID {
	if !n.node.Enabled {
		return nil
	}
	var actions []types.ActionID
	if n.node.Clickable {
		actions = append(actions, types.ActionClick)
	}
	if n.node.Scrollable {
		actions = append(actions, types.ActionScrollForward, types.ActionScrollBackward)
	}
	if simpleClassName(n.node.Class) == "WebView" {
		actions = append(actions, types.ActionNextAtMovementGranularity, types.ActionPreviousAtMovementGranularity)
	}
	return actions
}

func (n *adbNode) PerformAction(id types.ActionID, args map[string]int) bool {
	bounds := n.BoundsOnScreen()
	var err error
	switch id {
	case types.ActionClick:
		err = n.backend.tap(types.Point{X: bounds.CenterX(), Y: bounds.CenterY()})
	case types.ActionScrollForward, types.ActionScrollBackward:
		if bounds.Empty() {
			return false
		}
		from, to := scrollPath(bounds, n.horizontal(), id == types.ActionScrollForward)
		err = n.backend.swipe(from, to, 300)
	case types.ActionNextAtMovementGranularity:
		if args[types.ArgMovementGranularity] != types.GranularityPage {
			return false
		}
		err = n.backend.keyEvent(keyPageDown)
	case types.ActionPreviousAtMovementGranularity:
		if args[types.ArgMovementGranularity] != types.GranularityPage {
			return false
		}
		err = n.backend.keyEvent(keyPageUp)
	default:
		return false
	}
	if err != nil {
		LogWarn("adb").Err(err).Str("action", id.String()).Str("class", n.node.Class).Msg("Node action failed")
		return false
	}
	return true
}

func (n *adbNode) horizontal() bool {
	name := simpleClassName(n.node.Class)
	for _, h := range horizontalScrollers {
		if name == h {
			return true
		}
	}
	return false
}

// scrollPath swipes across the middle 60% of bounds. Forward content
// comes from the right (or bottom), so the finger moves the other way.
func scrollPath(bounds types.Rect, horizontal, forward bool) (from, to types.Point) {
	if horizontal {
		hi := bounds.Left + bounds.Width()*4/5
		lo := bounds.Left + bounds.Width()/5
		y := bounds.CenterY()
		if forward {
			return types.Point{X: hi, Y: y}, types.Point{X: lo, Y: y}
		}
		return types.Point{X: lo, Y: y}, types.Point{X: hi, Y: y}
	}
	hi := bounds.Top + bounds.Height()*4/5
	lo := bounds.Top + bounds.Height()/5
	x := bounds.CenterX()
	if forward {
		return types.Point{X: x, Y: hi}, types.Point{X: x, Y: lo}
	}
	return types.Point{X: x, Y: lo}, types.Point{X: x, Y: hi}
}

func simpleClassName(class string) string {
	if i := strings.LastIndex(class, "."); i >= 0 {
		return class[i+1:]
	}
	return class
}
