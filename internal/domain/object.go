package domain

import (
	"fmt"
)

// ObjectType discriminates the DrawingObject variant.
type ObjectType string

const (
	ObjectLine   ObjectType = "line"
	ObjectRect   ObjectType = "rect"
	ObjectCircle ObjectType = "circle"
	ObjectText   ObjectType = "text"
)

// DrawingObject is one addressable visual element within a room. The set of
// meaningful fields depends on Type; unused fields stay at their zero value
// and are omitted on the wire and in storage. ID and Type are immutable once
// the object has been created.
type DrawingObject struct {
	ID       string     `bson:"id" json:"id"`
	Type     ObjectType `bson:"type" json:"type"`
	Rotation float64    `bson:"rotation,omitempty" json:"rotation,omitempty"`
	Stroke   string     `bson:"stroke,omitempty" json:"stroke,omitempty"`
	// StrokeWidth of 0 means the client default.
	StrokeWidth float64   `bson:"strokeWidth,omitempty" json:"strokeWidth,omitempty"`
	Opacity     float64   `bson:"opacity,omitempty" json:"opacity,omitempty"`
	Dash        []float64 `bson:"dash,omitempty" json:"dash,omitempty"`
	LineCap     string    `bson:"lineCap,omitempty" json:"lineCap,omitempty"`

	// line: flat [x1, y1, x2, y2, ...], append-only while the stroke is active.
	Points []float64 `bson:"points,omitempty" json:"points,omitempty"`

	// rect / circle / text geometry.
	X      float64 `bson:"x,omitempty" json:"x,omitempty"`
	Y      float64 `bson:"y,omitempty" json:"y,omitempty"`
	Width  float64 `bson:"width,omitempty" json:"width,omitempty"`
	Height float64 `bson:"height,omitempty" json:"height,omitempty"`
	Radius float64 `bson:"radius,omitempty" json:"radius,omitempty"`
	Fill   string  `bson:"fill,omitempty" json:"fill,omitempty"`

	// text only.
	Text       string  `bson:"text,omitempty" json:"text,omitempty"`
	FontSize   float64 `bson:"fontSize,omitempty" json:"fontSize,omitempty"`
	FontFamily string  `bson:"fontFamily,omitempty" json:"fontFamily,omitempty"`
	Align      string  `bson:"align,omitempty" json:"align,omitempty"`
}

// knownObjectTypes lists every accepted discriminator value.
var knownObjectTypes = map[ObjectType]bool{
	ObjectLine:   true,
	ObjectRect:   true,
	ObjectCircle: true,
	ObjectText:   true,
}

// Validate checks the invariants a freshly created object must satisfy.
// Objects may arrive incomplete (a line starts with a single point, a text box
// may still be empty), so only the identity fields and per-type structural
// requirements are enforced here.
func (o *DrawingObject) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("drawing object: missing id")
	}
	if !knownObjectTypes[o.Type] {
		return fmt.Errorf("drawing object %s: unknown type %q", o.ID, o.Type)
	}
	if o.Opacity < 0 || o.Opacity > 1 {
		return fmt.Errorf("drawing object %s: opacity %v out of range", o.ID, o.Opacity)
	}
	switch o.Type {
	case ObjectLine:
		if len(o.Points)%2 != 0 {
			return fmt.Errorf("drawing object %s: odd point count %d", o.ID, len(o.Points))
		}
	case ObjectCircle:
		if o.Radius < 0 {
			return fmt.Errorf("drawing object %s: negative radius %v", o.ID, o.Radius)
		}
	}
	return nil
}

// ValidatePoints rejects point batches that cannot form (x, y) pairs.
func ValidatePoints(points []float64) error {
	if len(points) == 0 {
		return fmt.Errorf("drawing object: empty point batch")
	}
	if len(points)%2 != 0 {
		return fmt.Errorf("drawing object: odd point count %d", len(points))
	}
	return nil
}

// SanitizePatch returns a copy of an attribute patch with the immutable fields
// stripped. An update may never rename an object or migrate it to another
// type. Returns nil if nothing patchable remains.
func SanitizePatch(patch map[string]any) map[string]any {
	if len(patch) == 0 {
		return nil
	}
	clean := make(map[string]any, len(patch))
	for key, value := range patch {
		if key == "id" || key == "type" {
			continue
		}
		clean[key] = value
	}
	if len(clean) == 0 {
		return nil
	}
	return clean
}
