// Package scene validates untrusted declarative 3D scene payloads before
// they may reach the store. The sanitizer is whitelist-only: it constructs
// a new canonical document from recognized, clamped fields and never
// reflects input structure back, so no adversarial field, oversized array
// or unbounded recursion can survive it.
package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Hard caps on accepted payloads. Traversal stops at the cap instead of
// continuing to accumulate.
const (
	MaxJSONSize = 16 * 1024
	MaxObjects  = 50
	MaxLights   = 10
	MaxDepth    = 3

	maxGeometryArgs = 6
	maxNameLength   = 50
)

// Rejection reasons surfaced to the caller.
var (
	ErrTooLarge    = errors.New("model JSON too large (max 16KB)")
	ErrInvalidJSON = errors.New("invalid JSON in model field")
	ErrNotObject   = errors.New("model must be a JSON object")
	ErrNoObjects   = errors.New("model must contain at least one valid object with geometry")
)

// Type whitelists. An unrecognized type tag drops that sub-element, not
// the whole document.
var (
	geometryTypes = map[string]bool{
		"box": true, "sphere": true, "cylinder": true, "torus": true,
		"torusKnot": true, "cone": true, "plane": true, "circle": true,
		"ring": true, "dodecahedron": true, "icosahedron": true,
		"octahedron": true, "tetrahedron": true,
	}
	materialTypes = map[string]bool{
		"standard": true, "phong": true, "lambert": true, "basic": true,
		"normal": true, "wireframe": true,
	}
	lightTypes = map[string]bool{
		"ambient": true, "directional": true, "point": true, "spot": true,
	}
	animationTypes = map[string]bool{
		"rotate": true, "float": true, "pulse": true,
	}
	animationAxes = map[string]bool{"x": true, "y": true, "z": true}
)

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Scene is the canonical sanitized document.
type Scene struct {
	Camera     *Camera  `json:"camera,omitempty"`
	Lights     []Light  `json:"lights,omitempty"`
	Objects    []Object `json:"objects,omitempty"`
	Background string   `json:"background,omitempty"`
}

// Camera holds the viewpoint descriptor.
type Camera struct {
	Position []float64 `json:"position,omitempty"`
	LookAt   []float64 `json:"lookAt,omitempty"`
	Fov      *float64  `json:"fov,omitempty"`
}

// Light is a whitelisted light source.
type Light struct {
	Type      string    `json:"type"`
	Color     string    `json:"color,omitempty"`
	Intensity *float64  `json:"intensity,omitempty"`
	Position  []float64 `json:"position,omitempty"`
}

// Geometry is a whitelisted shape with clamped arguments.
type Geometry struct {
	Type string    `json:"type"`
	Args []float64 `json:"args,omitempty"`
}

// Material is a whitelisted surface description.
type Material struct {
	Type              string   `json:"type"`
	Color             string   `json:"color,omitempty"`
	Opacity           *float64 `json:"opacity,omitempty"`
	Transparent       *bool    `json:"transparent,omitempty"`
	Metalness         *float64 `json:"metalness,omitempty"`
	Roughness         *float64 `json:"roughness,omitempty"`
	Emissive          string   `json:"emissive,omitempty"`
	EmissiveIntensity *float64 `json:"emissiveIntensity,omitempty"`
	Wireframe         *bool    `json:"wireframe,omitempty"`
}

// Animation is a whitelisted motion descriptor.
type Animation struct {
	Type      string   `json:"type"`
	Speed     *float64 `json:"speed,omitempty"`
	Axis      string   `json:"axis,omitempty"`
	Amplitude *float64 `json:"amplitude,omitempty"`
}

// Object is a scene node. A valid object needs at least a geometry;
// children nest up to MaxDepth.
type Object struct {
	Geometry  *Geometry  `json:"geometry,omitempty"`
	Material  *Material  `json:"material,omitempty"`
	Position  []float64  `json:"position,omitempty"`
	Rotation  []float64  `json:"rotation,omitempty"`
	Scale     []float64  `json:"scale,omitempty"`
	Animation *Animation `json:"animation,omitempty"`
	Name      string     `json:"name,omitempty"`
	Children  []Object   `json:"children,omitempty"`
}

// Sanitize validates a raw scene payload and returns the canonical
// re-serialized document, or a rejection reason. The output contains only
// recognized, clamped fields.
func Sanitize(raw string) (string, error) {
	if len(raw) > MaxJSONSize {
		return "", ErrTooLarge
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return "", ErrInvalidJSON
	}
	root, ok := doc.(map[string]interface{})
	if !ok {
		return "", ErrNotObject
	}

	out := Scene{}
	counts := &elementCounts{}

	out.Camera = sanitizeCamera(root["camera"])

	if rawLights, ok := root["lights"].([]interface{}); ok {
		for _, l := range rawLights {
			if counts.lights >= MaxLights {
				break
			}
			if light := sanitizeLight(l); light != nil {
				out.Lights = append(out.Lights, *light)
				counts.lights++
			}
		}
	}

	if rawObjects, ok := root["objects"].([]interface{}); ok {
		for _, o := range rawObjects {
			if obj := sanitizeObject(o, 1, counts); obj != nil {
				out.Objects = append(out.Objects, *obj)
			}
		}
	}

	if len(out.Objects) == 0 {
		return "", ErrNoObjects
	}

	if bg, ok := root["background"].(string); ok && hexColorRe.MatchString(bg) {
		out.Background = bg
	}

	encoded, err := json.Marshal(&out)
	if err != nil {
		return "", fmt.Errorf("failed to serialize sanitized scene: %w", err)
	}
	return string(encoded), nil
}

type elementCounts struct {
	objects int
	lights  int
}

func clamp(v interface{}, min, max float64) float64 {
	n, ok := v.(float64)
	if !ok {
		n = 0
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

// clampedPtr returns a clamped copy of a numeric field, or nil when the
// field is absent or non-numeric.
func clampedPtr(v interface{}, min, max float64) *float64 {
	if _, ok := v.(float64); !ok {
		return nil
	}
	n := clamp(v, min, max)
	return &n
}

func boolPtr(v interface{}) *bool {
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}

// vec3 accepts exactly three numbers, clamped to the coordinate range.
func vec3(v interface{}, min, max float64) []float64 {
	arr, ok := v.([]interface{})
	if !ok || len(arr) != 3 {
		return nil
	}
	out := make([]float64, 3)
	for i, e := range arr {
		out[i] = clamp(e, min, max)
	}
	return out
}

func validColor(v interface{}) (string, bool) {
	s, ok := v.(string)
	if !ok || !hexColorRe.MatchString(s) {
		return "", false
	}
	return s, true
}

func sanitizeCamera(v interface{}) *Camera {
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	cam := &Camera{
		Position: vec3(raw["position"], -100, 100),
		LookAt:   vec3(raw["lookAt"], -100, 100),
		Fov:      clampedPtr(raw["fov"], 10, 120),
	}
	if cam.Position == nil && cam.LookAt == nil && cam.Fov == nil {
		return nil
	}
	return cam
}

func sanitizeLight(v interface{}) *Light {
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	typ, _ := raw["type"].(string)
	if !lightTypes[typ] {
		return nil
	}
	light := &Light{
		Type:      typ,
		Intensity: clampedPtr(raw["intensity"], 0, 10),
		Position:  vec3(raw["position"], -100, 100),
	}
	if color, ok := validColor(raw["color"]); ok {
		light.Color = color
	}
	return light
}

func sanitizeGeometry(v interface{}) *Geometry {
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	typ, _ := raw["type"].(string)
	if !geometryTypes[typ] {
		return nil
	}
	geo := &Geometry{Type: typ}
	if args, ok := raw["args"].([]interface{}); ok {
		if len(args) > maxGeometryArgs {
			args = args[:maxGeometryArgs]
		}
		for _, a := range args {
			geo.Args = append(geo.Args, clamp(a, 0, 100))
		}
	}
	return geo
}

func sanitizeMaterial(v interface{}) *Material {
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	typ, _ := raw["type"].(string)
	if !materialTypes[typ] {
		return nil
	}
	mat := &Material{
		Type:              typ,
		Opacity:           clampedPtr(raw["opacity"], 0, 1),
		Transparent:       boolPtr(raw["transparent"]),
		Metalness:         clampedPtr(raw["metalness"], 0, 1),
		Roughness:         clampedPtr(raw["roughness"], 0, 1),
		EmissiveIntensity: clampedPtr(raw["emissiveIntensity"], 0, 10),
		Wireframe:         boolPtr(raw["wireframe"]),
	}
	if color, ok := validColor(raw["color"]); ok {
		mat.Color = color
	}
	if emissive, ok := validColor(raw["emissive"]); ok {
		mat.Emissive = emissive
	}
	return mat
}

func sanitizeAnimation(v interface{}) *Animation {
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	typ, _ := raw["type"].(string)
	if !animationTypes[typ] {
		return nil
	}
	anim := &Animation{
		Type:      typ,
		Speed:     clampedPtr(raw["speed"], -100, 100),
		Amplitude: clampedPtr(raw["amplitude"], -100, 100),
	}
	if axis, ok := raw["axis"].(string); ok && animationAxes[axis] {
		anim.Axis = axis
	}
	return anim
}

// sanitizeObject validates one scene node. Traversal hard-stops past
// MaxDepth and once the object budget is spent; every visited node spends
// one unit of budget whether or not it survives.
func sanitizeObject(v interface{}, depth int, counts *elementCounts) *Object {
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	if depth > MaxDepth || counts.objects >= MaxObjects {
		return nil
	}
	counts.objects++

	obj := &Object{
		Geometry: sanitizeGeometry(raw["geometry"]),
		Material: sanitizeMaterial(raw["material"]),
	}
	if obj.Geometry == nil {
		return nil
	}

	obj.Position = vec3(raw["position"], -100, 100)
	obj.Rotation = vec3(raw["rotation"], -100, 100)
	obj.Scale = vec3(raw["scale"], -100, 100)
	if s, ok := raw["scale"].(float64); ok {
		uniform := clamp(s, -100, 100)
		obj.Scale = []float64{uniform, uniform, uniform}
	}

	obj.Animation = sanitizeAnimation(raw["animation"])

	if name, ok := raw["name"].(string); ok {
		// Truncate by runes so a multi-byte character is never split.
		if runes := []rune(name); len(runes) > maxNameLength {
			name = string(runes[:maxNameLength])
		}
		obj.Name = name
	}

	if children, ok := raw["children"].([]interface{}); ok {
		for _, child := range children {
			if sanitized := sanitizeObject(child, depth+1, counts); sanitized != nil {
				obj.Children = append(obj.Children, *sanitized)
			}
		}
	}

	return obj
}
