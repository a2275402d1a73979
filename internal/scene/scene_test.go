package scene

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeRejections(t *testing.T) {
	t.Run("oversized payload", func(t *testing.T) {
		_, err := Sanitize(strings.Repeat(" ", MaxJSONSize+1))
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := Sanitize("{nope")
		assert.ErrorIs(t, err, ErrInvalidJSON)
	})

	t.Run("non-object root", func(t *testing.T) {
		_, err := Sanitize(`[1,2,3]`)
		assert.ErrorIs(t, err, ErrNotObject)
	})

	t.Run("no surviving objects", func(t *testing.T) {
		_, err := Sanitize(`{"objects":[{"geometry":{"type":"dragon"}}]}`)
		assert.ErrorIs(t, err, ErrNoObjects)

		_, err = Sanitize(`{"objects":[]}`)
		assert.ErrorIs(t, err, ErrNoObjects)
	})
}

func TestSanitizeWhitelists(t *testing.T) {
	t.Run("valid scene survives with clamps applied", func(t *testing.T) {
		out, err := Sanitize(`{
			"camera": {"position": [0, 5, 200], "fov": 300},
			"background": "#1a2b3c",
			"lights": [{"type": "point", "color": "#ffffff", "intensity": 50}],
			"objects": [{
				"geometry": {"type": "box", "args": [1, 2, 3]},
				"material": {"type": "standard", "color": "#ff0000", "opacity": 2},
				"position": [0, -500, 0],
				"name": "cube"
			}]
		}`)
		require.NoError(t, err)

		var s Scene
		require.NoError(t, json.Unmarshal([]byte(out), &s))

		require.NotNil(t, s.Camera)
		assert.Equal(t, []float64{0, 5, 100}, s.Camera.Position)
		assert.Equal(t, 120.0, *s.Camera.Fov)
		assert.Equal(t, "#1a2b3c", s.Background)

		require.Len(t, s.Lights, 1)
		assert.Equal(t, 10.0, *s.Lights[0].Intensity)

		require.Len(t, s.Objects, 1)
		obj := s.Objects[0]
		assert.Equal(t, "box", obj.Geometry.Type)
		assert.Equal(t, []float64{0, -100, 0}, obj.Position)
		assert.Equal(t, 1.0, *obj.Material.Opacity)
		assert.Equal(t, "cube", obj.Name)
	})

	t.Run("unknown sub-elements are dropped, not fatal", func(t *testing.T) {
		out, err := Sanitize(`{
			"lights": [{"type": "blacklight"}],
			"objects": [
				{"geometry": {"type": "sphere"}, "material": {"type": "hologram"}},
				{"geometry": {"type": "cursed"}}
			]
		}`)
		require.NoError(t, err)

		var s Scene
		require.NoError(t, json.Unmarshal([]byte(out), &s))
		assert.Empty(t, s.Lights)
		require.Len(t, s.Objects, 1)
		assert.Nil(t, s.Objects[0].Material)
	})

	t.Run("bad colors are dropped", func(t *testing.T) {
		out, err := Sanitize(`{
			"background": "javascript:alert(1)",
			"objects": [{"geometry": {"type": "box"}, "material": {"type": "basic", "color": "red"}}]
		}`)
		require.NoError(t, err)

		var s Scene
		require.NoError(t, json.Unmarshal([]byte(out), &s))
		assert.Empty(t, s.Background)
		assert.Empty(t, s.Objects[0].Material.Color)
	})

	t.Run("unrecognized fields never reach the output", func(t *testing.T) {
		out, err := Sanitize(`{
			"objects": [{"geometry": {"type": "box"}, "onClick": "evil()", "href": "http://x"}],
			"script": "alert(1)"
		}`)
		require.NoError(t, err)
		assert.NotContains(t, out, "evil")
		assert.NotContains(t, out, "script")
		assert.NotContains(t, out, "href")
	})
}

func TestSanitizeCaps(t *testing.T) {
	t.Run("object budget", func(t *testing.T) {
		var objs []string
		for i := 0; i < MaxObjects+10; i++ {
			objs = append(objs, `{"geometry":{"type":"box"}}`)
		}
		out, err := Sanitize(fmt.Sprintf(`{"objects":[%s]}`, strings.Join(objs, ",")))
		require.NoError(t, err)

		var s Scene
		require.NoError(t, json.Unmarshal([]byte(out), &s))
		assert.Len(t, s.Objects, MaxObjects)
	})

	t.Run("light budget", func(t *testing.T) {
		var lights []string
		for i := 0; i < MaxLights+5; i++ {
			lights = append(lights, `{"type":"ambient"}`)
		}
		out, err := Sanitize(fmt.Sprintf(`{"lights":[%s],"objects":[{"geometry":{"type":"box"}}]}`, strings.Join(lights, ",")))
		require.NoError(t, err)

		var s Scene
		require.NoError(t, json.Unmarshal([]byte(out), &s))
		assert.Len(t, s.Lights, MaxLights)
	})

	t.Run("nesting depth", func(t *testing.T) {
		leaf := `{"geometry":{"type":"box"}}`
		depth4 := fmt.Sprintf(`{"geometry":{"type":"box"},"children":[%s]}`, leaf)
		depth3 := fmt.Sprintf(`{"geometry":{"type":"box"},"children":[%s]}`, depth4)
		depth2 := fmt.Sprintf(`{"geometry":{"type":"box"},"children":[%s]}`, depth3)

		out, err := Sanitize(fmt.Sprintf(`{"objects":[%s]}`, depth2))
		require.NoError(t, err)

		var s Scene
		require.NoError(t, json.Unmarshal([]byte(out), &s))

		require.Len(t, s.Objects, 1)
		require.Len(t, s.Objects[0].Children, 1)
		require.Len(t, s.Objects[0].Children[0].Children, 1)
		assert.Empty(t, s.Objects[0].Children[0].Children[0].Children, "fourth level dropped")
	})

	t.Run("geometry args trimmed and clamped", func(t *testing.T) {
		out, err := Sanitize(`{"objects":[{"geometry":{"type":"torus","args":[500,-3,1,1,1,1,1,1]}}]}`)
		require.NoError(t, err)

		var s Scene
		require.NoError(t, json.Unmarshal([]byte(out), &s))
		args := s.Objects[0].Geometry.Args
		require.Len(t, args, 6)
		assert.Equal(t, 100.0, args[0])
		assert.Equal(t, 0.0, args[1])
	})

	t.Run("long names truncated", func(t *testing.T) {
		name := strings.Repeat("n", 80)
		out, err := Sanitize(fmt.Sprintf(`{"objects":[{"geometry":{"type":"box"},"name":"%s"}]}`, name))
		require.NoError(t, err)

		var s Scene
		require.NoError(t, json.Unmarshal([]byte(out), &s))
		assert.Len(t, s.Objects[0].Name, 50)
	})

	t.Run("multi-byte names truncate on rune boundaries", func(t *testing.T) {
		name := strings.Repeat("日", 80)
		out, err := Sanitize(fmt.Sprintf(`{"objects":[{"geometry":{"type":"box"},"name":"%s"}]}`, name))
		require.NoError(t, err)

		var s Scene
		require.NoError(t, json.Unmarshal([]byte(out), &s))
		got := s.Objects[0].Name
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, maxNameLength, utf8.RuneCountInString(got))
		assert.NotContains(t, got, "�")
	})
}

func TestSanitizeScale(t *testing.T) {
	t.Run("scalar scale becomes uniform vector", func(t *testing.T) {
		out, err := Sanitize(`{"objects":[{"geometry":{"type":"box"},"scale":2.5}]}`)
		require.NoError(t, err)

		var s Scene
		require.NoError(t, json.Unmarshal([]byte(out), &s))
		assert.Equal(t, []float64{2.5, 2.5, 2.5}, s.Objects[0].Scale)
	})

	t.Run("vector scale clamped per component", func(t *testing.T) {
		out, err := Sanitize(`{"objects":[{"geometry":{"type":"box"},"scale":[1, 500, -500]}]}`)
		require.NoError(t, err)

		var s Scene
		require.NoError(t, json.Unmarshal([]byte(out), &s))
		assert.Equal(t, []float64{1, 100, -100}, s.Objects[0].Scale)
	})
}

func TestSanitizeAnimation(t *testing.T) {
	out, err := Sanitize(`{"objects":[{
		"geometry": {"type": "box"},
		"animation": {"type": "rotate", "speed": 1000, "axis": "w", "amplitude": 3}
	}]}`)
	require.NoError(t, err)

	var s Scene
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	anim := s.Objects[0].Animation
	require.NotNil(t, anim)
	assert.Equal(t, "rotate", anim.Type)
	assert.Equal(t, 100.0, *anim.Speed)
	assert.Empty(t, anim.Axis, "unknown axis dropped")
	assert.Equal(t, 3.0, *anim.Amplitude)
}
