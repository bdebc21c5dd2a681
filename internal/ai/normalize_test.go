package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kardiahealth/kardia/internal/reply"
)

func TestNormalize_FencedJSON(t *testing.T) {
	raw := "```json\n{\"reply_components\":[{\"kind\":\"paragraph\",\"content\":\"hi\"}]}\n```"

	r, err := Normalize(raw)
	require.NoError(t, err)
	require.Len(t, r.Components, 1)
	assert.Equal(t, reply.KindParagraph, r.Components[0].Kind)
	assert.Equal(t, "hi", r.Components[0].Content)
}

func TestNormalize_FenceWithoutLanguageTag(t *testing.T) {
	raw := "```\n{\"reply_components\":[{\"kind\":\"header\",\"content\":\"Halo\"}]}\n```"

	r, err := Normalize(raw)
	require.NoError(t, err)
	require.Len(t, r.Components, 1)
	assert.Equal(t, reply.KindHeader, r.Components[0].Kind)
}

func TestNormalize_PlainJSON(t *testing.T) {
	r, err := Normalize(`  {"reply_components":[{"kind":"quote","content":"q"}]}  `)
	require.NoError(t, err)
	require.Len(t, r.Components, 1)
	assert.Equal(t, "q", r.Components[0].Content)
}

func TestNormalize_WrapperTolerance(t *testing.T) {
	inner := `{"reply_components":[{"kind":"paragraph","content":"sama"},{"kind":"list","items":["a","b"]}]}`
	unwrapped, err := Normalize(inner)
	require.NoError(t, err)

	for _, wrapper := range []string{"reply", "response", "data"} {
		t.Run(wrapper, func(t *testing.T) {
			r, err := Normalize(`{"` + wrapper + `":` + inner + `}`)
			require.NoError(t, err)
			assert.Equal(t, unwrapped, r)
		})
	}
}

func TestNormalize_TopLevelWinsOverWrapper(t *testing.T) {
	raw := `{
		"reply_components":[{"kind":"paragraph","content":"top"}],
		"reply":{"reply_components":[{"kind":"paragraph","content":"nested"}]}
	}`

	r, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "top", r.Components[0].Content)
}

func TestNormalize_UnrecognizedShape(t *testing.T) {
	_, err := Normalize(`{"foo":"bar","zed":1}`)

	var shapeErr *UnrecognizedResponseShape
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, []string{"foo", "zed"}, shapeErr.Keys)
}

func TestNormalize_NotJSON(t *testing.T) {
	_, err := Normalize("I am sorry, I cannot answer that.")

	var malformed *MalformedResponse
	require.ErrorAs(t, err, &malformed)
	assert.NotEmpty(t, malformed.Preview)
}

func TestNormalize_TopLevelArray(t *testing.T) {
	_, err := Normalize(`[{"kind":"paragraph","content":"hi"}]`)

	var shapeErr *UnrecognizedResponseShape
	require.ErrorAs(t, err, &shapeErr)
}

func TestNormalize_InvalidComponent(t *testing.T) {
	t.Run("missing kind", func(t *testing.T) {
		raw := `{"reply_components":[{"kind":"paragraph","content":"ok"},{"content":"no kind"}]}`
		_, err := Normalize(raw)

		var invalid *InvalidComponent
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, 1, invalid.Index)
	})

	t.Run("not a sequence", func(t *testing.T) {
		_, err := Normalize(`{"reply_components":"oops"}`)

		var invalid *InvalidComponent
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, -1, invalid.Index)
	})

	t.Run("empty sequence", func(t *testing.T) {
		_, err := Normalize(`{"reply_components":[]}`)

		var invalid *InvalidComponent
		require.ErrorAs(t, err, &invalid)
	})
}

func TestNormalize_ListItems(t *testing.T) {
	r, err := Normalize(`{"reply_components":[{"kind":"list","items":["satu","dua",3]}]}`)
	require.NoError(t, err)
	require.Len(t, r.Components, 1)
	assert.Equal(t, []string{"satu", "dua", "3"}, r.Components[0].Items)
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]struct {
		in, want string
	}{
		"no fence":     {`{"a":1}`, `{"a":1}`},
		"json tag":     {"```json\n{\"a\":1}\n```", `{"a":1}`},
		"bare fence":   {"```\n{\"a\":1}\n```", `{"a":1}`},
		"no newline":   {"```json{\"a\":1}```", `{"a":1}`},
		"trailing gap": {"```json\n{\"a\":1}\n```  ", `{"a":1}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, stripCodeFence(tc.in))
		})
	}
}
