package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/pdfformfiller/internal/form"
)

func TestParseDuplicatePolicy(t *testing.T) {
	p, err := ParseDuplicatePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyCollapse, p)

	p, err = ParseDuplicatePolicy("per_page")
	require.NoError(t, err)
	assert.Equal(t, PolicyPerPage, p)

	_, err = ParseDuplicatePolicy("merge")
	assert.Error(t, err)
}

func TestApplyPolicy(t *testing.T) {
	widgets := func() []Widget {
		return []Widget{
			{FullName: "name", Page: 1, Code: form.CodeTextAlt},
			{FullName: "date", Page: 1, Code: form.CodeTextAlt},
			{FullName: "name", Page: 2, Code: form.CodeTextAlt},
			{FullName: "name", Page: 3, Code: form.CodeTextAlt},
			{FullName: "", Page: 3},
		}
	}

	collapsed := widgets()
	applyPolicy(PolicyCollapse, collapsed)
	fields := collectFields(collapsed)
	require.Len(t, fields, 2)
	assert.Equal(t, "name", fields[0].Name)
	assert.Equal(t, "date", fields[1].Name)
	assert.Equal(t, "name", collapsed[3].Name)

	perPage := widgets()
	applyPolicy(PolicyPerPage, perPage)
	fields = collectFields(perPage)
	require.Len(t, fields, 4)
	assert.Equal(t, []string{"name", "date", "name@p2", "name@p3"},
		[]string{fields[0].Name, fields[1].Name, fields[2].Name, fields[3].Name})
	assert.Equal(t, 2, fields[2].Page)
	assert.Empty(t, perPage[4].Name)
}

func TestRectHelpers(t *testing.T) {
	r := Rect{LLX: 100, LLY: 700, URX: 300, URY: 720}
	assert.Equal(t, 200.0, r.Width())
	assert.Equal(t, 20.0, r.Height())
	assert.Equal(t, Rect{LLX: 102, LLY: 701, URX: 298, URY: 719}, r.Inset(2, 1))
	cx, cy := r.Center()
	assert.Equal(t, 200.0, cx)
	assert.Equal(t, 710.0, cy)
}
