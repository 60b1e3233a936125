package admission

import (
	"errors"
	"testing"

	"sakaibot/internal/sakai/render"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		a, b string
	}{
		{a: "https://Sakai.test/portal/", b: "https://sakai.test/portal/"},
		{a: "https://sakai.test/portal#top", b: "https://sakai.test/portal"},
		{a: "https://sakai.test/tool?b=2&a=1", b: "https://sakai.test/tool?a=1&b=2"},
		{a: "https://sakai.test:443/portal", b: "https://sakai.test/portal"},
		{a: " https://sakai.test/x ", b: "https://sakai.test/x"},
	}
	for _, c := range cases {
		require.Equal(t, Normalize(c.b), Normalize(c.a), c.a)
	}
	require.Empty(t, Normalize("  "))
}

func TestAdmit(t *testing.T) {
	const target = "https://sakai.test/portal/site/phys"

	cases := []struct {
		name       string
		completion render.Completion
		admit      bool
	}{
		{
			name:       "matching url and title",
			completion: render.Completion{URL: target, Title: "Physics"},
			admit:      true,
		},
		{
			name:       "redirected but requested target",
			completion: render.Completion{URL: "https://sakai.test/other", Requested: target, Title: "Physics"},
			admit:      true,
		},
		{
			name:       "blank title",
			completion: render.Completion{URL: target, Title: "  "},
		},
		{
			name:       "other document",
			completion: render.Completion{URL: "https://sakai.test/portal/site/chem", Title: "Chemistry"},
		},
		{
			name:       "failed navigation to target",
			completion: render.Completion{Requested: target, Err: errors.New("dns")},
			admit:      true,
		},
	}
	for _, c := range cases {
		sync := New()
		sync.Expect(target)
		require.Equal(t, c.admit, sync.Admit(c.completion), c.name)
	}
}

func TestAdmitWithoutTarget(t *testing.T) {
	sync := New()
	require.False(t, sync.Admit(render.Completion{URL: "https://sakai.test/", Title: "x"}))
}

func TestExpectAnyIsSingleUse(t *testing.T) {
	sync := New()
	sync.Expect("https://sakai.test/a")
	sync.ExpectAny()
	require.True(t, sync.Armed())

	unrelated := render.Completion{URL: "https://sakai.test/b"}
	require.True(t, sync.Admit(unrelated))
	require.False(t, sync.Armed())
	require.False(t, sync.Admit(unrelated))
}

func TestDisarm(t *testing.T) {
	sync := New()
	require.False(t, sync.Disarm())
	sync.ExpectAny()
	require.True(t, sync.Disarm())
	require.False(t, sync.Admit(render.Completion{URL: "https://sakai.test/", Title: "x"}))

	sync.Expect("https://sakai.test/")
	sync.ExpectAny()
	sync.Reset()
	require.Empty(t, sync.Target())
	require.False(t, sync.Armed())
}
