package fixture

import (
	"context"
	"errors"
	"testing"

	"sakaibot/internal/sakai/render"
	"sakaibot/lib/htmlutil"

	"github.com/stretchr/testify/require"
)

func TestNavigateWithFrames(t *testing.T) {
	s := New()
	s.Handle("https://sakai.test/portal", Static(`<html><head><title>Portal</title></head>
		<body><iframe src="/tool"></iframe></body></html>`))
	s.Handle("https://sakai.test/tool", Static(`<html><head><title>Tool</title></head>
		<body><p id="x">inside</p></body></html>`))

	var completions []render.Completion
	s.OnCompleted(func(c render.Completion) { completions = append(completions, c) })

	require.NoError(t, s.Navigate(context.Background(), render.Top, "https://sakai.test/portal"))
	require.Len(t, completions, 1)
	require.Equal(t, "Portal", completions[0].Title)
	require.Equal(t, "https://sakai.test/portal", completions[0].URL)

	page, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, page.Frames, 1)
	require.Equal(t, "inside", htmlutil.Text(page.Find(render.FramePath{0}, "#x")))
	require.Equal(t, 0, page.Find(render.FramePath{3}, "#x").Length())
}

func TestUnknownRouteReportsError(t *testing.T) {
	s := New()
	var got render.Completion
	s.OnCompleted(func(c render.Completion) { got = c })

	require.NoError(t, s.Navigate(context.Background(), render.Top, "https://sakai.test/missing"))
	require.Error(t, got.Err)
	require.Equal(t, "", got.Title)
}

func TestSubmitPostsFormValues(t *testing.T) {
	s := New()
	s.Handle("https://sakai.test/login", Static(`<html><head><title>Login</title></head><body>
		<form id="loginForm" method="post" action="/login/submit">
			<input id="eid" name="eid" type="text">
			<input id="pw" name="pw" type="password">
			<input type="checkbox" name="remember" value="yes">
			<input type="submit" name="submit" value="Log in">
		</form></body></html>`))

	var posted Request
	s.Handle("https://sakai.test/login/submit", func(req Request) string {
		posted = req
		return `<html><head><title>Home</title></head></html>`
	})

	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, render.Top, "https://sakai.test/login"))
	require.NoError(t, s.Execute(ctx, render.Top, render.SetValue{Selector: "#eid", Value: "teacher"}))
	require.NoError(t, s.Execute(ctx, render.Top, render.SetValue{Selector: "#pw", Value: "secret"}))
	require.NoError(t, s.Execute(ctx, render.Top, render.SetChecked{Selector: "input[name=remember]", Checked: true}))
	require.NoError(t, s.Execute(ctx, render.Top, render.Click{Selector: "input[name=submit]"}))

	require.Equal(t, "POST", posted.Method)
	require.Equal(t, "teacher", posted.Form.Get("eid"))
	require.Equal(t, "secret", posted.Form.Get("pw"))
	require.Equal(t, "yes", posted.Form.Get("remember"))
	require.Equal(t, "Log in", posted.Form.Get("submit"))

	page, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, "Home", page.Title)
	require.Len(t, s.Actions(), 4)
}

func TestExecuteMissingElement(t *testing.T) {
	s := New()
	s.Handle("https://sakai.test/", Static(`<html><head><title>x</title></head></html>`))
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, render.Top, "https://sakai.test/"))

	err := s.Execute(ctx, render.Top, render.Click{Selector: "#nope"})
	require.True(t, errors.Is(err, render.ErrElementNotFound))

	err = s.Execute(ctx, render.FramePath{1}, render.Click{Selector: "#nope"})
	require.True(t, errors.Is(err, render.ErrFrameNotFound))
}

func TestHoldDropsCompletions(t *testing.T) {
	s := New()
	s.Handle("https://sakai.test/", Static(`<html><head><title>x</title></head></html>`))
	count := 0
	s.OnCompleted(func(render.Completion) { count++ })

	s.Hold()
	require.NoError(t, s.Navigate(context.Background(), render.Top, "https://sakai.test/"))
	require.Equal(t, 0, count)

	s.Release()
	s.Emit(render.Completion{URL: "https://sakai.test/other"})
	require.Equal(t, 1, count)
}
