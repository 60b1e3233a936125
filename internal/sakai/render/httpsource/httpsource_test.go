package httpsource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sakaibot/internal/sakai/render"
	"sakaibot/lib/htmlutil"

	"github.com/stretchr/testify/require"
)

func newPortal(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/portal", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Portal</title></head><body>
			<iframe src="/tool"></iframe>
			<form id="login" method="post" action="/login">
				<input id="eid" name="eid"><input id="pw" name="pw" type="password">
			</form>
		</body></html>`)
	})
	mux.HandleFunc("/tool", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Tool</title></head><body><p id="x">tool body</p></body></html>`)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.PostFormValue("eid") != "teacher" || r.PostFormValue("pw") != "secret" {
			fmt.Fprint(w, `<html><head><title>Login</title></head><body>Invalid login</body></html>`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc"})
		http.Redirect(w, r, "/home", http.StatusFound)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("JSESSIONID"); err != nil {
			http.Error(w, "no session", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `<html><head><title>Home</title></head><body>welcome</body></html>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func waitCompletion(t *testing.T, ch <-chan render.Completion) render.Completion {
	select {
	case c := <-ch:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
	return render.Completion{}
}

func TestNavigateAndSubmit(t *testing.T) {
	server := newPortal(t)
	source, err := New(Options{BaseURL: server.URL, RequestsPerSecond: 100})
	require.NoError(t, err)
	defer source.Close()

	completions := make(chan render.Completion, 4)
	source.OnCompleted(func(c render.Completion) { completions <- c })

	ctx := context.Background()
	require.NoError(t, source.Navigate(ctx, render.Top, server.URL+"/portal"))
	c := waitCompletion(t, completions)
	require.NoError(t, c.Err)
	require.Equal(t, "Portal", c.Title)

	page, err := source.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, "tool body", htmlutil.Text(page.Find(render.FramePath{0}, "#x")))

	require.NoError(t, source.Execute(ctx, render.Top, render.SetValue{Selector: "#eid", Value: "teacher"}))
	require.NoError(t, source.Execute(ctx, render.Top, render.SetValue{Selector: "#pw", Value: "secret"}))
	require.NoError(t, source.Execute(ctx, render.Top, render.Submit{Selector: "#login"}))

	c = waitCompletion(t, completions)
	require.NoError(t, c.Err)
	require.Equal(t, "Home", c.Title)
	require.Equal(t, server.URL+"/home", c.URL)
	require.Equal(t, server.URL+"/login", c.Requested)
}

func TestErrorStatusIsReported(t *testing.T) {
	server := newPortal(t)
	source, err := New(Options{BaseURL: server.URL, RequestsPerSecond: 100})
	require.NoError(t, err)
	defer source.Close()

	completions := make(chan render.Completion, 1)
	source.OnCompleted(func(c render.Completion) { completions <- c })

	require.NoError(t, source.Navigate(context.Background(), render.Top, server.URL+"/home"))
	c := waitCompletion(t, completions)
	require.Error(t, c.Err)
	require.Empty(t, c.Title)
}
