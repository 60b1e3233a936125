package chromesource

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"testing"
	"time"

	"sakaibot/internal/sakai/render"
	"sakaibot/lib/htmlutil"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestWindowExpr(t *testing.T) {
	require.Equal(t, "(function() { var w = window; return w; })()", windowExpr(render.Top))
	require.Contains(t, windowExpr(render.FramePath{1, 0}), "w = w.frames[1];")
	require.Contains(t, windowExpr(render.FramePath{1, 0}), "w = w.frames[0];")
}

func TestActionScript(t *testing.T) {
	body, selector, err := actionScript(render.SetValue{Selector: "#eid", Value: `a"b`})
	require.NoError(t, err)
	require.Equal(t, "#eid", selector)
	require.Contains(t, body, `el.value = "a\"b";`)

	body, _, err = actionScript(render.Select{Selector: "select", Values: []string{"x"}})
	require.NoError(t, err)
	require.Contains(t, body, `["x"]`)
}

func startChrome(t *testing.T) string {
	if os.Getenv("SAKAIBOT_CONTAINER_TESTS") == "" {
		t.Skip("set SAKAIBOT_CONTAINER_TESTS=1 to run tests against a headless chrome container")
	}

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	chrome, err := testcontainers.GenericContainer(
		context.Background(),
		testcontainers.GenericContainerRequest{
			Started: true,
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "chromedp/headless-shell:latest",
				ExposedPorts: []string{"9222/tcp"},
				WaitingFor:   wait.ForListeningPort("9222/tcp"),
			},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		err := chrome.Terminate(context.Background())
		if err != nil {
			t.Fatal(err)
		}
	})

	endpoint, err := chrome.PortEndpoint(context.Background(), "9222/tcp", "ws")
	if err != nil {
		t.Fatal(err)
	}
	return endpoint
}

func TestChromeSource(t *testing.T) {
	remote := startChrome(t)

	source, err := New(context.Background(), Options{RemoteURL: remote})
	require.NoError(t, err)
	defer source.Close()

	completions := make(chan render.Completion, 8)
	source.OnCompleted(func(c render.Completion) { completions <- c })

	target := "data:text/html," + url.PathEscape(`<html><head><title>Fixture</title></head>
		<body><input id="eid" value=""></body></html>`)
	require.NoError(t, source.Navigate(context.Background(), render.Top, target))

	select {
	case c := <-completions:
		require.NoError(t, c.Err)
		require.Equal(t, "Fixture", c.Title)
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for completion")
	}

	require.NoError(t, source.Execute(context.Background(), render.Top, render.SetValue{Selector: "#eid", Value: "teacher"}))
	err = source.Execute(context.Background(), render.Top, render.Click{Selector: "#missing"})
	require.ErrorIs(t, err, render.ErrElementNotFound)

	page, err := source.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Fixture", page.Title)
	require.Equal(t, 1, page.Find(render.Top, "#eid").Length(), fmt.Sprint(htmlutil.Text(page.Doc.Selection)))
}
