package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMatching(t *testing.T) {
	cause := errors.New("dial tcp: no such host")
	err := Wrap(IncorrectSakaiURL, cause, "navigate %s", "https://bad.example")
	wrapped := fmt.Errorf("initialize: %w", err)

	require.True(t, errors.Is(wrapped, IncorrectSakaiURL))
	require.True(t, errors.Is(wrapped, cause))
	require.False(t, errors.Is(wrapped, IncorrectLoginOrPassword))
	require.Equal(t, IncorrectSakaiURL, KindOf(wrapped))
	require.Equal(t, "IncorrectSakaiURL: navigate https://bad.example: dial tcp: no such host", err.Error())

	require.Equal(t, Kind(""), KindOf(cause))
	require.Equal(t, GradeUnsuccessful, KindOf(New(GradeUnsuccessful, "no grade input")))
}
