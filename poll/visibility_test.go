package poll_test

import (
	"testing"

	"github.com/jrsteele09/remycare-client/poll"
	"github.com/stretchr/testify/require"
)

func TestPage_Watch(t *testing.T) {
	page := poll.NewPage(true)
	var seen []bool
	cancel := page.Watch(func(v bool) { seen = append(seen, v) })

	page.SetVisible(true) // unchanged
	page.SetVisible(false)
	page.SetVisible(true)
	require.Equal(t, []bool{false, true}, seen)

	cancel()
	cancel()
	page.SetVisible(false)
	require.Equal(t, []bool{false, true}, seen)
	require.Zero(t, page.Watchers())
	require.False(t, page.Visible())
}
