package theme

import (
	"fmt"
	"io"
	"strings"

	"github.com/Li-Victor/Twittter/internal/model"
)

const (
	cyan    = "\033[36m"
	magenta = "\033[35m"
	yellow  = "\033[33m"
	dim     = "\033[2m"
	reset   = "\033[0m"
)

// Banner returns the header shown by the interactive commands.
func Banner() string {
	art := "" +
		cyan + "  ▀█▀ █ █ █ █ ▀█▀ ▀█▀ ▀█▀ █▀▀ █▀█\n" + reset +
		cyan + "   █  ▀▄▀▄▀ █  █   █   █  ██▄ █▀▄\n" + reset +
		yellow + "  ─────────────────────────────────\n" + reset +
		"   " + magenta + "a terminal client for the v1.1 API" + reset + "\n"
	return art
}

// Welcome is the greeting printed once a login completes.
func Welcome(u model.User) string {
	return fmt.Sprintf("Welcome %s%s%s (@%s)", magenta, u.Name, reset, u.ScreenName)
}

// WriteTweet renders one timeline row.
func WriteTweet(w io.Writer, t model.Tweet) {
	marks := ""
	if t.Favorited {
		marks += yellow + " ★" + reset
	}
	if t.Retweeted {
		marks += cyan + " ⟳" + reset
	}
	header := fmt.Sprintf("%s%s%s @%s %s· %s  %s%s", magenta, t.Author.Name, reset, t.Author.ScreenName, dim, t.CreatedAtShort(), t.ID, reset)
	if t.IsRetweet() {
		header = dim + "⟳ @" + t.RetweetedBy.ScreenName + " retweeted" + reset + "\n" + header
	}
	fmt.Fprintln(w, header+marks)
	for _, line := range strings.Split(t.Text, "\n") {
		fmt.Fprintln(w, "  "+line)
	}
	fmt.Fprintf(w, "  %s♥ %d  ⟳ %d%s\n\n", dim, t.FavoriteCount, t.RetweetCount, reset)
}
