package ui

import (
	"slices"
	"sort"

	"github.com/alecthomas/chroma/v2/styles"
)

// DefaultTheme is used when no or an unknown theme is configured.
const DefaultTheme = "dracula"

// Themes returns the chroma styles offered for YAML highlighting.
func Themes() []string {
	// Curated list to keep cycling compact while useful.
	curated := []string{
		"dracula", "monokai", "github-dark", "nord", "solarized-dark",
		"solarized-light", "gruvbox", "friendly", "borland", "native",
	}
	avail := styles.Names()
	var names []string
	for _, n := range curated {
		if slices.Contains(avail, n) {
			names = append(names, n)
		}
	}
	if len(names) < 5 {
		names = avail
	}
	sort.Strings(names)
	return names
}

// nextTheme returns the theme following cur in Themes, wrapping around.
func nextTheme(cur string) string {
	names := Themes()
	if len(names) == 0 {
		return cur
	}
	i := slices.Index(names, cur)
	return names[(i+1)%len(names)]
}

// validTheme returns name if chroma knows it, DefaultTheme otherwise.
func validTheme(name string) string {
	if name != "" && slices.Contains(styles.Names(), name) {
		return name
	}
	return DefaultTheme
}
