package tui

import "strconv"

// DefaultTheme is used when no theme or an unknown theme is configured.
const DefaultTheme = "default"

type rgb struct {
	r int
	g int
	b int
}

// Theme holds the 24-bit colours used by the renderers.
type Theme struct {
	Name       string
	HeaderBG   rgb
	HeaderFG   rgb
	SelectedBG rgb
	SelectedFG rgb
	EditingFG  rgb
	BrowsingFG rgb
	StatusFG   rgb
	ErrorFG    rgb
}

const (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
)

var themes = map[string]Theme{
	"default": {
		Name:       "default",
		HeaderBG:   rgb{r: 26, g: 27, b: 38},
		HeaderFG:   rgb{r: 192, g: 202, b: 245},
		SelectedBG: rgb{r: 122, g: 162, b: 247},
		SelectedFG: rgb{r: 26, g: 27, b: 38},
		EditingFG:  rgb{r: 158, g: 206, b: 106},
		BrowsingFG: rgb{r: 125, g: 207, b: 255},
		StatusFG:   rgb{r: 127, g: 133, b: 163},
		ErrorFG:    rgb{r: 247, g: 118, b: 142},
	},
	"outrun": {
		Name:       "outrun",
		HeaderBG:   rgb{r: 32, g: 8, b: 56},
		HeaderFG:   rgb{r: 240, g: 241, b: 255},
		SelectedBG: rgb{r: 0, g: 229, b: 255},
		SelectedFG: rgb{r: 10, g: 13, b: 23},
		EditingFG:  rgb{r: 255, g: 91, b: 189},
		BrowsingFG: rgb{r: 112, g: 214, b: 255},
		StatusFG:   rgb{r: 154, g: 163, b: 178},
		ErrorFG:    rgb{r: 255, g: 107, b: 107},
	},
	"gruvbox": {
		Name:       "gruvbox",
		HeaderBG:   rgb{r: 60, g: 56, b: 54},
		HeaderFG:   rgb{r: 235, g: 219, b: 178},
		SelectedBG: rgb{r: 250, g: 189, b: 47},
		SelectedFG: rgb{r: 40, g: 40, b: 40},
		EditingFG:  rgb{r: 214, g: 93, b: 14},
		BrowsingFG: rgb{r: 131, g: 165, b: 152},
		StatusFG:   rgb{r: 146, g: 131, b: 116},
		ErrorFG:    rgb{r: 251, g: 73, b: 52},
	},
}

// ThemeNames lists the built-in themes.
func ThemeNames() []string {
	return []string{"default", "outrun", "gruvbox"}
}

// ThemeForName returns the named theme, falling back to the default.
func ThemeForName(name string) Theme {
	if theme, ok := themes[name]; ok {
		return theme
	}
	return themes[DefaultTheme]
}

func ansiFgRGB(c rgb) string {
	return "\x1b[38;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}

func ansiBgRGB(c rgb) string {
	return "\x1b[48;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}
