// Package tui implements the terminal storefront using Bubble Tea.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette - petals and greenery
var (
	colorIvory     = lipgloss.Color("#FFF7F3")
	colorRose      = lipgloss.Color("#E05A87")
	colorBlush     = lipgloss.Color("#F4A7BB")
	colorLeaf      = lipgloss.Color("#6A994E")
	colorStem      = lipgloss.Color("#A7C957")
	colorLavender  = lipgloss.Color("#9D8DF1")
	colorHighlight = lipgloss.Color("#FF7AA2")
	colorWarning   = lipgloss.Color("#F2C14E")
	colorError     = lipgloss.Color("#E63946")
	colorMuted     = lipgloss.Color("#9E9E9E")
)

// Styles holds all the lipgloss styles for the TUI.
type Styles struct {
	App lipgloss.Style

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderHelp  lipgloss.Style
	Step        lipgloss.Style

	ListTitle lipgloss.Style

	ProductName        lipgloss.Style
	ProductPrice       lipgloss.Style
	ProductSalePrice   lipgloss.Style
	ProductDescription lipgloss.Style
	ProductCategory    lipgloss.Style

	Section lipgloss.Style
	Summary lipgloss.Style
	Total   lipgloss.Style
	Link    lipgloss.Style

	Subtle    lipgloss.Style
	Highlight lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Box       lipgloss.Style
	HelpBar   lipgloss.Style
}

// DefaultStyles returns the default TUI styles.
func DefaultStyles() Styles {
	return Styles{
		App: lipgloss.NewStyle().
			Padding(1, 2),

		Header: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(colorBlush).
			MarginBottom(1).
			Padding(0, 1),

		HeaderTitle: lipgloss.NewStyle().
			Foreground(colorRose).
			Bold(true),

		HeaderHelp: lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true),

		Step: lipgloss.NewStyle().
			Foreground(colorLavender),

		ListTitle: lipgloss.NewStyle().
			Foreground(colorRose).
			Bold(true).
			MarginBottom(1),

		ProductName: lipgloss.NewStyle().
			Foreground(colorRose).
			Bold(true).
			MarginBottom(1),

		ProductPrice: lipgloss.NewStyle().
			Foreground(colorLeaf).
			Bold(true),

		ProductSalePrice: lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true),

		ProductDescription: lipgloss.NewStyle().
			Foreground(colorIvory).
			MarginTop(1).
			MarginBottom(1),

		ProductCategory: lipgloss.NewStyle().
			Foreground(colorStem).
			Italic(true),

		Section: lipgloss.NewStyle().
			Foreground(colorLavender).
			Bold(true),

		Summary: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorBlush).
			Padding(0, 1).
			MarginTop(1),

		Total: lipgloss.NewStyle().
			Foreground(colorLeaf).
			Bold(true),

		Link: lipgloss.NewStyle().
			Foreground(colorLavender).
			Underline(true),

		Subtle: lipgloss.NewStyle().
			Foreground(colorMuted),

		Highlight: lipgloss.NewStyle().
			Foreground(colorHighlight).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(colorWarning),

		Error: lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true),

		Success: lipgloss.NewStyle().
			Foreground(colorLeaf),

		Box: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorBlush).
			Padding(1, 2),

		HelpBar: lipgloss.NewStyle().
			Foreground(colorMuted).
			MarginTop(1),
	}
}
