package banner

import (
	"volley/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
 _    __      ____          
| |  / /___  / / /__  __  __
| | / / __ \/ / / _ \/ / / /
| |/ / /_/ / / /  __/ /_/ / 
|___/\____/_/_/\___/\__, /  
                   /____/   `

	return "\n" + style.Render(ascii) + "\n"
}
