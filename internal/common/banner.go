package common

import (
	"fmt"
	"io"
	"strings"

	"github.com/ternarybob/banner"
)

// PrintBanner writes the startup banner. The reader UI takes over the terminal
// right after, so this is the last thing written to it before the screen clears.
func PrintBanner(w io.Writer, config *Config, logger *Logger) {
	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	width := 56
	hr := lineColor + strings.Repeat("═", width) + banner.ColorReset

	art := []string{
		` 888     8888888888  .d8888b. 88888888888 8888888  .d88888b.`,
		` 888     888        d88P  Y88b    888       888   d88P" "Y88b`,
		` 888     8888888    888           888       888   888     888`,
		` 888     888        888    888    888       888   888     888`,
		` 88888888 8888888888 "Y8888P"     888     8888888  "Y88888P"`,
	}

	fmt.Fprintf(w, "\n%s\n\n", hr)
	for _, line := range art {
		fmt.Fprintf(w, "%s%s%s\n", textColor, line, banner.ColorReset)
	}
	fmt.Fprintf(w, "\n%s  Verse-by-verse Latin reader%s\n\n", textColor, banner.ColorReset)

	kvLines := [][2]string{
		{"Version", Version},
		{"Build", Build},
		{"Commit", GitCommit},
		{"Service", config.Service.BaseURL},
		{"Storage", config.Storage.Backend + " @ " + config.Storage.Path},
	}
	for _, kv := range kvLines {
		fmt.Fprintf(w, "%s  %-12s %s%s\n", textColor, kv[0], kv[1], banner.ColorReset)
	}
	fmt.Fprintf(w, "\n%s\n\n", hr)

	logger.Info().
		Str("version", Version).
		Str("service_url", config.Service.BaseURL).
		Str("storage", config.Storage.Backend).
		Msg("Reader started")
}

// PrintShutdownBanner writes the shutdown line.
func PrintShutdownBanner(w io.Writer, logger *Logger) {
	hr := banner.ColorCyan + strings.Repeat("═", 32) + banner.ColorReset
	fmt.Fprintf(w, "%s\n%s  LECTIO · VALE%s\n%s\n", hr, banner.ColorBold+banner.ColorWhite, banner.ColorReset, hr)
	logger.Info().Msg("Reader shutting down")
}
