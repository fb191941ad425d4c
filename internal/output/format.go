package output

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tanq16/smartdl/internal/utils"
	"golang.org/x/term"
)

func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond <= 0 {
		return "0 B/s"
	}
	return utils.FormatBytes(uint64(bytesPerSecond)) + "/s"
}

// FormatETA renders a remaining duration; negative means unknown.
func FormatETA(eta time.Duration) string {
	if eta < 0 {
		return "--"
	}
	return eta.Round(time.Second).String()
}

func ProgressBar(current, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	if total <= 0 {
		total = 1
	}
	current = max(0, min(current, total))
	percent := float64(current) / float64(total)
	filled := max(0, min(int(percent*float64(width)), width))
	bar := StyleSymbols["bullet"]
	bar += strings.Repeat(StyleSymbols["hline"], filled)
	bar += strings.Repeat(" ", width-filled)
	bar += StyleSymbols["bullet"]
	return fmt.Sprintf("%s %.1f%%", bar, percent*100)
}

func terminalSize() (int, int) {
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 || height <= 0 {
		return 80, 24
	}
	return width, height
}

func wrapText(text string, width int) []string {
	if width <= 10 {
		width = 80
	}
	if utf8.RuneCountInString(text) <= width {
		return []string{text}
	}
	var lines []string
	var current []rune
	for _, r := range text {
		if len(current) == width {
			lines = append(lines, string(current))
			current = current[:0]
		}
		current = append(current, r)
	}
	if len(current) > 0 {
		lines = append(lines, string(current))
	}
	return lines
}
