package server

import "fmt"

const (
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m" // Bright black, often appears as gray

	ResetColor = "\033[0m" // Reset to default color
)

var methodColors = map[string]string{
	"GET":     Green,
	"POST":    Blue,
	"PUT":     Cyan,
	"DELETE":  Yellow,
	"PATCH":   Magenta,
	"OPTIONS": Gray,
}

func colourMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}

// colourStatus highlights failed responses in development logs.
func colourStatus(status int) string {
	switch {
	case status >= 500:
		return fmt.Sprintf("%s%d%s", Red, status, ResetColor)
	case status >= 400:
		return fmt.Sprintf("%s%d%s", Yellow, status, ResetColor)
	default:
		return fmt.Sprintf("%s%d%s", Green, status, ResetColor)
	}
}
