package logutils

import (
	"fmt"

	"github.com/rs/zerolog"
)

const (
	colorRed     = 31
	colorGreen   = 32
	colorYellow  = 33
	colorBlue    = 34
	colorMagenta = 35

	colorBold = 1
)

func colorize(s any, c int) string {
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

var levelLabels = map[string]string{
	zerolog.LevelTraceValue: colorize("TRC", colorBlue),
	zerolog.LevelDebugValue: colorize("DBG", colorMagenta),
	zerolog.LevelInfoValue:  colorize("INF", colorGreen),
	zerolog.LevelWarnValue:  colorize("WRN", colorYellow),
	zerolog.LevelErrorValue: colorize("ERR", colorRed),
	zerolog.LevelFatalValue: colorize(colorize("FTL", colorRed), colorBold),
}

// ConsoleFormatLevel returns a colorizer for zerolog console level output.
func ConsoleFormatLevel() zerolog.Formatter {
	return func(i any) string {
		if ll, ok := i.(string); ok {
			if l, ok := levelLabels[ll]; ok {
				return l
			}
		}
		return colorize("???", colorBold)
	}
}

// ConsoleFormatErrFieldName returns formatter for error field name.
func ConsoleFormatErrFieldName() zerolog.Formatter {
	return func(i any) string {
		return fmt.Sprintf("%s=", i)
	}
}

// ConsoleFormatErrFieldValue returns formatter for error value.
func ConsoleFormatErrFieldValue() zerolog.Formatter {
	return func(i any) string {
		return colorize(i, colorRed)
	}
}
