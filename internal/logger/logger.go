package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvcrn/bggeo-token-refresh/internal/env"
)

const (
	colorRed     = 31
	colorGreen   = 32
	colorYellow  = 33
	colorMagenta = 35

	colorBold = 1
)

func colorize(s interface{}, c int) string {
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

// New creates a logger based on the ENV environment variable. LOG_LEVEL, when
// set to a valid zerolog level, overrides the default of debug.
func New() zerolog.Logger {
	mode, _ := env.Get("ENV")

	var l zerolog.Logger
	if isDevelopment(mode) {
		l = NewDevelopment(os.Stderr)
	} else {
		l = NewProduction(os.Stderr)
	}

	if raw, ok := env.Get("LOG_LEVEL"); ok {
		level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			l.Warn().Str("log_level", raw).Msg("Ignoring invalid LOG_LEVEL")
			return l
		}
		l = l.Level(level)
	}
	return l
}

func isDevelopment(mode string) bool {
	switch strings.ToLower(mode) {
	case "", "dev", "development":
		return true
	}
	return false
}

// NewDevelopment creates a development logger with console output and colors
func NewDevelopment(out io.Writer) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:         out,
		TimeFormat:  "2006-01-02 15:04:05",
		FormatLevel: formatLevel,
	}
	return zerolog.New(output).With().Timestamp().Logger()
}

// NewProduction creates a production logger with JSON output and UNIX timestamps
func NewProduction(out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(out).With().Timestamp().Logger()
}

func formatLevel(i interface{}) string {
	ll, ok := i.(string)
	if !ok {
		s := strings.ToUpper(fmt.Sprintf("%s", i))
		if len(s) > 3 {
			s = s[:3]
		}
		return s
	}
	switch ll {
	case "trace":
		return colorize("TRC", colorMagenta)
	case "debug":
		return colorize("DBG", colorYellow)
	case "info":
		return colorize("INF", colorGreen)
	case "warn":
		return colorize("WRN", colorRed)
	case "error":
		return colorize("ERR", colorRed)
	case "fatal":
		return colorize("FTL", colorRed)
	case "panic":
		return colorize("PNC", colorRed)
	}
	s := strings.ToUpper(ll)
	if len(s) > 3 {
		s = s[:3]
	}
	return colorize(s, colorBold)
}
