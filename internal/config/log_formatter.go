package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	colorRed         = 31
	colorGreen       = 32
	colorYellow      = 33
	colorBlue        = 36
	colorGray        = 37
	colorLightGreen  = 92
	colorLightYellow = 93
	colorCyan        = 96
)

// NbFormatter renders logrus entries as coloured key=value lines with fields in stable order.
type NbFormatter struct {
	// NoColor drops escape sequences, used when output is not a terminal.
	NoColor bool
	// CallerDepth is the runtime.Caller skip used for the source field; zero disables it.
	CallerDepth int
}

func (f *NbFormatter) paint(color int, s string) string {
	if f.NoColor {
		return s
	}
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", color, s)
}

func (f *NbFormatter) Format(entry *log.Entry) ([]byte, error) {
	levelColor := colorBlue
	switch entry.Level {
	case log.DebugLevel, log.TraceLevel:
		levelColor = colorGray
	case log.WarnLevel:
		levelColor = colorYellow
	case log.ErrorLevel, log.FatalLevel, log.PanicLevel:
		levelColor = colorRed
	}

	var b strings.Builder
	b.WriteString(f.paint(colorCyan, "level") + "=" + f.paint(levelColor, strings.ToUpper(entry.Level.String())[:4]))
	b.WriteString(" " + f.paint(colorCyan, "ts") + "=" + f.paint(colorLightYellow, entry.Time.Format("2006-01-02 15:04:05.000")))

	if f.CallerDepth > 0 {
		if _, file, line, ok := runtime.Caller(f.CallerDepth); ok {
			source := fmt.Sprintf("%s/%s:%d", filepath.Base(filepath.Dir(file)), filepath.Base(file), line)
			b.WriteString(" " + f.paint(colorCyan, "source") + "=" + f.paint(colorLightYellow, source))
		}
	}

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		var s string
		if err, ok := entry.Data[k].(error); ok {
			s = strconv.Quote(err.Error())
		} else if m, err := json.Marshal(entry.Data[k]); err == nil {
			s = string(m)
		}
		if s == "" {
			continue
		}
		valueColor := colorCyan
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			valueColor = colorGreen
		} else if strings.HasPrefix(s, "\"") && strings.HasSuffix(s, "\"") {
			valueColor = colorLightYellow
		}
		b.WriteString(" " + f.paint(colorCyan, k) + "=" + f.paint(valueColor, s))
	}
	b.WriteString(" " + f.paint(colorCyan, "msg") + "=" + f.paint(colorLightGreen, strconv.Quote(entry.Message)))

	output := strings.ReplaceAll(b.String(), "\r", "\\r")
	output = strings.ReplaceAll(output, "\n", "\\n") + "\n"
	return []byte(output), nil
}
