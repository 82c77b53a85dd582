package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiGray   = "\x1b[90m"
)

// consoleTimeLayout keeps seconds resolution; the JSON format carries millis.
const consoleTimeLayout = "2006-01-02T15:04:05Z07:00"

// lineHeader holds the fields lifted out of key=value pairs and rendered ahead
// of the message as "component: [item 0123abcd (render)]".
type lineHeader struct {
	component string
	itemID    string
	stage     string
}

// absorb claims header keys and reports whether the pair was consumed. The
// first value seen for each key wins.
func (h *lineHeader) absorb(key string, value slog.Value) bool {
	var slot *string
	switch key {
	case FieldComponent:
		slot = &h.component
	case FieldItemID:
		slot = &h.itemID
	case FieldStage:
		slot = &h.stage
	default:
		return false
	}
	if *slot == "" {
		*slot = plainString(value)
	}
	return true
}

func (h lineHeader) subject() string {
	itemID := strings.TrimSpace(h.itemID)
	stage := strings.TrimSpace(h.stage)
	if len(itemID) > 8 {
		itemID = itemID[:8]
	}
	switch {
	case itemID != "" && stage != "":
		return "item " + itemID + " (" + stage + ")"
	case itemID != "":
		return "item " + itemID
	default:
		return stage
	}
}

// consoleHandler renders one human-readable line per record. Attributes bound
// through WithAttrs are formatted once and reused for every record.
type consoleHandler struct {
	mu        *sync.Mutex
	out       io.Writer
	level     slog.Leveler
	addSource bool
	color     bool

	keyPrefix string
	header    lineHeader
	bound     string
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource, color bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, out: w, level: lvl, addSource: addSource, color: color}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	header := h.header
	var pairs strings.Builder
	pairs.WriteString(h.bound)
	record.Attrs(func(attr slog.Attr) bool {
		h.appendAttr(&pairs, &header, h.keyPrefix, attr)
		return true
	})

	when := record.Time
	if when.IsZero() {
		when = time.Now()
	}

	var line strings.Builder
	line.Grow(96 + pairs.Len())
	line.WriteString(when.UTC().Format(consoleTimeLayout))
	line.WriteByte(' ')
	line.WriteString(h.levelLabel(record.Level))
	line.WriteByte(' ')
	if header.component != "" {
		line.WriteString(header.component)
		line.WriteString(": ")
	}
	if subject := header.subject(); subject != "" {
		fmt.Fprintf(&line, "[%s] ", subject)
	}
	if msg := strings.TrimSpace(record.Message); msg != "" {
		line.WriteString(msg)
	} else {
		line.WriteString("(no message)")
	}
	if h.addSource {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&line, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	line.WriteString(pairs.String())
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	var bound strings.Builder
	bound.WriteString(h.bound)
	for _, attr := range attrs {
		h.appendAttr(&bound, &next.header, h.keyPrefix, attr)
	}
	next.bound = bound.String()
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.keyPrefix = h.keyPrefix + name + "."
	return &next
}

// appendAttr writes " key=value" for attr, flattening groups into dotted keys.
// Ungrouped header keys go to header instead.
func (h *consoleHandler) appendAttr(buf *strings.Builder, header *lineHeader, prefix string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		if attr.Key != "" {
			prefix += attr.Key + "."
		}
		for _, member := range value.Group() {
			h.appendAttr(buf, header, prefix, member)
		}
		return
	}
	if attr.Key == "" {
		return
	}
	if prefix == "" && header.absorb(attr.Key, value) {
		return
	}
	buf.WriteByte(' ')
	buf.WriteString(prefix)
	buf.WriteString(attr.Key)
	buf.WriteByte('=')
	buf.WriteString(quoteIfNeeded(plainString(value)))
}

func (h *consoleHandler) levelLabel(level slog.Level) string {
	label, color := "DEBUG", ansiGray
	switch {
	case level >= slog.LevelError:
		label, color = "ERROR", ansiRed
	case level >= slog.LevelWarn:
		label, color = "WARN", ansiYellow
	case level >= slog.LevelInfo:
		label, color = "INFO", ansiCyan
	}
	if !h.color {
		return label
	}
	return color + label + ansiReset
}

func plainString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().UTC().Format(consoleTimeLayout)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		// Bool, Int64, Uint64 and Duration all print sensibly via String.
		return v.String()
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}
