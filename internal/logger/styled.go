// internal/logger/styled.go
package logger

import (
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"
	"github.com/sslproxymanager/core/theme"
)

// defaultRingCapacityBytes bounds the get_logs tail kept in memory per StyledLogger.
const defaultRingCapacityBytes = 256 * 1024

// StyledLogger wraps slog.Logger with theme-aware formatting methods. Every
// record is also mirrored into a bounded in-memory ring so the ops surface
// can serve get_logs/clear_logs without depending on file/terminal output.
type StyledLogger struct {
	logger *slog.Logger
	theme  *theme.Theme
	ring   *RingSink
}

// NewStyledLogger creates a new styled logger with the given theme
func NewStyledLogger(logger *slog.Logger, theme *theme.Theme) *StyledLogger {
	ring := NewRingSink(defaultRingCapacityBytes)
	ringHandler := slog.NewJSONHandler(ring, &slog.HandlerOptions{Level: slog.LevelDebug})
	combined := &simpleMultiHandler{handlers: []slog.Handler{logger.Handler(), ringHandler}}
	return &StyledLogger{
		logger: slog.New(combined),
		theme:  theme,
		ring:   ring,
	}
}

// GetLogs returns the buffered tail of recent log lines.
func (sl *StyledLogger) GetLogs() []string {
	return sl.ring.Lines()
}

// ClearLogs discards the buffered log tail.
func (sl *StyledLogger) ClearLogs() {
	sl.ring.Reset()
}

func (sl *StyledLogger) Debug(msg string, args ...any) {
	sl.logger.Debug(msg, args...)
}

func (sl *StyledLogger) Info(msg string, args ...any) {
	sl.logger.Info(msg, args...)
}

func (sl *StyledLogger) Warn(msg string, args ...any) {
	sl.logger.Warn(msg, args...)
}

func (sl *StyledLogger) Error(msg string, args ...any) {
	sl.logger.Error(msg, args...)
}

func (sl *StyledLogger) InfoWithCount(msg string, count int, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{*sl.theme.Counts}.Sprint("(", count, ")"))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithNumbers(msg string, numbers ...int64) {
	var formattedNums []string
	for _, num := range numbers {
		formattedNums = append(formattedNums, pterm.Style{*sl.theme.Counts}.Sprint(num))
	}

	styledMsg := fmt.Sprintf(msg, toInterfaceSlice(formattedNums)...)
	sl.logger.Info(styledMsg)
}

// InfoWithListener styles a listener address, e.g. when a bind succeeds.
func (sl *StyledLogger) InfoWithListener(msg string, addr string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{*sl.theme.Listener}.Sprint(addr))
	sl.logger.Info(styledMsg, args...)
}

// WarnWithListener styles a listener address in a warning line.
func (sl *StyledLogger) WarnWithListener(msg string, addr string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{*sl.theme.Listener}.Sprint(addr))
	sl.logger.Warn(styledMsg, args...)
}

// ErrorWithListener styles a listener address in an error line (bind failure).
func (sl *StyledLogger) ErrorWithListener(msg string, addr string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{*sl.theme.Listener}.Sprint(addr))
	sl.logger.Error(styledMsg, args...)
}

// InfoWithRoute styles a route id, e.g. on a matched-route access log.
func (sl *StyledLogger) InfoWithRoute(msg string, routeID string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{*sl.theme.Route}.Sprint(routeID))
	sl.logger.Info(styledMsg, args...)
}

// InfoWithUpstream styles an upstream address, e.g. when the balancer picks it.
func (sl *StyledLogger) InfoWithUpstream(msg string, upstream string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{*sl.theme.Upstream}.Sprint(upstream))
	sl.logger.Info(styledMsg, args...)
}

// WarnWithUpstream styles an upstream address in a warning line (e.g. fail-timeout promotion).
func (sl *StyledLogger) WarnWithUpstream(msg string, upstream string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{*sl.theme.Upstream}.Sprint(upstream))
	sl.logger.Warn(styledMsg, args...)
}

// ErrorWithUpstream styles an upstream address in an error line (e.g. dial failure).
func (sl *StyledLogger) ErrorWithUpstream(msg string, upstream string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{*sl.theme.Upstream}.Sprint(upstream))
	sl.logger.Error(styledMsg, args...)
}

// InfoUpstreamUp marks an upstream as recovered/reachable.
func (sl *StyledLogger) InfoUpstreamUp(msg string, upstream string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{*sl.theme.Healthy}.Sprint(upstream))
	sl.logger.Info(styledMsg, args...)
}

// WarnUpstreamDown marks an upstream as failed out of rotation.
func (sl *StyledLogger) WarnUpstreamDown(msg string, upstream string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{*sl.theme.Unhealth}.Sprint(upstream))
	sl.logger.Warn(styledMsg, args...)
}

// GetUnderlying returns the underlying slog.Logger for cases where direct access is needed
func (sl *StyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

// WithAttrs creates a new StyledLogger with additional structured attributes
func (sl *StyledLogger) WithAttrs(attrs ...slog.Attr) *StyledLogger {
	args := make([]any, 0, len(attrs)*2)
	for _, attr := range attrs {
		args = append(args, attr.Key, attr.Value)
	}

	return &StyledLogger{
		logger: sl.logger.With(args...),
		theme:  sl.theme,
		ring:   sl.ring,
	}
}

// With creates a new StyledLogger with additional key-value pairs
func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{
		logger: sl.logger.With(args...),
		theme:  sl.theme,
		ring:   sl.ring,
	}
}

func toInterfaceSlice(strs []string) []interface{} {
	result := make([]interface{}, len(strs))
	for i, s := range strs {
		result[i] = s
	}
	return result
}

// NewWithTheme creates both a regular logger and a styled logger
func NewWithTheme(cfg *Config) (*slog.Logger, *StyledLogger, func(), error) {
	logger, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	appTheme := theme.GetTheme(cfg.Theme)
	styledLogger := NewStyledLogger(logger, appTheme)

	return logger, styledLogger, cleanup, nil
}
