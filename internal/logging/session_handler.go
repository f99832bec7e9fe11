package logging

import "log/slog"

// FieldSessionID identifies one daemon run across every record it emits.
const FieldSessionID = "session_id"

// newSessionIDHandler pre-binds session_id so handlers derived with With or
// WithGroup keep it at the top level.
func newSessionIDHandler(base slog.Handler, sessionID string) slog.Handler {
	if base == nil {
		return nopHandler{}
	}
	return base.WithAttrs([]slog.Attr{slog.String(FieldSessionID, sessionID)})
}
