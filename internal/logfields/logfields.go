package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBranch     = "branch"
	KeyArch       = "arch"
	KeyImage      = "image"
	KeyKind       = "kind"
	KeyTarget     = "target"
	KeyStage      = "stage"
	KeyPath       = "path"
	KeyRemote     = "remote"
	KeyDurationMS = "duration_ms"
	KeyRunID      = "run_id"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Branch(b string) slog.Attr       { return slog.String(KeyBranch, b) }
func Arch(a string) slog.Attr         { return slog.String(KeyArch, a) }
func Image(i string) slog.Attr        { return slog.String(KeyImage, i) }
func Kind(k string) slog.Attr         { return slog.String(KeyKind, k) }
func Target(t string) slog.Attr       { return slog.String(KeyTarget, t) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Remote(r string) slog.Attr       { return slog.String(KeyRemote, r) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
