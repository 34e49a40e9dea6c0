package config

import "github.com/kbukum/tilekit/errors"

// ProcessingMode governs how existing output interacts with a run.
type ProcessingMode string

const (
	// ModeMemory computes everything and keeps results in memory, never
	// touching persisted output.
	ModeMemory ProcessingMode = "memory"
	// ModeReadonly never computes; existing output is read as-is.
	ModeReadonly ProcessingMode = "readonly"
	// ModeContinue skips tiles whose output already exists and computes the
	// rest.
	ModeContinue ProcessingMode = "continue"
	// ModeOverwrite recomputes and rewrites every tile.
	ModeOverwrite ProcessingMode = "overwrite"
)

// ParseMode resolves a configuration value to a ProcessingMode.
func ParseMode(s string) (ProcessingMode, error) {
	switch ProcessingMode(s) {
	case ModeMemory, ModeReadonly, ModeContinue, ModeOverwrite:
		return ProcessingMode(s), nil
	case "":
		return ModeContinue, nil
	default:
		return "", errors.ConfigInvalid("unknown processing mode "+s).WithDetail("mode", s)
	}
}

// AllowsRead reports whether existing output may be read in this mode.
func (m ProcessingMode) AllowsRead() bool {
	return m == ModeReadonly || m == ModeContinue
}

// AllowsWrite reports whether output may be written in this mode.
func (m ProcessingMode) AllowsWrite() bool {
	return m == ModeContinue || m == ModeOverwrite
}

// SkipsExisting reports whether tiles with existing output bypass execution.
func (m ProcessingMode) SkipsExisting() bool {
	return m == ModeReadonly || m == ModeContinue
}

// Computes reports whether tiles missing from output are computed in this
// mode. Readonly serves existing output only; the user function never runs.
func (m ProcessingMode) Computes() bool {
	return m != ModeReadonly
}
