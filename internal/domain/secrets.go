package domain

import (
	"encoding/json"
	"log/slog"
)

const redacted = "[REDACTED]"

// SecretString holds a resend token or a verification code. Every printing
// path (fmt verbs including %#v, slog, JSON) yields a placeholder; only
// Expose returns the value.
type SecretString string

func (s SecretString) String() string   { return redacted }
func (s SecretString) GoString() string { return redacted }

// LogValue implements slog.LogValuer.
func (s SecretString) LogValue() slog.Value { return slog.StringValue(redacted) }

// MarshalJSON implements json.Marshaler.
func (s SecretString) MarshalJSON() ([]byte, error) { return json.Marshal(redacted) }

// Expose returns the raw value, e.g. to hand a resend token back to the
// backend that issued it.
func (s SecretString) Expose() string { return string(s) }

func (s SecretString) IsEmpty() bool { return len(s) == 0 }

// SecretBytes holds the code MAC pepper with the same protections as
// SecretString.
type SecretBytes []byte

func (s SecretBytes) String() string   { return redacted }
func (s SecretBytes) GoString() string { return redacted }

// LogValue implements slog.LogValuer.
func (s SecretBytes) LogValue() slog.Value { return slog.StringValue(redacted) }

// MarshalJSON implements json.Marshaler.
func (s SecretBytes) MarshalJSON() ([]byte, error) { return json.Marshal(redacted) }

// Expose returns the raw bytes.
func (s SecretBytes) Expose() []byte { return []byte(s) }

func (s SecretBytes) IsEmpty() bool { return len(s) == 0 }

var (
	_ slog.LogValuer = SecretString("")
	_ slog.LogValuer = SecretBytes{}
	_ json.Marshaler = SecretString("")
	_ json.Marshaler = SecretBytes{}
)
