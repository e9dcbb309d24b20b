// Package logx wraps zerolog behind a small structured-logging API.
//
// Components receive a Logger value (usually derived with With) and never
// touch zerolog directly. The Service owns the sinks (console, file) and
// can swap level and outputs at runtime via Apply, so a config hot reload
// changes logging without re-wiring the components that hold Logger values.
//
// The zero Logger is a safe no-op.
package logx
