// Package logger wraps zap for the release binaries:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing for the --log-level flag.
//
// Services receive a context and log through it, so a run can be scoped
// with a name and a run identifier once and every line carries them.
package logger
