// Package logx configures postbot's structured logging.
//
// The wrapper (logx.Logger) sits on top of zerolog and keeps:
//   - console output readable (short timestamp + short caller)
//   - file output JSON-structured
//   - outputs swappable at runtime (config hot reload) without re-plumbing loggers
package logx
