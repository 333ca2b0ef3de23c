// Package logx configures autopost's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//
// Sinks and level are swappable at runtime via Service.Apply, so a config
// reload never requires recreating loggers already handed out.
package logx
