// Package logx configures staffbot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps console output
// readable, file output JSON-structured and mirrors warnings into an
// optional Telegram log chat.
package logx
