// Package logging provides the slog-based logging stack shared by every
// distill component: console and JSON handlers, standardized field names, and
// helpers to derive loggers from request context.
package logging
