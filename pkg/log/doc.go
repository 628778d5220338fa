// Package log provides structured logging for vocd built on zerolog.
//
// Call Init once at startup to configure the global Logger, then use the
// package-level helpers or a WithComponent/WithDatabase child logger from
// any package.
package log
