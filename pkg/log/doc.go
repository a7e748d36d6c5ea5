// Package log provides the logging abstraction shared by the adris loops.
//
// The publisher, watchdog and launcher only depend on the Logger interface
// so tests can run them silently with NewNoopLogger and the CLI can plug in
// zerolog:
//
//	logger := log.NewZerologAdapterWithLogger(cliconfig.Logger("info"))
//	logger = log.With(logger, log.String("component", "publisher"))
//
// Field helpers (String, Int, Duration, Err, ...) keep call sites free of
// any concrete logging library.
package log
