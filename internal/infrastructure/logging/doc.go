// Package logging builds the root zap logger of the host.
//
// Production writes JSON lines to stderr; development writes colored console
// output at debug level. The level is atomic, so the debug server can raise
// it on a running host through LevelHandler.
//
// Components never construct their own zap configuration; they receive a
// named child logger from the composition root:
//
//	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level})
//	fetchLog := logger.Component("fetch")
//	fetchLog.Warn("fetch failed", zap.Int("attempt", n), zap.Error(err))
package logging
