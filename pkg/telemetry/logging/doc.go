// Package logging configures structured logging for Callisto.
//
// All components log through log/slog with a "component" attribute. This
// package builds the process-wide handler from the telemetry configuration
// and installs it as the slog default:
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
package logging
