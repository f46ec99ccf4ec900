package core

import (
	"context"
	"strings"
)

// LogWarning routes a row-level Warning to the configured logger at the
// severity implied by its Kind, per §7: MalformedURL is debug-level,
// everything else is a warning.
func LogWarning(ctx context.Context, logger Logger, component string, w Warning) {
	if logger == nil {
		return
	}
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	fields := map[string]any{
		"component": component,
		"kind":      w.Kind,
		"detail":    w.Detail,
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	switch w.Kind {
	case WarningKindMalformedURL:
		logger.Debug(w.Message)
	default:
		logger.Warn(w.Message)
	}
}

// LogRunOutcome logs the result of a stage-level operation (fetch, parse,
// ingest) at info on success and error on failure, tagging the component
// and package manager so scheduler logs can be filtered per pipeline.
func LogRunOutcome(ctx context.Context, logger Logger, component, packageManager string, err error) {
	if logger == nil {
		return
	}
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	fields := map[string]any{
		"component":       component,
		"package_manager": packageManager,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	if err != nil {
		logger.Error(strings.TrimSpace(component + " run failed"))
		return
	}
	logger.Info(strings.TrimSpace(component + " run completed"))
}
