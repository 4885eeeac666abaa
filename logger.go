package auth

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoopLogger returns a logger that drops every entry.
func NoopLogger() Logger {
	return noopLogger{}
}

type staticProvider struct {
	logger Logger
}

func (p staticProvider) GetLogger(string) Logger {
	return p.logger
}

// ProviderFromLogger wraps a single logger as a LoggerProvider.
func ProviderFromLogger(logger Logger) LoggerProvider {
	if logger == nil {
		logger = NoopLogger()
	}
	return staticProvider{logger: logger}
}

// ResolveLogger returns a usable provider/logger pair for the given name.
// A provider that yields nil falls back to the logger, and a nil logger
// falls back to a no-op logger.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if logger == nil {
		logger = NoopLogger()
	}

	if provider == nil {
		return ProviderFromLogger(logger), logger
	}

	resolved := provider.GetLogger(name)
	if resolved == nil {
		return ProviderFromLogger(logger), logger
	}

	return provider, resolved
}
