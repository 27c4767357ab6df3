package timing

import "fmt"

// ConfigError reports a configuration value that was rejected before it could
// affect any running state.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}
