package config

import "strings"

// ConfigurationError reports provider credentials missing at the moment a
// provider is used.
type ConfigurationError struct {
	Vars []string
}

func (e *ConfigurationError) Error() string {
	return "Configuration error: " + strings.Join(e.Vars, ", ") + " not set"
}

// Require returns a *ConfigurationError naming every empty variable, or nil.
// Arguments alternate between variable name and value.
func Require(nameValues ...string) error {
	var missing []string
	for i := 0; i+1 < len(nameValues); i += 2 {
		if strings.TrimSpace(nameValues[i+1]) == "" {
			missing = append(missing, nameValues[i])
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &ConfigurationError{Vars: missing}
}
