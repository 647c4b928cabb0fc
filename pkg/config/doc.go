// Package config provides configuration loading, validation, defaults, and
// hot reload for Callisto.
//
// Configuration is read from a YAML file, defaults are applied for anything
// the file omits, and environment variables of the form CALLISTO_SECTION_FIELD
// override both. Validation collects every problem into a single
// ValidationError instead of stopping at the first:
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    var verr config.ValidationError
//	    if errors.As(err, &verr) {
//	        // verr.Errors lists each offending field
//	    }
//	}
//
// A Watcher can observe the file for changes and deliver freshly loaded,
// validated configurations with debouncing, for operators who tune limits
// without restarting.
package config
