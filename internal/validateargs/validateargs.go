package validateargs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotAllowed is returned when a secret is passed on the command line
var ErrNotAllowed = errors.New("should not be passed as a command line argument")

// secrets may only be set from the environment or the config file, so they
// never show up in the process list
var notAllowedArgs = []string{"db-password"}

// NotAllowed checks if explicitly not allowed params have been used
func NotAllowed(args []string) error {
	var found []string

	for _, notAllowed := range notAllowedArgs {
		if contains(args, notAllowed) {
			found = append(found, "-"+notAllowed)
		}
	}

	if len(found) > 0 {
		return fmt.Errorf("%s %w", strings.Join(found, ", "), ErrNotAllowed)
	}

	return nil
}

// contains matches -name, --name, -name=value and --name=value
func contains(args []string, name string) bool {
	for _, arg := range args {
		flagName := strings.TrimLeft(arg, "-")
		if flagName == arg {
			continue
		}

		if i := strings.IndexByte(flagName, '='); i >= 0 {
			flagName = flagName[:i]
		}

		if flagName == name {
			return true
		}
	}

	return false
}
