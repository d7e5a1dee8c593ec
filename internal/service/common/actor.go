//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"errors"
	"fmt"
	"os/user"
	"strings"
)

// errEmptyUsername is returned when the OS reports a blank user name.
var errEmptyUsername = errors.New("empty username")

// DetectIdentity returns the current OS user name, used when no client identity is configured.
// A Windows DOMAIN\user name is reduced to the user part.
func DetectIdentity() (string, error) {
	currentUser, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("current user: %w", err)
	}

	name := currentUser.Username
	if i := strings.LastIndex(name, `\`); i >= 0 {
		name = name[i+1:]
	}

	if name == "" {
		return "", errEmptyUsername
	}

	return name, nil
}
