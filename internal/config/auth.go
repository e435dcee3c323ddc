package config

import (
	"os"

	"github.com/pkg/errors"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

// ResolveSession fills in the profile's AccessToken/InstanceURL. Token
// acquisition (OAuth) is out of scope for this core; the session is
// expected to already exist by the time gurglefish runs, supplied the
// same way a deployment would inject any other secret — through the
// environment, not through a flow this core implements.
func ResolveSession(profile types.ConnectionProfile) (types.ConnectionProfile, error) {
	if token := os.Getenv("GURGLEFISH_ACCESS_TOKEN"); token != "" {
		profile.AccessToken = token
	}
	if url := os.Getenv("GURGLEFISH_INSTANCE_URL"); url != "" {
		profile.InstanceURL = url
	}
	if profile.AccessToken == "" || profile.InstanceURL == "" {
		return profile, errors.Wrapf(types.ErrAuthFailure,
			"no active session for %s: set GURGLEFISH_ACCESS_TOKEN and GURGLEFISH_INSTANCE_URL", profile.ID)
	}
	return profile, nil
}
