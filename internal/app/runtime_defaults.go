package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/accountd/pkg/crypto"
)

// generatedSecretBytes of entropy comfortably exceeds minJWTSecretBytes once encoded.
const generatedSecretBytes = 48

// ApplyRuntimeDefaults fills secrets the configuration left empty with random values
// and returns the config keys it generated, so callers can warn without logging the
// values. A generated signing secret lives only as long as the process: tokens issued
// before a restart stop validating.
func ApplyRuntimeDefaults(cfg *Config) ([]string, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	var generated []string
	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(generatedSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate auth.jwt.secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated = append(generated, "auth.jwt.secret")
	}
	return generated, nil
}
