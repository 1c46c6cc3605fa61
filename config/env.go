package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Secrets are kept out of the config file and read from the environment.
type Secrets struct {
	SupabaseKey     string `env:"SUPABASE_KEY"`
	SupabaseUserKey string `env:"SUPABASE_USER_KEY"`
	StateKey        string `env:"SCRIPTED_EMITTER_STATE_KEY"` // base64 encoded, 32 bytes
	StateIV         string `env:"SCRIPTED_EMITTER_STATE_IV"`  // base64 encoded
}

// ReadSecrets loads secrets from the environment. Values in the optional `dotEnvPath` file are used for any variable
// that is not set in the environment itself; a missing file is not an error.
func ReadSecrets(dotEnvPath string) (Secrets, error) {
	environment := make(map[string]string)

	if dotEnvPath != "" {
		fileEnv, err := godotenv.Read(dotEnvPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Secrets{}, fmt.Errorf("read env file: %w", err)
		}
		for k, v := range fileEnv {
			environment[k] = v
		}
	}
	for k, v := range env.ToMap(os.Environ()) {
		environment[k] = v
	}

	var secrets Secrets
	err := env.ParseWithOptions(&secrets, env.Options{Environment: environment})
	if err != nil {
		return Secrets{}, fmt.Errorf("parse env: %w", err)
	}
	return secrets, nil
}
