package auth

import (
	"os"
	"time"
)

// Environment variables holding the application key pair.
const (
	EnvAppKey    = "TWITTER_APP_KEY"
	EnvAppSecret = "TWITTER_APP_SECRET"
)

// EnvironmentProfile is the profile name reported for environment credentials.
const EnvironmentProfile = "env"

// EnvironmentStore is a read-only CredentialStore over environment variables.
type EnvironmentStore struct {
	getenv func(string) string
}

// NewEnvironmentStore reads the process environment.
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{getenv: os.Getenv}
}

// NewEnvironmentStoreFrom reads from a lookup function, for tests and for
// values loaded from .env files.
func NewEnvironmentStoreFrom(getenv func(string) string) *EnvironmentStore {
	return &EnvironmentStore{getenv: getenv}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(creds *Credentials) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment credentials whatever name is asked for.
func (e *EnvironmentStore) Retrieve(name string) (*Credentials, error) {
	key := e.getenv(EnvAppKey)
	secret := e.getenv(EnvAppSecret)
	if key == "" || secret == "" {
		return nil, ErrCredentialsNotFound
	}

	return &Credentials{
		Name:         EnvironmentProfile,
		AppKey:       key,
		AppSecret:    secret,
		LastModified: time.Now(),
	}, nil
}

// List returns the environment credentials if both variables are set
func (e *EnvironmentStore) List() ([]*Credentials, error) {
	creds, err := e.Retrieve("")
	if err != nil {
		return []*Credentials{}, nil
	}
	return []*Credentials{creds}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(name string) bool {
	return e.getenv(EnvAppKey) != "" && e.getenv(EnvAppSecret) != ""
}
