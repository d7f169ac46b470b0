package auth

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"

	errs "tweetharvest/pkg/errors"
)

func TestCredentialManager(t *testing.T) {
	manager, store := NewMockManager()

	creds := &Credentials{Name: "research", AppKey: "key-1234567890", AppSecret: "secret-1234567890"}
	if err := manager.Store(creds); err != nil {
		t.Fatalf("Failed to store credentials: %v", err)
	}
	if creds.LastModified.IsZero() {
		t.Error("Store should stamp LastModified")
	}

	got, err := manager.Retrieve("research")
	if err != nil {
		t.Fatalf("Failed to retrieve credentials: %v", err)
	}
	if got.AppKey != creds.AppKey || got.AppSecret != creds.AppSecret {
		t.Errorf("Retrieved %+v, want %+v", got, creds)
	}

	list, err := manager.List()
	if err != nil || len(list) != 1 {
		t.Fatalf("Expected one profile, got %d (%v)", len(list), err)
	}

	if err := manager.Delete("research"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if store.Count() != 0 {
		t.Errorf("Expected empty store, got %d", store.Count())
	}
	if err := manager.Delete("research"); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected not found on second delete, got %v", err)
	}
}

func TestStoreValidation(t *testing.T) {
	manager, store := NewMockManager()

	if err := manager.Store(&Credentials{AppKey: "k"}); err == nil {
		t.Error("Expected error for missing secret")
	}
	if err := manager.Store(&Credentials{AppSecret: "s"}); err == nil {
		t.Error("Expected error for missing key")
	}

	creds := &Credentials{AppKey: "k", AppSecret: "s"}
	if err := manager.Store(creds); err != nil {
		t.Fatal(err)
	}
	if !store.Exists(DefaultProfile) {
		t.Error("Unnamed credentials should be stored as the default profile")
	}

	store.StoreError = errors.New("locked")
	if err := manager.Store(&Credentials{Name: "x", AppKey: "k", AppSecret: "s"}); err == nil || !strings.Contains(err.Error(), "locked") {
		t.Errorf("Expected store error to surface, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	envVars := map[string]string{}
	env := NewEnvironmentStoreFrom(func(k string) string { return envVars[k] })
	store := NewMockStore()
	manager := NewManagerWithStores(env, store)

	if _, err := manager.Resolve(""); !errs.IsAuth(err) {
		t.Errorf("Expected auth error with nothing configured, got %v", err)
	}

	_ = store.Store(&Credentials{Name: "only", AppKey: "k1", AppSecret: "s1"})
	creds, err := manager.Resolve("")
	if err != nil || creds.Name != "only" {
		t.Errorf("Expected the single stored profile, got %v, %v", creds, err)
	}

	_ = store.Store(&Credentials{Name: "other", AppKey: "k2", AppSecret: "s2"})
	if _, err := manager.Resolve(""); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected ambiguity error, got %v", err)
	}

	_ = store.Store(&Credentials{Name: DefaultProfile, AppKey: "k3", AppSecret: "s3"})
	if creds, _ := manager.Resolve(""); creds == nil || creds.AppKey != "k3" {
		t.Errorf("Expected default profile, got %v", creds)
	}
	if creds, _ := manager.Resolve("other"); creds == nil || creds.AppKey != "k2" {
		t.Errorf("Expected named profile, got %v", creds)
	}
	if _, err := manager.Resolve("missing"); !errs.IsAuth(err) {
		t.Errorf("Expected auth error for unknown profile, got %v", err)
	}

	// environment wins over everything
	envVars[EnvAppKey] = "env-key"
	envVars[EnvAppSecret] = "env-secret"
	creds, err = manager.Resolve("other")
	if err != nil || creds.AppKey != "env-key" || creds.Name != EnvironmentProfile {
		t.Errorf("Expected environment credentials, got %v, %v", creds, err)
	}

	// a half-set environment is ignored
	delete(envVars, EnvAppSecret)
	if creds, _ := manager.Resolve("other"); creds == nil || creds.AppKey != "k2" {
		t.Errorf("Expected stored profile when secret is unset, got %v", creds)
	}
}

func TestEncryptedFileStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.enc")

	store, err := NewEncryptedFileStore(path, "correct horse")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if _, err := store.Retrieve("a"); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected not found on empty store, got %v", err)
	}

	for _, name := range []string{"b", "a"} {
		if err := store.Store(&Credentials{Name: name, AppKey: "key-" + name, AppSecret: "secret-" + name}); err != nil {
			t.Fatalf("Store %s: %v", name, err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "secret-a") {
		t.Error("Secrets must not be stored in plain text")
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected 0600 permissions, got %v", info.Mode().Perm())
	}

	list, err := store.List()
	if err != nil || len(list) != 2 || list[0].Name != "a" {
		t.Fatalf("Unexpected list %v, %v", list, err)
	}

	// same passphrase reads it back, a wrong one does not
	reopened, _ := NewEncryptedFileStore(path, "correct horse")
	if creds, err := reopened.Retrieve("b"); err != nil || creds.AppSecret != "secret-b" {
		t.Errorf("Reopened store returned %v, %v", creds, err)
	}
	wrong, _ := NewEncryptedFileStore(path, "battery staple")
	if _, err := wrong.Retrieve("b"); err == nil || errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected decryption failure, got %v", err)
	}

	if err := store.Delete("a"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete("b"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Store file should be removed with its last profile")
	}
}

func TestEncryptedFileStoreGeneratedPassphrase(t *testing.T) {
	t.Setenv(EnvPassphrase, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.enc")

	first, err := NewEncryptedFileStore(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Store(&Credentials{Name: "p", AppKey: "k", AppSecret: "s"}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".passphrase")); err != nil {
		t.Fatalf("Expected generated passphrase file: %v", err)
	}

	second, _ := NewEncryptedFileStore(path, "")
	if !second.Exists("p") {
		t.Error("A second store should reuse the generated passphrase")
	}
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	if err != nil {
		t.Fatalf("Mock keyring should be available: %v", err)
	}

	if err := store.Store(&Credentials{Name: "lab", AppKey: "k", AppSecret: "s"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Store(&Credentials{Name: "home", AppKey: "k2", AppSecret: "s2"}); err != nil {
		t.Fatal(err)
	}
	if !store.Exists("lab") {
		t.Error("Expected lab profile to exist")
	}

	list, err := store.List()
	if err != nil || len(list) != 2 || list[0].Name != "home" {
		t.Fatalf("Unexpected keyring list %v, %v", list, err)
	}

	if err := store.Delete("lab"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Retrieve("lab"); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected not found after delete, got %v", err)
	}
	list, _ = store.List()
	if len(list) != 1 {
		t.Errorf("Expected index to drop deleted profile, got %d", len(list))
	}
}

func TestSanitize(t *testing.T) {
	creds := &Credentials{Name: "p", AppKey: "abcdefghijkl", AppSecret: "short"}
	s := Sanitize(creds)
	if s.AppKey != "abcd...ijkl" {
		t.Errorf("Unexpected masked key %q", s.AppKey)
	}
	if s.AppSecret != "********" {
		t.Errorf("Unexpected masked secret %q", s.AppSecret)
	}
	if Sanitize(nil) != nil {
		t.Error("Sanitize(nil) should be nil")
	}
}

func TestShowCredentialGuide(t *testing.T) {
	var b strings.Builder
	ShowCredentialGuide(&b)
	if !strings.Contains(b.String(), EnvAppKey) || !strings.Contains(b.String(), "tweetharvest auth login") {
		t.Error("Guide should mention the environment variables and the login command")
	}
}
