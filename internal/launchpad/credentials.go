package launchpad

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
)

const (
	keyringServiceNameConstant          = "charm-recipe-tool"
	keyringAccountNameConstant          = "launchpad"
	credentialsFileNameConstant         = "launchpad-credentials.json"
	credentialsFileModeConstant         = os.FileMode(0o600)
	credentialsDirectoryModeConstant    = os.FileMode(0o700)
	credentialsEncodeTemplateConstant   = "unable to encode credentials: %w"
	credentialsDecodeTemplateConstant   = "unable to decode credentials: %w"
	credentialsWriteTemplateConstant    = "unable to write credentials file: %w"
	credentialsNoDirectoryErrorConstant = "no directory available for credentials storage"
)

// Credentials holds an OAuth 1.0a consumer and access token for Launchpad.
type Credentials struct {
	ConsumerKey string `json:"consumer_key"`
	Token       string `json:"access_token"`
	TokenSecret string `json:"access_secret"`
}

// CredentialStore persists Launchpad credentials between runs.
type CredentialStore interface {
	Load() (*Credentials, error)
	Store(credentials *Credentials) error
}

// KeyringCredentialStore keeps credentials in the system keyring and falls
// back to a mode-0600 file in the provided directory when no keyring is
// reachable (headless hosts, strictly confined environments without the
// password-manager interface connected).
type KeyringCredentialStore struct {
	fallbackDirectory string
}

// NewKeyringCredentialStore builds a store with the given file fallback
// directory.
func NewKeyringCredentialStore(fallbackDirectory string) *KeyringCredentialStore {
	return &KeyringCredentialStore{fallbackDirectory: fallbackDirectory}
}

// Load retrieves stored credentials. ErrCredentialsMissing is returned when
// neither the keyring nor the fallback file has them.
func (store *KeyringCredentialStore) Load() (*Credentials, error) {
	serializedCredentials, keyringError := keyring.Get(keyringServiceNameConstant, keyringAccountNameConstant)
	switch {
	case keyringError == nil:
		return decodeCredentials([]byte(serializedCredentials))
	case errors.Is(keyringError, keyring.ErrNotFound):
		return nil, ErrCredentialsMissing
	}

	return store.loadFromFile()
}

// Store persists credentials, preferring the keyring.
func (store *KeyringCredentialStore) Store(credentials *Credentials) error {
	serializedCredentials, encodeError := json.Marshal(credentials)
	if encodeError != nil {
		return fmt.Errorf(credentialsEncodeTemplateConstant, encodeError)
	}

	if keyringError := keyring.Set(keyringServiceNameConstant, keyringAccountNameConstant, string(serializedCredentials)); keyringError == nil {
		return nil
	}

	return store.storeToFile(serializedCredentials)
}

func (store *KeyringCredentialStore) credentialsFilePath() (string, error) {
	if len(store.fallbackDirectory) == 0 {
		return "", errors.New(credentialsNoDirectoryErrorConstant)
	}
	return filepath.Join(store.fallbackDirectory, credentialsFileNameConstant), nil
}

func (store *KeyringCredentialStore) loadFromFile() (*Credentials, error) {
	credentialsFile, pathError := store.credentialsFilePath()
	if pathError != nil {
		return nil, ErrCredentialsMissing
	}
	fileContents, readError := os.ReadFile(credentialsFile)
	if readError != nil {
		return nil, ErrCredentialsMissing
	}
	return decodeCredentials(fileContents)
}

func (store *KeyringCredentialStore) storeToFile(serializedCredentials []byte) error {
	credentialsFile, pathError := store.credentialsFilePath()
	if pathError != nil {
		return pathError
	}
	if directoryError := os.MkdirAll(filepath.Dir(credentialsFile), credentialsDirectoryModeConstant); directoryError != nil {
		return fmt.Errorf(credentialsWriteTemplateConstant, directoryError)
	}
	if writeError := os.WriteFile(credentialsFile, serializedCredentials, credentialsFileModeConstant); writeError != nil {
		return fmt.Errorf(credentialsWriteTemplateConstant, writeError)
	}
	return nil
}

func decodeCredentials(serializedCredentials []byte) (*Credentials, error) {
	var credentials Credentials
	if decodeError := json.Unmarshal(serializedCredentials, &credentials); decodeError != nil {
		return nil, fmt.Errorf(credentialsDecodeTemplateConstant, decodeError)
	}
	if len(credentials.Token) == 0 {
		return nil, ErrCredentialsMissing
	}
	return &credentials, nil
}
