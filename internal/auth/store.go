package auth

import (
	"crypto/rand"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/fieldscan/fieldscan/internal/errors"
)

// Credentials are the tokens kept between runs
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Subject      string    `json:"subject,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// CredentialStore persists credentials
type CredentialStore interface {
	Load() (*Credentials, error)
	Save(c *Credentials) error
	Clear() error
}

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 2

	credentialFilePerm = 0o600
)

// FileStore keeps credentials in a file sealed with secretbox under an
// argon2id key derived from a passphrase. Layout: salt | nonce | box.
type FileStore struct {
	path       string
	passphrase []byte
	mu         sync.Mutex
}

// NewFileStore returns a store at path. An empty passphrase still encrypts
// but only obscures the tokens.
func NewFileStore(path, passphrase string) *FileStore {
	return &FileStore{path: path, passphrase: []byte(passphrase)}
}

func (s *FileStore) key(salt []byte) *[keySize]byte {
	var k [keySize]byte
	copy(k[:], argon2.IDKey(s.passphrase, salt, argonTime, argonMemory, argonThreads, keySize))
	return &k
}

// Load returns ErrNoCredentials when nothing is stored
func (s *FileStore) Load() (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredentials
		}
		return nil, storeError(err, "read")
	}
	if len(data) < saltSize+nonceSize+secretbox.Overhead {
		return nil, storeError(errors.NewStd("credential file truncated"), "decode")
	}

	salt := data[:saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], data[saltSize:saltSize+nonceSize])

	plain, ok := secretbox.Open(nil, data[saltSize+nonceSize:], &nonce, s.key(salt))
	if !ok {
		return nil, storeError(errors.NewStd("credential file cannot be decrypted"), "decrypt")
	}

	var c Credentials
	if err := json.Unmarshal(plain, &c); err != nil {
		return nil, storeError(err, "decode")
	}
	return &c, nil
}

// Save seals c and replaces the file atomically
func (s *FileStore) Save(c *Credentials) error {
	plain, err := json.Marshal(c)
	if err != nil {
		return storeError(err, "encode")
	}

	out := make([]byte, saltSize+nonceSize, saltSize+nonceSize+len(plain)+secretbox.Overhead)
	if _, err := io.ReadFull(rand.Reader, out[:saltSize+nonceSize]); err != nil {
		return storeError(err, "random")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], out[saltSize:])
	out = secretbox.Seal(out, plain, &nonce, s.key(out[:saltSize]))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return storeError(err, "mkdir")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, credentialFilePerm); err != nil {
		return storeError(err, "write")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return storeError(err, "rename")
	}
	return nil
}

// Clear deletes the credential file
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return storeError(err, "remove")
	}
	return nil
}

func storeError(err error, operation string) error {
	return errors.New(err).
		Component("auth").
		Category(errors.CategoryFileIO).
		Context("operation", operation).
		Build()
}
