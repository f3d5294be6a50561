// Package keystore persists LLM API keys encrypted at rest. Keys are
// sealed with AES-256-GCM under a randomly generated master key stored
// next to the data file with 0600 permissions; concurrent processes are
// serialized with a file lock.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	keyFileName  = ".verba.key"
	dataFileName = ".verba_keys.dat"
	masterKeyLen = 32
)

// Store is an encrypted vendor -> API key map on disk. All operations
// read and rewrite the whole data file under a file lock, so a Store is
// safe to share between goroutines and processes.
type Store struct {
	dir    string
	lock   *flock.Flock
	logger zerolog.Logger
}

// Open creates or opens a keystore in dir, generating the master key on
// first use.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}
	s := &Store{
		dir:    dir,
		lock:   flock.New(filepath.Join(dir, dataFileName+".lock")),
		logger: log.With().Str("component", "keystore").Logger(),
	}
	if _, err := s.masterKey(); err != nil {
		return nil, err
	}
	return s, nil
}

// masterKey loads the master key, creating it on first use.
func (s *Store) masterKey() ([]byte, error) {
	path := filepath.Join(s.dir, keyFileName)

	raw, err := os.ReadFile(path)
	if err == nil {
		if len(raw) != masterKeyLen {
			return nil, fmt.Errorf("keystore master key is corrupt: %s", path)
		}
		return raw, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read keystore master key: %w", err)
	}

	key := make([]byte, masterKeyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate keystore master key: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write keystore master key: %w", err)
	}
	s.logger.Info().Str("path", path).Msg("Generated new keystore master key")
	return key, nil
}

// Set stores or replaces the API key for a vendor. An empty key removes
// the vendor's entry.
func (s *Store) Set(vendor, apiKey string) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire keystore lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := s.load()
	if err != nil {
		return err
	}
	if apiKey == "" {
		delete(data, vendor)
	} else {
		data[vendor] = apiKey
	}
	return s.save(data)
}

// Get retrieves a vendor's API key. The second return is false when the
// vendor has no stored key.
func (s *Store) Get(vendor string) (string, bool, error) {
	if err := s.lock.RLock(); err != nil {
		return "", false, fmt.Errorf("failed to acquire keystore lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := s.load()
	if err != nil {
		return "", false, err
	}
	key, ok := data[vendor]
	return key, ok, nil
}

// Vendors returns the vendors with stored keys, sorted. Key material is
// never included.
func (s *Store) Vendors() ([]string, error) {
	if err := s.lock.RLock(); err != nil {
		return nil, fmt.Errorf("failed to acquire keystore lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(data))
	for vendor := range data {
		out = append(out, vendor)
	}
	sort.Strings(out)
	return out, nil
}

// APIKey implements summarize.CredentialSource: stored keys win, falling
// back to the vendor's environment variable via the fallback function.
// Lookup errors degrade to "not configured" rather than failing a job.
func (s *Store) APIKey(vendor string) string {
	key, ok, err := s.Get(vendor)
	if err != nil {
		s.logger.Warn().Err(err).Str("vendor", vendor).Msg("Keystore lookup failed")
		return ""
	}
	if ok {
		return key
	}
	return ""
}

// load reads and decrypts the data file. Caller holds the lock.
func (s *Store) load() (map[string]string, error) {
	path := filepath.Join(s.dir, dataFileName)
	sealed, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore: %w", err)
	}

	key, err := s.masterKey()
	if err != nil {
		return nil, err
	}
	plain, err := unseal(key, sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt keystore: %w", err)
	}

	var data map[string]string
	if err := json.Unmarshal(plain, &data); err != nil {
		return nil, fmt.Errorf("keystore data is corrupt: %w", err)
	}
	return data, nil
}

// save encrypts and rewrites the data file. Caller holds the lock.
func (s *Store) save(data map[string]string) error {
	plain, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode keystore: %w", err)
	}
	key, err := s.masterKey()
	if err != nil {
		return err
	}
	sealed, err := seal(key, plain)
	if err != nil {
		return fmt.Errorf("failed to encrypt keystore: %w", err)
	}

	path := filepath.Join(s.dir, dataFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	return os.Rename(tmp, path)
}

// seal encrypts plaintext with AES-256-GCM; the nonce is prepended to the
// ciphertext.
func seal(key, plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func unseal(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
