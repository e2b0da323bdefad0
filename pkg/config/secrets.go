package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/crypto/scrypt"
	"golang.org/x/term"
)

// Encrypted secrets file layout: [salt 16][nonce 12][ciphertext+tag].
const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32

	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

var (
	secretsMu sync.RWMutex
	secrets   map[string]string
)

// SecretsFilePath returns the default location of the encrypted secrets
// file under the user's home directory.
func SecretsFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".dockhand", "secrets.json.enc"), nil
}

// GetSecret looks up a secret by name, preferring the decrypted secrets map
// and falling back to the process environment.
func GetSecret(name string) (string, error) {
	secretsMu.RLock()
	v, ok := secrets[name]
	secretsMu.RUnlock()
	if ok && v != "" {
		return v, nil
	}
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("secret %s not found", name)
}

// LoadSecrets decrypts the secrets file if present and caches the values for
// GetSecret. A missing file is not an error; credentials then come from the
// environment alone.
func LoadSecrets(path string, password []byte) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read secrets file: %w", err)
	}
	plaintext, err := decrypt(data, password)
	if err != nil {
		return fmt.Errorf("failed to decrypt secrets file: %w", err)
	}
	var m map[string]string
	if err := json.Unmarshal(plaintext, &m); err != nil {
		return fmt.Errorf("failed to parse secrets file: %w", err)
	}
	secretsMu.Lock()
	secrets = m
	secretsMu.Unlock()
	return nil
}

// SaveSecrets encrypts the given map with the password and writes it to
// path with owner-only permissions.
func SaveSecrets(path string, m map[string]string, password []byte) error {
	plaintext, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}
	blob, err := encrypt(plaintext, password)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create secrets directory: %w", err)
	}
	if err := os.WriteFile(path, blob, 0600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// PromptPassword reads a password from the terminal without echo.
func PromptPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if len(strings.TrimSpace(string(password))) == 0 {
		return nil, fmt.Errorf("password must not be empty")
	}
	return password, nil
}

func deriveKey(password, salt []byte) ([]byte, error) {
	key, err := scrypt.Key(password, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return key, nil
}

func encrypt(plaintext, password []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	key, err := deriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	blob := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)
	return blob, nil
}

func decrypt(blob, password []byte) ([]byte, error) {
	if len(blob) < saltSize+nonceSize {
		return nil, fmt.Errorf("secrets file too short")
	}
	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	ciphertext := blob[saltSize+nonceSize:]

	key, err := deriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong password?): %w", err)
	}
	return plaintext, nil
}
