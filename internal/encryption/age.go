package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"runclub/internal/club"
	"runclub/internal/config"
)

// AgeEncryptor encrypts snapshots to an X25519 recipient. The public key is
// kept in plaintext; the private key is itself age-encrypted with a
// passphrase (scrypt).
type AgeEncryptor struct {
	publicKeyPath  string
	privateKeyPath string
}

var _ club.Encryptor = (*AgeEncryptor)(nil)

// ErrLocked is returned by Unlock when the passphrase does not open the
// private key.
var ErrLocked = errors.New("private key could not be unlocked")

// ErrNoKeys is returned when a key file is missing. It wraps club.ErrNotFound.
var ErrNoKeys = fmt.Errorf("%w: encryption keys", club.ErrNotFound)

// NewAgeEncryptor reads the key paths from cfg. No file is touched until
// Setup, Encrypt or Unlock.
func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{
		publicKeyPath:  cfg.PublicKeyPath,
		privateKeyPath: cfg.PrivateKeyPath,
	}
}

// Setup generates a fresh key pair and locks the private half with passphrase.
// Existing keys are overwritten.
func (e *AgeEncryptor) Setup(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase must not be empty")
	}
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	pub := []byte(identity.Recipient().String() + "\n")
	if err := writeKey(e.publicKeyPath, pub, 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	lock, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	var locked bytes.Buffer
	if err := seal(&locked, bytes.NewReader([]byte(identity.String()+"\n")), lock); err != nil {
		return fmt.Errorf("locking private key: %w", err)
	}
	if err := writeKey(e.privateKeyPath, locked.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	return nil
}

// Encrypt seals a snapshot to the public key. It needs no passphrase, so
// pushes work unattended.
func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	data, err := readKey(e.publicKeyPath)
	if err != nil {
		return fmt.Errorf("reading public key: %w", err)
	}
	recipients, err := age.ParseRecipients(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parsing public key: %w", err)
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients in %s", e.publicKeyPath)
	}
	return seal(w, r, recipients[0])
}

// Unlock opens the private key. A missing key file wraps ErrNoKeys and a
// wrong passphrase wraps ErrLocked.
func (e *AgeEncryptor) Unlock(passphrase string) (club.DecryptionContext, error) {
	locked, err := readKey(e.privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	unlock, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	var key bytes.Buffer
	if err := open(&key, bytes.NewReader(locked), unlock); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLocked, err)
	}
	identities, err := age.ParseIdentities(&key)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities in %s", e.privateKeyPath)
	}
	return &AgeDecryptionContext{identity: identities[0]}, nil
}

// IsConfigured reports whether both key files exist.
func (e *AgeEncryptor) IsConfigured() bool {
	for _, p := range []string{e.publicKeyPath, e.privateKeyPath} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// AgeDecryptionContext decrypts with an unlocked identity.
type AgeDecryptionContext struct {
	identity age.Identity
}

var _ club.DecryptionContext = (*AgeDecryptionContext)(nil)

// Decrypt opens a snapshot sealed by Encrypt with the matching public key.
func (c *AgeDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	return open(w, r, c.identity)
}

func seal(w io.Writer, r io.Reader, to age.Recipient) error {
	enc, err := age.Encrypt(w, to)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(enc, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

func open(w io.Writer, r io.Reader, id age.Identity) error {
	dec, err := age.Decrypt(r, id)
	if err != nil {
		return fmt.Errorf("creating decrypted reader: %w", err)
	}
	if _, err := io.Copy(w, dec); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}
	return nil
}

func readKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoKeys, path)
	}
	return data, err
}

func writeKey(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}
