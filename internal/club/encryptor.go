package club

import "io"

// Encryptor protects snapshots before they leave the machine. Encrypting
// needs only the public key; decrypting needs the passphrase that unlocks
// the private key.
type Encryptor interface {
	// Setup generates and stores a new key pair, locking the private key
	// with passphrase.
	Setup(passphrase string) error

	// Encrypt writes the ciphertext of r to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock opens the private key. A wrong passphrase is an error.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether the key pair exists.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory only.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
