package encryption

import (
	"bytes"
	"fmt"
	"io"

	"runclub/internal/club"
)

// fakeHeader marks data "encrypted" by FakeEncryptor.
var fakeHeader = []byte("RCSNAP\x00\x00")

// FakeEncryptor is a deterministic stand-in for tests. It prepends a fixed
// header on Encrypt and strips it on Decrypt. Any passphrase unlocks it.
type FakeEncryptor struct {
	setupCalled bool
}

var _ club.Encryptor = (*FakeEncryptor)(nil)

func NewFakeEncryptor() *FakeEncryptor {
	return &FakeEncryptor{}
}

func (e *FakeEncryptor) Setup(string) error {
	e.setupCalled = true
	return nil
}

func (e *FakeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(fakeHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	_, err := io.Copy(w, r)
	return err
}

func (e *FakeEncryptor) Unlock(string) (club.DecryptionContext, error) {
	return fakeDecryption{}, nil
}

func (e *FakeEncryptor) IsConfigured() bool { return true }

type fakeDecryption struct{}

func (fakeDecryption) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(fakeHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if !bytes.Equal(header, fakeHeader) {
		return fmt.Errorf("not a fake-encrypted snapshot")
	}
	_, err := io.Copy(w, r)
	return err
}
