package filestore

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// Encrypted documents start with this magic so plaintext JSON written by a
// store without key material keeps being readable.
var encryptedMagic = []byte("bwenc1")

const (
	saltLen  = 16
	nonceLen = 24
	keyLen   = 32

	// scrypt cost parameters.
	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

var errNotEncrypted = errors.New("document is not encrypted")

type cipherBox struct {
	passphrase []byte
}

func newCipherBox(passphrase []byte) *cipherBox {
	return &cipherBox{passphrase: passphrase}
}

func (c *cipherBox) seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key, err := c.deriveKey(salt)
	if err != nil {
		return nil, err
	}

	var nonce [nonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(encryptedMagic)+saltLen+nonceLen+len(plaintext)+secretbox.Overhead)
	out = append(out, encryptedMagic...)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plaintext, &nonce, key), nil
}

func (c *cipherBox) open(ciphertext []byte) ([]byte, error) {
	if !isEncrypted(ciphertext) {
		return nil, errNotEncrypted
	}
	ciphertext = ciphertext[len(encryptedMagic):]
	if len(ciphertext) < saltLen+nonceLen+secretbox.Overhead {
		return nil, fmt.Errorf("encrypted document is truncated")
	}

	salt := ciphertext[:saltLen]
	var nonce [nonceLen]byte
	copy(nonce[:], ciphertext[saltLen:saltLen+nonceLen])

	key, err := c.deriveKey(salt)
	if err != nil {
		return nil, err
	}

	plaintext, ok := secretbox.Open(nil, ciphertext[saltLen+nonceLen:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("decryption failed, wrong key or corrupt document")
	}
	return plaintext, nil
}

func (c *cipherBox) deriveKey(salt []byte) (*[keyLen]byte, error) {
	raw, err := scrypt.Key(c.passphrase, salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, err
	}
	key := new([keyLen]byte)
	copy(key[:], raw)
	return key, nil
}

func isEncrypted(buf []byte) bool {
	if len(buf) < len(encryptedMagic) {
		return false
	}
	for i, b := range encryptedMagic {
		if buf[i] != b {
			return false
		}
	}
	return true
}
