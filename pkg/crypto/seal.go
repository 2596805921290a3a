package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealContext = "klingnet-wallet 2024 memo seal v1"

// Seal encrypts plaintext so that only the holder of the peer key (or the
// sender) can read it. The key is derived from ECDH(sender, peer).
//
// Output format: nonce(24) | ciphertext
func Seal(sender Signer, peer, plaintext []byte) ([]byte, error) {
	aead, err := sealCipher(sender, peer)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a message produced by Seal. The receiver passes its own
// signer and the sender's public key.
func Open(receiver Signer, peer, sealed []byte) ([]byte, error) {
	if len(sealed) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("sealed message too short: %d bytes", len(sealed))
	}
	aead, err := sealCipher(receiver, peer)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return plaintext, nil
}

func sealCipher(self Signer, peer []byte) (cipher.AEAD, error) {
	secret, err := self.SharedSecret(peer)
	if err != nil {
		return nil, err
	}
	key := DeriveKey(sealContext, secret)
	clear(secret)
	aead, err := chacha20poly1305.NewX(key)
	clear(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return aead, nil
}
