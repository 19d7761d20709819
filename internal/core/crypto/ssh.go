package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/ssh"
)

// ErrInvalidSSHKey is returned when the SSH key cannot be parsed.
var ErrInvalidSSHKey = errors.New("invalid SSH private key format")

// =============================================================================
// SSH Keys
// =============================================================================

// ParseSSHPrivateKey parses an SSH private key and returns the signer.
func ParseSSHPrivateKey(privateKey []byte) (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, ErrInvalidSSHKey
	}
	return signer, nil
}

// SSHPublicKeyFingerprint returns the SHA256 fingerprint of the public key
// derived from the private key, in the "SHA256:..." form ssh-keygen prints.
func SSHPublicKeyFingerprint(privateKey []byte) (string, error) {
	signer, err := ParseSSHPrivateKey(privateKey)
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256(signer.PublicKey().Marshal())
	return "SHA256:" + base64.RawStdEncoding.EncodeToString(hash[:]), nil
}
