package signer

import (
	"bytes"
	"crypto"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/ralt/qpkgrepo/internal/models"
	"github.com/sirupsen/logrus"
)

// GPGSigner implements Signer with an OpenPGP private key
type GPGSigner struct {
	entity *openpgp.Entity
}

// NewGPGSigner creates a signer from a private key file
func NewGPGSigner(keyPath, passphrase string) (*GPGSigner, error) {
	if keyPath == "" {
		return nil, models.NewError(models.ErrSigning, "", errors.New("key path is empty"))
	}

	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, models.NewError(models.ErrSigning, "", fmt.Errorf("failed to read key file: %w", err))
	}

	return NewGPGSignerFromKey(data, passphrase)
}

// NewGPGSignerFromKey creates a signer from an armored or binary private key
func NewGPGSignerFromKey(key []byte, passphrase string) (*GPGSigner, error) {
	entityList, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(key))
	if err != nil {
		// Try as binary key
		entityList, err = openpgp.ReadKeyRing(bytes.NewReader(key))
		if err != nil {
			return nil, models.NewError(models.ErrSigning, "", fmt.Errorf("failed to read key: %w", err))
		}
	}

	if len(entityList) == 0 {
		return nil, models.NewError(models.ErrSigning, "", errors.New("no keys found in key file"))
	}

	entity := entityList[0]
	if entity.PrivateKey == nil {
		return nil, models.NewError(models.ErrSigning, "", errors.New("key file holds no private key"))
	}

	if passphrase != "" {
		if entity.PrivateKey.Encrypted {
			if err := entity.PrivateKey.Decrypt([]byte(passphrase)); err != nil {
				return nil, models.NewError(models.ErrSigning, "", fmt.Errorf("failed to decrypt private key: %w", err))
			}
		}

		for _, subkey := range entity.Subkeys {
			if subkey.PrivateKey != nil && subkey.PrivateKey.Encrypted {
				if err := subkey.PrivateKey.Decrypt([]byte(passphrase)); err != nil {
					return nil, models.NewError(models.ErrSigning, "", fmt.Errorf("failed to decrypt subkey: %w", err))
				}
			}
		}
	}

	logrus.Debugf("Loaded signing key %X", entity.PrimaryKey.Fingerprint)
	return &GPGSigner{entity: entity}, nil
}

// SignDetached creates an armored detached signature (repo.xml.asc)
func (s *GPGSigner) SignDetached(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	err := openpgp.ArmoredDetachSign(&buf, s.entity, bytes.NewReader(data), &packet.Config{
		DefaultHash: crypto.SHA512,
	})
	if err != nil {
		return nil, models.NewError(models.ErrSigning, "", fmt.Errorf("failed to create detached signature: %w", err))
	}

	return buf.Bytes(), nil
}

// PublicKey returns the public key in armored format
func (s *GPGSigner) PublicKey() ([]byte, error) {
	var buf bytes.Buffer

	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return nil, err
	}

	if err := s.entity.Serialize(w); err != nil {
		w.Close()
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Verify checks an armored detached signature of data against the signer's
// own key
func (s *GPGSigner) Verify(data []byte, signature io.Reader) error {
	keyring := openpgp.EntityList{s.entity}
	if _, err := openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(data), signature, nil); err != nil {
		return models.NewError(models.ErrSigning, "", fmt.Errorf("signature verification failed: %w", err))
	}
	return nil
}
