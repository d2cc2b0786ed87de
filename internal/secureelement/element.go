package secureelement

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Element hands out signing handles for key slots.
type Element interface {
	Signer(slot int) (crypto.Signer, error)
}

// FileElement is an Element backed by a directory of slot files.
type FileElement struct {
	dir string
}

// Open checks that the element directory exists.
//
// Returns:
//   - *FileElement: Element ready to serve slots
//   - error: ErrNotPresent if the directory is missing or not a directory
func Open(dir string) (*FileElement, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: no path configured", ErrNotPresent)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotPresent, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotPresent, dir)
	}

	return &FileElement{dir: dir}, nil
}

// SlotPath returns the file backing a slot.
func (e *FileElement) SlotPath(slot int) string {
	return filepath.Join(e.dir, fmt.Sprintf("slot%d.pem", slot))
}

// Signer loads the key in slot and wraps it so only signing is exposed.
func (e *FileElement) Signer(slot int) (crypto.Signer, error) {
	if slot < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}

	data, err := os.ReadFile(e.SlotPath(slot))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: slot %d", ErrEmptySlot, slot)
		}
		return nil, fmt.Errorf("reading slot %d: %w", slot, err)
	}

	key, err := parsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("slot %d: %w", slot, err)
	}

	return &slotSigner{key: key}, nil
}

// parsePrivateKey accepts PKCS#8 and SEC 1 EC keys.
func parsePrivateKey(data []byte) (crypto.Signer, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, ErrEmptySlot
		}

		switch block.Type {
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrUnsupportedKey, err)
			}
			signer, ok := key.(crypto.Signer)
			if !ok {
				return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
			}
			return signer, nil

		case "EC PRIVATE KEY":
			key, err := x509.ParseECPrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrUnsupportedKey, err)
			}
			return key, nil
		}
	}
}

// slotSigner hides the concrete key type behind crypto.Signer.
type slotSigner struct {
	key crypto.Signer
}

func (s *slotSigner) Public() crypto.PublicKey {
	return s.key.Public()
}

func (s *slotSigner) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	return s.key.Sign(rand, digest, opts)
}

// ClientCertificate pairs a slot signer with the device certificate chain
// for TLS client authentication.
//
// certPEM may contain the leaf followed by intermediates. The leaf's
// public key must match the signer.
func ClientCertificate(signer crypto.Signer, certPEM []byte) (tls.Certificate, error) {
	var chain [][]byte
	rest := certPEM
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			chain = append(chain, block.Bytes)
		}
	}
	if len(chain) == 0 {
		return tls.Certificate{}, fmt.Errorf("%w: no CERTIFICATE block", ErrInvalidCertificate)
	}

	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: %w", ErrInvalidCertificate, err)
	}

	pub, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(leaf.PublicKey) {
		return tls.Certificate{}, ErrCertificateMismatch
	}

	return tls.Certificate{
		Certificate: chain,
		PrivateKey:  signer,
		Leaf:        leaf,
	}, nil
}
