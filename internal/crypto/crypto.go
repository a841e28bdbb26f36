// Package crypto encrypts snapshot archives with a password. The format is
// a fixed header (magic, format version, PBKDF2 salt, base nonce) followed
// by length-framed AES-256-GCM chunks, so archives of any size stream
// through fixed memory.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the PBKDF2 salt length.
	SaltSize = 32
	// KeySize is the AES-256 key length.
	KeySize = 32
	// NonceSize is the GCM nonce length.
	NonceSize = 12
	// Iterations is the PBKDF2 work factor.
	Iterations = 100000

	// chunkSize is the plaintext size sealed per GCM invocation.
	chunkSize = 64 * 1024
)

// magic identifies an encrypted snapshot archive. The trailing byte is the
// format version.
var magic = []byte{'S', 'N', 'A', 'P', 'E', 'N', 'C', 1}

var (
	ErrNotEncrypted  = errors.New("not an encrypted snapshot archive")
	ErrWrongPassword = errors.New("wrong password or corrupted data")
)

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
}

// chunkNonce derives the nonce for chunk number counter by folding the
// counter into the base nonce. Nonces never repeat under one key because
// the salt, and therefore the key, is fresh per archive.
func chunkNonce(base []byte, counter uint64) []byte {
	nonce := make([]byte, len(base))
	copy(nonce, base)
	for i := 0; i < 8 && i < len(nonce); i++ {
		nonce[len(nonce)-1-i] ^= byte(counter >> (8 * i))
	}
	return nonce
}

// Encrypt streams r through AES-256-GCM into w.
func Encrypt(w io.Writer, r io.Reader, password string) error {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	baseNonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, baseNonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := newAEAD(password, salt)
	if err != nil {
		return err
	}

	for _, part := range [][]byte{magic, salt, baseNonce} {
		if _, err := w.Write(part); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	buf := make([]byte, chunkSize)
	var counter uint64
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			sealed := gcm.Seal(nil, chunkNonce(baseNonce, counter), buf[:n], nil)
			counter++

			var frame [4]byte
			binary.BigEndian.PutUint32(frame[:], uint32(len(sealed)))
			if _, err := w.Write(frame[:]); err != nil {
				return fmt.Errorf("failed to write chunk frame: %w", err)
			}
			if _, err := w.Write(sealed); err != nil {
				return fmt.Errorf("failed to write chunk: %w", err)
			}
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("failed to read plaintext: %w", readErr)
		}
	}
}

// Decrypt streams an encrypted archive from r into w.
func Decrypt(w io.Writer, r io.Reader, password string) error {
	header := make([]byte, len(magic))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if string(header) != string(magic) {
		return ErrNotEncrypted
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(r, salt); err != nil {
		return fmt.Errorf("failed to read salt: %w", err)
	}
	baseNonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(r, baseNonce); err != nil {
		return fmt.Errorf("failed to read nonce: %w", err)
	}

	gcm, err := newAEAD(password, salt)
	if err != nil {
		return err
	}

	var counter uint64
	var frame [4]byte
	sealed := make([]byte, 0, chunkSize+gcm.Overhead())
	for {
		if _, err := io.ReadFull(r, frame[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read chunk frame: %w", err)
		}
		size := binary.BigEndian.Uint32(frame[:])
		if size > chunkSize+uint32(gcm.Overhead()) {
			return fmt.Errorf("%w: oversized chunk", ErrWrongPassword)
		}

		sealed = sealed[:size]
		if _, err := io.ReadFull(r, sealed); err != nil {
			return fmt.Errorf("failed to read chunk: %w", err)
		}

		plain, err := gcm.Open(nil, chunkNonce(baseNonce, counter), sealed, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWrongPassword, err)
		}
		counter++

		if _, err := w.Write(plain); err != nil {
			return fmt.Errorf("failed to write plaintext: %w", err)
		}
	}
}

func newAEAD(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptFile encrypts srcPath into destPath.
func EncryptFile(srcPath, destPath, password string) error {
	return transformFile(srcPath, destPath, func(w io.Writer, r io.Reader) error {
		return Encrypt(w, r, password)
	})
}

// DecryptFile decrypts srcPath into destPath.
func DecryptFile(srcPath, destPath, password string) error {
	return transformFile(srcPath, destPath, func(w io.Writer, r io.Reader) error {
		return Decrypt(w, r, password)
	})
}

func transformFile(srcPath, destPath string, transform func(io.Writer, io.Reader) error) error {
	in, err := os.Open(srcPath) // #nosec G304 - user-supplied archive path
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", srcPath, err)
	}
	defer func() {
		if err := in.Close(); err != nil {
			fmt.Printf("Warning: failed to close %s: %v\n", srcPath, err)
		}
	}()

	out, err := os.Create(destPath) // #nosec G304 - user-supplied output path
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}

	if err := transform(out, in); err != nil {
		if closeErr := out.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close %s: %v\n", destPath, closeErr)
		}
		if removeErr := os.Remove(destPath); removeErr != nil {
			fmt.Printf("Warning: failed to remove partial output: %v\n", removeErr)
		}
		return err
	}
	return out.Close()
}

// IsEncryptedFile reports whether the file starts with the encryption
// magic.
func IsEncryptedFile(path string) (bool, error) {
	f, err := os.Open(path) // #nosec G304 - user-supplied archive path
	if err != nil {
		return false, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Printf("Warning: failed to close %s: %v\n", path, err)
		}
	}()

	header := make([]byte, len(magic))
	if _, err := io.ReadFull(f, header); err != nil {
		// Too short to carry the header, so not encrypted.
		return false, nil
	}
	return string(header) == string(magic), nil
}
