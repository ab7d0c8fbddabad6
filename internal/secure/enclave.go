package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// SecureBuffer provides memory-safe storage for a secret value.
// It wraps memguard.Enclave so the value is encrypted at rest in memory
// and only decrypted into a locked buffer for the duration of a read.
//
// An empty value is held without an enclave: memguard refuses zero-length
// enclaves and there is nothing to protect.
type SecureBuffer struct {
	enclave *memguard.Enclave
	size    int
	mu      sync.RWMutex
	// destroyed tracks if this buffer has been destroyed to allow
	// idempotent Destroy() calls and prevent use after destroy
	destroyed bool
}

// NewSecureBuffer creates a protected buffer from secret bytes.
// memguard wipes data once it has been sealed, so callers must not reuse it.
func NewSecureBuffer(data []byte) *SecureBuffer {
	buf := &SecureBuffer{size: len(data)}
	if len(data) > 0 {
		// XSalsa20Poly1305 under a session key held in guarded memory
		buf.enclave = memguard.NewEnclave(data)
	}
	return buf
}

// Seal stores a string value in a new SecureBuffer.
func Seal(value string) *SecureBuffer {
	return NewSecureBuffer([]byte(value))
}

// Open decrypts and returns the protected data in a locked buffer.
// The caller MUST call Destroy() on the returned LockedBuffer when done
// to securely wipe the plaintext from memory.
//
// Example:
//
//	locked, err := buf.Open()
//	if err != nil {
//	    return err
//	}
//	defer locked.Destroy()
//	secret := locked.Bytes()
func (s *SecureBuffer) Open() (*memguard.LockedBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed {
		return nil, ErrDestroyed
	}
	if s.enclave == nil {
		return memguard.NewBuffer(0), nil
	}
	return s.enclave.Open()
}

// Reveal returns a copy of the plaintext as a string.
// The intermediate locked buffer is wiped before returning.
func (s *SecureBuffer) Reveal() (string, error) {
	locked, err := s.Open()
	if err != nil {
		return "", err
	}
	defer locked.Destroy()
	return string(locked.Bytes()), nil
}

// Size returns the length of the protected value in bytes.
func (s *SecureBuffer) Size() int {
	return s.size
}

// Destroy marks this SecureBuffer as destroyed and drops the enclave.
// This method is idempotent. After Destroy, Open returns ErrDestroyed.
//
// For complete cleanup of all memguard data at application exit,
// call memguard.Purge() in main().
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	s.enclave = nil
	s.destroyed = true
}
