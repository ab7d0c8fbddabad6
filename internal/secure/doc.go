// Package secure provides memory-safe handling of sensitive data.
//
// This package wraps the memguard library to provide secure storage for
// secrets in memory. It ensures that sensitive data is:
//
//   - Encrypted at rest in memory (XSalsa20Poly1305)
//   - Protected from swapping via mlock
//   - Securely wiped when no longer needed
//   - Protected from buffer overflow via guard pages
//
// # Usage
//
// The resolution cache seals every fetched value on store and reveals it
// only when substituting into a tree:
//
//	buf := secure.Seal(value)
//	defer buf.Destroy()
//
//	plaintext, err := buf.Reveal()
//	if err != nil {
//	    // buffer was destroyed by a cache clear
//	}
//
// Open gives direct access to the locked plaintext buffer when a string copy
// is not wanted; the caller must Destroy the returned buffer.
//
// # Platform Behavior
//
// Memory locking behavior varies by platform:
//
//   - Linux: Requires RLIMIT_MEMLOCK to be set appropriately
//   - macOS: Works out of the box
//   - Windows: Uses VirtualLock
//
// If mlock is unavailable memguard falls back to ordinary memory; values
// are still encrypted at rest.
//
// # Security Guarantees
//
// This package provides defense-in-depth against memory-based attacks:
//
//   - Core dumps will not contain plaintext secrets
//   - Secrets won't be swapped to disk
//   - Memory is overwritten with zeros on destruction
//   - Guard pages detect buffer overflows
//
// It does NOT protect against:
//
//   - Attackers with root access to the running process
//   - Hardware-level attacks (cold boot, DMA)
//   - Spectre/Meltdown side-channel attacks
package secure
