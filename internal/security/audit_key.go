// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides the tool-call audit trail with secret redaction.
// audit_key.go loads or creates the key that seals the audit chain.
package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/crypto/blake2b"

	"github.com/jeranaias/rigtools/internal/logging"
	"github.com/jeranaias/rigtools/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// AuditKeyEnvVar holds a hex-encoded key. It wins over the key file.
const AuditKeyEnvVar = "RIGTOOLS_AUDIT_KEY"

// AuditKeyFileName is the key file inside the config directory.
const AuditKeyFileName = "audit.key"

// MinAuditKeyLength is the minimum key length in bytes (256 bits).
const MinAuditKeyLength = 32

// maxAuditKeyLength is the BLAKE2b key limit.
const maxAuditKeyLength = blake2b.Size

var (
	// ErrInvalidAuditKey is returned for keys of the wrong length.
	ErrInvalidAuditKey = fmt.Errorf("audit key must be %d to %d bytes", MinAuditKeyLength, maxAuditKeyLength)

	// ErrKeyFilePermissions is returned when the key file is readable by others.
	ErrKeyFilePermissions = errors.New("audit key file has insecure permissions")
)

// KeySource identifies where the audit key was loaded from.
type KeySource string

const (
	KeySourceEnv       KeySource = "environment"
	KeySourceFile      KeySource = "file"
	KeySourceGenerated KeySource = "generated"
)

// =============================================================================
// LOADING
// =============================================================================

// LoadAuditKey returns the audit key from, in order: RIGTOOLS_AUDIT_KEY, the
// key file in dir, or a freshly generated key written to that file.
// An invalid env key is an error; it never falls through to the file.
func LoadAuditKey(dir string) ([]byte, KeySource, error) {
	key, source, err := ReadAuditKey(dir)
	if err == nil {
		return key, source, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, "", err
	}

	path := filepath.Join(dir, AuditKeyFileName)
	key, err = GenerateAuditKey()
	if err != nil {
		return nil, "", err
	}
	if err := util.AtomicWriteFile(path, key, 0o600); err != nil {
		return nil, "", fmt.Errorf("failed to write key file: %w", err)
	}
	logging.Info().
		Add(logging.Component("audit")).
		Add(logging.Str("path", path)).
		Add(logging.Str("fingerprint", KeyFingerprint(key))).
		Msg("generated audit key")
	return key, KeySourceGenerated, nil
}

// ReadAuditKey is LoadAuditKey without generation. A missing key file is
// reported as an error wrapping os.ErrNotExist.
func ReadAuditKey(dir string) ([]byte, KeySource, error) {
	if raw := os.Getenv(AuditKeyEnvVar); raw != "" {
		key, err := hex.DecodeString(raw)
		if err != nil {
			return nil, "", fmt.Errorf("%s must be hex-encoded: %w", AuditKeyEnvVar, err)
		}
		if err := checkKeyLength(key); err != nil {
			return nil, "", err
		}
		return key, KeySourceEnv, nil
	}

	key, err := loadKeyFile(filepath.Join(dir, AuditKeyFileName))
	if err != nil {
		return nil, "", err
	}
	return key, KeySourceFile, nil
}

func loadKeyFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	// Windows has no mode bits to check; the config dir ACL applies.
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("%w: %s has mode %o, should be 0600 or 0400",
			ErrKeyFilePermissions, path, info.Mode().Perm())
	}
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	if err := checkKeyLength(key); err != nil {
		return nil, err
	}
	return key, nil
}

func checkKeyLength(key []byte) error {
	if len(key) < MinAuditKeyLength || len(key) > maxAuditKeyLength {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidAuditKey, len(key))
	}
	return nil
}

// GenerateAuditKey returns a new random 256-bit key.
func GenerateAuditKey() ([]byte, error) {
	key := make([]byte, MinAuditKeyLength)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// KeyFingerprint identifies a key without exposing it.
func KeyFingerprint(key []byte) string {
	sum := blake2b.Sum256(key)
	return hex.EncodeToString(sum[:4])
}
