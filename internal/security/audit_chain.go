// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides the tool-call audit trail with secret redaction.
// audit_chain.go seals audit lines into a keyed BLAKE2b hash chain and verifies it.
package security

import (
	"bufio"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/crypto/blake2b"
)

// maxLineSize bounds a single audit line when scanning.
const maxLineSize = 1 << 20

// sealedLine is the on-disk form: the event bytes exactly as they were MACed.
type sealedLine struct {
	Event json.RawMessage `json:"event"`
	MAC   string          `json:"mac"`
}

// chainMAC computes BLAKE2b-256(key; prev || payload). A nil prev starts a
// new chain from 32 zero bytes.
func chainMAC(key, prev, payload []byte) []byte {
	h, err := blake2b.New256(key)
	if err != nil {
		// Only possible with a key over 64 bytes, which checkKeyLength rejects.
		panic(fmt.Sprintf("blake2b: %v", err))
	}
	if prev == nil {
		prev = make([]byte, blake2b.Size256)
	}
	h.Write(prev)
	h.Write(payload)
	return h.Sum(nil)
}

func encodeMAC(mac []byte) string { return hex.EncodeToString(mac) }

// sealLine encodes event and chains it to prev. The returned line ends in '\n'.
func sealLine(key, prev []byte, event AuditEvent) ([]byte, []byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, nil, err
	}
	mac := chainMAC(key, prev, payload)
	line, err := json.Marshal(sealedLine{Event: payload, MAC: encodeMAC(mac)})
	if err != nil {
		return nil, nil, err
	}
	return append(line, '\n'), mac, nil
}

func parseLine(raw []byte) (sealedLine, []byte, error) {
	var sl sealedLine
	if err := json.Unmarshal(raw, &sl); err != nil {
		return sealedLine{}, nil, fmt.Errorf("malformed line: %w", err)
	}
	mac, err := hex.DecodeString(sl.MAC)
	if err != nil || len(mac) != blake2b.Size256 {
		return sealedLine{}, nil, errors.New("malformed mac")
	}
	return sl, mac, nil
}

// scanLines calls fn for every non-empty line of path with its 1-based number.
func scanLines(path string, fn func(n int, line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	n := 0
	for scanner.Scan() {
		n++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		if err := fn(n, scanner.Bytes()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// lastChainMAC returns the MAC of the final line, or nil for a missing or
// empty file.
func lastChainMAC(path string) ([]byte, error) {
	var last []byte
	err := scanLines(path, func(n int, line []byte) error {
		_, mac, err := parseLine(line)
		if err != nil {
			return &ChainError{Path: path, Line: n, Reason: err.Error()}
		}
		last = mac
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return last, err
}

// =============================================================================
// VERIFICATION
// =============================================================================

// ErrChainBroken matches every ChainError.
var ErrChainBroken = errors.New("audit chain broken")

// ChainError locates the first line that fails verification.
type ChainError struct {
	Path   string
	Line   int
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Reason)
}

func (e *ChainError) Unwrap() error { return ErrChainBroken }

// VerifyReport summarizes one verified file.
type VerifyReport struct {
	Path  string
	Lines int
}

// VerifyFile checks permissions and every MAC link of one audit file.
func VerifyFile(path string, key []byte) (VerifyReport, error) {
	report := VerifyReport{Path: path}

	info, err := os.Stat(path)
	if err != nil {
		return report, err
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o077 != 0 {
		return report, fmt.Errorf("audit log permissions too open: %o (should be 0600)", info.Mode().Perm())
	}

	var prev []byte
	err = scanLines(path, func(n int, line []byte) error {
		sl, mac, err := parseLine(line)
		if err != nil {
			return &ChainError{Path: path, Line: n, Reason: err.Error()}
		}
		want := chainMAC(key, prev, sl.Event)
		if subtle.ConstantTimeCompare(want, mac) != 1 {
			return &ChainError{Path: path, Line: n, Reason: "mac mismatch"}
		}
		prev = mac
		report.Lines++
		return nil
	})
	return report, err
}

// VerifyAll verifies every rotated file and then the active one. Each file
// is an independent chain.
func VerifyAll(path string, key []byte) ([]VerifyReport, error) {
	rotated, err := RotatedFiles(path)
	if err != nil {
		return nil, err
	}
	var reports []VerifyReport
	for _, p := range append(rotated, path) {
		r, err := VerifyFile(p, key)
		if errors.Is(err, os.ErrNotExist) && p == path {
			continue
		}
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// VerifyIntegrity syncs and verifies the active file.
func (l *AuditLogger) VerifyIntegrity() error {
	if err := l.Sync(); err != nil {
		return err
	}
	l.mu.Lock()
	key := l.key
	l.mu.Unlock()
	_, err := VerifyFile(l.path, key)
	return err
}

// =============================================================================
// TAIL
// =============================================================================

// Tail returns the last n events of the active file, oldest first.
func Tail(path string, n int) ([]AuditEvent, error) {
	if n <= 0 {
		return nil, nil
	}
	ring := make([]AuditEvent, 0, n)
	err := scanLines(path, func(num int, line []byte) error {
		sl, _, err := parseLine(line)
		if err != nil {
			return &ChainError{Path: path, Line: num, Reason: err.Error()}
		}
		ev, err := decodeEvent(sl.Event)
		if err != nil {
			return &ChainError{Path: path, Line: num, Reason: err.Error()}
		}
		if len(ring) == n {
			ring = append(ring[1:], ev)
		} else {
			ring = append(ring, ev)
		}
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return ring, err
}
