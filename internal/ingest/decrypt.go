// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Container format constants. An encrypted capture starts with the magic,
// followed by length-prefixed blocks: 4-byte big-endian length, 24-byte XChaCha20
// nonce, then ciphertext (plaintext is a run of complete log lines).
const (
	containerMagic = "LSEC1\n"

	maxBlockSize = 4 << 20 // oversized length prefix means corruption
)

// ErrNoDecryptKey is returned when an encrypted container is detected but no
// decrypt key was configured.
var ErrNoDecryptKey = errors.New("encrypted container detected but no decrypt key configured")

// DecryptResult is the outcome of decrypting one encrypted capture: the decoded
// text of the recovered blocks plus per-block success/failure counts.
type DecryptResult struct {
	Text         []byte
	BlocksOK     int
	BlocksFailed int
}

// Decryptor detects and decrypts the proprietary encrypted log container.
// Implemented here for self-hosted deployments; hosted deployments supply their
// own key-escrow backed implementation.
type Decryptor interface {
	Detect(raw []byte) bool
	Decrypt(raw []byte) (*DecryptResult, error)
}

// ContainerDecryptor decrypts the LSEC1 container with a per-project secret.
// Block failures are counted, not fatal: a capture with some corrupt blocks still
// yields the text of the blocks that decrypted.
type ContainerDecryptor struct {
	aead interface {
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
	hasKey bool
}

// NewContainerDecryptor derives the block key from the configured secret.
// An empty secret yields a decryptor that detects containers but fails fast on
// decrypt, so the pipeline can emit the fatal synthetic event.
func NewContainerDecryptor(secret string) (*ContainerDecryptor, error) {
	d := &ContainerDecryptor{}
	if secret == "" {
		return d, nil
	}
	key := sha256.Sum256([]byte(secret))
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("derive container key: %w", err)
	}
	d.aead = aead
	d.hasKey = true
	return d, nil
}

// Detect reports whether raw starts with the encrypted container magic.
func (d *ContainerDecryptor) Detect(raw []byte) bool {
	return bytes.HasPrefix(raw, []byte(containerMagic))
}

// Decrypt walks the container's blocks, decrypting each independently. A block
// that fails authentication or is truncated counts as failed and is skipped;
// remaining blocks are still attempted. The error return is reserved for
// conditions that prevent any attempt at all (missing key, no magic).
func (d *ContainerDecryptor) Decrypt(raw []byte) (*DecryptResult, error) {
	if !d.Detect(raw) {
		return nil, errors.New("not an encrypted container")
	}
	if !d.hasKey {
		return nil, ErrNoDecryptKey
	}

	body := raw[len(containerMagic):]
	res := &DecryptResult{}
	var text bytes.Buffer

	for len(body) > 0 {
		if len(body) < 4 {
			res.BlocksFailed++
			break
		}
		blockLen := int(binary.BigEndian.Uint32(body[:4]))
		body = body[4:]
		if blockLen <= 0 || blockLen > maxBlockSize || blockLen > len(body) {
			res.BlocksFailed++
			break
		}
		block := body[:blockLen]
		body = body[blockLen:]

		nonceSize := chacha20poly1305.NonceSizeX
		if len(block) <= nonceSize {
			res.BlocksFailed++
			continue
		}
		plain, err := d.aead.Open(nil, block[:nonceSize], block[nonceSize:], nil)
		if err != nil {
			res.BlocksFailed++
			continue
		}
		res.BlocksOK++
		text.Write(plain)
		if len(plain) > 0 && plain[len(plain)-1] != '\n' {
			text.WriteByte('\n')
		}
	}

	res.Text = text.Bytes()
	return res, nil
}
