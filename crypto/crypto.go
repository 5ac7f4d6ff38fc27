// SPDX-License-Identifier: GPL-3.0-only

package crypto

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"towebp-server/commons"

	"github.com/alexedwards/argon2id"
)

func NewCrypto() *Crypto {
	return &Crypto{
		ArgonTime:    uint32(envInt("ARGON2_TIME", 1)),
		ArgonMemory:  uint32(envInt("ARGON2_MEMORY", 65536)),
		ArgonThreads: uint8(envInt("ARGON2_THREADS", 2)),
		ArgonKeyLen:  uint32(envInt("ARGON2_KEYLEN", 32)),
		ArgonSaltLen: uint32(envInt("ARGON2_SALTLEN", 16)),
	}
}

func envInt(key string, fallback int) int {
	if v := commons.GetEnv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func (c *Crypto) HashPassword(password string) (string, error) {
	params := &argon2id.Params{
		Memory:      c.ArgonMemory,
		Iterations:  c.ArgonTime,
		Parallelism: c.ArgonThreads,
		SaltLength:  c.ArgonSaltLen,
		KeyLength:   c.ArgonKeyLen,
	}
	hash, err := argon2id.CreateHash(password, params)
	if err != nil {
		return "", err
	}
	return hash, nil
}

func (c *Crypto) VerifyPassword(password, encodedHash string) error {
	match, err := argon2id.ComparePasswordAndHash(password, encodedHash)
	if err != nil {
		return err
	}
	if !match {
		return fmt.Errorf("password verification failed")
	}
	return nil
}

// ContentHash computes the lowercase hex MD5 digest of r. The digest
// is the dedup key for uploaded content, not a security primitive.
func ContentHash(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// GenerateRandomString returns prefix plus length random bytes hex
// encoded.
func GenerateRandomString(prefix string, length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(b), nil
}
