// Package contenthash computes content digests and renders output filename
// templates such as "[name].[hash:8].js".
package contenthash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/minio/crc64nvme"
	"github.com/mr-tron/base58"
)

const (
	FunctionSHA256    = "sha256"
	FunctionCRC64NVME = "crc64nvme"

	DigestHex    = "hex"
	DigestBase58 = "base58"

	DefaultLength = 20
)

var (
	// ErrUnknownFunction indicates an unsupported hash function name
	ErrUnknownFunction = errors.New("unknown hash function")
	// ErrUnknownDigest indicates an unsupported digest encoding
	ErrUnknownDigest = errors.New("unknown hash digest")
)

// Hasher produces truncated, encoded content digests.
type Hasher struct {
	Function string
	Digest   string
	// Length truncates the encoded digest. Zero or negative keeps it whole.
	Length int
}

// Default returns sha256, hex encoded, truncated to 20 characters.
func Default() Hasher {
	return Hasher{Function: FunctionSHA256, Digest: DigestHex, Length: DefaultLength}
}

// Validate checks the function and digest names.
func (h Hasher) Validate() error {
	switch h.Function {
	case "", FunctionSHA256, FunctionCRC64NVME:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFunction, h.Function)
	}
	switch h.Digest {
	case "", DigestHex, DigestBase58:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDigest, h.Digest)
	}
	return nil
}

// Sum returns the encoded digest of data, truncated to h.Length.
func (h Hasher) Sum(data []byte) string {
	return truncate(h.encode(h.sum(data)), h.Length)
}

func (h Hasher) sum(data []byte) []byte {
	if h.Function == FunctionCRC64NVME {
		c := crc64nvme.New()
		c.Write(data)
		return binary.BigEndian.AppendUint64(nil, c.Sum64())
	}

	sum := sha256.Sum256(data)
	return sum[:]
}

func (h Hasher) encode(sum []byte) string {
	if h.Digest == DigestBase58 {
		return base58.Encode(sum)
	}
	return hex.EncodeToString(sum)
}

func truncate(s string, n int) string {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[:n]
}

// Vars are the values substituted into a filename template.
type Vars struct {
	Name string
	Hash string
	// Ext includes the leading dot.
	Ext string
}

var placeholder = regexp.MustCompile(`\[(name|hash|contenthash|ext)(?::(\d+))?\]`)

// Render substitutes [name], [hash], [contenthash], [hash:N] and [ext] in
// template. [ext] expands without the leading dot to match "[name].[ext]".
func Render(template string, vars Vars) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		parts := placeholder.FindStringSubmatch(m)
		switch parts[1] {
		case "name":
			return vars.Name
		case "ext":
			return strings.TrimPrefix(vars.Ext, ".")
		default:
			if parts[2] == "" {
				return vars.Hash
			}
			n, _ := strconv.Atoi(parts[2])
			return truncate(vars.Hash, n)
		}
	})
}

// HasPlaceholder reports whether template uses the named placeholder.
func HasPlaceholder(template, name string) bool {
	for _, m := range placeholder.FindAllStringSubmatch(template, -1) {
		if m[1] == name || (name == "hash" && m[1] == "contenthash") {
			return true
		}
	}
	return false
}
