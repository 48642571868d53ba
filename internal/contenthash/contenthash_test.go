package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSumDefault(t *testing.T) {
	data := []byte("console.log(1)")
	full := sha256.Sum256(data)

	require.Equal(t, hex.EncodeToString(full[:])[:20], Default().Sum(data))
}

func TestSumVariants(t *testing.T) {
	data := []byte("body{}")

	tests := []struct {
		name   string
		hasher Hasher
		length int
	}{
		{name: "sha256 hex whole", hasher: Hasher{Function: FunctionSHA256, Digest: DigestHex}, length: 64},
		{name: "crc64 hex", hasher: Hasher{Function: FunctionCRC64NVME, Digest: DigestHex}, length: 16},
		{name: "truncated base58", hasher: Hasher{Function: FunctionSHA256, Digest: DigestBase58, Length: 8}, length: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum := tt.hasher.Sum(data)
			require.Len(t, sum, tt.length)
			require.Equal(t, sum, tt.hasher.Sum(data), "digest must be stable")
			require.NotEqual(t, sum, tt.hasher.Sum([]byte("body{ }")))
		})
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())
	require.ErrorIs(t, Hasher{Function: "md5"}.Validate(), ErrUnknownFunction)
	require.ErrorIs(t, Hasher{Digest: "base64"}.Validate(), ErrUnknownDigest)
}

func TestRender(t *testing.T) {
	vars := Vars{Name: "main", Hash: "0123456789abcdef", Ext: ".js"}

	tests := []struct {
		template string
		expected string
	}{
		{template: "[name].[hash].js", expected: "main.0123456789abcdef.js"},
		{template: "[name].[hash:8].[ext]", expected: "main.01234567.js"},
		{template: "assets/[contenthash].[ext]", expected: "assets/0123456789abcdef.js"},
		{template: "[name].js", expected: "main.js"},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			require.Equal(t, tt.expected, Render(tt.template, vars))
		})
	}
}

func TestHasPlaceholder(t *testing.T) {
	require.True(t, HasPlaceholder("[name].[hash:8].js", "hash"))
	require.True(t, HasPlaceholder("[contenthash].css", "hash"))
	require.False(t, HasPlaceholder("[name].js", "hash"))
}
