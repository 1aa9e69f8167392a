package pail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidBucketName(t *testing.T) {
	valid := []string{
		"photos",
		"my-bucket",
		"my.bucket.2024",
		"a",
		strings.Repeat("x", 63),
	}
	for _, name := range valid {
		assert.True(t, ValidBucketName(name), "expected %q to be valid", name)
	}

	invalid := []string{
		"",
		"UPPER",
		"-leading",
		"trailing-",
		".leading",
		"has space",
		"has/slash",
		strings.Repeat("x", 64),
	}
	for _, name := range invalid {
		assert.False(t, ValidBucketName(name), "expected %q to be invalid", name)
	}
}

func TestObjectKeyString(t *testing.T) {
	k := ObjectKey{Bucket: "photos", Key: "2024/cat.jpg"}
	require.Equal(t, "photos/2024/cat.jpg", k.String())
}

func TestObjectInfoObjectKey(t *testing.T) {
	info := &ObjectInfo{Bucket: "docs", Key: "readme.md"}
	require.Equal(t, ObjectKey{Bucket: "docs", Key: "readme.md"}, info.ObjectKey())
}
