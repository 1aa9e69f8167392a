package metadb

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *recordCodec {
	t.Helper()
	codec, err := newRecordCodec()
	require.NoError(t, err)
	t.Cleanup(codec.Close)
	return codec
}

func TestRecordCodecSmallPayloadIsIdentity(t *testing.T) {
	codec := newTestCodec(t)

	data := []byte(`{"bucket":"photos","key":"cat.jpg"}`)
	encoded, err := codec.Encode(data)
	require.NoError(t, err)
	assert.Equal(t, encodingIdentity, encoded[0])

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestRecordCodecCompressesLargePayloads(t *testing.T) {
	codec := newTestCodec(t)

	data := []byte(strings.Repeat("compressible metadata ", 500))
	require.Greater(t, len(data), compressionThreshold)

	encoded, err := codec.Encode(data)
	require.NoError(t, err)
	assert.Equal(t, encodingZstd, encoded[0])
	assert.Less(t, len(encoded), len(data))

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestRecordCodecIncompressibleStaysIdentity(t *testing.T) {
	codec := newTestCodec(t)

	// Pseudo-random bytes do not compress; the codec keeps them plain.
	data := make([]byte, compressionThreshold*2)
	state := uint64(1)
	for i := range data {
		state = state*6364136223846793005 + 1442695040888963407
		data[i] = byte(state >> 56)
	}

	encoded, err := codec.Encode(data)
	require.NoError(t, err)
	assert.Equal(t, encodingIdentity, encoded[0])

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, decoded))
}

func TestRecordCodecRejectsOversizedPayload(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.Encode(make([]byte, maxPayloadSize+1))
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestRecordCodecRejectsCorruptValues(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.Decode(nil)
	require.ErrorIs(t, err, ErrCorrupted)

	_, err = codec.Decode([]byte{0xFF, 0x01, 0x02})
	require.ErrorIs(t, err, ErrCorrupted)

	_, err = codec.Decode([]byte{encodingZstd, 0xde, 0xad, 0xbe, 0xef})
	require.ErrorIs(t, err, ErrCorrupted)
}

func TestMakeObjectKeyRoundTrip(t *testing.T) {
	key := makeObjectKey("photos", "2024/cat.jpg")
	bucket, objectKey := parseObjectKey(key)
	assert.Equal(t, "photos", bucket)
	assert.Equal(t, "2024/cat.jpg", objectKey)

	assert.True(t, bytes.HasPrefix(key, objectPrefix("photos")))
	assert.False(t, bytes.HasPrefix(key, objectPrefix("photo")))
}
