package telemetry

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjectAndGetTags(t *testing.T) {
	r := httptest.NewRequest("GET", "/objects/photos/cat.jpg", nil)

	// Without injection there are no tags.
	assert.Nil(t, GetTags(r))

	r = InjectTags(r)
	tags := GetTags(r)
	require.NotNil(t, tags)
	assert.Equal(t, CacheBypass, tags.CacheResult)
}

func TestSetCacheResult(t *testing.T) {
	r := InjectTags(httptest.NewRequest("GET", "/objects/photos/cat.jpg", nil))

	SetCacheResult(r, CacheHit)
	assert.Equal(t, CacheHit, GetTags(r).CacheResult)

	SetCacheResult(r, CacheMiss)
	assert.Equal(t, CacheMiss, GetTags(r).CacheResult)
}

func TestSetCacheResultWithoutTagsIsNoop(t *testing.T) {
	r := httptest.NewRequest("GET", "/health", nil)
	// Must not panic when middleware never ran.
	SetCacheResult(r, CacheHit)
	SetEndpoint(r, "health")
}

func TestSetEndpoint(t *testing.T) {
	r := InjectTags(httptest.NewRequest("PUT", "/buckets/photos", nil))

	SetEndpoint(r, "bucket_create")
	assert.Equal(t, "bucket_create", GetTags(r).Endpoint)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", StatusClass(201))
	assert.Equal(t, "3xx", StatusClass(304))
	assert.Equal(t, "4xx", StatusClass(404))
	assert.Equal(t, "5xx", StatusClass(500))
	assert.Equal(t, "unknown", StatusClass(42))
}
