// Package metadb implements the persistent metadata store for buckets and
// objects using bbolt.
package metadb

// Bucket names for bbolt storage.
var (
	bucketBuckets = []byte("buckets") // bucket name -> BucketInfo JSON
	bucketObjects = []byte("objects") // bucket\x00key -> envelope-coded ObjectInfo
)

// makeObjectKey creates a compound key for the objects bucket.
// Format: [bucket][null separator][key]
func makeObjectKey(bucket, key string) []byte {
	result := make([]byte, len(bucket)+1+len(key))
	copy(result, bucket)
	result[len(bucket)] = 0
	copy(result[len(bucket)+1:], key)
	return result
}

// parseObjectKey extracts bucket and key from a compound object key.
func parseObjectKey(data []byte) (bucket, key string) {
	for i, b := range data {
		if b == 0 {
			return string(data[:i]), string(data[i+1:])
		}
	}
	return string(data), ""
}

// objectPrefix returns the compound-key prefix covering every object in a
// bucket, including the null separator so "photo" never matches "photos".
func objectPrefix(bucket string) []byte {
	prefix := make([]byte, len(bucket)+1)
	copy(prefix, bucket)
	prefix[len(bucket)] = 0
	return prefix
}
