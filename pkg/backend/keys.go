package backend

import (
	"strings"
)

const (
	metadataKeyPrefix = "_meta_"
	metadataKeySuffix = ".json"
	lockKeyPrefix     = "_lock_"
	lockKeySuffix     = ".json"
	registryKey       = "_registry.json"
	versionSeparator  = "@"
)

// contentPrefix is the directory-like prefix holding the files of one version.
func contentPrefix(name, version string) string {
	return name + "/" + version + "/"
}

func metadataKey(name, version string) string {
	return metadataKeyPrefix + name + versionSeparator + version + metadataKeySuffix
}

func metadataListPrefix(name string) string {
	if name == "" {
		return metadataKeyPrefix
	}
	return metadataKeyPrefix + name + versionSeparator
}

// parseMetadataKey splits a metadata key into name and version. Neither may
// contain "@", so the first separator is the boundary.
func parseMetadataKey(key string) (name, version string, ok bool) {
	if !strings.HasPrefix(key, metadataKeyPrefix) || !strings.HasSuffix(key, metadataKeySuffix) {
		return "", "", false
	}
	// metadata keys never live below a directory
	if strings.Contains(key, "/") {
		return "", "", false
	}
	trimmed := strings.TrimSuffix(strings.TrimPrefix(key, metadataKeyPrefix), metadataKeySuffix)
	name, version, ok = strings.Cut(trimmed, versionSeparator)
	if !ok || name == "" || version == "" {
		return "", "", false
	}
	return name, version, true
}

func lockKey(key string) string {
	return lockKeyPrefix + key + lockKeySuffix
}
