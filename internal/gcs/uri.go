package gcs

import (
	"fmt"
	"path"
	"strings"
	"time"
)

const scheme = "gs://"

// ParseURI splits "gs://bucket/path/to/object" into bucket and object path.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, scheme) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, scheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// IsURI reports whether s looks like a gs:// URI.
func IsURI(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), scheme)
}

// BuildURI joins bucket and object into a gs:// URI.
func BuildURI(bucket, object string) string {
	return scheme + bucket + "/" + object
}

// ArchiveObjectName is where a raw message is archived:
// messages/<user>/<YYYY/MM/DD>/<message id>.txt, dated in UTC.
func ArchiveObjectName(userID, messageID string, at time.Time) string {
	return path.Join("messages", userID, at.UTC().Format("2006/01/02"), messageID+".txt")
}

// ParseArchiveURI recovers the owner and message id from a URI built by
// ArchiveMessage.
func ParseArchiveURI(uri string) (userID, messageID string, err error) {
	_, object, err := ParseURI(uri)
	if err != nil {
		return "", "", err
	}
	parts := strings.Split(object, "/")
	if len(parts) != 6 || parts[0] != "messages" || parts[1] == "" || !strings.HasSuffix(parts[5], ".txt") {
		return "", "", fmt.Errorf("not an archived message: %s", uri)
	}
	messageID = strings.TrimSuffix(parts[5], ".txt")
	if messageID == "" {
		return "", "", fmt.Errorf("not an archived message: %s", uri)
	}
	return parts[1], messageID, nil
}
