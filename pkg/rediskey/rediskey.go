package rediskey

import "fmt"

// Key prefixes shared by every binary using the same redis.
const (
	RateLimitPrefix = "ratelimit"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildRateLimitKey returns "ratelimit:{subject}"
func BuildRateLimitKey(subject string) string {
	return NamespaceKey(RateLimitPrefix, subject)
}
