package cache

import "fmt"

func EpochKey(group, site string) string {
	return fmt.Sprintf("epoch:%s:%s", group, site)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
