package flake

import (
	"fmt"
	"time"

	"github.com/sony/sonyflake"
)

var flakes = map[string]*sonyflake.Sonyflake{}

// Namespace constructs the canonical flake namespace for an entity.
func Namespace(ns, entity string) string {
	return fmt.Sprintf("%s_%s", ns, entity)
}

// NextID returns the next safe to use ID for the given namespace.
func NextID(namespace string) (uint64, error) {
	if _, ok := flakes[namespace]; !ok {
		var s sonyflake.Settings
		s.StartTime = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

		flakes[namespace] = sonyflake.NewSonyflake(s)
	}

	return flakes[namespace].NextID()
}
