package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a prefixed identifier such as "adj-5f0c...". Orders use bare
// UUIDs; prefixed ids are for secondary records where a kind marker helps
// when scanning logs.
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
