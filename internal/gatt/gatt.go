// Package gatt models the GATT object tree exported to BlueZ: one
// Application owning Services, each owning Characteristics.
//
// Nothing in this package locks. All methods must be called from the
// goroutine that owns the tree (see internal/loop); Export arranges that for
// calls arriving over D-Bus.
package gatt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Flag is a characteristic capability as spelled in BlueZ's Flags property.
type Flag string

const (
	FlagRead   Flag = "read"
	FlagWrite  Flag = "write"
	FlagNotify Flag = "notify"
)

// ErrDuplicateUUID is returned when a UUID is added twice to the same parent.
var ErrDuplicateUUID = errors.New("duplicate UUID")

// normalizeUUID validates a 128-bit UUID and returns it in lower-case
// canonical form.
func normalizeUUID(s string) (string, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return u.String(), nil
}

// WriteHandler receives values written to a characteristic.
type WriteHandler interface {
	HandleWrite(value []byte)
}

// WriteHandlerFunc is an adapter to allow the use of ordinary functions as
// WriteHandlers.
type WriteHandlerFunc func(value []byte)

// HandleWrite calls f(value).
func (f WriteHandlerFunc) HandleWrite(value []byte) {
	f(value)
}
