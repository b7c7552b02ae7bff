// Package model defines domain models shared by the syncer components.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goodnatureofminers/ergowatch-syncer/pkg/safe"
)

// ErrMalformedPayload is returned when a notification payload is not a block height.
var ErrMalformedPayload = errors.New("malformed notification payload")

// Height identifies a block height announced by the chain-grabber.
type Height int32

// ParseHeight parses a decimal notification payload into a Height.
func ParseHeight(payload string) (Height, error) {
	raw, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedPayload, payload)
	}
	h, err := safe.NonNegativeInt32(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return Height(h), nil
}

func (h Height) String() string {
	return strconv.FormatInt(int64(h), 10)
}
