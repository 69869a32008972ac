package index

import (
	"fmt"
	"strings"
)

// Kind tags the index layout.
type Kind string

const (
	KindFlat    Kind = "Flat"
	KindHNSW    Kind = "HNSW"
	KindIVFFlat Kind = "IVFFlat"
)

// ParseKind converts a user-facing kind name to a Kind. Accepted spellings
// are "flat", "hnsw", "ivfflat" and "ivf_flat", case-insensitive.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "flat":
		return KindFlat, nil
	case "hnsw":
		return KindHNSW, nil
	case "ivfflat", "ivf_flat":
		return KindIVFFlat, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

func (k Kind) String() string {
	return string(k)
}
