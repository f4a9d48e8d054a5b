package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const lsidPrefix = "urn:lsid:"

// LSID is a parsed Life Science Identifier: urn:lsid:<authority>:<namespace>:<object>.
type LSID struct {
	Authority string
	Namespace string
	Object    string
}

func (l LSID) String() string {
	return lsidPrefix + l.Authority + ":" + l.Namespace + ":" + l.Object
}

// MintLSID returns a fresh artifact identifier. The namespace is the artifact
// kind and the object part a time-ordered UUID, so ids are unique across
// scopes and sort by creation.
func MintLSID(authority string, kind ArtifactKind) string {
	return LSID{
		Authority: authority,
		Namespace: string(kind),
		Object:    uuid.Must(uuid.NewV7()).String(),
	}.String()
}

// ParseLSID splits an LSID into its parts.
func ParseLSID(s string) (LSID, error) {
	if !strings.HasPrefix(strings.ToLower(s), lsidPrefix) {
		return LSID{}, fmt.Errorf("lsid %q: missing %s prefix", s, lsidPrefix)
	}
	parts := strings.SplitN(s[len(lsidPrefix):], ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return LSID{}, fmt.Errorf("lsid %q: want authority:namespace:object", s)
	}
	return LSID{Authority: parts[0], Namespace: parts[1], Object: parts[2]}, nil
}
