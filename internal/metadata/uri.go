// Package metadata interprets token metadata URIs. Verification never looks
// at the URI; this is only used when minting vouchers and describing tokens.
package metadata

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
)

const ipfsScheme = "ipfs://"

var (
	ErrEmptyURI   = errors.New("metadata: empty uri")
	ErrInvalidCID = errors.New("metadata: invalid cid")
)

// URI is a parsed metadata pointer. CID is undefined for non-IPFS URIs.
type URI struct {
	Raw  string
	CID  cid.Cid
	Path string
}

// IsContentAddressed reports whether the URI pins its content by CID.
func (u URI) IsContentAddressed() bool { return u.CID.Defined() }

// Parse accepts any non-empty URI. ipfs:// URIs must start with a valid CID,
// optionally followed by a path ("ipfs://<cid>/metadata.json").
func Parse(raw string) (URI, error) {
	if strings.TrimSpace(raw) == "" {
		return URI{}, ErrEmptyURI
	}
	if !strings.HasPrefix(raw, ipfsScheme) {
		return URI{Raw: raw}, nil
	}

	rest := strings.TrimPrefix(raw, ipfsScheme)
	rest = strings.TrimPrefix(rest, "ipfs/") // tolerate ipfs://ipfs/<cid>
	cidStr, path, _ := strings.Cut(rest, "/")

	id, err := cid.Decode(cidStr)
	if err != nil {
		return URI{}, fmt.Errorf("%w: %q: %v", ErrInvalidCID, cidStr, err)
	}
	return URI{Raw: raw, CID: id, Path: path}, nil
}
