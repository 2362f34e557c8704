package pagination

import (
	"encoding/base64"

	"github.com/vmihailenco/msgpack/v5"
)

// CursorVersion is the current page token format.
const CursorVersion = 1

// SortKey is the position of one result in the total page order. For grouped
// pages it describes a group: Score is the group's best score and EvidenceID
// and StartMs are unset.
type SortKey struct {
	Score      float64 `msgpack:"s"`
	ClipCount  int     `msgpack:"c"`
	AssetID    string  `msgpack:"a"`
	StartMs    *int64  `msgpack:"t"`
	EvidenceID string  `msgpack:"e"`
}

// Cursor is the decoded form of a page token.
type Cursor struct {
	Version          uint8   `msgpack:"v"`
	QueryFingerprint string  `msgpack:"q"`
	SnapshotMarker   string  `msgpack:"m"`
	SortBy           SortBy  `msgpack:"sb"`
	GroupBy          GroupBy `msgpack:"gb"`
	Last             SortKey `msgpack:"l"`
}

// Encode returns the opaque token for c.
func (c *Cursor) Encode() (string, error) {
	b, err := msgpack.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor parses a page token. It only checks that the token is well
// formed; Check binds it to a request.
func DecodeCursor(token string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, &MalformedCursorError{Reason: "not base64url", Err: err}
	}
	var c Cursor
	if err := msgpack.Unmarshal(b, &c); err != nil {
		return nil, &MalformedCursorError{Reason: "undecodable", Err: err}
	}
	if c.Version != CursorVersion {
		return nil, &MalformedCursorError{Reason: "unsupported version"}
	}
	if c.QueryFingerprint == "" || c.SnapshotMarker == "" || c.Last.AssetID == "" {
		return nil, &MalformedCursorError{Reason: "missing fields"}
	}
	if c.SortBy.validate() != nil || c.GroupBy.validate() != nil {
		return nil, &MalformedCursorError{Reason: "unknown ordering"}
	}
	return &c, nil
}

// Check verifies that c was issued for the same query and snapshot. A
// different query is a CursorMismatchError; the same query on another snapshot
// is a StaleCursorError.
func (c *Cursor) Check(fingerprint, marker string, sortBy SortBy, groupBy GroupBy) error {
	switch {
	case c.QueryFingerprint != fingerprint:
		return &CursorMismatchError{Field: "query_fingerprint"}
	case c.SortBy != sortBy.orDefault():
		return &CursorMismatchError{Field: "sort_by"}
	case c.GroupBy != groupBy:
		return &CursorMismatchError{Field: "group_by"}
	case c.SnapshotMarker != marker:
		return &StaleCursorError{CursorMarker: c.SnapshotMarker, ActiveMarker: marker}
	}
	return nil
}
