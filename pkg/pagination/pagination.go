package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// ErrInvalidCursor is returned for tokens that were not produced by EncodeCursor.
var ErrInvalidCursor = errors.New("invalid cursor")

// Take parses a requested page size and clamps it to [1, max]. Empty or
// unparsable input yields def.
func Take(raw string, def, max int) int {
	n, err := strconv.Atoi(raw)
	if raw == "" || err != nil {
		n = def
	}
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}

// Cursor is a keyset position: the sort timestamp and the tie-breaking id of
// the last row of the previous page.
type Cursor struct {
	At time.Time
	ID string
}

type wireCursor struct {
	At string `json:"t"`
	ID string `json:"id"`
}

// EncodeCursor returns an opaque URL-safe token for c.
func EncodeCursor(c Cursor) string {
	b, _ := json.Marshal(wireCursor{At: c.At.UTC().Format(time.RFC3339Nano), ID: c.ID})
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	var w wireCursor
	if err := json.Unmarshal(raw, &w); err != nil || w.ID == "" {
		return Cursor{}, ErrInvalidCursor
	}
	at, err := time.Parse(time.RFC3339Nano, w.At)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	return Cursor{At: at, ID: w.ID}, nil
}

// Page is one slice of a keyset-paginated listing.
type Page[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"next_cursor"`
}

// Trim turns rows fetched with LIMIT size+1 into a page. When the extra row
// is present it is dropped and next builds the cursor from the last kept row.
func Trim[T any](rows []T, size int, next func(T) Cursor) Page[T] {
	if rows == nil {
		rows = []T{}
	}
	if len(rows) <= size {
		return Page[T]{Items: rows}
	}
	rows = rows[:size]
	token := EncodeCursor(next(rows[len(rows)-1]))
	return Page[T]{Items: rows, NextCursor: &token}
}

// Map converts the items of a page, keeping its cursor.
func Map[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := make([]U, len(p.Items))
	for i, it := range p.Items {
		out[i] = fn(it)
	}
	return Page[U]{Items: out, NextCursor: p.NextCursor}
}
