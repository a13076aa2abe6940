// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package store

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// encodeCursor packs the (timestamp, id) position of the last row of a page
// into an opaque base64url token.
func encodeCursor(ts int64, id uuid.UUID) string {
	raw := strconv.FormatInt(ts, 10) + ":" + id.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor unpacks a pagination token. A malformed token is a caller
// error, reported as ErrInvalidCursor.
func decodeCursor(cursor string) (int64, uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	tsPart, idPart, ok := strings.Cut(string(raw), ":")
	if !ok {
		return 0, uuid.Nil, ErrInvalidCursor
	}
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return 0, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return 0, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return ts, id, nil
}
