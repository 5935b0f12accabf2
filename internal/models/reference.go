package models

import "strconv"

// UserRef is the id of a row in the identity store's users table, carried by
// value into the academic and support stores.
//
// The three stores are separate databases, so nothing checks that a UserRef
// points at an existing user. It is correct only because writers create the
// identity user first and copy its id afterwards. A crash between the two
// writes leaves an identity user without an academic row, never the reverse;
// bootstrap re-runs close that gap and ReferenceService.FindDangling reports
// any reference that does not resolve.
type UserRef int64

// Valid reports whether the reference holds a usable id. It says nothing
// about whether the user still exists.
func (r UserRef) Valid() bool { return r > 0 }

// Int64 returns the raw id.
func (r UserRef) Int64() int64 { return int64(r) }

func (r UserRef) String() string { return strconv.FormatInt(int64(r), 10) }
