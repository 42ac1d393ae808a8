// Package parameters implements a hierarchical parameter store: plain
// strings, string lists, and "secure" strings addressed by a path-like
// name (e.g. "/app/db/host"), each keeping its prior values as numbered
// versions.
package parameters

import "time"

// ParamType is the stored value's kind.
type ParamType string

const (
	TypeString       ParamType = "String"
	TypeStringList   ParamType = "StringList"
	TypeSecureString ParamType = "SecureString"
)

// Parameter is one named parameter at its current version, plus history.
type Parameter struct {
	Name        string
	Type        ParamType
	Value       string
	Version     int
	History     map[int]string
	Description string
	UpdatedAt   time.Time
}
