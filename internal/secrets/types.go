// Package secrets implements a small versioned secret store: each secret
// keeps every value ever written, addressed either by version id or by a
// movable stage label (AWSCURRENT / AWSPREVIOUS), mirroring the staging
// model real secret managers use for safe rotation.
package secrets

import "time"

// Stage is a movable label pointing at one version of a secret.
type Stage string

const (
	StageCurrent  Stage = "AWSCURRENT"
	StagePrevious Stage = "AWSPREVIOUS"
)

// Version is one immutable value ever written to a secret.
type Version struct {
	VersionID string
	Value     string
	CreatedAt time.Time
}

// Secret is a named secret with its version history and current stage
// pointers.
type Secret struct {
	Name        string
	Description string
	Versions    map[string]Version
	Stages      map[Stage]string // stage -> version id
	CreatedAt   time.Time
	DeletedAt   *time.Time // set by DeleteSecret; there is no restore
}
