// Package domain contains core concepts of the relay.
// This file defines participant identities and role rules.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"fmt"
	"regexp"
)

// Role is the participant class. Presence and signaling address
// participants by (role, id), never by id alone.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

var complements = map[Role]Role{
	RolePatient: RoleDoctor,
	RoleDoctor:  RolePatient,
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := complements[r]
	return ok
}

// Complement returns the opposite side of a consultation.
func (r Role) Complement() Role {
	return complements[r]
}

// Identity is the sole addressing key for presence and signaling.
// Ids are only unique within a role.
type Identity struct {
	Role Role   `json:"userType"`
	ID   string `json:"userId"`
}

func NewIdentity(role, id string) (Identity, error) {
	r, err := ParseRole(role)
	if err != nil {
		return Identity{}, err
	}
	if !ValidIdentifier(id) {
		return Identity{}, fmt.Errorf("malformed identifier %q", id)
	}
	return Identity{Role: r, ID: id}, nil
}

func (i Identity) String() string {
	return string(i.Role) + ":" + i.ID
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidIdentifier accepts the id shapes produced upstream (uuids and
// hex object ids) and nothing else.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}
