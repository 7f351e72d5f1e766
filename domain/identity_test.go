package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRole_Complement(t *testing.T) {
	req := require.New(t)
	req.Equal(RoleDoctor, RolePatient.Complement())
	req.Equal(RolePatient, RoleDoctor.Complement())
}

func TestParseRole(t *testing.T) {
	req := require.New(t)

	r, err := ParseRole("patient")
	req.NoError(err)
	req.Equal(RolePatient, r)

	_, err = ParseRole("nurse")
	req.Error(err)
}

func TestValidIdentifier(t *testing.T) {
	req := require.New(t)
	req.True(ValidIdentifier("65f1c0ffee"))
	req.True(ValidIdentifier("9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d"))
	req.True(ValidIdentifier("user_42"))
	req.False(ValidIdentifier(""))
	req.False(ValidIdentifier("has space"))
	req.False(ValidIdentifier("semi;colon"))
	req.False(ValidIdentifier(string(make([]byte, 65))))
}

func TestNewIdentity(t *testing.T) {
	req := require.New(t)

	id, err := NewIdentity("doctor", "d1")
	req.NoError(err)
	req.Equal("doctor:d1", id.String())

	_, err = NewIdentity("doctor", "bad id")
	req.Error(err)
	_, err = NewIdentity("admin", "d1")
	req.Error(err)
}
