package common

import (
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------- MakeRandToken ----------

func TestMakeRandToken_LengthAndEncoding(t *testing.T) {
	const n = 32
	s, err := MakeRandToken(n)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(s)
	require.NoError(t, err, "token must be raw url base64")
	assert.Len(t, raw, n)
}

func TestMakeRandToken_ZeroSize(t *testing.T) {
	s, err := MakeRandToken(0)
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestMakeRandToken_Distinct(t *testing.T) {
	a, err := MakeRandToken(32)
	require.NoError(t, err)
	b, err := MakeRandToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

// ---------- WipeByteArray ----------

func TestWipeByteArray_ZerosBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	WipeByteArray(buf)
	assert.Equal(t, []byte{0, 0, 0, 0, 0}, buf)
}

func TestWipeByteArray_NilSafe(t *testing.T) {
	WipeByteArray(nil)
}

// ---------- errors ----------

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{fmt.Errorf("%w: email is required", ErrValidation), KindValidation},
		{&DuplicateError{Field: "email"}, KindDuplicate},
		{ErrAuth, KindAuth},
		{ErrForbidden, KindAuthorization},
		{fmt.Errorf("%w: admin", ErrInvariantViolation), KindInvariantViolation},
		{ErrorNotFound, KindNotFound},
		{ErrTokenExpired, KindTokenExpired},
		{ErrInvalidToken, KindTokenInvalid},
		{NewStoreError("register", errors.New("conn refused")), KindStore},
		{errors.New("anything else"), KindStore},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestStoreError_HidesCause(t *testing.T) {
	cause := errors.New("password=hunter2 host=db")
	err := NewStoreError("authenticate", cause)

	assert.Equal(t, "store error: authenticate failed", err.Error())
	assert.ErrorIs(t, err, ErrStore)
	assert.ErrorIs(t, err, cause)
}

func TestDuplicateError(t *testing.T) {
	var err error = &DuplicateError{Field: "username"}

	assert.ErrorIs(t, err, ErrDuplicate)
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "username", dup.Field)
	assert.Equal(t, "username is already in use", err.Error())
}
