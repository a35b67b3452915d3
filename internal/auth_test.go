package internal

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lychee-technology/schemata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFinder struct {
	tokens map[string]int64
	err    error
}

func (s stubFinder) FindBy(_ context.Context, _ *schemata.ModelDefinition, field string, value schemata.Value) (schemata.Row, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	token, _ := value.Str()
	id, ok := s.tokens[token]
	if field != "token" || !ok {
		return nil, false, nil
	}
	return schemata.Row{"id": schemata.IntegerValue(id)}, true, nil
}

func TestAuthorizationToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"Token abc", "abc", true},
		{"", "", false},
		{"abc", "", false},
		{"Bearer ", "", false},
		{" abc", "", false},
		{"Bearer a b", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			token, ok := authorizationToken(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.token, token)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	lookups := 0
	users := func(context.Context) (tokenFinder, error) {
		lookups++
		return stubFinder{tokens: map[string]int64{"u-5": 5}}, nil
	}

	tests := []struct {
		name   string
		header string
		want   schemata.Actor
	}{
		{"admin token", "Bearer root", schemata.Administrator()},
		{"user token", "Bearer u-5", schemata.User(5)},
		{"unknown token", "Bearer u-6", schemata.Anonymous()},
		{"no header", "", schemata.Anonymous()},
		{"malformed header", "root", schemata.Anonymous()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor, err := authenticate(ctx, tt.header, "root", users)
			require.NoError(t, err)
			assert.Equal(t, tt.want, actor)
		})
	}
	assert.Equal(t, 2, lookups, "only well formed non-admin tokens are looked up")

	actor, err := authenticate(ctx, "Bearer x", "", users)
	require.NoError(t, err)
	assert.True(t, actor.IsAnonymous(), "an empty admin token never matches")
}

func TestAuthenticateLookupFailure(t *testing.T) {
	boom := errors.New("db locked")
	_, err := authenticate(context.Background(), "Bearer t", "root", func(context.Context) (tokenFinder, error) {
		return stubFinder{err: boom}, nil
	})
	assert.ErrorIs(t, err, boom)

	_, err = authenticate(context.Background(), "Bearer t", "root", func(context.Context) (tokenFinder, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))
	assert.True(t, VerifyPassword("correct horse", hash))
	assert.False(t, VerifyPassword("battery staple", hash))

	again, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "salts are random")

	for _, bad := range []string{"", "plain", "$argon2i$v=19$m=1,t=1,p=1$AA$AA", "$argon2id$v=18$m=1,t=1,p=1$AA$AA", "$argon2id$v=19$m=1,t=1,p=1$!!$AA"} {
		assert.False(t, VerifyPassword("x", bad), bad)
	}
}

func TestNewToken(t *testing.T) {
	a, b := NewToken(), NewToken()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
