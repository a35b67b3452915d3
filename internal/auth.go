package internal

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lychee-technology/schemata"
	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// tokenFinder resolves a bearer token to a system user row.
type tokenFinder interface {
	FindBy(ctx context.Context, model *schemata.ModelDefinition, field string, value schemata.Value) (schemata.Row, bool, error)
}

// authorizationToken extracts the token of a "<scheme> <token>" header.
// Anything that is not exactly two space separated parts has no token.
func authorizationToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// authenticate maps an Authorization header to an actor. The application
// admin token yields the administrator and a system user token yields
// that user. Unknown or malformed credentials are anonymous, never an
// error; only a failing lookup is.
func authenticate(ctx context.Context, header, adminToken string, users func(context.Context) (tokenFinder, error)) (schemata.Actor, error) {
	token, ok := authorizationToken(header)
	if !ok {
		return schemata.Anonymous(), nil
	}
	if adminToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) == 1 {
		return schemata.Administrator(), nil
	}

	finder, err := users(ctx)
	if err != nil {
		return schemata.Anonymous(), err
	}
	row, found, err := finder.FindBy(ctx, schemata.SystemUserModel(), "token", schemata.StringValue(token))
	if err != nil {
		return schemata.Anonymous(), err
	}
	if !found {
		return schemata.Anonymous(), nil
	}
	id, _ := row.ID()
	return schemata.User(id), nil
}

// HashPassword derives an argon2id hash with a random salt, encoded in the
// PHC string format.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// VerifyPassword checks password against a HashPassword result.
func VerifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}
	var memory uint32
	var iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// NewToken returns a fresh opaque credential.
func NewToken() string {
	return uuid.NewString()
}
