package catalyst

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

// JWTSecretFile is the default name of the shared secret in the data directory.
const JWTSecretFile = "jwt.hex"

// jwtExpiryTimeout is how far the issued-at claim may be from now.
const jwtExpiryTimeout = 60 * time.Second

var errInvalidJWTSecret = errors.New("invalid JWT secret")

// ObtainJWTSecret reads the hex encoded 32-byte secret at path. When the
// file does not exist a fresh secret is generated and written there.
func ObtainJWTSecret(path string, log logrus.FieldLogger) ([]byte, error) {
	if data, err := os.ReadFile(path); err == nil {
		secret := common.FromHex(strings.TrimSpace(string(data)))
		if len(secret) != 32 {
			log.WithFields(logrus.Fields{"path": path, "length": len(secret)}).Error("Invalid JWT secret")
			return nil, errInvalidJWTSecret
		}
		return secret, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hexutil.Encode(secret)), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write JWT secret: %w", err)
	}
	log.WithField("path", path).Info("Generated JWT secret")
	return secret, nil
}

// NewJWTHandler wraps next so that only requests bearing an HS256 token
// signed with secret, issued within a minute of now, get through.
func NewJWTHandler(secret []byte, next http.Handler) http.Handler {
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		var claims jwt.RegisteredClaims
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), &claims, keyFunc,
			jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation())
		switch {
		case err != nil:
			http.Error(w, err.Error(), http.StatusUnauthorized)
		case !token.Valid:
			http.Error(w, "invalid token", http.StatusUnauthorized)
		case !claims.VerifyExpiresAt(time.Now(), false):
			http.Error(w, "token is expired", http.StatusUnauthorized)
		case claims.IssuedAt == nil:
			http.Error(w, "missing issued-at", http.StatusUnauthorized)
		case time.Since(claims.IssuedAt.Time) > jwtExpiryTimeout:
			http.Error(w, "stale token", http.StatusUnauthorized)
		case time.Until(claims.IssuedAt.Time) > jwtExpiryTimeout:
			http.Error(w, "future token", http.StatusUnauthorized)
		default:
			next.ServeHTTP(w, r)
		}
	})
}
