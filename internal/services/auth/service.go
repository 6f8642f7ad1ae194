package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrUnauthorized = errors.New("unauthorized - missing required permissions")
	ErrJWKSFetch    = errors.New("failed to fetch JWKS")
)

// Permissions granted through app_metadata. Each level implies the ones below it.
const (
	PermissionRead  = "classifier:read"
	PermissionWrite = "classifier:write"
	PermissionAdmin = "classifier:admin"
)

// Claims are the JWT claims the API reads
type Claims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Role  string `json:"role"`

	AppMetadata AppMetadata `json:"app_metadata"`

	jwt.RegisteredClaims
}

// AppMetadata holds the permissions provisioned for a user
type AppMetadata struct {
	Permissions []string `json:"permissions"`
	Role        string   `json:"role"`
}

// HasPermission checks if the user has a specific permission
func (c *Claims) HasPermission(permission string) bool {
	for _, p := range c.AppMetadata.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// HasAnyPermission checks if the user has any of the specified permissions
func (c *Claims) HasAnyPermission(permissions ...string) bool {
	for _, permission := range permissions {
		if c.HasPermission(permission) {
			return true
		}
	}
	return false
}

// Allows reports whether the claims grant permission, counting higher levels
func (c *Claims) Allows(permission string) bool {
	switch permission {
	case PermissionRead:
		return c.HasAnyPermission(PermissionRead, PermissionWrite, PermissionAdmin)
	case PermissionWrite:
		return c.HasAnyPermission(PermissionWrite, PermissionAdmin)
	default:
		return c.HasPermission(permission)
	}
}

// JWK is a single EC key of a key set
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// JWKS is a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// Options configures a Service
type Options struct {
	JWKSURL       string
	CacheDuration time.Duration
	Timeout       time.Duration
	// DevToken, when set, is accepted as a bearer token with admin claims
	DevToken string
	Log      *zap.Logger
}

// Service validates ES256 JWTs against a remote key set
type Service struct {
	jwksURL       string
	client        *http.Client
	cacheDuration time.Duration
	devToken      string
	log           *zap.Logger

	keysMutex sync.RWMutex
	keys      map[string]*ecdsa.PublicKey
	lastFetch time.Time
}

// NewService fetches the key set once and returns a ready Service. With only
// a dev token configured no key set is fetched.
func NewService(ctx context.Context, opts Options) (*Service, error) {
	if opts.JWKSURL == "" && opts.DevToken == "" {
		return nil, fmt.Errorf("JWKS URL is required")
	}
	if opts.CacheDuration <= 0 {
		opts.CacheDuration = time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	s := &Service{
		jwksURL:       opts.JWKSURL,
		client:        &http.Client{Timeout: opts.Timeout},
		cacheDuration: opts.CacheDuration,
		devToken:      opts.DevToken,
		log:           opts.Log,
		keys:          make(map[string]*ecdsa.PublicKey),
	}

	if s.jwksURL != "" {
		if err := s.fetchJWKS(ctx); err != nil {
			return nil, fmt.Errorf("failed to fetch initial JWKS: %w", err)
		}
	}
	if s.devToken != "" {
		s.log.Warn("dev token authentication is enabled")
	}
	return s, nil
}

func (s *Service) fetchJWKS(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetch, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrJWKSFetch, resp.StatusCode)
	}

	var set JWKS
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*ecdsa.PublicKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.Kty != "EC" || jwk.Alg != "ES256" {
			continue
		}
		pub, err := parseECKey(jwk)
		if err != nil {
			s.log.Warn("skipping malformed key", zap.String("kid", jwk.Kid), zap.Error(err))
			continue
		}
		keys[jwk.Kid] = pub
	}

	s.keysMutex.Lock()
	s.keys = keys
	s.lastFetch = time.Now()
	s.keysMutex.Unlock()

	s.log.Debug("refreshed key set", zap.Int("keys", len(keys)))
	return nil
}

func parseECKey(jwk JWK) (*ecdsa.PublicKey, error) {
	xBytes, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("failed to decode X coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Y coordinate: %w", err)
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

// publicKey looks up kid, refreshing the key set when it is stale or the
// key is unknown
func (s *Service) publicKey(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	s.keysMutex.RLock()
	key, exists := s.keys[kid]
	stale := time.Since(s.lastFetch) > s.cacheDuration
	s.keysMutex.RUnlock()

	if (!exists || stale) && s.jwksURL != "" {
		if err := s.fetchJWKS(ctx); err != nil {
			return nil, fmt.Errorf("failed to refresh JWKS: %w", err)
		}
		s.keysMutex.RLock()
		key, exists = s.keys[kid]
		s.keysMutex.RUnlock()
	}

	if !exists {
		return nil, fmt.Errorf("key with id %s not found", kid)
	}
	return key, nil
}

// ValidateToken verifies tokenString and returns its claims. Tokens without
// any classifier permission are rejected with ErrUnauthorized.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if s.devToken != "" && subtle.ConstantTimeCompare([]byte(tokenString), []byte(s.devToken)) == 1 {
		return DevClaims(), nil
	}
	if s.jwksURL == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("no kid found in token header")
		}
		return s.publicKey(ctx, kid)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.Allows(PermissionRead) {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// DevClaims are the claims granted to the dev token
func DevClaims() *Claims {
	now := time.Now()
	return &Claims{
		Sub:   "dev-user",
		Email: "dev@localhost",
		Role:  "authenticated",
		AppMetadata: AppMetadata{
			Permissions: []string{PermissionRead, PermissionWrite, PermissionAdmin},
			Role:        "admin",
		},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(365 * 24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
}
