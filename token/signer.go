package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer signs session tokens and gives the parser the key that verifies them.
type Signer interface {
	Sign(claims jwt.Claims) (string, error)
	// Keyfunc is handed to the jwt parser; it refuses tokens signed with any
	// other method or key id.
	Keyfunc(token *jwt.Token) (any, error)
	Method() jwt.SigningMethod
}

// HMACSigner signs with a shared secret (HS256).
type HMACSigner struct {
	secret []byte
}

// NewHMACSigner keeps its own copy of secret.
func NewHMACSigner(secret []byte) *HMACSigner {
	return &HMACSigner{secret: append([]byte(nil), secret...)}
}

func (h *HMACSigner) Sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "HMACSigner.Sign")
	}
	return signed, nil
}

func (h *HMACSigner) Keyfunc(token *jwt.Token) (any, error) {
	if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, errors.Errorf("signing method %s not accepted", token.Method.Alg())
	}
	return h.secret, nil
}

func (h *HMACSigner) Method() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

// KeyPairSigner signs with an RSA or ECDSA private key and stamps the key id
// into the "kid" header.
type KeyPairSigner struct {
	keys *KeyPair
}

func NewKeyPairSigner(keys *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{keys: keys}
}

func (s *KeyPairSigner) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(s.keys.Method(), claims)
	if s.keys.KeyID != "" {
		token.Header["kid"] = s.keys.KeyID
	}
	signed, err := token.SignedString(s.keys.PrivateKey)
	if err != nil {
		return "", errors.Wrapf(err, "KeyPairSigner.Sign %s", s.keys.Algorithm)
	}
	return signed, nil
}

func (s *KeyPairSigner) Keyfunc(token *jwt.Token) (any, error) {
	if token.Method.Alg() != s.keys.Algorithm {
		return nil, errors.Errorf("signing method %s not accepted", token.Method.Alg())
	}
	if kid, ok := token.Header["kid"].(string); ok && kid != s.keys.KeyID {
		return nil, errors.Errorf("unknown key id %q", kid)
	}
	return s.keys.PublicKey(), nil
}

func (s *KeyPairSigner) Method() jwt.SigningMethod {
	return s.keys.Method()
}
