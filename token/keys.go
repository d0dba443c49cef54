package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const minRSABits = 2048

// KeyPair is an asymmetric signing key. Algorithm follows the key type:
// RSA keys sign RS256, P-256 keys sign ES256.
type KeyPair struct {
	KeyID      string
	Algorithm  string
	PrivateKey crypto.Signer
}

// PublicKey returns the verification half of the pair.
func (kp *KeyPair) PublicKey() crypto.PublicKey {
	return kp.PrivateKey.Public()
}

// Method returns the jwt signing method matching Algorithm.
func (kp *KeyPair) Method() jwt.SigningMethod {
	if kp.Algorithm == AlgorithmES256 {
		return jwt.SigningMethodES256
	}
	return jwt.SigningMethodRS256
}

// GenerateKeyPair creates a fresh key for RS256 or ES256.
func GenerateKeyPair(algorithm, keyID string) (*KeyPair, error) {
	var (
		key crypto.Signer
		err error
	)
	switch algorithm {
	case AlgorithmRS256:
		key, err = rsa.GenerateKey(rand.Reader, minRSABits)
	case AlgorithmES256:
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	default:
		return nil, errors.Errorf("no key pair for algorithm %s", algorithm)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "GenerateKeyPair %s", algorithm)
	}
	return &KeyPair{KeyID: keyID, Algorithm: algorithm, PrivateKey: key}, nil
}

// MarshalPEM encodes the private key as a PKCS8 "PRIVATE KEY" block.
func (kp *KeyPair) MarshalPEM() (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(kp.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "KeyPair.MarshalPEM")
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// ParseKeyPairPEM reads a PKCS8, PKCS1 RSA or SEC1 EC private key.
// RSA keys shorter than 2048 bits and curves other than P-256 are refused.
func ParseKeyPairPEM(keyID, pemData string) (*KeyPair, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("private key is not PEM encoded")
	}

	var (
		parsed any
		err    error
	)
	switch block.Type {
	case "PRIVATE KEY":
		parsed, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		parsed, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		parsed, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, errors.Errorf("unsupported PEM block %q", block.Type)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", block.Type)
	}

	switch key := parsed.(type) {
	case *rsa.PrivateKey:
		if key.N.BitLen() < minRSABits {
			return nil, errors.Errorf("rsa key is %d bits, need at least %d", key.N.BitLen(), minRSABits)
		}
		return &KeyPair{KeyID: keyID, Algorithm: AlgorithmRS256, PrivateKey: key}, nil
	case *ecdsa.PrivateKey:
		if key.Curve != elliptic.P256() {
			return nil, errors.Errorf("ec key uses %s, ES256 needs P-256", key.Curve.Params().Name)
		}
		return &KeyPair{KeyID: keyID, Algorithm: AlgorithmES256, PrivateKey: key}, nil
	default:
		return nil, errors.Errorf("unsupported private key type %T", parsed)
	}
}
