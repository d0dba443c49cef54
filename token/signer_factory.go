package token

import (
	"github.com/pkg/errors"
)

// NewSignerFromConfig builds the signer named by cfg.Algorithm. Key pair
// algorithms load cfg.PrivateKeyPEM, or generate an ephemeral key when it is
// empty, in which case tokens do not survive a restart.
func NewSignerFromConfig(cfg Config) (Signer, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Algorithm {
	case AlgorithmHS256:
		return NewHMACSigner(cfg.SigningKey), nil
	case AlgorithmRS256, AlgorithmES256:
		keys, err := keyPairFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return NewKeyPairSigner(keys), nil
	default:
		return nil, errors.Errorf("unsupported signing algorithm: %s", cfg.Algorithm)
	}
}

func keyPairFromConfig(cfg Config) (*KeyPair, error) {
	if cfg.PrivateKeyPEM == "" {
		return GenerateKeyPair(cfg.Algorithm, cfg.KeyID)
	}
	keys, err := ParseKeyPairPEM(cfg.KeyID, cfg.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	if keys.Algorithm != cfg.Algorithm {
		return nil, errors.Errorf("private key is %s, configured algorithm is %s", keys.Algorithm, cfg.Algorithm)
	}
	return keys, nil
}
