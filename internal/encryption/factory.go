package encryption

import (
	"fmt"

	"qcsync/internal/config"
	"qcsync/internal/qc"
)

// KeyedSealer is a qc.Sealer whose Open side may be protected by a passphrase.
type KeyedSealer interface {
	qc.Sealer
	// Setup creates key material protected by passphrase.
	Setup(passphrase string) error
	// Unlock makes Open usable.
	Unlock(passphrase string) error
	Locked() bool
	IsConfigured() bool
}

// NewSealerFromConfig creates a KeyedSealer based on the configuration type.
func NewSealerFromConfig(cfg config.EncryptionConfig) (KeyedSealer, error) {
	switch cfg.Type {
	case "none", "":
		return NoneSealer{}, nil
	case "age":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("public_key_path and private_key_path required for age encryption")
		}
		return NewAgeSealer(cfg), nil
	case "test":
		return NewTestSealer(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
