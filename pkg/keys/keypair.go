package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base32"
	"fmt"
)

// Keypair is a signing key with a stable DID-form identifier. Consumers
// only need to identify the key and sign with it; algorithm choice and key
// custody stay behind this interface.
type Keypair interface {
	DID() string
	Sign(data []byte) ([]byte, error)
}

// Generator mints fresh signing keypairs for new accounts.
type Generator interface {
	Generate() (Keypair, error)
}

var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

type ed25519Keypair struct {
	priv ed25519.PrivateKey
	did  string
}

func (k *ed25519Keypair) DID() string { return k.did }

func (k *ed25519Keypair) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(k.priv, data), nil
}

// Ed25519Generator is the default Generator.
type Ed25519Generator struct{}

func NewEd25519Generator() *Ed25519Generator {
	return &Ed25519Generator{}
}

func (g *Ed25519Generator) Generate() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing keypair: %w", err)
	}
	return &ed25519Keypair{
		priv: priv,
		did:  "did:key:" + keyEncoding.EncodeToString(pub),
	}, nil
}
