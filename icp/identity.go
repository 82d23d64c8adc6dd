package icp

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"fmt"

	"github.com/aviate-labs/agent-go/principal"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	x402 "github.com/ldclabs/x402-icp-go"
)

// ed25519Identity signs with an Ed25519 key pair.
type ed25519Identity struct {
	priv ed25519.PrivateKey
	der  []byte
}

// NewEd25519Identity creates an identity from a 32-byte Ed25519 seed.
func NewEd25519Identity(seed []byte) (Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: ed25519 seed must be %d bytes, got %d",
			x402.ErrInvalidKey, ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	der, err := x509.MarshalPKIXPublicKey(priv.Public())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidKey, err)
	}
	return &ed25519Identity{priv: priv, der: der}, nil
}

// NewEd25519IdentityFromPEM creates an identity from a PEM-encoded PKCS#8
// Ed25519 private key, the format dfx exports.
func NewEd25519IdentityFromPEM(data []byte) (Identity, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", x402.ErrInvalidKey)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidKey, err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ed25519 key", x402.ErrInvalidKey)
	}
	der, err := x509.MarshalPKIXPublicKey(priv.Public())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidKey, err)
	}
	return &ed25519Identity{priv: priv, der: der}, nil
}

func (id *ed25519Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(id.priv, msg)
}

func (id *ed25519Identity) PublicKey() []byte {
	return id.der
}

func (id *ed25519Identity) Sender() principal.Principal {
	return principal.NewSelfAuthenticating(id.der)
}

// secp256k1Identity signs with an ECDSA key on the secp256k1 curve,
// producing 64-byte r||s signatures over the SHA-256 of the message.
type secp256k1Identity struct {
	priv *secp256k1.PrivateKey
	der  []byte
}

// NewSecp256k1Identity creates an identity from a 32-byte secp256k1
// private key.
func NewSecp256k1Identity(key []byte) (Identity, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: secp256k1 key must be 32 bytes, got %d",
			x402.ErrInvalidKey, len(key))
	}
	priv := secp256k1.PrivKeyFromBytes(key)
	if priv.Key.IsZero() {
		return nil, fmt.Errorf("%w: zero secp256k1 key", x402.ErrInvalidKey)
	}
	der, err := marshalSecp256k1PublicKey(priv.PubKey())
	if err != nil {
		return nil, err
	}
	return &secp256k1Identity{priv: priv, der: der}, nil
}

// NewIdentityFromMnemonic derives a secp256k1 identity from a BIP39
// mnemonic at the ICP derivation path m/44'/223'/0'/0/index, matching what
// dfx and hardware wallets derive.
func NewIdentityFromMnemonic(mnemonic string, index uint32) (Identity, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, x402.ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")

	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidMnemonic, err)
	}

	// m/44'/223'/0'/0/index
	path := []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + 223,
		bip32.FirstHardenedChild,
		0,
		index,
	}
	key := master
	for _, segment := range path {
		key, err = key.NewChildKey(segment)
		if err != nil {
			return nil, fmt.Errorf("%w: derive child: %v", x402.ErrInvalidMnemonic, err)
		}
	}

	return NewSecp256k1Identity(key.Key)
}

func (id *secp256k1Identity) Sign(msg []byte) []byte {
	hash := sha256.Sum256(msg)
	// SignCompact prepends a recovery byte; the envelope carries plain r||s.
	compact := secpecdsa.SignCompact(id.priv, hash[:], true)
	return compact[1:]
}

func (id *secp256k1Identity) PublicKey() []byte {
	return id.der
}

func (id *secp256k1Identity) Sender() principal.Principal {
	return principal.NewSelfAuthenticating(id.der)
}

var (
	oidECPublicKey = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1   = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}

type subjectPublicKeyInfo struct {
	Algorithm algorithmIdentifier
	PublicKey asn1.BitString
}

// marshalSecp256k1PublicKey builds the SubjectPublicKeyInfo DER encoding
// for a secp256k1 key. x509 has no support for this curve, so the
// structure is assembled directly.
func marshalSecp256k1PublicKey(pub *secp256k1.PublicKey) ([]byte, error) {
	uncompressed := pub.SerializeUncompressed()
	der, err := asn1.Marshal(subjectPublicKeyInfo{
		Algorithm: algorithmIdentifier{
			Algorithm:  oidECPublicKey,
			Parameters: oidSecp256k1,
		},
		PublicKey: asn1.BitString{Bytes: uncompressed, BitLength: len(uncompressed) * 8},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidKey, err)
	}
	return der, nil
}
