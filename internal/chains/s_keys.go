package chains

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/blake2b"
)

// VaultKeypair holds the vault's signing key material for Chain-S. The
// adapter never logs the private key bytes.
type VaultKeypair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
	Address string
}

// LoadVaultKeypair loads the vault keypair from a keyfile holding the
// 64-byte secret key as a JSON byte array (the common Chain-S-family
// keyfile convention) or as a base58 string, if keyfilePath is set;
// otherwise it derives it from mnemonic via BIP-39. When both are set the
// keyfile is used; when neither is, it returns an error.
func LoadVaultKeypair(keyfilePath, mnemonic string) (*VaultKeypair, error) {
	switch {
	case keyfilePath != "":
		return loadKeypairFromFile(keyfilePath)
	case mnemonic != "":
		return loadKeypairFromMnemonic(mnemonic)
	default:
		return nil, fmt.Errorf("chains: no vault key material configured")
	}
}

func loadKeypairFromFile(path string) (*VaultKeypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vault keyfile: %w", err)
	}

	var raw []byte
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var arr []byte
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, fmt.Errorf("parse vault keyfile JSON array: %w", err)
		}
		raw = arr
	} else {
		decoded, err := base58.Decode(trimmed)
		if err != nil {
			return nil, fmt.Errorf("decode vault keyfile base58: %w", err)
		}
		raw = decoded
	}

	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("chains: vault keyfile has %d bytes, want %d", len(raw), ed25519.PrivateKeySize)
	}

	priv := ed25519.PrivateKey(raw)
	return newVaultKeypair(priv)
}

func loadKeypairFromMnemonic(mnemonic string) (*VaultKeypair, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("chains: vault mnemonic is not a valid BIP-39 phrase")
	}
	seed := bip39.NewSeed(mnemonic, "")

	// Derive a 32-byte ed25519 seed via a domain-separated blake2b hash of
	// the BIP-39 seed, matching the teacher wallet package's convention of
	// hashing master seed material down to a curve-sized seed rather than
	// running full SLIP-0010 derivation (this bridge has exactly one vault
	// key, not a derivation tree).
	h, err := blake2b.New256([]byte("bridge/chain-s/vault"))
	if err != nil {
		return nil, fmt.Errorf("init vault key derivation: %w", err)
	}
	h.Write(seed)
	seed32 := h.Sum(nil)

	priv := ed25519.NewKeyFromSeed(seed32)
	return newVaultKeypair(priv)
}

func newVaultKeypair(priv ed25519.PrivateKey) (*VaultKeypair, error) {
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("chains: derived public key has unexpected type")
	}

	// Validate the public key decodes to a point on the curve; a corrupt
	// keyfile would otherwise fail silently much later, at first send.
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return nil, fmt.Errorf("chains: vault public key is not a valid curve point: %w", err)
	}

	return &VaultKeypair{
		Private: priv,
		Public:  pub,
		Address: base58.Encode(pub),
	}, nil
}

// Sign signs msg with the vault's private key.
func (k *VaultKeypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.Private, msg)
}
