package chains

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
)

var associatedTokenProgramID = mustDecode("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")

const maxSeedBump = 256

// isOffCurve reports whether candidate is NOT a valid point on edwards25519,
// which is the defining property of a valid program-derived address: it must
// not have a corresponding private key.
func isOffCurve(candidate [32]byte) bool {
	_, err := new(edwards25519.Point).SetBytes(candidate[:])
	return err != nil
}

// findProgramAddress replicates Chain-S's standard PDA derivation: hash the
// seeds with the program id and a fixed domain marker, decrementing a bump
// byte until the result lands off the ed25519 curve.
func findProgramAddress(seeds [][]byte, programID [32]byte) ([32]byte, error) {
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, s := range seeds {
			h.Write(s)
		}
		h.Write([]byte{byte(bump)})
		h.Write(programID[:])
		h.Write([]byte("ProgramDerivedAddress"))

		var candidate [32]byte
		copy(candidate[:], h.Sum(nil))
		if isOffCurve(candidate) {
			return candidate, nil
		}
	}
	return [32]byte{}, fmt.Errorf("chains: unable to find a valid program address")
}

// deriveAssociatedTokenAddress derives owner's associated token account for
// mint, following the same seed order (owner, token program, mint) as the
// reference associated-token-account program.
func deriveAssociatedTokenAddress(owner, mint [32]byte) ([32]byte, error) {
	return findProgramAddress([][]byte{owner[:], mustDecode(tokenProgramID)[:], mint[:]}, associatedTokenProgramID)
}
