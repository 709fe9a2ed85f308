package chains

import (
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// memoProgramID is the well-known memo-instruction program address on
// Chain-S (family convention: a fixed, non-upgradeable program id).
const memoProgramID = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"

// tokenProgramID is the well-known SPL-style token program address.
const tokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// encodeCompactU16 writes n using Chain-S's variable-length "compact-u16"
// encoding, used throughout transaction/message serialization for array
// lengths.
func encodeCompactU16(n int) []byte {
	var out []byte
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

// decodePublicKey base58-decodes a Chain-S address into its raw 32-byte
// form, validating length.
func decodePublicKey(addr string) ([32]byte, error) {
	var out [32]byte
	raw, err := base58.Decode(addr)
	if err != nil {
		return out, fmt.Errorf("decode address %q: %w", addr, err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("address %q decodes to %d bytes, want 32", addr, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// compiledInstruction is one instruction within a legacy message, indices
// referring to the message's account-keys table.
type compiledInstruction struct {
	programIDIndex byte
	accountIndices []byte
	data           []byte
}

// legacyMessage is a minimal legacy (non-versioned) transaction message:
// one signer (the vault), a recent blockhash, and a compiled instruction
// list. This covers exactly the two instruction shapes the bridge submits
// (token transfer, optional memo) and is not a general-purpose message
// builder.
type legacyMessage struct {
	accountKeys     [][32]byte
	numSigners      byte
	numReadonlySign byte
	numReadonlyUns  byte
	recentBlockhash [32]byte
	instructions    []compiledInstruction
}

func (m *legacyMessage) serialize() []byte {
	var out []byte
	out = append(out, m.numSigners, m.numReadonlySign, m.numReadonlyUns)
	out = append(out, encodeCompactU16(len(m.accountKeys))...)
	for _, k := range m.accountKeys {
		out = append(out, k[:]...)
	}
	out = append(out, m.recentBlockhash[:]...)
	out = append(out, encodeCompactU16(len(m.instructions))...)
	for _, ix := range m.instructions {
		out = append(out, ix.programIDIndex)
		out = append(out, encodeCompactU16(len(ix.accountIndices))...)
		out = append(out, ix.accountIndices...)
		out = append(out, encodeCompactU16(len(ix.data))...)
		out = append(out, ix.data...)
	}
	return out
}

// accountIndex finds or appends key to keys, returning its index.
func accountIndex(keys *[][32]byte, key [32]byte) byte {
	for i, k := range *keys {
		if k == key {
			return byte(i)
		}
	}
	*keys = append(*keys, key)
	return byte(len(*keys) - 1)
}

// buildTransferMessage compiles a single SPL-style `TransferChecked`
// instruction (and an optional trailing memo instruction) into a legacy
// message signed by the vault, mirroring
// original_source/src/solana_client.py's transfer_checked + _memo_ix pair.
func buildTransferMessage(vault, sourceTokenAcct, destTokenAcct, mint [32]byte, amountUnits int64, decimals uint8, memo string, recentBlockhash [32]byte) *legacyMessage {
	keys := [][32]byte{vault} // signer is always index 0

	srcIdx := accountIndex(&keys, sourceTokenAcct)
	mintIdx := accountIndex(&keys, mint)
	dstIdx := accountIndex(&keys, destTokenAcct)
	authIdx := accountIndex(&keys, vault)
	tokenProgIdx := accountIndex(&keys, mustDecode(tokenProgramID))

	data := make([]byte, 0, 10)
	data = append(data, 12) // TransferChecked instruction discriminant
	amtBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(amtBuf, uint64(amountUnits))
	data = append(data, amtBuf...)
	data = append(data, decimals)

	instructions := []compiledInstruction{{
		programIDIndex: tokenProgIdx,
		accountIndices: []byte{srcIdx, mintIdx, dstIdx, authIdx},
		data:           data,
	}}

	if memo != "" {
		memoProgIdx := accountIndex(&keys, mustDecode(memoProgramID))
		instructions = append(instructions, compiledInstruction{
			programIDIndex: memoProgIdx,
			accountIndices: []byte{authIdx},
			data:           []byte(memo),
		})
	}

	return &legacyMessage{
		accountKeys:     keys,
		numSigners:      1,
		numReadonlySign: 0,
		numReadonlyUns:  byte(len(keys) - 1),
		recentBlockhash: recentBlockhash,
		instructions:    instructions,
	}
}

func mustDecode(addr string) [32]byte {
	k, err := decodePublicKey(addr)
	if err != nil {
		// Well-known program ids are compile-time constants; a decode
		// failure here means the constant itself is wrong.
		panic(err)
	}
	return k
}
