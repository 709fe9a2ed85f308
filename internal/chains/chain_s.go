package chains

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"
)

// JSONRPCChainS implements ChainS against a Chain-S JSON-RPC endpoint,
// patterned after the teacher's internal/backend/jsonrpc.go request/response
// envelope (id/method/params in, result/error out), narrowed to the calls
// this bridge actually issues.
type JSONRPCChainS struct {
	rpcURL     string
	httpClient *http.Client
	requestID  atomic.Uint64

	vault        *VaultKeypair
	vaultUSDCAcc string
	usdcMint     string
	decimals     uint8
}

// JSONRPCChainSConfig configures a JSONRPCChainS adapter.
type JSONRPCChainSConfig struct {
	RPCURL       string
	Vault        *VaultKeypair
	VaultUSDCAcc string
	USDCMint     string
	Decimals     uint8
	CallTimeout  time.Duration
}

// NewJSONRPCChainS builds a Chain-S adapter.
func NewJSONRPCChainS(cfg JSONRPCChainSConfig) *JSONRPCChainS {
	timeout := cfg.CallTimeout
	if timeout == 0 {
		timeout = defaultCallTimeout
	}
	return &JSONRPCChainS{
		rpcURL:       cfg.RPCURL,
		httpClient:   &http.Client{Timeout: timeout},
		vault:        cfg.Vault,
		vaultUSDCAcc: cfg.VaultUSDCAcc,
		usdcMint:     cfg.USDCMint,
		decimals:     cfg.Decimals,
	}
}

var _ ChainS = (*JSONRPCChainS)(nil)

func (c *JSONRPCChainS) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	id := c.requestID.Add(1)
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("chains: chain-s rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("chains: parse chain-s rpc response: %w", err)
	}
	if envelope.Error != nil {
		return nil, fmt.Errorf("chains: chain-s rpc error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return envelope.Result, nil
}

// GetSignaturesForAddress fetches inbound transfer signatures and, for each
// one not filtered out by sinceTS, fetches the transaction body to extract
// amount/sender/memo. This mirrors
// original_source/src/solana_client.py's scan_recent_memos + the Helius
// enrichment call in swap_solana.poll_solana_deposits, collapsed to the
// plain getSignaturesForAddress + getTransaction RPC pair since the bridge
// has no dependency on a third-party indexer.
func (c *JSONRPCChainS) GetSignaturesForAddress(ctx context.Context, addr string, sinceTS int64, limit int) ([]SignatureInfo, error) {
	result, err := c.call(ctx, "getSignaturesForAddress", []interface{}{
		addr,
		map[string]interface{}{"limit": limit},
	})
	if err != nil {
		return nil, err
	}

	var sigEntries []struct {
		Signature string `json:"signature"`
		BlockTime int64  `json:"blockTime"`
	}
	if err := json.Unmarshal(result, &sigEntries); err != nil {
		return nil, fmt.Errorf("chains: parse signature list: %w", err)
	}

	var out []SignatureInfo
	for _, e := range sigEntries {
		if e.BlockTime < sinceTS {
			continue
		}
		info, err := c.fetchTransferInfo(ctx, e.Signature, e.BlockTime, addr)
		if err != nil {
			continue // best-effort: a single bad tx body does not abort the page
		}
		if info != nil {
			out = append(out, *info)
		}
	}
	return out, nil
}

// fetchTransferInfo decodes one transaction, returning the inbound transfer
// amount, sender and memo if the transaction is in fact a transfer into
// vaultAddr. A nil, nil result means the signature did not carry a relevant
// transfer (e.g. an outbound send from a prior cycle).
func (c *JSONRPCChainS) fetchTransferInfo(ctx context.Context, sig string, blockTime int64, vaultAddr string) (*SignatureInfo, error) {
	result, err := c.call(ctx, "getTransaction", []interface{}{
		sig,
		map[string]interface{}{"encoding": "jsonParsed", "maxSupportedTransactionVersion": 0},
	})
	if err != nil {
		return nil, err
	}

	var tx struct {
		Transaction struct {
			Message struct {
				Instructions []struct {
					ProgramID string `json:"programId"`
					Parsed    struct {
						Type string `json:"type"`
						Info struct {
							Source        string `json:"source"`
							Destination   string `json:"destination"`
							Authority     string `json:"authority"`
							TokenAmount   struct {
								Amount string `json:"amount"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
					Data string `json:"data"`
				} `json:"instructions"`
			} `json:"message"`
		} `json:"transaction"`
		Meta struct {
			LogMessages []string `json:"logMessages"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(result, &tx); err != nil {
		return nil, fmt.Errorf("chains: parse transaction %s: %w", sig, err)
	}

	var amount int64
	var sender string
	var memo string
	found := false

	for _, ix := range tx.Transaction.Message.Instructions {
		switch {
		case ix.ProgramID == tokenProgramID && (ix.Parsed.Type == "transferChecked" || ix.Parsed.Type == "transfer"):
			if ix.Parsed.Info.Destination != vaultAddr {
				continue
			}
			var amt int64
			fmt.Sscanf(ix.Parsed.Info.TokenAmount.Amount, "%d", &amt)
			amount = amt
			sender = ix.Parsed.Info.Source
			found = true
		case ix.ProgramID == memoProgramID:
			memo = decodeMemoData(ix.Data)
		}
	}

	if !found {
		return nil, nil
	}
	if memo == "" {
		memo = extractMemoFromLogs(tx.Meta.LogMessages)
	}

	return &SignatureInfo{
		Sig:         sig,
		Timestamp:   blockTime,
		FromAddress: sender,
		AmountUnits: amount,
		Memo:        memo,
	}, nil
}

// decodeMemoData decodes a memo instruction's data field, which RPC nodes
// return either as a raw UTF-8 string or base64-encoded depending on
// encoding mode.
func decodeMemoData(data string) string {
	if data == "" {
		return ""
	}
	if decoded, err := base64.StdEncoding.DecodeString(data); err == nil && isPrintable(decoded) {
		return string(decoded)
	}
	return data
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x09 || (c > 0x0d && c < 0x20) {
			return false
		}
	}
	return true
}

// extractMemoFromLogs falls back to scanning program log lines for a memo
// payload when jsonParsed decoding did not surface one directly, mirroring
// solana_client.py's scan_recent_memos log-message fallback.
func extractMemoFromLogs(logs []string) string {
	for _, l := range logs {
		for _, prefix := range []string{"nexus_txid:", "nexus:", "refundSig:", "quarantinedSig:"} {
			if idx := strings.Index(l, prefix); idx >= 0 {
				return strings.TrimSpace(l[idx:])
			}
		}
	}
	return ""
}

// GetTokenBalance returns the vault's (or any) token account balance.
func (c *JSONRPCChainS) GetTokenBalance(ctx context.Context, addr string) (int64, error) {
	result, err := c.call(ctx, "getTokenAccountBalance", []interface{}{addr})
	if err != nil {
		return 0, err
	}
	var resp struct {
		Value struct {
			Amount string `json:"amount"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return 0, fmt.Errorf("chains: parse token balance: %w", err)
	}
	var amt int64
	fmt.Sscanf(resp.Value.Amount, "%d", &amt)
	return amt, nil
}

// GetNativeBalance returns the native-coin balance of addr in base units.
func (c *JSONRPCChainS) GetNativeBalance(ctx context.Context, addr string) (int64, error) {
	result, err := c.call(ctx, "getBalance", []interface{}{addr})
	if err != nil {
		return 0, err
	}
	var resp struct {
		Value int64 `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return 0, fmt.Errorf("chains: parse native balance: %w", err)
	}
	return resp.Value, nil
}

// SendToken builds, signs and submits a T_S transfer from the vault to dest,
// optionally carrying a memo, using the legacy message builder in
// s_keys.go/s_types.go.
func (c *JSONRPCChainS) SendToken(ctx context.Context, dest string, amountUnits int64, memo string) (*SendResult, error) {
	if c.vault == nil {
		return nil, fmt.Errorf("chains: no vault keypair configured")
	}

	bhResult, err := c.call(ctx, "getLatestBlockhash", []interface{}{})
	if err != nil {
		return nil, err
	}
	var bhResp struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := json.Unmarshal(bhResult, &bhResp); err != nil {
		return nil, fmt.Errorf("chains: parse recent blockhash: %w", err)
	}
	recentBH, err := decodePublicKey(bhResp.Value.Blockhash)
	if err != nil {
		return nil, fmt.Errorf("chains: decode recent blockhash: %w", err)
	}

	mint, err := decodePublicKey(c.usdcMint)
	if err != nil {
		return nil, err
	}
	vaultKey, err := decodePublicKey(c.vault.Address)
	if err != nil {
		return nil, err
	}
	sourceAcc, err := decodePublicKey(c.vaultUSDCAcc)
	if err != nil {
		return nil, err
	}
	destAcc, err := decodePublicKey(dest)
	if err != nil {
		return nil, err
	}

	msg := buildTransferMessage(vaultKey, sourceAcc, destAcc, mint, amountUnits, c.decimals, memo, recentBH)
	serialized := msg.serialize()
	sig := c.vault.Sign(serialized)

	rawTx := append(encodeCompactU16(1), sig...)
	rawTx = append(rawTx, serialized...)
	txB64 := base64.StdEncoding.EncodeToString(rawTx)

	result, err := c.call(ctx, "sendTransaction", []interface{}{
		txB64,
		map[string]interface{}{"encoding": "base64", "preflightCommitment": "confirmed"},
	})
	if err != nil {
		return nil, err
	}
	var txSig string
	if err := json.Unmarshal(result, &txSig); err != nil {
		return nil, fmt.Errorf("chains: parse send signature: %w", err)
	}
	return &SendResult{Sig: txSig}, nil
}

// IsTokenAccountForMint reports whether addr is a token account for the
// configured T_S mint, mirroring solana_client.py's
// _is_token_account_for_mint.
func (c *JSONRPCChainS) IsTokenAccountForMint(ctx context.Context, addr string) (bool, error) {
	result, err := c.call(ctx, "getAccountInfo", []interface{}{
		addr,
		map[string]interface{}{"encoding": "jsonParsed"},
	})
	if err != nil {
		return false, err
	}
	var resp struct {
		Value *struct {
			Owner string `json:"owner"`
			Data  struct {
				Parsed struct {
					Info struct {
						Mint string `json:"mint"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return false, fmt.Errorf("chains: parse account info: %w", err)
	}
	if resp.Value == nil {
		return false, nil
	}
	if resp.Value.Owner != tokenProgramID {
		return false, nil
	}
	return resp.Value.Data.Parsed.Info.Mint == c.usdcMint, nil
}

// DeriveATA derives owner's associated token account for the configured
// mint via the standard PDA derivation (seeds: owner, token program, mint).
func (c *JSONRPCChainS) DeriveATA(ctx context.Context, owner string) (string, error) {
	ownerKey, err := decodePublicKey(owner)
	if err != nil {
		return "", err
	}
	mint, err := decodePublicKey(c.usdcMint)
	if err != nil {
		return "", err
	}
	ata, err := deriveAssociatedTokenAddress(ownerKey, mint)
	if err != nil {
		return "", err
	}
	return base58.Encode(ata[:]), nil
}

// ScanRecentMemos scans the vault's recent transaction history for memos,
// returning a map of memo string to the signature that carried it.
func (c *JSONRPCChainS) ScanRecentMemos(ctx context.Context, limit int) (map[string]string, error) {
	result, err := c.call(ctx, "getSignaturesForAddress", []interface{}{
		c.vaultUSDCAcc,
		map[string]interface{}{"limit": limit},
	})
	if err != nil {
		return nil, err
	}
	var sigEntries []struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(result, &sigEntries); err != nil {
		return nil, fmt.Errorf("chains: parse signature list: %w", err)
	}

	out := make(map[string]string)
	for _, e := range sigEntries {
		txResult, err := c.call(ctx, "getTransaction", []interface{}{
			e.Signature,
			map[string]interface{}{"encoding": "jsonParsed", "maxSupportedTransactionVersion": 0},
		})
		if err != nil {
			continue
		}
		var tx struct {
			Transaction struct {
				Message struct {
					Instructions []struct {
						ProgramID string `json:"programId"`
						Data      string `json:"data"`
					} `json:"instructions"`
				} `json:"message"`
			} `json:"transaction"`
			Meta struct {
				LogMessages []string `json:"logMessages"`
			} `json:"meta"`
		}
		if err := json.Unmarshal(txResult, &tx); err != nil {
			continue
		}
		for _, ix := range tx.Transaction.Message.Instructions {
			if ix.ProgramID != memoProgramID {
				continue
			}
			memo := decodeMemoData(ix.Data)
			if memo != "" {
				out[memo] = e.Signature
			}
		}
		if logMemo := extractMemoFromLogs(tx.Meta.LogMessages); logMemo != "" {
			out[logMemo] = e.Signature
		}
	}
	return out, nil
}

// GetConfirmations returns sig's confirmation count, or -1 if not yet
// visible to the node.
func (c *JSONRPCChainS) GetConfirmations(ctx context.Context, sig string) (int64, error) {
	result, err := c.call(ctx, "getSignatureStatuses", []interface{}{
		[]string{sig},
		map[string]interface{}{"searchTransactionHistory": true},
	})
	if err != nil {
		return -1, err
	}
	var resp struct {
		Value []*struct {
			Confirmations   *int64 `json:"confirmations"`
			ConfirmationStatus string `json:"confirmationStatus"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return -1, fmt.Errorf("chains: parse signature status: %w", err)
	}
	if len(resp.Value) == 0 || resp.Value[0] == nil {
		return -1, nil
	}
	if resp.Value[0].Confirmations == nil {
		// nil confirmations with a finalized status means max confirmations.
		if resp.Value[0].ConfirmationStatus == "finalized" {
			return 1 << 30, nil
		}
		return -1, nil
	}
	return *resp.Value[0].Confirmations, nil
}
