package chains

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CLIChainN implements ChainN against a Chain-N node's command-line wallet,
// shelling out the same way original_source/src/nexus_client.py's _run does:
// every call is one subprocess invocation, JSON parsed leniently because the
// CLI sometimes interleaves log lines with its JSON payload.
type CLIChainN struct {
	cliPath   string
	pin       string
	tokenName string
	decimals  uint8
	timeout   time.Duration
}

// CLIChainNConfig configures a CLIChainN adapter.
type CLIChainNConfig struct {
	CLIPath   string
	Pin       string
	TokenName string
	Decimals  uint8
	Timeout   time.Duration
}

// NewCLIChainN builds a Chain-N adapter.
func NewCLIChainN(cfg CLIChainNConfig) *CLIChainN {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &CLIChainN{
		cliPath:   cfg.CLIPath,
		pin:       cfg.Pin,
		tokenName: cfg.TokenName,
		decimals:  cfg.Decimals,
		timeout:   timeout,
	}
}

var _ ChainN = (*CLIChainN)(nil)

// run executes the CLI with args, capturing stdout/stderr the way
// nexus_client.py's _run does, bounded by both ctx and the adapter's own
// per-call timeout (whichever is tighter).
func (c *CLIChainN) run(ctx context.Context, args ...string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, c.cliPath, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if callCtx.Err() != nil {
		return "", ErrTimeout
	}
	if err != nil {
		return "", fmt.Errorf("chains: chain-n cli %s: %w: %s", args[0], err, stderr.String())
	}
	return stdout.String(), nil
}

// parseJSONLenient mirrors nexus_client.py's _parse_json_lenient: try a
// straight decode first, then fall back to scanning line by line, then fall
// back to the widest {...}/[...] span in the text. CLI tools in this family
// are known to interleave informational log lines with their JSON payload.
func parseJSONLenient(text string, out interface{}) error {
	if err := json.Unmarshal([]byte(text), out); err == nil {
		return nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "{") && !strings.HasPrefix(line, "[") {
			continue
		}
		if err := json.Unmarshal([]byte(line), out); err == nil {
			return nil
		}
	}

	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return fmt.Errorf("chains: no JSON payload found in CLI output")
	}
	for j := len(text) - 1; j > start; j-- {
		if text[j] == ']' || text[j] == '}' {
			if err := json.Unmarshal([]byte(text[start:j+1]), out); err == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("chains: no JSON payload found in CLI output")
}

// formatDecimal converts unitsto a decimal string at the adapter's
// configured decimals, trimming trailing zeros, matching
// nexus_client.py's _format_usdd_amount.
func (c *CLIChainN) formatDecimal(units int64) string {
	if c.decimals == 0 {
		return strconv.FormatInt(units, 10)
	}
	neg := units < 0
	abs := new(big.Int).Abs(big.NewInt(units))
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(c.decimals)), nil)
	whole := new(big.Int).Div(abs, divisor)
	frac := new(big.Int).Mod(abs, divisor)
	fracStr := fmt.Sprintf("%0*s", int(c.decimals), frac.String())
	fracStr = strings.TrimRight(fracStr, "0")
	out := whole.String()
	if fracStr != "" {
		out += "." + fracStr
	}
	if neg {
		out = "-" + out
	}
	return out
}

// GetAccount returns addr's balance in base units.
func (c *CLIChainN) GetAccount(ctx context.Context, addr string) (int64, error) {
	out, err := c.run(ctx, "finance/get/account", "address="+addr)
	if err != nil {
		return 0, err
	}
	var resp struct {
		Balance json.Number `json:"balance"`
	}
	if err := parseJSONLenient(out, &resp); err != nil {
		return 0, err
	}
	return decimalStringToUnits(resp.Balance.String(), c.decimals)
}

// decimalStringToUnits parses a decimal-string CLI field into base units.
func decimalStringToUnits(s string, decimals uint8) (int64, error) {
	if s == "" {
		return 0, nil
	}
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	for len(frac) < int(decimals) {
		frac += "0"
	}
	frac = frac[:decimals]
	combined := strings.TrimLeft(whole+frac, "0")
	if combined == "" {
		combined = "0"
	}
	n, err := strconv.ParseInt(combined, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("chains: parse decimal %q: %w", s, err)
	}
	if neg {
		n = -n
	}
	return n, nil
}

// ListTransactionsForAccount lists recent inbound contracts for addr.
func (c *CLIChainN) ListTransactionsForAccount(ctx context.Context, addr string, limit int) ([]TransactionInfo, error) {
	out, err := c.run(ctx, "finance/transactions/account", "address="+addr, fmt.Sprintf("limit=%d", limit), "verbose=summary")
	if err != nil {
		return nil, err
	}

	var txs []struct {
		Txid          string      `json:"txid"`
		Timestamp     int64       `json:"timestamp"`
		Confirmations int64       `json:"confirmations"`
		Contracts     []struct {
			ID        json.Number `json:"id"`
			OP        string      `json:"OP"`
			From      string      `json:"from"`
			To        string      `json:"to"`
			Amount    json.Number `json:"amount"`
			Owner     string      `json:"owner"`
			Reference interface{} `json:"reference"`
		} `json:"contracts"`
	}
	if err := parseJSONLenient(out, &txs); err != nil {
		return nil, err
	}

	var result []TransactionInfo
	for _, tx := range txs {
		for _, ct := range tx.Contracts {
			if strings.ToUpper(ct.OP) != "DEBIT" && strings.ToUpper(ct.OP) != "TRANSFER" {
				continue
			}
			if ct.To != addr {
				continue
			}
			amt, err := decimalStringToUnits(ct.Amount.String(), c.decimals)
			if err != nil {
				continue
			}
			cid := ct.ID.String()
			if cid == "" {
				cid = "x"
			}
			ref := ""
			if ct.Reference != nil {
				ref = strings.TrimSpace(fmt.Sprintf("%v", ct.Reference))
			}
			result = append(result, TransactionInfo{
				Txid:          tx.Txid,
				ContractID:    cid,
				Timestamp:     tx.Timestamp,
				AmountUnits:   amt,
				FromAddress:   ct.From,
				ToAddress:     ct.To,
				OwnerFrom:     ct.Owner,
				Reference:     ref,
				Confirmations: tx.Confirmations,
			})
		}
	}
	return result, nil
}

// DebitAccount performs finance/debit/token from the named token (treasury
// issuance) to dest, stamping reference, mirroring
// nexus_client.py's debit_usdd_with_txid.
func (c *CLIChainN) DebitAccount(ctx context.Context, from, dest string, amountUnits int64, reference int64) (*DebitResult, error) {
	if c.pin == "" {
		return nil, fmt.Errorf("chains: no pin configured")
	}
	out, err := c.run(ctx, "finance/debit/token",
		"from="+c.tokenName,
		"to="+dest,
		"amount="+c.formatDecimal(amountUnits),
		fmt.Sprintf("reference=%d", reference),
		"pin="+c.pin,
	)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Txid string `json:"txid"`
	}
	if err := parseJSONLenient(out, &resp); err != nil || resp.Txid == "" {
		return &DebitResult{OK: false}, nil
	}
	return &DebitResult{OK: true, Txid: resp.Txid}, nil
}

// TransferBetweenAccounts performs finance/debit/account between two
// bridge-owned accounts, mirroring nexus_client.py's
// transfer_usdd_between_accounts / debit_account_with_txid.
func (c *CLIChainN) TransferBetweenAccounts(ctx context.Context, from, to string, amountUnits int64, reference int64) (*DebitResult, error) {
	if c.pin == "" {
		return nil, fmt.Errorf("chains: no pin configured")
	}
	amountStr := c.formatDecimal(amountUnits)
	out, err := c.run(ctx, "finance/debit/account",
		"from="+from,
		"to="+to,
		"amount="+amountStr,
		fmt.Sprintf("reference=%d", reference),
		"pin="+c.pin,
	)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Txid string `json:"txid"`
	}
	_ = parseJSONLenient(out, &resp) // a transfer can succeed without the CLI echoing a txid
	return &DebitResult{OK: true, Txid: resp.Txid}, nil
}

// GetTokenSupply returns the circulating supply of the named token.
func (c *CLIChainN) GetTokenSupply(ctx context.Context, name string) (int64, error) {
	out, err := c.run(ctx, "finance/get/token/currentsupply", "name="+name)
	if err != nil {
		return 0, err
	}
	trimmed := strings.TrimSpace(out)
	var raw interface{}
	if err := parseJSONLenient(trimmed, &raw); err != nil {
		return decimalStringToUnits(trimmed, c.decimals)
	}
	switch v := raw.(type) {
	case map[string]interface{}:
		if cs, ok := v["currentsupply"]; ok {
			return decimalStringToUnits(fmt.Sprintf("%v", cs), c.decimals)
		}
		return 0, fmt.Errorf("chains: no currentsupply field in response")
	default:
		return decimalStringToUnits(fmt.Sprintf("%v", v), c.decimals)
	}
}

// UpdateAsset writes fields onto the named asset, matching
// nexus_client.py's update_heartbeat_asset (conditional field inclusion; a
// zero-value string field is omitted rather than written as empty).
func (c *CLIChainN) UpdateAsset(ctx context.Context, name string, fields AssetFields) error {
	if c.pin == "" {
		return fmt.Errorf("chains: no pin configured")
	}
	args := []string{"assets/update/asset", "name=" + name, "format=basic"}
	for k, v := range fields {
		if v == "" {
			continue
		}
		args = append(args, k+"="+v)
	}
	args = append(args, "pin="+c.pin)

	out, err := c.run(ctx, args...)
	if err != nil {
		return err
	}
	var resp struct {
		Success bool `json:"success"`
	}
	if err := parseJSONLenient(out, &resp); err != nil {
		return fmt.Errorf("chains: parse update asset response: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("chains: update asset %s reported failure", name)
	}
	return nil
}

// CreateAsset mints a brand-new named asset carrying fields, matching
// create_heartbeat_asset.py's one-time assets/create/asset invocation. Call
// sites that need to keep an existing asset's fields current use
// UpdateAsset instead; CreateAsset is for standing up a new one.
func (c *CLIChainN) CreateAsset(ctx context.Context, name string, fields AssetFields) (string, error) {
	if c.pin == "" {
		return "", fmt.Errorf("chains: no pin configured")
	}
	args := []string{"assets/create/asset", "name=" + name, "format=basic"}
	for k, v := range fields {
		if v == "" {
			continue
		}
		args = append(args, k+"="+v)
	}
	args = append(args, "pin="+c.pin)

	out, err := c.run(ctx, args...)
	if err != nil {
		return "", err
	}
	var raw map[string]interface{}
	if err := parseJSONLenient(out, &raw); err != nil {
		return "", fmt.Errorf("chains: parse create asset response: %w", err)
	}
	if results, ok := raw["results"].(map[string]interface{}); ok {
		raw = results
	}
	addr, ok := raw["address"]
	if !ok {
		return "", fmt.Errorf("chains: create asset %s reported no address", name)
	}
	return fmt.Sprintf("%v", addr), nil
}

// GetAsset reads the named asset, mapping all extra fields verbatim into
// AssetFields.
func (c *CLIChainN) GetAsset(ctx context.Context, name string) (*Asset, error) {
	out, err := c.run(ctx, "assets/get/asset", "name="+name)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := parseJSONLenient(out, &raw); err != nil {
		return nil, err
	}
	if _, ok := raw["address"]; !ok {
		return nil, ErrNotFound
	}
	return assetFromRaw(raw), nil
}

func assetFromRaw(raw map[string]interface{}) *Asset {
	a := &Asset{Fields: AssetFields{}}
	for k, v := range raw {
		s := fmt.Sprintf("%v", v)
		switch k {
		case "owner":
			a.Owner = s
		case "created":
			a.Created, _ = strconv.ParseInt(s, 10, 64)
		case "modified":
			a.Modified, _ = strconv.ParseInt(s, 10, 64)
		case "name":
			a.Name = s
		}
		a.Fields[k] = s
	}
	return a
}

// FindAssetByFields queries the asset register by field equality, returning
// matches ordered oldest (created, modified) first — mirroring
// nexus_client.py's find_asset_receival_account_by_sig /
// find_asset_receival_account_by_txid_and_owner tie-break.
func (c *CLIChainN) FindAssetByFields(ctx context.Context, predicate AssetPredicate) ([]Asset, error) {
	args := []string{"register/list/assets:asset"}
	for k, v := range predicate {
		args = append(args, fmt.Sprintf("results.%s=%s", k, v))
	}
	args = append(args, "order=asc", "sort=created")

	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	var raw []map[string]interface{}
	if err := parseJSONLenient(out, &raw); err != nil {
		var single map[string]interface{}
		if err2 := parseJSONLenient(out, &single); err2 != nil {
			return nil, err
		}
		raw = []map[string]interface{}{single}
	}

	var items []map[string]interface{}
	for _, a := range raw {
		core := a
		if res, ok := a["results"].(map[string]interface{}); ok {
			core = res
		}
		if asset, ok := core["asset"].(map[string]interface{}); ok {
			core = asset
		}
		items = append(items, core)
	}

	sort.SliceStable(items, func(i, j int) bool {
		ci, _ := strconv.ParseInt(fmt.Sprintf("%v", items[i]["created"]), 10, 64)
		cj, _ := strconv.ParseInt(fmt.Sprintf("%v", items[j]["created"]), 10, 64)
		if ci != cj {
			return ci < cj
		}
		mi, _ := strconv.ParseInt(fmt.Sprintf("%v", items[i]["modified"]), 10, 64)
		mj, _ := strconv.ParseInt(fmt.Sprintf("%v", items[j]["modified"]), 10, 64)
		return mi < mj
	})

	out2 := make([]Asset, 0, len(items))
	for _, it := range items {
		out2 = append(out2, *assetFromRaw(it))
	}
	return out2, nil
}

// IsValidAccount reports whether addr is a well-formed, existing Chain-N
// account carrying the configured token ticker, mirroring
// nexus_client.py's is_valid_usdd_account.
func (c *CLIChainN) IsValidAccount(ctx context.Context, addr string) (bool, error) {
	out, err := c.run(ctx, "register/get/finance:account", "address="+addr)
	if err != nil {
		return false, nil // the CLI returning non-zero means "not found", not a hard error
	}
	var info map[string]interface{}
	if err := parseJSONLenient(out, &info); err != nil {
		return false, nil
	}
	if info["address"] == nil {
		return false, nil
	}
	ticker, _ := info["ticker"].(string)
	return strings.EqualFold(ticker, c.tokenName), nil
}

// GetConfirmations returns txid's confirmation count by scanning the token's
// recent transaction list, mirroring
// nexus_client.py's get_transaction_confirmations.
func (c *CLIChainN) GetConfirmations(ctx context.Context, txid string) (int64, error) {
	out, err := c.run(ctx, "finance/transactions/token", "name="+c.tokenName)
	if err != nil {
		return -1, err
	}
	var txs []struct {
		Txid          string `json:"txid"`
		Confirmations int64  `json:"confirmations"`
	}
	if err := parseJSONLenient(out, &txs); err != nil {
		return -1, err
	}
	for _, tx := range txs {
		if tx.Txid == txid {
			return tx.Confirmations, nil
		}
	}
	return -1, nil
}
