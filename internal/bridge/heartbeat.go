package bridge

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/usdbridge/bridge/internal/chains"
	"github.com/usdbridge/bridge/internal/config"
	"github.com/usdbridge/bridge/internal/store"
	"github.com/usdbridge/bridge/pkg/logging"
)

// HeartbeatFields are the asset field names the heartbeat publishes, per
// spec §6's normative list plus the transparency strings original_source's
// create_heartbeat_asset.py and update_heartbeat_asset seed once and refresh
// on every beat.
const (
	fieldLastPoll        = "last_poll_timestamp"
	fieldWlineS          = "last_safe_timestamp_solana"
	fieldWlineN          = "last_safe_timestamp_nexus"
	fieldSupportedChains = "supported_chains"
	fieldSupportedTokens = "supported_tokens"
	fieldVaultAddress    = "solana_vault_address"
	fieldTreasuryAddress = "nexus_treasury_address"
	fieldMint            = "solana_vault_mint"
)

// Heartbeat publishes the bridge's poll progress as a Chain-N asset (spec
// §4.7) and reads it back once at startup to seed the waterlines, grounded
// on original_source/src/nexus_client.py's update_heartbeat_asset/
// get_heartbeat_asset.
type Heartbeat struct {
	chainN   chains.ChainN
	store    *store.Store
	cfg      config.HeartbeatConfig
	cfgS     config.ChainSConfig
	cfgN     config.ChainNConfig
	log      *logging.Logger
	lastBeat time.Time
}

// NewHeartbeat builds a Heartbeat publisher.
func NewHeartbeat(chainN chains.ChainN, st *store.Store, cfg config.HeartbeatConfig, cfgS config.ChainSConfig, cfgN config.ChainNConfig) *Heartbeat {
	return &Heartbeat{
		chainN: chainN,
		store:  st,
		cfg:    cfg,
		cfgS:   cfgS,
		cfgN:   cfgN,
		log:    logging.GetDefault().Component("heartbeat"),
	}
}

// Waterlines is the pair of safety-adjusted checkpoint timestamps applied at
// startup and bounding how far back ingestion needs to look.
type Waterlines struct {
	SolanaSafe int64
	NexusSafe  int64
}

// LoadStartupWaterlines reads the heartbeat row once at process start. A
// missing or never-beaten heartbeat falls back to 0 (full historical scan
// bounded by the adapter's own page limit), per spec §4.7.
func (h *Heartbeat) LoadStartupWaterlines(ctx context.Context) (Waterlines, error) {
	row, err := h.store.GetHeartbeat()
	if err != nil {
		return Waterlines{}, fmt.Errorf("heartbeat: load local: %w", err)
	}
	if row != nil {
		return h.applySafety(row.WlineS, row.WlineN), nil
	}

	if !h.cfg.Enabled || h.cfg.AssetAddress == "" {
		return Waterlines{}, nil
	}

	asset, err := h.chainN.GetAsset(ctx, h.cfg.AssetAddress)
	if err != nil {
		if err == chains.ErrNotFound {
			return Waterlines{}, nil
		}
		h.log.Warn("read remote heartbeat asset failed, starting from zero", "err", err)
		return Waterlines{}, nil
	}

	wlineS := parseAssetInt(asset.Fields[fieldWlineS])
	wlineN := parseAssetInt(asset.Fields[fieldWlineN])
	if err := h.store.InsertHeartbeat(&store.Heartbeat{
		Name:     "bridge",
		LastBeat: parseAssetInt(asset.Fields[fieldLastPoll]),
		WlineS:   wlineS,
		WlineN:   wlineN,
	}); err != nil {
		h.log.Warn("seed local heartbeat from remote asset failed", "err", err)
	}
	return h.applySafety(wlineS, wlineN), nil
}

func (h *Heartbeat) applySafety(wlineS, wlineN int64) Waterlines {
	safety := int64(h.cfg.WaterlineSafetySec)
	out := Waterlines{SolanaSafe: wlineS - safety, NexusSafe: wlineN - safety}
	if out.SolanaSafe < 0 {
		out.SolanaSafe = 0
	}
	if out.NexusSafe < 0 {
		out.NexusSafe = 0
	}
	return out
}

// Beat applies any waterline proposals staged this cycle and advances the
// heartbeat clock, both locally and — best-effort — on the Chain-N asset.
// It is the last step of a poll cycle per spec §5: if the remote publish
// fails, the local heartbeat row still advances, so the next cycle does not
// repeat work already durably recorded, but a crash before Beat is called
// at all correctly reprocesses from the previous waterline.
func (h *Heartbeat) Beat(ctx context.Context) error {
	wlineS, wlineN, err := h.store.GetAndClearProposedWaterlines()
	if err != nil {
		return fmt.Errorf("heartbeat: read proposals: %w", err)
	}

	now := time.Now().Unix()
	if err := h.store.UpdateHeartbeat(now, wlineS, wlineN); err != nil {
		return fmt.Errorf("heartbeat: update local: %w", err)
	}

	if !h.cfg.Enabled || h.cfg.AssetAddress == "" {
		return nil
	}
	if !h.lastBeat.IsZero() && time.Since(h.lastBeat) < time.Duration(h.cfg.MinIntervalSec)*time.Second {
		// The local row already advanced; the remote publish is rate-limited
		// separately so a fast poll interval doesn't spam the asset update.
		return nil
	}
	h.lastBeat = time.Now()

	row, err := h.store.GetHeartbeat()
	if err != nil {
		return fmt.Errorf("heartbeat: reread local: %w", err)
	}

	fields := chains.AssetFields{
		fieldLastPoll:        strconv.FormatInt(row.LastBeat, 10),
		fieldWlineS:          strconv.FormatInt(row.WlineS, 10),
		fieldWlineN:          strconv.FormatInt(row.WlineN, 10),
		fieldSupportedChains: "chain_s,chain_n",
		fieldSupportedTokens: fmt.Sprintf("%s,%s", h.cfgS.USDCMint, h.cfgN.TokenName),
		fieldVaultAddress:    h.cfgS.VaultUSDCAcct,
		fieldTreasuryAddress: h.cfgN.TreasuryAccount,
		fieldMint:            h.cfgS.USDCMint,
	}
	if err := h.chainN.UpdateAsset(ctx, h.cfg.AssetAddress, fields); err != nil {
		h.log.Warn("publish heartbeat asset failed", "err", err)
	}
	return nil
}

func parseAssetInt(v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
