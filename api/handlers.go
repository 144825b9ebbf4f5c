package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cloudx-io/scionauction/core"
	"github.com/cloudx-io/scionauction/store"
)

func withCaller(ctx context.Context, caller core.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func callerFrom(r *http.Request) core.Address {
	caller, _ := r.Context().Value(callerKey{}).(core.Address)
	return caller
}

func uintParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		badRequest(w, name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}

// categoryParam parses the category path parameter, which must fit a CategoryID.
func categoryParam(w http.ResponseWriter, r *http.Request) (core.CategoryID, bool) {
	v, ok := uintParam(w, r, "category")
	if !ok {
		return 0, false
	}
	if v > uint64(^uint32(0)) {
		badRequest(w, "category out of range")
		return 0, false
	}
	return core.CategoryID(v), true
}

// queryUint parses an optional query parameter, returning def when absent.
func queryUint(w http.ResponseWriter, r *http.Request, name string, def uint64) (uint64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		badRequest(w, name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"ledger_digest": s.engine.LedgerDigest(),
		"total_bids":    s.engine.CountAllBids(),
	})
}

// Auction window.

func (s *Server) handleAuctionStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.AuctionStatus())
}

type startAuctionRequest struct {
	Duration string    `json:"duration"`
	Start    time.Time `json:"start"`
}

func (s *Server) handleStartAuction(w http.ResponseWriter, r *http.Request) {
	var req startAuctionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	duration, err := time.ParseDuration(req.Duration)
	if err != nil {
		badRequest(w, "duration must be a Go duration such as 72h")
		return
	}
	if err := s.engine.StartAuction(r.Context(), callerFrom(r), duration, req.Start); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.AuctionStatus())
}

func (s *Server) handleFinishAuction(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.FinishAuction(r.Context(), callerFrom(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.AuctionStatus())
}

// Bids.

type placeBidRequest struct {
	Count     int         `json:"count"`
	UnitValue core.Amount `json:"unit_value"`
	Payment   core.Amount `json:"payment"`
}

type placeBidResponse struct {
	FirstIndex uint64 `json:"first_index"`
	Count      int    `json:"count"`
}

func (s *Server) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	var req placeBidRequest
	if !decodeBody(w, r, &req) {
		return
	}
	first, err := s.engine.PlaceBid(r.Context(), callerFrom(r), req.Count, req.UnitValue, req.Payment)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, placeBidResponse{FirstIndex: first, Count: req.Count})
}

type increaseBidRequest struct {
	Added   core.Amount `json:"added"`
	Payment core.Amount `json:"payment"`
}

func (s *Server) handleIncreaseBid(w http.ResponseWriter, r *http.Request) {
	index, ok := uintParam(w, r, "index")
	if !ok {
		return
	}
	var req increaseBidRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.UpdateBid(r.Context(), callerFrom(r), index, req.Added, req.Payment); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBid(w, r, index)
}

func (s *Server) handleCancelBid(w http.ResponseWriter, r *http.Request) {
	index, ok := uintParam(w, r, "index")
	if !ok {
		return
	}
	if err := s.engine.CancelBid(r.Context(), callerFrom(r), index); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetBid(w http.ResponseWriter, r *http.Request) {
	index, ok := uintParam(w, r, "index")
	if !ok {
		return
	}
	s.writeBid(w, r, index)
}

func (s *Server) writeBid(w http.ResponseWriter, r *http.Request, index uint64) {
	bid, err := s.engine.Bid(index)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

type bidPage struct {
	Offset int            `json:"offset"`
	Total  int            `json:"total"`
	Bids   []core.BidView `json:"bids"`
}

func (s *Server) handleListBids(w http.ResponseWriter, r *http.Request) {
	offset, ok := queryUint(w, r, "offset", 0)
	if !ok {
		return
	}
	limit, ok := queryUint(w, r, "limit", 100)
	if !ok {
		return
	}

	scope, owner, total := core.ScopeAll, core.Address(""), s.engine.CountAllBids()
	if raw := r.URL.Query().Get("owner"); raw != "" {
		owner = core.NormalizeAddress(raw)
		scope, total = core.ScopeOwned, s.engine.CountOwnedBids(owner)
	}

	bids := s.engine.ListBids(int(offset), int(min(limit, 1000)), scope, owner)
	if bids == nil {
		bids = []core.BidView{}
	}
	writeJSON(w, http.StatusOK, bidPage{Offset: int(offset), Total: total, Bids: bids})
}

func (s *Server) handleCountBids(w http.ResponseWriter, r *http.Request) {
	count := s.engine.CountAllBids()
	if raw := r.URL.Query().Get("owner"); raw != "" {
		count = s.engine.CountOwnedBids(core.NormalizeAddress(raw))
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// Class and weight bands.

type versionResponse struct {
	Version uint64 `json:"version"`
}

func (s *Server) handleClassTable(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ClassTable())
}

func (s *Server) handleSetBands(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bands []core.ClassBand `json:"bands"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	version, err := s.engine.SetBands(r.Context(), callerFrom(r), req.Bands)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versionResponse{Version: version})
}

func (s *Server) handleResolveTier(w http.ResponseWriter, r *http.Request) {
	value, err := core.ParseAmount(r.URL.Query().Get("value"))
	if err != nil {
		badRequest(w, "value must be a decimal amount")
		return
	}
	tier, version := s.engine.ResolvedTier(value)
	writeJSON(w, http.StatusOK, map[string]any{
		"tier":      tier,
		"tier_name": tier.String(),
		"version":   version,
	})
}

func (s *Server) handleWeightBands(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.WeightBands())
}

func (s *Server) handleSetWeightBands(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bands []core.TierWeightBand `json:"bands"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	version, err := s.engine.SetWeightBands(r.Context(), callerFrom(r), req.Bands)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versionResponse{Version: version})
}

// Catalog.

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	categories := s.engine.Categories()
	if categories == nil {
		categories = []core.CategoryID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	category, ok := categoryParam(w, r)
	if !ok {
		return
	}
	var (
		entries []core.WeightEntry
		err     error
	)
	q := r.URL.Query()
	if q.Get("lo") == "" && q.Get("hi") == "" {
		entries, err = s.engine.EntriesInCategory(category)
	} else {
		lo, ok := queryUint(w, r, "lo", 0)
		if !ok {
			return
		}
		hi, ok := queryUint(w, r, "hi", s.engine.Config().MaxWeight)
		if !ok {
			return
		}
		entries, err = s.engine.EntriesInWeightRange(category, lo, hi)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.WeightEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": category, "entries": entries})
}

type setCategoryRequest struct {
	AssetIDs []uint64 `json:"asset_ids"`
	Weights  []uint64 `json:"weights"`
	Names    []string `json:"names"`
}

func (s *Server) handleSetCategory(w http.ResponseWriter, r *http.Request) {
	category, ok := categoryParam(w, r)
	if !ok {
		return
	}
	var req setCategoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	version, err := s.engine.SetCategory(r.Context(), callerFrom(r), category, req.AssetIDs, req.Weights, req.Names)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versionResponse{Version: version})
}

// Passes and promotion.

func (s *Server) handleClaimPasses(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Indices []uint64 `json:"indices"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	passes, err := s.engine.ClaimPass(r.Context(), callerFrom(r), req.Indices)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if passes == nil {
		passes = []core.PassToken{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"passes": passes})
}

func (s *Server) handleGetPass(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	pass, err := s.engine.Pass(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pass)
}

func (s *Server) handleMintPromotion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tiers []core.Tier `json:"tiers"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	passes, err := s.engine.MintPromotionBatch(r.Context(), callerFrom(r), req.Tiers)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"passes": passes})
}

func (s *Server) handlePromotionPrices(w http.ResponseWriter, _ *http.Request) {
	prices := map[string]core.Amount{}
	for tier := core.TierBronze; tier <= core.TierOnyx; tier++ {
		if price, ok := s.engine.PromotionPrice(tier); ok {
			prices[tier.String()] = price
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": prices})
}

func (s *Server) handleSetPromotionPrices(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tiers  []core.Tier   `json:"tiers"`
		Prices []core.Amount `json:"prices"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.SetPricePerTier(r.Context(), callerFrom(r), req.Tiers, req.Prices); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddPromotionAddresses(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Addresses []string `json:"addresses"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	addrs := make([]core.Address, len(req.Addresses))
	for i, a := range req.Addresses {
		addrs[i] = core.NormalizeAddress(a)
	}
	if err := s.engine.AddPromotionAddress(r.Context(), callerFrom(r), addrs); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBuyPromotion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PassID  uint64      `json:"pass_id"`
		Payment core.Amount `json:"payment"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.BuyPromotionPass(r.Context(), callerFrom(r), req.PassID, req.Payment); err != nil {
		s.writeError(w, r, err)
		return
	}
	pass, err := s.engine.Pass(req.PassID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pass)
}

// Scions and rerolls.

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PassID uint64 `json:"pass_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	scion, err := s.engine.Generate(r.Context(), callerFrom(r), req.PassID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, scion)
}

func (s *Server) handleGetScion(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	scion, err := s.engine.Scion(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scion)
}

func (s *Server) handleRerollPrice(w http.ResponseWriter, r *http.Request) {
	current, ok := queryUint(w, r, "current", 0)
	if !ok {
		return
	}
	target, ok := queryUint(w, r, "target", 0)
	if !ok {
		return
	}
	price, err := s.engine.RerollPrice(current, target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"price": price})
}

type rerollResponse struct {
	Trait core.Trait  `json:"trait"`
	Price core.Amount `json:"price"`
}

func (s *Server) handleReroll(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Category core.CategoryID `json:"category"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	trait, price, err := s.engine.Reroll(r.Context(), callerFrom(r), id, req.Category)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rerollResponse{Trait: trait, Price: price})
}

// Creature batch sales.

func (s *Server) handleCreatureLines(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"lines": s.engine.CreatureLines()})
}

func (s *Server) handleBatchSale(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.BatchSale(core.CreatureLine(chi.URLParam(r, "line")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleTriggerBatchSale(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Price core.Amount `json:"price"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	status, err := s.engine.TriggerBatchSale(r.Context(), callerFrom(r), core.CreatureLine(chi.URLParam(r, "line")), req.Price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleClaimCreature(w http.ResponseWriter, r *http.Request) {
	token, err := s.engine.ClaimCreature(r.Context(), callerFrom(r), core.CreatureLine(chi.URLParam(r, "line")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

func (s *Server) handleGetCreature(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	token, err := s.engine.Creature(core.CreatureLine(chi.URLParam(r, "line")), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// Events.

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "event journal not configured"})
		return
	}
	after, ok := queryUint(w, r, "after", 0)
	if !ok {
		return
	}
	limit, ok := queryUint(w, r, "limit", store.DefaultListLimit)
	if !ok {
		return
	}
	events, err := s.journal.List(r.Context(), after, int(min(limit, store.MaxListLimit)))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "event stream not configured"})
		return
	}
	s.hub.ServeWS(w, r)
}
