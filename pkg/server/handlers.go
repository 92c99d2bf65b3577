package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/airdrop"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/claimsig"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/entitlement"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/ledger"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/merkle"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// maxRequestBodySize bounds request bodies; a maximal proof is well under it
const maxRequestBodySize = 64 * 1024

// handleGetRoot handles GET /root
func (s *Server) handleGetRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	state, err := s.airdrop.State()
	if errors.Is(err, airdrop.ErrNotInitialized) {
		writeJSON(w, http.StatusOK, types.RootResponse{Initialized: false})
		return
	}
	if err != nil {
		s.logger.Sugar().Errorw("Failed to read airdrop state", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, types.RootResponse{
		Initialized:  true,
		Root:         state.Root.Hex(),
		HashFunction: state.HashFunction,
		LeafCount:    state.LeafCount,
		Owner:        state.Owner.Hex(),
	})
}

// handleCanClaim handles POST /can_claim.
// Malformed recipients, amounts or proofs answer false rather than 400.
func (s *Server) handleCanClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req types.CanClaimRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse request: %v", err))
		return
	}

	recipient, err := entitlement.ParseRecipient(req.Recipient)
	if err != nil {
		s.answerCanClaim(w, r, false)
		return
	}
	amount, err := entitlement.ParseAmount(req.Amount)
	if err != nil {
		s.answerCanClaim(w, r, false)
		return
	}
	proof, err := merkle.DecodeProof(req.Proof)
	if err != nil {
		s.answerCanClaim(w, r, false)
		return
	}

	ok, err := s.airdrop.CanClaim(r.Context(), recipient, amount, proof)
	if err != nil {
		s.writeAirdropError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.CanClaimResponse{CanClaim: ok})
}

// answerCanClaim still reports 503 before a root is published
func (s *Server) answerCanClaim(w http.ResponseWriter, r *http.Request, ok bool) {
	if _, err := s.airdrop.State(); err != nil {
		s.writeAirdropError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.CanClaimResponse{CanClaim: ok})
}

// handleClaim handles POST /claim. The claim pays the address recovered
// from the signature, which binds the root, amount and proof.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req types.ClaimRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse request: %v", err))
		return
	}

	amount, err := entitlement.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid amount: %v", err))
		return
	}
	proof, err := merkle.DecodeProof(req.Proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid proof: %v", err))
		return
	}
	signature, err := hexutil.Decode(strings.TrimSpace(req.Signature))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid signature: %v", err))
		return
	}

	state, err := s.airdrop.State()
	if err != nil {
		s.writeAirdropError(w, err)
		return
	}

	caller, err := claimsig.RecoverClaimant(state.Root, amount, proof, signature)
	if err != nil {
		s.logger.Sugar().Debugw("Rejected claim signature", "error", err)
		writeError(w, http.StatusForbidden, "invalid claim signature")
		return
	}

	record, err := s.airdrop.Claim(r.Context(), caller, amount, proof)
	if err != nil {
		s.writeAirdropError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, types.ClaimResponse{Claim: record})
}

// handleListClaims handles GET /claims
func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	claims, err := s.airdrop.ListClaims()
	if err != nil {
		s.writeAirdropError(w, err)
		return
	}
	if claims == nil {
		claims = []*types.ClaimRecord{}
	}
	writeJSON(w, http.StatusOK, claims)
}

// handleGetClaim handles GET /claims/{recipient}
func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/claims/")
	recipient, err := entitlement.ParseRecipient(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.airdrop.ClaimStatus(recipient)
	if err != nil {
		s.writeAirdropError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, types.ClaimStatusResponse{
		Recipient: recipient.Hex(),
		Claimed:   record.IsClaimed(),
		Claim:     record,
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.airdrop.HealthCheck(); err != nil {
		s.logger.Sugar().Warnw("Health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "unhealthy")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeAirdropError maps airdrop errors onto HTTP status codes
func (s *Server) writeAirdropError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, airdrop.ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, airdrop.ErrInvalidProof):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, airdrop.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, airdrop.ErrTransferFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Sugar().Errorw("Airdrop request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}
