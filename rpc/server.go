// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/frontierlabs/indexer/blockchain"
	"github.com/frontierlabs/indexer/ledger"
	"github.com/frontierlabs/indexer/types/blocks"
	"github.com/gorilla/mux"
)

const defaultBestChainLimit = 10

// Server exposes the chain's query surface over HTTP JSON.
type Server struct {
	chain      *blockchain.Chain
	httpServer *http.Server
}

// NewServer returns a query server listening on addr.
func NewServer(chain *blockchain.Chain, addr string) *Server {
	s := &Server{chain: chain}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/account/{publicKey}", s.handleAccount).Methods(http.MethodGet)
	r.HandleFunc("/v1/best-chain", s.handleBestChain).Methods(http.MethodGet)
	r.HandleFunc("/v1/summary", s.handleSummary).Methods(http.MethodGet)
	r.HandleFunc("/v1/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

// Run starts the server and blocks until the context is canceled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	log.Infof("Query API listening on %s", s.httpServer.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("query API server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down query API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// AccountResponse is the body returned by the account endpoint.
type AccountResponse struct {
	Account ledger.Account `json:"account"`
	Height  uint32         `json:"height"`
}

// BestChainResponse is the body returned by the best-chain endpoint.
type BestChainResponse struct {
	Blocks []*blocks.Block `json:"blocks"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	publicKey := mux.Vars(r)["publicKey"]
	if err := ledger.ValidatePublicKey(publicKey); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	acct, height, err := s.chain.GetAccount(publicKey)
	if errors.Is(err, blockchain.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, &AccountResponse{
		Account: acct,
		Height:  height,
	})
}

func (s *Server) handleBestChain(w http.ResponseWriter, r *http.Request) {
	limit := defaultBestChainLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}
	chain, err := s.chain.BestChain(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, &BestChainResponse{Blocks: chain})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary := s.chain.Summary()
	writeJSON(w, &summary)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Failed to encode response: %s", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&errorResponse{Error: err.Error()})
}
