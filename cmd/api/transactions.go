package main

import (
	"net/http"

	"github.com/mcclellann/loanledger/pkg/ledger"
)

func (s *Server) listTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	var q ledger.TransactionQuery
	var ok bool
	if q.Year, ok = queryInt(w, r, "year"); !ok {
		return
	}
	if q.Month, ok = queryInt(w, r, "month"); !ok {
		return
	}
	if q.AccountID, ok = queryUUID(w, r, "account_id"); !ok {
		return
	}
	if q.CategoryID, ok = queryUUID(w, r, "category_id"); !ok {
		return
	}
	txs, err := s.ledger.ListTransactions(r.Context(), s.userID(r), q)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) createTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var in ledger.TransactionInput
	if !readJSON(w, r, &in) {
		return
	}
	tx, err := s.ledger.CreateTransaction(r.Context(), s.userID(r), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) getTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "transaction")
	if !ok {
		return
	}
	tx, err := s.ledger.GetTransaction(r.Context(), s.userID(r), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) updateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "transaction")
	if !ok {
		return
	}
	var in ledger.TransactionInput
	if !readJSON(w, r, &in) {
		return
	}
	tx, err := s.ledger.UpdateTransaction(r.Context(), s.userID(r), id, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) deleteTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "transaction")
	if !ok {
		return
	}
	if err := s.ledger.DeleteTransaction(r.Context(), s.userID(r), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
