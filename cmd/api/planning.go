package main

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (s *Server) listBudgetsHandler(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.ledger.ListBudgets(r.Context(), s.userID(r), r.URL.Query().Get("month"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, budgets)
}

func (s *Server) setBudgetHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CategoryID uuid.UUID       `json:"category_id"`
		Month      string          `json:"month"`
		Limit      decimal.Decimal `json:"limit"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	budget, err := s.ledger.SetBudget(r.Context(), s.userID(r), req.CategoryID, req.Month, req.Limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, budget)
}

func (s *Server) deleteBudgetHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "budget")
	if !ok {
		return
	}
	if err := s.ledger.DeleteBudget(r.Context(), s.userID(r), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createGoalHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string          `json:"name"`
		Target   decimal.Decimal `json:"target"`
		Deadline *string         `json:"deadline"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	goal, err := s.ledger.CreateGoal(r.Context(), s.userID(r), req.Name, req.Target, req.Deadline)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, goal)
}

func (s *Server) listGoalsHandler(w http.ResponseWriter, r *http.Request) {
	goals, err := s.ledger.ListGoals(r.Context(), s.userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

func (s *Server) contributeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "goal")
	if !ok {
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	goal, err := s.ledger.Contribute(r.Context(), s.userID(r), id, req.Amount)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

func (s *Server) deleteGoalHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "goal")
	if !ok {
		return
	}
	if err := s.ledger.DeleteGoal(r.Context(), s.userID(r), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
