package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/fraud-ensemble/internal/ensemble"
	"github.com/sells-group/fraud-ensemble/internal/model"
	"github.com/sells-group/fraud-ensemble/internal/orchestrator"
	"github.com/sells-group/fraud-ensemble/internal/store"
)

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Fraud Detection Orchestrator is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "orchestrator active"})
}

func (s *Server) handleAggregatorStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Aggregator works"})
}

type agentFailureResponse struct {
	Error        string               `json:"error"`
	Stage        string               `json:"stage"`
	RequestID    string               `json:"request_id"`
	FailedAgents []model.AgentFailure `json:"failed_agents"`
	Diagnostics  diagnostics          `json:"diagnostics"`
}

type diagnostics struct {
	AgentScores map[string]float64 `json:"agent_scores"`
}

func (s *Server) handleFraudCheck(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r, s.bodyLimit)
	if !ok {
		return
	}

	req, err := model.DecodeFraudCheck(raw)
	if err != nil {
		var se *model.SchemaError
		if errors.As(err, &se) {
			writeError(w, http.StatusBadRequest, "invalid request", se.Details...)
			return
		}
		writeInternalError(w, err)
		return
	}

	res, err := s.scorer.Handle(r.Context(), req.Transaction, orchestrator.WithWeights(req.Weights))
	if err != nil {
		writeScoringError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeScoringError(w http.ResponseWriter, err error) {
	var (
		ve  *ensemble.ValidationError
		afe *orchestrator.AgentFailureError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
			Error:  "validation_failed",
			Stage:  ve.Stage,
			Detail: ve.Error(),
		})
	case errors.As(err, &afe):
		writeJSON(w, http.StatusBadGateway, agentFailureResponse{
			Error:        "agent_failure",
			Stage:        "fanout",
			RequestID:    afe.RequestID,
			FailedAgents: afe.Failures,
			Diagnostics:  diagnostics{AgentScores: afe.Diagnostics},
		})
	default:
		writeInternalError(w, err)
	}
}

type aggregateRequest struct {
	Scores  []float64 `json:"scores"`
	Weights []float64 `json:"weights,omitempty"`
	Agents  []string  `json:"agents,omitempty"`
}

type aggregateInputs struct {
	Scores  []float64          `json:"scores"`
	Weights model.WeightVector `json:"weights"`
}

type aggregateResponse struct {
	Aggregator  string                   `json:"aggregator"`
	Inputs      aggregateInputs          `json:"inputs"`
	FinalScore  float64                  `json:"final_score"`
	Explanation *model.AggregationResult `json:"explanation"`
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r, s.bodyLimit)
	if !ok {
		return
	}
	req, err := decodeAggregate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	res, err := aggregate(req, s.defaultWeights)
	if err != nil {
		writeScoringError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// aggregate runs the stand-alone weighted ensemble over req.
func aggregate(req aggregateRequest, defaults []float64) (*aggregateResponse, error) {
	ids := req.Agents
	if len(ids) == 0 {
		ids = make([]string, len(req.Scores))
		for i := range ids {
			ids[i] = fmt.Sprintf("agent%d", i+1)
		}
	}

	weights, err := ensemble.Normalize(req.Weights, len(req.Scores), defaults)
	if err != nil {
		return nil, err
	}
	scores := make([]model.AgentScore, len(req.Scores))
	for i, v := range req.Scores {
		scores[i] = model.AgentScore{AgentID: ids[i], Score: v}
	}
	agg, err := ensemble.Aggregate(scores, weights)
	if err != nil {
		return nil, err
	}

	return &aggregateResponse{
		Aggregator:  fmt.Sprintf("Weighted Ensemble (%d Agents)", len(scores)),
		Inputs:      aggregateInputs{Scores: req.Scores, Weights: weights},
		FinalScore:  agg.FinalScore,
		Explanation: agg,
	}, nil
}

func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.DecisionFilter{
		Status:  store.DecisionStatus(q.Get("status")),
		EventID: q.Get("event_id"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	decisions, err := s.decisions.ListDecisions(r.Context(), filter)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if decisions == nil {
		decisions = []store.Decision{}
	}
	writeJSON(w, http.StatusOK, decisions)
}

func (s *Server) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := s.decisions.GetDecision(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "decision not found")
		return
	}
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
