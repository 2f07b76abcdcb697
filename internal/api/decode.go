package api

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

func decodeAggregate(raw []byte) (aggregateRequest, error) {
	var req aggregateRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, eris.Wrap(err, "body")
	}
	if len(req.Scores) == 0 {
		return req, eris.New("scores must not be empty")
	}
	for i, v := range req.Scores {
		if v < 0 || v > 1 {
			return req, eris.Errorf("scores[%d]=%g must be within [0,1]", i, v)
		}
	}
	if len(req.Agents) > 0 && len(req.Agents) != len(req.Scores) {
		return req, eris.Errorf("agents has %d entries for %d scores", len(req.Agents), len(req.Scores))
	}
	return req, nil
}
