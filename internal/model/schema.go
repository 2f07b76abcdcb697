package model

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed transaction.schema.json
var transactionSchemaJSON string

const transactionSchemaURL = "fraud-check.schema.json"

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

func transactionSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(transactionSchemaURL, strings.NewReader(transactionSchemaJSON)); err != nil {
			schemaErr = eris.Wrap(err, "model: add transaction schema")
			return
		}
		schemaCompiled, schemaErr = compiler.Compile(transactionSchemaURL)
		if schemaErr != nil {
			schemaErr = eris.Wrap(schemaErr, "model: compile transaction schema")
		}
	})
	return schemaCompiled, schemaErr
}

// FraudCheckRequest is the boundary request: one transaction plus an
// optional caller-supplied weight vector.
type FraudCheckRequest struct {
	Transaction
	Weights []float64 `json:"weights,omitempty"`
}

// SchemaError reports a request body that does not satisfy the transaction
// schema.
type SchemaError struct {
	Details []string
}

func (e *SchemaError) Error() string {
	if len(e.Details) == 0 {
		return "model: invalid request"
	}
	return "model: invalid request: " + strings.Join(e.Details, "; ")
}

// DecodeFraudCheck validates raw against the transaction schema and decodes
// it. Validation failures are returned as *SchemaError.
func DecodeFraudCheck(raw []byte) (*FraudCheckRequest, error) {
	if err := ValidateTransactionJSON(raw); err != nil {
		return nil, err
	}
	var req FraudCheckRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, &SchemaError{Details: []string{err.Error()}}
	}
	return &req, nil
}

// ValidateTransactionJSON checks raw against the transaction schema.
func ValidateTransactionJSON(raw []byte) error {
	sch, err := transactionSchema()
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &SchemaError{Details: []string{"body is not valid JSON: " + err.Error()}}
	}

	if err := sch.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return eris.Wrap(err, "model: validate transaction")
		}
		return &SchemaError{Details: schemaDetails(ve)}
	}
	return nil
}

func schemaDetails(ve *jsonschema.ValidationError) []string {
	var details []string
	for _, be := range ve.BasicOutput().Errors {
		if be.Error == "" || strings.HasPrefix(be.Error, "doesn't validate with") {
			continue
		}
		loc := be.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		details = append(details, fmt.Sprintf("%s: %s", loc, be.Error))
	}
	if len(details) == 0 {
		details = append(details, ve.Error())
	}
	return details
}
