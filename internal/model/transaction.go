// Package model defines the core data types for the fraud scoring ensemble.
package model

import (
	"github.com/rotisserie/eris"
)

// PayloadKind names the projection of a Transaction that an agent accepts.
type PayloadKind string

// Payload kinds understood by Transaction.Project.
const (
	PayloadContext PayloadKind = "context"
	PayloadHistory PayloadKind = "history"
	PayloadPattern PayloadKind = "pattern"
)

// Valid reports whether k is a known payload kind.
func (k PayloadKind) Valid() bool {
	switch k {
	case PayloadContext, PayloadHistory, PayloadPattern:
		return true
	default:
		return false
	}
}

// Transaction is the single input to a fraud check. It is the union of the
// fields every agent needs and is never mutated after decoding.
type Transaction struct {
	// Context analyzer fields.
	Step           int     `json:"step"`
	Type           string  `json:"type"`
	Amount         float64 `json:"amount"`
	NameOrig       string  `json:"nameOrig"`
	OldBalanceOrg  float64 `json:"oldbalanceOrg"`
	NewBalanceOrig float64 `json:"newbalanceOrig"`
	NameDest       string  `json:"nameDest"`
	OldBalanceDest float64 `json:"oldbalanceDest"`
	NewBalanceDest float64 `json:"newbalanceDest"`
	IsFraud        int     `json:"isFraud"`
	IsFlaggedFraud int     `json:"isFlaggedFraud"`

	// Transaction history profiler fields.
	EventTimestamp   string  `json:"event_timestamp"`
	EventID          string  `json:"event_id"`
	EntityType       string  `json:"entity_type"`
	EntityID         string  `json:"entity_id"`
	CardBIN          int     `json:"card_bin"`
	CustomerName     string  `json:"customer_name"`
	BillingCity      string  `json:"billing_city"`
	BillingState     string  `json:"billing_state"`
	BillingZip       string  `json:"billing_zip"`
	BillingLatitude  float64 `json:"billing_latitude"`
	BillingLongitude float64 `json:"billing_longitude"`
	IPAddress        string  `json:"ip_address"`
	ProductCategory  string  `json:"product_category"`
	OrderPrice       float64 `json:"order_price"`
	Merchant         string  `json:"merchant"`
	IsFraudLabel     string  `json:"is_fraud"`

	// Fraud pattern matcher fields (ip_address, merchant and
	// product_category are shared with the history profiler).
	UserAgent string `json:"user_agent"`
	Metadata  string `json:"metadata"`
}

// ContextPayload is the request body for the context analyzer agent.
type ContextPayload struct {
	Step           int     `json:"step"`
	Type           string  `json:"type"`
	Amount         float64 `json:"amount"`
	NameOrig       string  `json:"nameOrig"`
	OldBalanceOrg  float64 `json:"oldbalanceOrg"`
	NewBalanceOrig float64 `json:"newbalanceOrig"`
	NameDest       string  `json:"nameDest"`
	OldBalanceDest float64 `json:"oldbalanceDest"`
	NewBalanceDest float64 `json:"newbalanceDest"`
	IsFraud        int     `json:"isFraud"`
	IsFlaggedFraud int     `json:"isFlaggedFraud"`
}

// HistoryPayload is the request body for the transaction history profiler.
type HistoryPayload struct {
	EventTimestamp   string  `json:"event_timestamp"`
	EventID          string  `json:"event_id"`
	EntityType       string  `json:"entity_type"`
	EntityID         string  `json:"entity_id"`
	CardBIN          int     `json:"card_bin"`
	CustomerName     string  `json:"customer_name"`
	BillingCity      string  `json:"billing_city"`
	BillingState     string  `json:"billing_state"`
	BillingZip       string  `json:"billing_zip"`
	BillingLatitude  float64 `json:"billing_latitude"`
	BillingLongitude float64 `json:"billing_longitude"`
	IPAddress        string  `json:"ip_address"`
	ProductCategory  string  `json:"product_category"`
	OrderPrice       float64 `json:"order_price"`
	Merchant         string  `json:"merchant"`
	IsFraud          string  `json:"is_fraud"`
}

// PatternPayload is the request body for the fraud pattern matcher.
type PatternPayload struct {
	IPAddress       string `json:"ip_address"`
	UserAgent       string `json:"user_agent"`
	Merchant        string `json:"merchant"`
	ProductCategory string `json:"product_category"`
	Metadata        string `json:"metadata"`
}

// Project returns the payload for the given kind. Only the fields of the
// target payload type are carried over.
func (t Transaction) Project(kind PayloadKind) (any, error) {
	switch kind {
	case PayloadContext:
		return ContextPayload{
			Step:           t.Step,
			Type:           t.Type,
			Amount:         t.Amount,
			NameOrig:       t.NameOrig,
			OldBalanceOrg:  t.OldBalanceOrg,
			NewBalanceOrig: t.NewBalanceOrig,
			NameDest:       t.NameDest,
			OldBalanceDest: t.OldBalanceDest,
			NewBalanceDest: t.NewBalanceDest,
			IsFraud:        t.IsFraud,
			IsFlaggedFraud: t.IsFlaggedFraud,
		}, nil
	case PayloadHistory:
		return HistoryPayload{
			EventTimestamp:   t.EventTimestamp,
			EventID:          t.EventID,
			EntityType:       t.EntityType,
			EntityID:         t.EntityID,
			CardBIN:          t.CardBIN,
			CustomerName:     t.CustomerName,
			BillingCity:      t.BillingCity,
			BillingState:     t.BillingState,
			BillingZip:       t.BillingZip,
			BillingLatitude:  t.BillingLatitude,
			BillingLongitude: t.BillingLongitude,
			IPAddress:        t.IPAddress,
			ProductCategory:  t.ProductCategory,
			OrderPrice:       t.OrderPrice,
			Merchant:         t.Merchant,
			IsFraud:          t.IsFraudLabel,
		}, nil
	case PayloadPattern:
		return PatternPayload{
			IPAddress:       t.IPAddress,
			UserAgent:       t.UserAgent,
			Merchant:        t.Merchant,
			ProductCategory: t.ProductCategory,
			Metadata:        t.Metadata,
		}, nil
	default:
		return nil, eris.Errorf("model: unknown payload kind %q", kind)
	}
}
