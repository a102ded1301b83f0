package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// maxChainDepth bounds the unwrap walk for log output.
const maxChainDepth = 16

// ledgerConstraints maps schema constraints to a short label for logs, so an
// operator sees "idempotency_replay" instead of an index name.
var ledgerConstraints = map[string]string{
	"ux_ledger_entries_user_idempotency": "idempotency_replay",
	"ledger_entries_amount_check":        "zero_amount_entry",
	"ux_profiles_username":               "username_taken",
	"profiles_pkey":                      "profile_exists",
	"ux_outbox_dlq_event":                "event_already_parked",
	"transactions_currency_check":        "unsupported_currency",
	"campaigns_goal_op_check":            "negative_campaign_goal",
}

// pgRaiseException is the SQLSTATE of a plain RAISE EXCEPTION. The only one
// the schema raises is the ledger_entries append-only trigger.
const pgRaiseException = "P0001"

// ErrorDump flattens an error for structured logging.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`

	// LedgerHint labels the schema rule a database error tripped, if known.
	LedgerHint string `json:"ledger_hint,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e, depth := err, 0; e != nil && depth < maxChainDepth; e, depth = errors.Unwrap(e), depth+1 {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGColumn = pgxErr.ColumnName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
	case errors.As(err, &pqErr):
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGColumn = pqErr.Column
		d.PGDetail = pqErr.Detail
		d.PGMessage = pqErr.Message
	default:
		return d
	}

	d.LedgerHint = ledgerHint(d.PGCode, d.PGConstraint)
	return d
}

func ledgerHint(code, constraint string) string {
	if hint, ok := ledgerConstraints[constraint]; ok {
		return hint
	}
	if code == pgRaiseException {
		return "ledger_mutation_rejected"
	}
	return ""
}
