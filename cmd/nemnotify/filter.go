package main

import (
	"encoding/json"
	"fmt"

	"github.com/brojonat/nemnotify/client"
	"github.com/itchyny/gojq"
)

// compileFilters parses and compiles jq expressions.
func compileFilters(exprs []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, 0, len(exprs))
	for _, expr := range exprs {
		query, err := gojq.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
		}
		code, err := gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// matchesAll reports whether every filter yields a truthy first result for v.
func matchesAll(codes []*gojq.Code, v interface{}) (bool, error) {
	for _, code := range codes {
		iter := code.Run(v)
		result, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := result.(error); isErr {
			return false, err
		}
		if !isTruthy(result) {
			return false, nil
		}
	}
	return true, nil
}

// filterTransactions keeps the transactions that satisfy every filter.
// Transactions are converted to their JSON shape first, so filters see the
// same field names as --json output.
func filterTransactions(txns []client.Transaction, codes []*gojq.Code) ([]client.Transaction, error) {
	if len(codes) == 0 {
		return txns, nil
	}
	kept := make([]client.Transaction, 0, len(txns))
	for _, txn := range txns {
		v, err := toJQValue(txn)
		if err != nil {
			return nil, err
		}
		ok, err := matchesAll(codes, v)
		if err != nil {
			return nil, fmt.Errorf("jq filter failed on %s: %w", txn.Hash, err)
		}
		if ok {
			kept = append(kept, txn)
		}
	}
	return kept, nil
}

// toJQValue round-trips v through JSON; gojq only accepts plain maps,
// slices and scalars.
func toJQValue(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode for jq: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode for jq: %w", err)
	}
	return out, nil
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}
