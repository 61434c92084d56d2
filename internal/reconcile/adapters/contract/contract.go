// Package contract holds reusable checks every issuer adapter must pass.
package contract

import (
	"context"
	"strings"
	"testing"

	credential "credsync/internal/credential/models"
	"credsync/internal/reconcile/adapters"
)

// ContractTest fetches a record and verifies the returned payload.
type ContractTest struct {
	Name         string
	Adapter      adapters.Adapter
	RecordID     credential.RecordID
	ExpectVerify bool
	ValidateFunc func(payload adapters.Payload) error
}

// ContractSuite is a collection of contract tests for one issuer
type ContractSuite struct {
	Issuer string
	Tests  []ContractTest
}

// Run executes all contract tests in the suite
func (s *ContractSuite) Run(t *testing.T) {
	for _, test := range s.Tests {
		t.Run(test.Name, func(t *testing.T) {
			ctx := context.Background()

			if !strings.EqualFold(test.Adapter.Issuer(), s.Issuer) {
				t.Errorf("expected issuer %s, got %s", s.Issuer, test.Adapter.Issuer())
			}

			payload, err := test.Adapter.FetchAuthoritativeData(ctx, test.RecordID)
			if err != nil {
				t.Fatalf("fetch failed: %v", err)
			}
			if len(payload) == 0 {
				t.Fatal("fetch returned an empty payload")
			}

			result, err := test.Adapter.Verify(ctx, payload)
			if err != nil {
				t.Fatalf("verify failed: %v", err)
			}
			if result.Success != test.ExpectVerify {
				t.Errorf("expected verify success=%v, got %v (%s)", test.ExpectVerify, result.Success, result.Message)
			}

			if test.ValidateFunc != nil {
				if err := test.ValidateFunc(payload); err != nil {
					t.Errorf("custom validation failed: %v", err)
				}
			}
		})
	}
}

// ErrorContractTest validates that adapter errors follow the taxonomy
type ErrorContractTest struct {
	Name          string
	Adapter       adapters.Adapter
	RecordID      credential.RecordID
	ExpectedError adapters.ErrorCategory
	ExpectedRetry bool
}

// Run executes an error contract test
func (ect *ErrorContractTest) Run(t *testing.T) {
	t.Run(ect.Name, func(t *testing.T) {
		_, err := ect.Adapter.FetchAuthoritativeData(context.Background(), ect.RecordID)
		if err == nil {
			t.Fatal("expected error but got none")
		}

		category := adapters.GetCategory(err)
		if category != ect.ExpectedError {
			t.Errorf("expected error category %s, got %s", ect.ExpectedError, category)
		}

		isRetryable := adapters.IsRetryable(err)
		if isRetryable != ect.ExpectedRetry {
			t.Errorf("expected retryable=%v, got %v", ect.ExpectedRetry, isRetryable)
		}
	})
}
