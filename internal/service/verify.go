package service

import (
	"context"
	"fmt"

	apperrors "github.com/yourusername/idlink-api/internal/pkg/errors"
)

// payloadStateApproved is the provider-asserted approval marker.
const payloadStateApproved = "Approved"

// ApprovalVerifier is the shipped PayloadVerifier. It checks the
// provider-asserted approval marker and otherwise trusts the payload only
// when the operator enabled the allow-all switch. It performs no
// cryptographic verification of the assertion; deployments that need that
// replace this implementation.
type ApprovalVerifier struct {
	allowAll bool
}

func NewApprovalVerifier(allowAll bool) *ApprovalVerifier {
	return &ApprovalVerifier{allowAll: allowAll}
}

func (v *ApprovalVerifier) Verify(_ context.Context, payload *LinkPayload) error {
	if payload == nil {
		return fmt.Errorf("%w: missing payload", apperrors.ErrValidation)
	}
	if payload.State != payloadStateApproved {
		return fmt.Errorf("%w: payload state not approved", apperrors.ErrValidation)
	}
	if !v.allowAll {
		return fmt.Errorf("%w: payload verification not implemented", apperrors.ErrValidation)
	}
	return nil
}
