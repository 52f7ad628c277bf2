package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/markstack/tokens/store"
)

const (
	auditEventIssueSuccess        = "issue_success"
	auditEventIssueFailure        = "issue_failure"
	auditEventRefreshSuccess      = "refresh_success"
	auditEventRefreshInvalid      = "refresh_invalid"
	auditEventRefreshReuseBlocked = "refresh_reuse_blocked"
	auditEventRevokeToken         = "revoke_refresh_token"
	auditEventRevokeAll           = "revoke_all_for_subject"
	auditEventSweep               = "sweep_expired"
)

// AuditErrorCode defines a public type used by the token service APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrRefreshInvalid      AuditErrorCode = "invalid_refresh_token"
	auditErrRefreshDisabled     AuditErrorCode = "refresh_disabled"
	auditErrStoreUnavailable    AuditErrorCode = "store_unavailable"
	auditErrIdentityUnavailable AuditErrorCode = "identity_unavailable"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRefreshInvalid):
		return auditErrRefreshInvalid
	case errors.Is(err, ErrRefreshDisabled):
		return auditErrRefreshDisabled
	case errors.Is(err, store.ErrUnavailable):
		return auditErrStoreUnavailable
	case errors.Is(err, ErrIdentityUnavailable):
		return auditErrIdentityUnavailable
	default:
		return auditErrInternal
	}
}

func (s *TokenService) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subjectID string,
	tenantID string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if s == nil || s.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		SubjectID: subjectID,
		TenantID:  tenantID,
		TokenID:   tokenID,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	s.audit.Emit(ctx, event)
}
