package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ---------------------------------------------------------------------------
// Notifications
// ---------------------------------------------------------------------------

// Audience tags which recipient group a notification targets.
// Delivery itself is external; the workflow only decides whether and to whom.
type Audience string

const (
	// AudienceCSR is the standard customer-service audience
	AudienceCSR Audience = "CSR"
	// AudienceAdmin is the elevated administrative audience
	AudienceAdmin Audience = "ADMIN"
)

// Notification is a structured alert event produced by the workflow
type Notification struct {
	Audience Audience
	Subject  string
	Body     string
	OrderNum int
	Step     Step
}

// Notifier hands notifications to an external delivery mechanism
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// ---------------------------------------------------------------------------
// Failure Signatures
// ---------------------------------------------------------------------------

// FailureCondition describes an alert-worthy condition for dedup purposes.
// Only classifying fields participate; volatile fields like timestamps do not.
type FailureCondition struct {
	Step          Step
	Message       string
	Entity        string
	UpstreamCode  int
	UpstreamError string
}

// Signature computes a stable hash over the condition's classifying fields.
// Used purely to suppress duplicate alerts, never for control flow.
func (c FailureCondition) Signature() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d\x00%s", c.Step, c.Message, c.Entity, c.UpstreamCode, c.UpstreamError)
	return hex.EncodeToString(h.Sum(nil))
}
