package session

import "context"

// MockVerifier accepts any credentials and never records anything. It is the
// default so the tracker works without an account system; it is not a
// security boundary.
type MockVerifier struct{}

var _ CredentialVerifier = MockVerifier{}

func (MockVerifier) Verify(context.Context, string, string) error { return nil }

func (MockVerifier) Register(context.Context, string, string) error { return nil }
