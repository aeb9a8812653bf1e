// Package phoneverify is the external phone-verification collaborator:
// it delivers one-time codes over SMS and checks submitted codes.
package phoneverify

import "context"

// Provider sends a one-time code to a phone number and later checks a
// submitted code against that request.
type Provider interface {
	// SendCode delivers a verification code to the phone number.
	SendCode(ctx context.Context, phoneNumber string) error
	// CheckCode reports whether the submitted code matches the
	// outstanding request for the phone number.
	CheckCode(ctx context.Context, phoneNumber, code string) (bool, error)
}
