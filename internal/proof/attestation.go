package proof

import "strings"

// attestationPrefix is the marker a recognized attestation token carries.
// Stand-in for a real device-attestation verifier.
const attestationPrefix = "mock_attestation_"

// ValidAttestation reports whether the attestation token matches the
// recognized pattern.
func ValidAttestation(token string) bool {
	return token != "" && strings.HasPrefix(token, attestationPrefix)
}
