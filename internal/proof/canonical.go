package proof

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"

	"proxpay/internal/domain"
)

// canonicalPayload serializes the signed fields of a proof with
// lexicographically sorted keys. encoding/json sorts map keys, which gives
// the stable byte representation both sides hash.
func canonicalPayload(p *domain.LocationProof) ([]byte, error) {
	if p.Location == nil {
		return nil, errors.New("location is required")
	}
	return json.Marshal(map[string]interface{}{
		"attestation":       p.Attestation,
		"card_token":        p.CardToken,
		"location":          map[string]float64{"lat": p.Location.Lat, "lon": p.Location.Lon},
		"timestamp":         p.Timestamp,
		"transaction_id":    p.TransactionID,
		"transaction_nonce": p.TransactionNonce,
	})
}

// Sign computes the keyed-hash signature the mobile client produces:
// SHA-256 of the canonical payload, base64-encoded, concatenated with the
// shared secret, hashed again and hex-encoded. The field names suggest an
// asymmetric scheme; the algorithm is deliberately this symmetric
// comparison and must not be silently upgraded.
func Sign(p *domain.LocationProof, sharedSecret string) (string, error) {
	canonical, err := canonicalPayload(p)
	if err != nil {
		return "", err
	}

	digest := sha256.Sum256(canonical)
	digestB64 := base64.StdEncoding.EncodeToString(digest[:])

	outer := sha256.Sum256([]byte(digestB64 + sharedSecret))
	return hex.EncodeToString(outer[:]), nil
}
