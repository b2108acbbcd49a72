package utils

import (
	"math/rand"
)

const referralCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateReferralCode generates a short invite code for a new user.
// Uniqueness is enforced by the users table index; callers retry on conflict.
func GenerateReferralCode() string {
	result := make([]byte, 8)
	for i := range result {
		result[i] = referralCodeCharset[rand.Intn(len(referralCodeCharset))]
	}
	return string(result)
}
