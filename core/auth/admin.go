package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const JwtAlg = "HS256"

// VerifyAdminKey checks that the bearer token grants access to the admin
// surface of the ops server. The token must be HMAC signed with our secret
// and carry the admin subject.
func VerifyAdminKey(secret []byte, key string) (bool, error) {
	token, err := jwt.Parse(key, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("Unexpected signing method: %v", token.Header["alg"])
		}

		if token.Header["alg"] != JwtAlg {
			return nil, fmt.Errorf("invalid signing algorithm")
		}

		return secret, nil
	})

	if err != nil {
		return false, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false, fmt.Errorf("malform jwt claim")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return false, fmt.Errorf("missing subject claim")
	}

	if sub != "admin" {
		return false, fmt.Errorf("invalid subject")
	}

	return true, nil
}
