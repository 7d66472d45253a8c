package escrow

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/GurakG/Enclave-PSSC/core/config"
)

type CreateAdminKeyOption struct {
	Subject   string
	ExpiredAt int64
}

// CreateAdminKey mints a long-lived JWT for the ops HTTP surface, signed with
// the service's configured secret. The token is printed to stdout.
func CreateAdminKey(configPath string, opt CreateAdminKeyOption) error {
	c, err := config.NewConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if len(c.JwtSecret) == 0 {
		return fmt.Errorf("no jwt_secret configured in %s", configPath)
	}

	if opt.Subject == "" {
		opt.Subject = "admin"
	}
	if opt.ExpiredAt == 0 {
		opt.ExpiredAt = time.Now().AddDate(0, 6, 0).Unix()
	}

	claims := &jwt.RegisteredClaims{
		Subject:   opt.Subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Unix(opt.ExpiredAt, 0)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.JwtSecret)
	if err != nil {
		return fmt.Errorf("cannot sign admin key: %w", err)
	}

	fmt.Println(signed)
	return nil
}
