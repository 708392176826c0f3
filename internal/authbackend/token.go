package authbackend

import (
	"errors"
	"time"

	"github.com/Goofygiraffe06/ingress/internal/config"
	"github.com/Goofygiraffe06/ingress/internal/logging"
	"github.com/Goofygiraffe06/ingress/internal/utils"
	"github.com/golang-jwt/jwt/v5"
)

// GenerateCredentialToken adapts GenerateMagicToken: instead of a
// one-time registration link, it mints the Ed25519 JWT a client
// presents as the SASL PLAIN/LOGIN secret. Karma/karma-status/born-date
// ride along as claims so VerifyMailFrom and the orchestrator can carry
// them into the Envelope without a second lookup.
func GenerateCredentialToken(user string, karma int, karmaStatus string, bornDate time.Time) (string, error) {
	userHash := utils.HashUsername(user)

	k := getSigningKey()
	if k == nil || k.PrivateKey == nil {
		logging.ErrorLog("authbackend: credential token generation failed [%s]: Ed25519 key not initialized", userHash)
		return "", errors.New("authbackend: Ed25519 key not initialized")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":          user,
		"iss":          config.CredentialTokenIssuer(),
		"exp":          now.Add(config.CredentialTokenExpiresIn()).Unix(),
		"iat":          now.Unix(),
		"karma":        karma,
		"karma_status": karmaStatus,
		"born_date":    bornDate.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	tokenStr, err := token.SignedString(k.PrivateKey)
	if err != nil {
		logging.ErrorLog("authbackend: credential token signing failed [%s]: %v", userHash, err)
		return "", err
	}

	logging.DebugLog("authbackend: credential token generated [%s]", userHash)
	return tokenStr, nil
}

// parseCredentialToken adapts VerifyMagicToken: verifies the EdDSA
// signature and expiry, then lifts the karma/karma-status/born-date
// claims into an Identity.
func parseCredentialToken(tokenStr string) (*Identity, error) {
	k := getSigningKey()
	if k == nil || k.PublicKey == nil {
		logging.ErrorLog("authbackend: credential token verification failed: Ed25519 key not initialized")
		return nil, errors.New("authbackend: Ed25519 key not initialized")
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			logging.DebugLog("authbackend: token verification failed: unexpected signing method %T", token.Method)
			return nil, errors.New("authbackend: unexpected signing method")
		}
		return k.PublicKey, nil
	})
	if err != nil {
		logging.DebugLog("authbackend: token verification failed: %v", err)
		return nil, ErrDenied
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrDenied
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrDenied
	}

	id := &Identity{User: sub}
	if karma, ok := claims["karma"].(float64); ok {
		id.Karma = int(karma)
	}
	if status, ok := claims["karma_status"].(string); ok {
		id.KarmaStatus = status
	}
	if born, ok := claims["born_date"].(float64); ok {
		id.BornDate = time.Unix(int64(born), 0)
	}

	logging.DebugLog("authbackend: token verified [%s]", utils.HashUsername(sub))
	return id, nil
}
