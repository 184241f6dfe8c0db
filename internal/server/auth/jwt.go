// Package auth issues and parses the HS256 tokens the server accepts: device
// tokens for the sync API and one-time share tokens for job links.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const (
	AudienceDevice = "device"
	AudienceShare  = "share"
)

// DeviceClaims identify a device and the workspace it syncs.
type DeviceClaims struct {
	jwt.RegisteredClaims
	DeviceID    string `json:"did"`
	WorkspaceID string `json:"wid"`
}

// ShareClaims carry the jti of a stored access token and the job it opens.
type ShareClaims struct {
	jwt.RegisteredClaims
	WorkspaceID string `json:"wid"`
}

func GenerateDeviceToken(deviceID, workspaceID string, secretKey []byte, validity time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, DeviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			Audience:  jwt.ClaimStrings{AudienceDevice},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		DeviceID:    deviceID,
		WorkspaceID: workspaceID,
	})
	return token.SignedString(secretKey)
}

func ParseDeviceToken(tokenString string, secretKey []byte) (*DeviceClaims, error) {
	claims := &DeviceClaims{}
	if err := parse(tokenString, claims, AudienceDevice, secretKey); err != nil {
		return nil, err
	}
	if claims.DeviceID == "" || claims.WorkspaceID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func GenerateShareToken(jti, jobID, workspaceID string, secretKey []byte, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ShareClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   jobID,
			Audience:  jwt.ClaimStrings{AudienceShare},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		WorkspaceID: workspaceID,
	})
	return token.SignedString(secretKey)
}

func ParseShareToken(tokenString string, secretKey []byte) (*ShareClaims, error) {
	claims := &ShareClaims{}
	if err := parse(tokenString, claims, AudienceShare, secretKey); err != nil {
		return nil, err
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func parse(tokenString string, claims jwt.Claims, audience string, secretKey []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	case err != nil:
		return common.ErrInvalidToken
	case !token.Valid:
		return common.ErrInvalidToken
	}
	return nil
}
