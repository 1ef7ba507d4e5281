package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 44-character base64 string, as produced by `openssl rand -base64 32`
const testSecret = "wJ6Qk8Qn1v9Qw1Zb2l8Qk9J3p6Qk8Qn1v9Qw1Zb2l8Qk="

func TestGenerateAccessToken(t *testing.T) {
	svc := NewJWTService(testSecret)

	tests := []struct {
		name    string
		userID  string
		role    string
		wantErr bool
	}{
		{
			name:    "valid access token",
			userID:  "user-123",
			role:    RoleAdmin,
			wantErr: false,
		},
		{
			name:    "empty userID",
			userID:  "",
			role:    RoleAdmin,
			wantErr: true,
		},
		{
			name:    "empty role",
			userID:  "user-123",
			role:    "",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := svc.GenerateAccessToken(tt.userID, tt.role)
			if (err != nil) != tt.wantErr {
				t.Errorf("GenerateAccessToken() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && token == "" {
				t.Error("GenerateAccessToken() returned empty token")
			}
		})
	}
}

func TestGenerateRefreshToken(t *testing.T) {
	svc := NewJWTService(testSecret)

	tests := []struct {
		name    string
		userID  string
		wantErr bool
	}{
		{
			name:    "valid refresh token",
			userID:  "user-123",
			wantErr: false,
		},
		{
			name:    "empty userID",
			userID:  "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := svc.GenerateRefreshToken(tt.userID)
			if (err != nil) != tt.wantErr {
				t.Errorf("GenerateRefreshToken() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && token == "" {
				t.Error("GenerateRefreshToken() returned empty token")
			}
		})
	}
}

func TestValidateAccessToken(t *testing.T) {
	svc := NewJWTService(testSecret)

	validToken, err := svc.GenerateAccessToken("user-123", RoleAdmin)
	if err != nil {
		t.Fatalf("Failed to generate access token: %v", err)
	}

	tests := []struct {
		name       string
		token      string
		wantUserID string
		wantRole   string
		wantType   string
		wantErr    error
	}{
		{
			name:       "valid access token",
			token:      validToken,
			wantUserID: "user-123",
			wantRole:   RoleAdmin,
			wantType:   TokenTypeAccess,
			wantErr:    nil,
		},
		{
			name:    "invalid token format",
			token:   "not-a-valid-token",
			wantErr: ErrInvalidToken,
		},
		{
			name:    "empty token",
			token:   "",
			wantErr: ErrInvalidToken,
		},
		{
			name:    "tampered token",
			token:   validToken[:len(validToken)-4] + "XXXX",
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := svc.ValidateToken(tt.token)
			if err != tt.wantErr {
				t.Errorf("ValidateToken() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr != nil {
				return
			}
			if claims.Subject != tt.wantUserID {
				t.Errorf("Subject = %s, want %s", claims.Subject, tt.wantUserID)
			}
			if claims.Role != tt.wantRole {
				t.Errorf("Role = %s, want %s", claims.Role, tt.wantRole)
			}
			if claims.Type != tt.wantType {
				t.Errorf("Type = %s, want %s", claims.Type, tt.wantType)
			}
		})
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	svc := NewJWTService(testSecret)
	other := NewJWTService("a-completely-different-secret-value!")

	token, err := svc.GenerateAccessToken("user-123", RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := other.ValidateToken(token); err != ErrInvalidToken {
		t.Errorf("ValidateToken() with wrong secret error = %v, want ErrInvalidToken", err)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	// Zero leeway so an already-expired token is rejected immediately.
	svc := NewJWTServiceWithLeeway(testSecret, 0)

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-30 * time.Minute)),
		},
		Role: RoleAdmin,
		Type: TokenTypeAccess,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ValidateToken(signed); err != ErrExpiredToken {
		t.Errorf("ValidateToken() error = %v, want ErrExpiredToken", err)
	}
}

func TestValidateToken_ExpiredWithinLeeway(t *testing.T) {
	svc := NewJWTServiceWithLeeway(testSecret, time.Minute)

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-10 * time.Second)),
		},
		Type: TokenTypeAccess,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ValidateToken(signed); err != nil {
		t.Errorf("ValidateToken() within leeway error = %v, want nil", err)
	}
}

func TestValidateToken_RejectsNonHS256(t *testing.T) {
	svc := NewJWTService(testSecret)

	// alg=none tokens must never validate.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-123"},
		Type:             TokenTypeAccess,
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ValidateToken(signed); err != ErrInvalidToken {
		t.Errorf("ValidateToken() alg=none error = %v, want ErrInvalidToken", err)
	}
}

func TestClaims_IsAdmin(t *testing.T) {
	if !(&Claims{Role: RoleAdmin}).IsAdmin() {
		t.Error("IsAdmin() = false for admin role")
	}
	if (&Claims{Role: "viewer"}).IsAdmin() {
		t.Error("IsAdmin() = true for viewer role")
	}
	if (&Claims{}).IsAdmin() {
		t.Error("IsAdmin() = true for empty role")
	}
}

func TestTokenStructure(t *testing.T) {
	svc := NewJWTService(testSecret)

	token, err := svc.GenerateAccessToken("user-123", RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("token has %d segments, want 3", len(parts))
	}
}
