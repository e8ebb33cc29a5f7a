package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"crm-backend/internal/apperror"
	"crm-backend/internal/model"
	"crm-backend/pkg/logger"
	"crm-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const principalKey = "principal"

// Claims are the access token fields this service reads. Tokens are issued elsewhere.
type Claims struct {
	CompanyID string   `json:"company_id"`
	Role      string   `json:"role"`
	ClientID  string   `json:"client_id,omitempty"`
	Email     string   `json:"email,omitempty"`
	Perms     []string `json:"perms,omitempty"` // overrides the role defaults when present
	jwt.RegisteredClaims
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID      uuid.UUID
	CompanyID   uuid.UUID
	Role        string
	ClientID    *uuid.UUID
	Email       string
	Permissions model.PermissionSet
}

// Authenticator verifies HS256 bearer tokens signed with a shared secret.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret}
}

// ParseToken validates a raw token and builds the principal it describes.
func (a *Authenticator) ParseToken(tokenString string) (*Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, errors.New("invalid subject claim")
	}
	companyID, err := uuid.Parse(claims.CompanyID)
	if err != nil {
		return nil, errors.New("invalid company_id claim")
	}

	perms, known := model.PermissionsForRole(claims.Role)
	if claims.Perms != nil {
		if perms, err = model.ParsePermissionCodes(claims.Perms); err != nil {
			return nil, err
		}
	} else if !known {
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}

	p := &Principal{
		UserID:      userID,
		CompanyID:   companyID,
		Role:        claims.Role,
		Email:       claims.Email,
		Permissions: perms,
	}
	if claims.ClientID != "" {
		clientID, err := uuid.Parse(claims.ClientID)
		if err != nil {
			return nil, errors.New("invalid client_id claim")
		}
		p.ClientID = &clientID
	}
	return p, nil
}

// RequirePermission authenticates the request and checks that every listed permission
// is granted. The principal is stored on the gin context for handlers.
func (a *Authenticator) RequirePermission(required ...model.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := extractToken(c)
		if err != nil {
			abort(c, apperror.ErrUnauthorized.WithMessage("%s", err.Error()))
			return
		}

		principal, err := a.ParseToken(tokenString)
		if err != nil {
			logger.FromContext(c.Request.Context()).Warn("Rejected access token", zap.Error(err))
			abort(c, apperror.ErrUnauthorized.WithMessage("Invalid token"))
			return
		}

		for _, perm := range required {
			if !principal.Permissions.Has(perm) {
				abort(c, apperror.Forbidden("Access denied: missing permission '%s'", perm))
				return
			}
		}

		c.Set(principalKey, principal)
		c.Set("userID", principal.UserID.String())
		c.Set("userRole", principal.Role)
		c.Next()
	}
}

// GetPrincipal returns the principal stored by RequirePermission.
func GetPrincipal(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok
}

// extractToken reads the access_token cookie first, then the Authorization header.
func extractToken(c *gin.Context) (string, error) {
	if tokenString, err := c.Cookie("access_token"); err == nil && tokenString != "" {
		return tokenString, nil
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization is missing")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("invalid authorization format, expected 'Bearer <token>'")
	}
	return parts[1], nil
}

func abort(c *gin.Context, err *apperror.AppError) {
	status := err.StatusCode
	if status == 0 {
		status = http.StatusUnauthorized
	}
	c.AbortWithStatusJSON(status, response.Error(err.Code, err.Message, err.Details))
}
