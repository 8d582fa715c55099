package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/planora/booking-service/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(utils.GetJWTSecret())
	require.NoError(t, err)
	return signed
}

func protectedRouter(extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{AuthMiddleware()}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		id, err := UserIDFromContext(c)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": id.String(), "role": RoleFromContext(c)})
	})
	r.GET("/protected", handlers...)
	return r
}

func get(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	userID := uuid.New()

	t.Run("RejectsMissingHeader", func(t *testing.T) {
		w := get(protectedRouter(), "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "NO_TOKEN")
	})

	t.Run("RejectsNonBearerHeader", func(t *testing.T) {
		w := get(protectedRouter(), "Basic dXNlcjpwYXNz")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_AUTH_FORMAT")
	})

	t.Run("RejectsGarbageToken", func(t *testing.T) {
		w := get(protectedRouter(), "Bearer not.a.token")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("RejectsExpiredToken", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{
			"sub": userID.String(),
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		w := get(protectedRouter(), "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("RejectsNonUUIDSubject", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{
			"sub": "user-42",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		w := get(protectedRouter(), "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("AcceptsValidTokenAndSetsIdentity", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{
			"sub":  userID.String(),
			"role": RoleVendor,
			"exp":  time.Now().Add(time.Hour).Unix(),
		})
		w := get(protectedRouter(), "Bearer "+token)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), userID.String())
		assert.Contains(t, w.Body.String(), RoleVendor)
	})

	t.Run("DefaultsRoleToCustomer", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{
			"sub": userID.String(),
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		w := get(protectedRouter(), "Bearer "+token)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), RoleCustomer)
	})
}

func TestRequireRoles(t *testing.T) {
	userID := uuid.New()

	tokenWithRole := func(role string) string {
		return signToken(t, jwt.MapClaims{
			"sub":  userID.String(),
			"role": role,
			"exp":  time.Now().Add(time.Hour).Unix(),
		})
	}

	t.Run("AllowsListedRole", func(t *testing.T) {
		r := protectedRouter(RequireRoles(RoleAdmin))
		w := get(r, "Bearer "+tokenWithRole(RoleAdmin))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("RejectsUnlistedRole", func(t *testing.T) {
		r := protectedRouter(RequireRoles(RoleAdmin))
		w := get(r, "Bearer "+tokenWithRole(RoleCustomer))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "ACCESS_DENIED")
	})

	t.Run("AllowsAnyOfSeveral", func(t *testing.T) {
		r := protectedRouter(RequireRoles(RoleVendor, RoleAdmin))
		w := get(r, "Bearer "+tokenWithRole(RoleVendor))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
