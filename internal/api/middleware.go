package api

import (
	"net/http"
	"strings"

	"github.com/annel0/horsestore/internal/auth"
	"github.com/annel0/horsestore/internal/engine"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const claimsKey = "claims"

// jwtMiddleware проверяет JWT токен в заголовке Authorization.
// Без настроенного Authenticator пропускает все запросы.
func (rs *RestServer) jwtMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rs.auth == nil {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Отсутствует токен авторизации",
			})
			return
		}

		// Проверяем формат "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Неверный формат токена",
			})
			return
		}

		claims, err := rs.auth.Validate(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Недействительный токен",
			})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ownerAccessMiddleware пускает к слотам владельца только его самого или администратора.
// Должен идти после ownerParam.
func (rs *RestServer) ownerAccessMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rs.auth == nil {
			c.Next()
			return
		}
		claims := c.MustGet(claimsKey).(*auth.Claims)
		if !claims.CanAccess(ownerFrom(c)) {
			c.AbortWithStatusJSON(http.StatusForbidden, GenericResponse{
				Success: false,
				Message: "Недостаточно прав доступа",
			})
			return
		}
		c.Next()
	}
}

// adminMiddleware проверяет, что пользователь является администратором
func (rs *RestServer) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rs.auth == nil {
			c.Next()
			return
		}
		claims := c.MustGet(claimsKey).(*auth.Claims)
		if !claims.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, GenericResponse{
				Success: false,
				Message: "Недостаточно прав доступа",
			})
			return
		}
		c.Next()
	}
}

// canStoreObject разрешает владельцу сохранять по идентификатору только своих
// лошадей: отслеживаемых индексом или прирученных им в мире. Администратор
// может сохранить любую.
func (rs *RestServer) canStoreObject(c *gin.Context, owner uuid.UUID, id engine.ObjectID) bool {
	if rs.auth == nil {
		return true
	}
	claims := c.MustGet(claimsKey).(*auth.Claims)
	if claims.IsAdmin || rs.service.Index().Contains(owner, id) {
		return true
	}
	if rs.world != nil {
		if h, ok := rs.world.Horse(id); ok && h.Owner == owner {
			return true
		}
	}
	c.JSON(http.StatusForbidden, GenericResponse{
		Success: false,
		Message: "Лошадь не принадлежит владельцу",
	})
	return false
}
