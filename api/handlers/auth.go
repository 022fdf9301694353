package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/hido/types"
)

// RoleOperator 允许修改投票者与护栏规则的角色
const RoleOperator = "operator"

// Guard 包裹需要额外授权的路由，nil 表示不做限制
type Guard func(http.Handler) http.Handler

func (g Guard) wrap(h http.Handler) http.Handler {
	if g == nil {
		return h
	}
	return g(h)
}

// RequireRole 要求请求上下文带有 role（由 JWT 中间件注入），否则返回 403
func RequireRole(role string, logger *zap.Logger) Guard {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !types.HasRole(r.Context(), role) {
				WriteError(w, r, types.NewError(types.ErrForbidden, "role "+role+" is required"), logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
