package middlewares

import (
	"github.com/gin-gonic/gin"

	"arcana/app/policies"
	"arcana/pkg/response"
)

// ActorKey gin 上下文中存放身份声明的键
const ActorKey = "arcana.actor"

// Identity 从请求头解析身份声明并存入上下文
//
// 身份由上游网关鉴权后以 X-Actor-Id 和 X-Actor-Role 头透传，
// 这里只做解析和基本校验，权限判定统一交给可见性门禁。
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.GetHeader("X-Actor-Id")
		actorRole := c.GetHeader("X-Actor-Role")

		if actorID == "" || actorRole == "" {
			response.Abort403(c, "缺少身份信息")
			return
		}

		c.Set(ActorKey, policies.Actor{
			ID:   actorID,
			Role: policies.ParseRole(actorRole),
		})

		c.Next()
	}
}

// CurrentActor 从上下文取出身份声明
func CurrentActor(c *gin.Context) policies.Actor {
	if v, ok := c.Get(ActorKey); ok {
		if actor, ok := v.(policies.Actor); ok {
			return actor
		}
	}
	return policies.Actor{}
}
