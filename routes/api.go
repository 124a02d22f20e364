package routes

import (
	"github.com/gin-gonic/gin"

	"arcana/app/http/controllers/api/v1/tarot"
	"arcana/app/http/middlewares"
)

// 路由限流配置
const (
	// 🌍 全局限流：每小时每IP 30000 请求
	GlobalRateLimit = "30000-H"
	// 🎴 创建解读限流：每小时每IP 100 请求
	CreateReadingLimit = "100-H"
	// 🔍 查询限流：每分钟每IP 300 请求
	QueryLimit = "300-M"
	// 🃏 翻牌限流：每分钟每IP 60 请求
	RevealLimit = "60-M"
)

// RegisterAPIRoutes 注册所有 API 路由
func RegisterAPIRoutes(r *gin.Engine) {
	v1 := r.Group("/v1")

	v1.Use(
		middlewares.SecurityHeaders(),
		middlewares.LimitIP(GlobalRateLimit),
		middlewares.Cors(),
	)

	rc := tarot.NewReadingController()

	// 健康检查不要求身份
	v1.GET("/health", rc.HealthCheck)

	// 其余路由都需要身份声明
	authed := v1.Group("")
	authed.Use(middlewares.Identity())
	{
		readings := authed.Group("/readings")
		{
			// 📝 创建解读并投递起草任务
			readings.POST("",
				middlewares.LimitIP(CreateReadingLimit),
				rc.Store,
			)

			// 📊 按角色过滤的解读视图
			readings.GET("/:id",
				middlewares.LimitIP(QueryLimit),
				rc.Show,
			)

			// 📄 草稿视图，门禁决定谁能看
			readings.GET("/:id/draft",
				middlewares.LimitIP(QueryLimit),
				rc.ShowDraft,
			)

			// ✍️ 解读师提交某牌位终稿
			readings.PUT("/:id/interpretations/:position",
				middlewares.LimitPerRoute(QueryLimit),
				rc.UpdateInterpretation,
			)

			// ✅ 终稿全部确认，进入可翻牌状态
			readings.POST("/:id/approve",
				middlewares.LimitPerRoute(QueryLimit),
				rc.Approve,
			)

			// 🃏 按顺序揭示一个牌位
			readings.POST("/:id/reveal/:position",
				middlewares.LimitPerRoute(RevealLimit),
				rc.Reveal,
			)

			// 🚫 取消解读
			readings.POST("/:id/cancel",
				middlewares.LimitPerRoute(QueryLimit),
				rc.Cancel,
			)

			// 📜 单次解读的审计轨迹
			readings.GET("/:id/audit",
				middlewares.LimitIP(QueryLimit),
				rc.AuditTrail,
			)
		}

		// 🔎 安全违规事件查询，门禁限定管理侧
		authed.GET("/audit/violations",
			middlewares.LimitIP(QueryLimit),
			rc.Violations,
		)

		// 🗂 客户历史解读列表
		authed.GET("/clients/:client_id/readings",
			middlewares.LimitIP(QueryLimit),
			rc.History,
		)
	}
}
