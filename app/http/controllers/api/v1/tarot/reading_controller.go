// Package tarot 解读相关的 HTTP 控制器
package tarot

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"arcana/app/http/middlewares"
	"arcana/app/models/interpretation"
	"arcana/app/models/reading"
	"arcana/app/repositories"
	"arcana/app/requests"
	"arcana/app/services"
	"arcana/pkg/generation"
	"arcana/pkg/queue"
	"arcana/pkg/response"
)

type ReadingController struct {
	readingService *services.ReadingService
	queueService   *queue.QueueService
	genService     *generation.Service
}

func NewReadingController() *ReadingController {
	return &ReadingController{
		readingService: services.NewReadingService(),
		queueService:   queue.NewQueueService(),
		genService:     generation.NewServiceFromConfig(),
	}
}

// Store 创建一次解读并投递起草任务
func (rc *ReadingController) Store(c *gin.Context) {
	// 1. 请求验证
	request, err := requests.ValidateReading(c)
	if err != nil {
		response.BadRequest(c, err, "请求参数验证失败")
		return
	}

	actor := middlewares.CurrentActor(c)

	// 2. 创建解读记录，初始状态 initiated
	r, err := rc.readingService.Create(c.Request.Context(), actor, services.CreateParams{
		ClientID:      actor.ID,
		Question:      request.Question,
		SpreadName:    request.SpreadName,
		Cards:         request.ToCards(),
		Type:          reading.ReadingType(request.Type),
		SessionID:     request.SessionID,
		PaymentStatus: request.PaymentStatus,
	})
	if err != nil {
		response.DomainError(c, err)
		return
	}

	// 3. 推送起草任务到队列
	task := &queue.DraftTask{
		ID:         uuid.New().String(),
		ReadingID:  r.ID,
		Question:   r.Question,
		SpreadName: r.SpreadName,
		Cards:      r.Cards,
		Status:     queue.TaskPending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := rc.queueService.PushTask(c.Request.Context(), task); err != nil {
		response.Abort500(c, "任务入队失败")
		return
	}

	response.Created(c, gin.H{
		"reading_id": r.ID,
		"task_id":    task.ID,
		"status":     r.Status,
		"expires_at": r.ExpiresAt,
	})
}

// Show 获取解读视图，按角色过滤可见内容
func (rc *ReadingController) Show(c *gin.Context) {
	actor := middlewares.CurrentActor(c)

	view, err := rc.readingService.GetForActor(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.DomainError(c, err)
		return
	}

	response.Data(c, view)
}

// ShowDraft 获取草稿视图，仅解读师和管理侧可见
func (rc *ReadingController) ShowDraft(c *gin.Context) {
	actor := middlewares.CurrentActor(c)

	view, err := rc.readingService.GetDraft(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.DomainError(c, err)
		return
	}

	response.Data(c, view)
}

// UpdateInterpretation 解读师提交某个牌位的终稿
func (rc *ReadingController) UpdateInterpretation(c *gin.Context) {
	position, err := strconv.Atoi(c.Param("position"))
	if err != nil || position < 1 {
		response.Abort400(c, "无效的牌位编号")
		return
	}

	request, err := requests.ValidateInterpretation(c)
	if err != nil {
		response.BadRequest(c, err, "请求参数验证失败")
		return
	}

	actor := middlewares.CurrentActor(c)

	err = rc.readingService.UpdateInterpretation(
		c.Request.Context(), actor, c.Param("id"), position,
		request.FinalText, interpretation.Keywords(request.FinalKeywords), request.Confidence,
	)
	if err != nil {
		response.DomainError(c, err)
		return
	}

	response.Data(c, gin.H{
		"reading_id": c.Param("id"),
		"position":   position,
	})
}

// Approve 解读师确认所有牌位终稿，解读进入可翻牌状态
func (rc *ReadingController) Approve(c *gin.Context) {
	actor := middlewares.CurrentActor(c)

	if err := rc.readingService.Approve(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.DomainError(c, err)
		return
	}

	response.Data(c, gin.H{
		"reading_id": c.Param("id"),
		"status":     reading.StatusReadyForReveal,
	})
}

// Reveal 客户按顺序揭示一个牌位
func (rc *ReadingController) Reveal(c *gin.Context) {
	position, err := strconv.Atoi(c.Param("position"))
	if err != nil || position < 1 {
		response.Abort400(c, "无效的牌位编号")
		return
	}

	actor := middlewares.CurrentActor(c)

	result, err := rc.readingService.RequestReveal(c.Request.Context(), actor, c.Param("id"), position)
	if err != nil {
		response.DomainError(c, err)
		return
	}

	response.Data(c, result)
}

// Cancel 取消解读
func (rc *ReadingController) Cancel(c *gin.Context) {
	actor := middlewares.CurrentActor(c)

	if err := rc.readingService.Cancel(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.DomainError(c, err)
		return
	}

	response.Data(c, gin.H{
		"reading_id": c.Param("id"),
		"status":     reading.StatusCancelled,
	})
}

// AuditTrail 获取单次解读的完整审计轨迹
func (rc *ReadingController) AuditTrail(c *gin.Context) {
	actor := middlewares.CurrentActor(c)

	events, err := rc.readingService.GetAuditTrail(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.DomainError(c, err)
		return
	}

	response.Data(c, gin.H{
		"reading_id": c.Param("id"),
		"events":     events,
	})
}

// Violations 查询安全违规事件
func (rc *ReadingController) Violations(c *gin.Context) {
	actor := middlewares.CurrentActor(c)

	filters := repositories.ViolationFilters{
		ReadingID: c.Query("reading_id"),
		ActorID:   c.Query("actor_id"),
	}
	if v := c.Query("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.Since = t
		}
	}
	if v := c.Query("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.Until = t
		}
	}
	if v := c.Query("limit"); v != "" {
		filters.Limit, _ = strconv.Atoi(v)
	}

	events, err := rc.readingService.QueryViolations(c.Request.Context(), actor, filters)
	if err != nil {
		response.DomainError(c, err)
		return
	}

	response.Data(c, gin.H{
		"events": events,
	})
}

// History 获取客户的历史解读列表
func (rc *ReadingController) History(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 10
	}

	clientID := c.Param("client_id")
	if clientID == "" {
		response.Abort400(c, "客户 ID 不能为空")
		return
	}

	actor := middlewares.CurrentActor(c)

	readings, total, err := rc.readingService.History(c.Request.Context(), actor, clientID, page, size)
	if err != nil {
		response.DomainError(c, err)
		return
	}

	response.Data(c, gin.H{
		"data": readings,
		"meta": gin.H{
			"total":     total,
			"page":      page,
			"page_size": size,
		},
	})
}

// HealthCheck 健康检查端点
func (rc *ReadingController) HealthCheck(c *gin.Context) {
	// 检查队列连接
	if err := rc.queueService.Ping(c.Request.Context()); err != nil {
		response.Abort500(c, "队列服务不可用")
		return
	}

	payload := gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
		"queue":  rc.queueService.Metrics().Stats(),
	}

	// 生成服务未配置时属于降级运行，不算不健康
	if rc.genService != nil {
		if err := rc.genService.HealthCheck(c.Request.Context()); err != nil {
			payload["generation"] = "degraded"
		} else {
			payload["generation"] = "ok"
		}
	}

	response.Data(c, payload)
}
