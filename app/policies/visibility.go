// Package policies 集中存放访问控制决策
// 所有读写内容的路径都必须经过这里，避免判断逻辑散落在各个查询里产生偏差
package policies

import (
	"arcana/app/models/audit"
	"arcana/app/models/interpretation"
	"arcana/app/models/reading"
)

// Role 请求方角色，由外部身份服务签发，本引擎只信任不签发
type Role string

const (
	RoleAdmin    Role = "admin"    // 管理员
	RoleOperator Role = "operator" // 运营
	RoleReader   Role = "reader"   // 解读师
	RoleClient   Role = "client"   // 客户
)

// ParseRole 解析角色声明，未知角色原样保留，交给门禁默认拒绝
func ParseRole(s string) Role {
	return Role(s)
}

// Actor 一次请求的身份声明，由身份中间件从请求头解析
type Actor struct {
	ID   string
	Role Role
}

// Decision 门禁决策结果
type Decision struct {
	Granted bool   // 是否放行
	Reason  string // 拒绝原因，放行时为空
}

// granted 放行
func granted() Decision {
	return Decision{Granted: true}
}

// denied 拒绝并说明原因
func denied(reason string) Decision {
	return Decision{Granted: false, Reason: reason}
}

// Authorize 纯决策函数：给定角色、身份、解读与内容类型，判定能否访问
// 没有任何副作用，审计由调用方负责写入
//
// 规则（白名单，未命中一律拒绝）：
// - admin/operator：草稿与终稿均放行
// - reader：仅当其为该解读的指派解读师时放行
// - client：仅终稿且对应牌位 visible_to_client 为 true 时放行；
//   草稿无条件拒绝，与解读状态无关
func Authorize(role Role, actorID string, r *reading.Reading, contentType audit.ContentType, ci *interpretation.CardInterpretation) Decision {
	if r == nil {
		return denied("解读不存在")
	}

	switch role {
	case RoleAdmin, RoleOperator:
		return granted()

	case RoleReader:
		if r.AssignedReaderID == "" {
			return denied("该解读尚未指派解读师")
		}
		if actorID != r.AssignedReaderID {
			return denied("只有指派的解读师可以访问该解读")
		}
		return granted()

	case RoleClient:
		if actorID != r.ClientID {
			return denied("只能访问自己的解读")
		}
		// 草稿对客户无条件不可见，这条规则不看解读状态
		if contentType == audit.ContentDraft {
			return denied("草稿内容对客户不可见")
		}
		if contentType == audit.ContentFinal {
			if ci == nil {
				return denied("牌位不存在")
			}
			if !ci.VisibleToClient {
				return denied("该牌位尚未揭示")
			}
			return granted()
		}
		// 不涉及内容本体的操作（如查看自己的解读状态）放行
		return granted()

	default:
		return denied("未知角色")
	}
}

// CanTransition 判定角色是否有权触发某个状态流转
// system 流转（起草、草稿就绪）由内部工作器发起，不经过这里
func CanTransition(role Role, from, to reading.Status) bool {
	switch to {
	case reading.StatusReviewing, reading.StatusEditing, reading.StatusApproved, reading.StatusReadyForReveal:
		// 审核相关流转仅解读师与管理员
		return role == RoleReader || role == RoleAdmin
	case reading.StatusRevealed, reading.StatusCompleted:
		// 翻牌由客户触发，管理员可代行
		return role == RoleClient || role == RoleAdmin
	case reading.StatusCancelled:
		// 取消：客户、运营、管理员
		return role == RoleClient || role == RoleOperator || role == RoleAdmin
	case reading.StatusExpired:
		// 过期只能由清扫器触发，任何外部角色都不行
		return false
	default:
		return false
	}
}

// IsPrivileged admin/operator 拥有审计查询等内部能力
func IsPrivileged(role Role) bool {
	return role == RoleAdmin || role == RoleOperator
}
