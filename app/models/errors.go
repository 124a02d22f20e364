package models

import (
	"errors"
	"fmt"
)

// 领域错误码，对外返回时保持稳定，不携带内部细节
const (
	CodeAccessDenied       = "ACCESS_DENIED"       // 可见性门禁拒绝
	CodeSequenceViolation  = "SEQUENCE_VIOLATION"  // 翻牌顺序错误
	CodeApprovalIncomplete = "APPROVAL_INCOMPLETE" // 仍有牌位未审核通过
	CodeReadingExpired     = "READING_EXPIRED"     // 解读已过期（终态）
	CodeReadingCancelled   = "READING_CANCELLED"   // 解读已取消（终态）
	CodeGenerationTimeout  = "GENERATION_TIMEOUT"  // 生成服务超时
	CodeStateConflict      = "STATE_CONFLICT"      // 条件更新竞争失败
	CodeInvalidTransition  = "INVALID_TRANSITION"  // 状态机不允许的流转
	CodeNotFound           = "NOT_FOUND"           // 记录不存在
)

// DomainError 领域错误
// 携带稳定的错误码和给调用方的提示语；存储层错误不会从这里透出
type DomainError struct {
	Code   string // 稳定错误码
	Reason string // 人类可读的原因

	// NextExpected 仅在 SEQUENCE_VIOLATION 下有意义，
	// 告知调用方下一个应请求的牌位
	NextExpected int
}

// Error 实现 error 接口
func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Is 支持 errors.Is 按错误码比较
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// NewAccessDenied 门禁拒绝
func NewAccessDenied(reason string) *DomainError {
	return &DomainError{Code: CodeAccessDenied, Reason: reason}
}

// NewSequenceViolation 顺序错误，附带下一个期望的牌位
func NewSequenceViolation(nextExpected int) *DomainError {
	return &DomainError{
		Code:         CodeSequenceViolation,
		Reason:       fmt.Sprintf("牌位必须按顺序揭示，下一个应为 %d", nextExpected),
		NextExpected: nextExpected,
	}
}

// NewApprovalIncomplete 审核未完成
func NewApprovalIncomplete(pending int) *DomainError {
	return &DomainError{
		Code:   CodeApprovalIncomplete,
		Reason: fmt.Sprintf("仍有 %d 个牌位未审核通过", pending),
	}
}

// NewReadingExpired 解读已过期
func NewReadingExpired() *DomainError {
	return &DomainError{Code: CodeReadingExpired, Reason: "解读已过期"}
}

// NewReadingCancelled 解读已取消
func NewReadingCancelled() *DomainError {
	return &DomainError{Code: CodeReadingCancelled, Reason: "解读已取消"}
}

// NewGenerationTimeout 生成超时
func NewGenerationTimeout() *DomainError {
	return &DomainError{Code: CodeGenerationTimeout, Reason: "解读生成超时，任务已取消"}
}

// NewStateConflict 条件更新没有命中任何行，说明竞争失败
func NewStateConflict(from, to string) *DomainError {
	return &DomainError{
		Code:   CodeStateConflict,
		Reason: fmt.Sprintf("状态流转 %s -> %s 竞争失败，请重试", from, to),
	}
}

// NewInvalidTransition 状态机不允许的流转
func NewInvalidTransition(from, to string) *DomainError {
	return &DomainError{
		Code:   CodeInvalidTransition,
		Reason: fmt.Sprintf("不允许的状态流转：%s -> %s", from, to),
	}
}

// NewNotFound 记录不存在
func NewNotFound(what string) *DomainError {
	return &DomainError{Code: CodeNotFound, Reason: what + "不存在"}
}

// IsDomainCode 判断 err 是否为指定错误码的领域错误
func IsDomainCode(err error, code string) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == code
}

// AsDomainError 提取领域错误，非领域错误返回 nil
func AsDomainError(err error) *DomainError {
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}
	return nil
}
