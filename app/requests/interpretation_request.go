package requests

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/thedevsaddam/govalidator"
)

// InterpretationRequest 解读师提交终稿的请求体
type InterpretationRequest struct {
	FinalText     string   `json:"final_text" valid:"final_text"`
	FinalKeywords []string `json:"final_keywords"`
	Confidence    float64  `json:"confidence"`
}

// ValidateInterpretation 验证终稿提交的请求
func ValidateInterpretation(c *gin.Context) (*InterpretationRequest, error) {
	var req InterpretationRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, fmt.Errorf("解析 JSON 失败: %w", err)
	}

	rules := govalidator.MapData{
		"final_text": []string{"required", "min:1", "max:5000"},
	}

	messages := govalidator.MapData{
		"final_text": []string{
			"required:终稿内容不能为空",
			"min:终稿内容不能为空",
			"max:终稿内容过长",
		},
	}

	if err := ValidateStruct(&req, rules, messages); err != nil {
		return nil, err
	}

	// 置信度为可选项，给定时必须在 [0, 1] 区间
	if req.Confidence < 0 || req.Confidence > 1 {
		return nil, fmt.Errorf("置信度必须在 0 到 1 之间")
	}

	if len(req.FinalKeywords) > 20 {
		return nil, fmt.Errorf("关键词不能超过 20 个")
	}

	return &req, nil
}
