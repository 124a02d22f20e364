package requests

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/thedevsaddam/govalidator"

	"arcana/app/models/reading"
)

// CardDrawRequest 单张抽牌
type CardDrawRequest struct {
	CardID      int    `json:"card_id"`
	Orientation string `json:"orientation"`
}

// ReadingRequest 创建解读的请求体
type ReadingRequest struct {
	Question      string            `json:"question" valid:"question"`
	SpreadName    string            `json:"spread_name" valid:"spread_name"`
	Type          string            `json:"type" valid:"type"`
	SessionID     string            `json:"session_id"`
	PaymentStatus string            `json:"payment_status"`
	Cards         []CardDrawRequest `json:"cards"`
}

// ValidateReading 验证创建解读的请求
func ValidateReading(c *gin.Context) (*ReadingRequest, error) {
	var req ReadingRequest

	// 1. 首先绑定 JSON
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, fmt.Errorf("解析 JSON 失败: %w", err)
	}

	// 2. 验证规则
	rules := govalidator.MapData{
		"question":    []string{"required", "min:1", "max:500"},
		"spread_name": []string{"required", "max:100"},
		"type":        []string{"required", "in:automated_draft,reader_guided,client_reveal"},
	}

	// 3. 验证消息
	messages := govalidator.MapData{
		"question": []string{
			"required:问题不能为空",
			"min:问题长度不能小于 1 个字符",
			"max:问题长度不能超过 500 个字符",
		},
		"spread_name": []string{
			"required:牌阵名称不能为空",
			"max:牌阵名称过长",
		},
		"type": []string{
			"required:解读类型不能为空",
			"in:解读类型必须是 automated_draft、reader_guided 或 client_reveal",
		},
	}

	if err := ValidateStruct(&req, rules, messages); err != nil {
		return nil, err
	}

	// 4. 额外的卡牌验证
	if len(req.Cards) == 0 {
		return nil, fmt.Errorf("至少需要选择一张卡牌")
	}
	if len(req.Cards) > 10 {
		return nil, fmt.Errorf("最多选择 10 张卡牌")
	}

	for _, card := range req.Cards {
		if card.CardID < 1 || card.CardID > 78 {
			return nil, fmt.Errorf("无效的卡牌编号: %d", card.CardID)
		}
		if card.Orientation != string(reading.OrientationUpright) && card.Orientation != string(reading.OrientationReversed) {
			return nil, fmt.Errorf("无效的卡牌方位: %s", card.Orientation)
		}
	}

	return &req, nil
}

// ToCards 转换为模型层的抽牌数组
func (r *ReadingRequest) ToCards() reading.Cards {
	cards := make(reading.Cards, 0, len(r.Cards))
	for _, c := range r.Cards {
		cards = append(cards, reading.CardDraw{
			CardID:      c.CardID,
			Orientation: reading.Orientation(c.Orientation),
		})
	}
	return cards
}
