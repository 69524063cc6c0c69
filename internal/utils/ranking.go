package utils

import (
	"math"
	"time"
)

type RankConfig struct {
	Gravity        float64 // 时间重力 (1.5)
	WeightBookmark float64 // 3.0
	WeightComment  float64 // 2.0
	WeightLike     float64 // 1.0
	WeightVisit    float64 // 0.01，浏览量数量级太大，权重给得极小
	ScaleFactor    float64 // 放大系数 (100)
}

var DefaultConfig = RankConfig{
	Gravity:        1.5,
	WeightBookmark: 3.0,
	WeightComment:  2.0,
	WeightLike:     1.0,
	WeightVisit:    0.01,
	ScaleFactor:    100.0, // 让分数落在 0-100 区间，像"温度"
}

// CalculateScore 计算文章热度，t 为发布时间
func CalculateScore(t time.Time, likes, bookmarks, comments, visits int) float64 {
	return calculateScoreAt(time.Now(), t, likes, bookmarks, comments, visits)
}

func calculateScoreAt(now, t time.Time, likes, bookmarks, comments, visits int) float64 {
	hours := now.Sub(t).Hours()
	if hours < 0 {
		hours = 0
	}

	// 1. 加权互动值
	weightedSum := float64(likes)*DefaultConfig.WeightLike +
		float64(comments)*DefaultConfig.WeightComment +
		float64(bookmarks)*DefaultConfig.WeightBookmark +
		float64(visits)*DefaultConfig.WeightVisit

	// 2. 对数平滑，sum=0 时结果为 0
	logScore := math.Log10(weightedSum + 1)

	// 3. 放大系数
	numerator := logScore * DefaultConfig.ScaleFactor

	// 4. 时间衰减 (分母)
	decay := math.Pow(hours+2, DefaultConfig.Gravity)

	return numerator / decay
}
