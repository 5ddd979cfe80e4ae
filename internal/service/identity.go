package service

import (
	"regexp"
	"strings"
)

const (
	// AssistantSystemPrompt opens every upstream prompt.
	AssistantSystemPrompt = "你是 FollowChat 助手，需要根据当前会话历史回答用户最新的问题。保持专业且简洁，如信息不足请主动说明。"

	// IdentityAnswer is streamed instead of asking the model who it is.
	IdentityAnswer = "我是FollowChat 助手，为你提供分支对话管理。"

	// SummaryPrompt asks for a short gist of the user's message.
	SummaryPrompt = "请用5-10个字概括用户刚刚输入的内容，仅返回概括文本。"

	// SummaryTemperature keeps summaries stable.
	SummaryTemperature = 0.2
)

var identityKeywords = []string{
	"你是什么", "你是谁", "你是什么模型", "你是什么ai", "你是什么助手",
	"什么模型", "哪个模型", "用的什么", "基于什么", "什么技术",
	"what are you", "who are you", "what model", "which model",
	"你叫什么", "你的名字", "你的身份",
}

var identityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`你是.*吗\?*$`),
	regexp.MustCompile(`你是.*吗？`),
	regexp.MustCompile(`你是.*？`),
	regexp.MustCompile(`你是.*\?`),
	regexp.MustCompile(`是不是.*`),
	regexp.MustCompile(`是否.*`),
	regexp.MustCompile(`能否.*`),
	regexp.MustCompile(`会不会.*`),
}

// IsIdentityQuestion reports whether content asks what the assistant is.
// Such questions get the canned answer and never reach the model.
func IsIdentityQuestion(content string) bool {
	normalized := strings.ToLower(strings.TrimSpace(content))
	for _, keyword := range identityKeywords {
		if strings.Contains(normalized, keyword) {
			return true
		}
	}
	for _, pattern := range identityPatterns {
		if pattern.MatchString(normalized) {
			return true
		}
	}
	return false
}
