package mode

import "strings"

// Keyword sets are matched as case-sensitive substrings. Work is checked first.
var (
	workKeywords = []string{"周报", "日报", "项目", "任务", "工作", "会议", "待办"}
	lifeKeywords = []string{"聊天", "开心", "朋友", "心情", "感觉", "生活"}
)

// Classify returns the scene suggested by input and whether any keyword matched.
func Classify(input string) (Mode, bool) {
	if containsAny(input, workKeywords) {
		return ModeWork, true
	}
	if containsAny(input, lifeKeywords) {
		return ModeLife, true
	}
	return "", false
}

func containsAny(input string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(input, keyword) {
			return true
		}
	}
	return false
}
