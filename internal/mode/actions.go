package mode

// actionKey indexes the fixed action table.
type actionKey struct {
	mode       Mode
	capability Capability
}

var modeConfigs = map[Mode]ModeConfig{
	ModeWork: {
		Mode:        ModeWork,
		Label:       "工作",
		Icon:        "💼",
		Description: "效率工具与工作助手",
		Color:       "#1890ff",
	},
	ModeLife: {
		Mode:        ModeLife,
		Label:       "生活",
		Icon:        "🏡",
		Description: "情感陪伴与记忆回顾",
		Color:       "#52c41a",
	},
}

var capabilityConfigs = map[Capability]CapabilityConfig{
	CapabilityMimic: {
		Type:        CapabilityMimic,
		Label:       "模仿我",
		Icon:        "🤖",
		Description: "学习并模仿你的风格",
	},
	CapabilityAnalyze: {
		Type:        CapabilityAnalyze,
		Label:       "分析我",
		Icon:        "🔍",
		Description: "深度分析与洞察",
	},
}

var actionTable = map[actionKey][]ActionConfig{
	{ModeWork, CapabilityMimic}: {
		{Key: "weekly_report", Label: "周报生成", Icon: "📊", Description: "自动生成本周工作总结", Handler: "generateWeeklyReport"},
		{Key: "organize_todos", Label: "待办整理", Icon: "✅", Description: "智能整理待办事项", Handler: "organizeTodos"},
		{Key: "meeting_summary", Label: "会议总结", Icon: "📝", Description: "总结会议内容和行动项", Handler: "summarizeMeeting"},
	},
	{ModeWork, CapabilityAnalyze}: {
		{Key: "project_progress", Label: "项目进度", Icon: "📈", Description: "追踪项目进展情况", Handler: "trackProjectProgress"},
		{Key: "time_analysis", Label: "时间分析", Icon: "⏰", Description: "分析时间使用效率", Handler: "analyzeTimeUsage"},
	},
	{ModeLife, CapabilityMimic}: {
		{Key: "casual_chat", Label: "闲聊", Icon: "💬", Description: "像朋友一样聊天", Handler: "casualChat"},
		{Key: "record_event", Label: "记录事件", Icon: "📔", Description: "记录生活中的重要事件", Handler: "recordLifeEvent"},
	},
	{ModeLife, CapabilityAnalyze}: {
		{Key: "mood_analysis", Label: "心情分析", Icon: "😊", Description: "分析你的情绪状态", Handler: "analyzeMood"},
		{Key: "interest_tracking", Label: "兴趣追踪", Icon: "🎯", Description: "追踪你的兴趣变化", Handler: "trackInterests"},
		{Key: "life_summary", Label: "生活总结", Icon: "📖", Description: "生成生活总结报告", Handler: "generateLifeSummary"},
	},
}

// ActionsFor returns a copy of the actions for a (mode, capability) pair, or an
// empty slice when the pair is not in the table.
func ActionsFor(m Mode, c Capability) []ActionConfig {
	actions, ok := actionTable[actionKey{mode: m, capability: c}]
	if !ok {
		return []ActionConfig{}
	}
	return append([]ActionConfig(nil), actions...)
}

// ConfigForMode returns the display descriptor of a scene.
func ConfigForMode(m Mode) (ModeConfig, bool) {
	config, ok := modeConfigs[m]
	return config, ok
}

// ConfigForCapability returns the descriptor of a capability with the actions
// it offers in scene m.
func ConfigForCapability(m Mode, c Capability) (CapabilityConfig, bool) {
	config, ok := capabilityConfigs[c]
	if !ok {
		return CapabilityConfig{}, false
	}
	config.Actions = ActionsFor(m, c)
	return config, true
}
