package api

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// 支持的语言
const (
	LangEnglish   = "en"
	LangHindi     = "hi"
	LangMalayalam = "ml"
)

// 消息键
const (
	MsgValidationFailed = "error.validation_failed"
	MsgInvalidPayload   = "error.invalid_payload"
	MsgCardNotFound     = "error.card_not_found"
	MsgStorageFailed    = "error.storage_failed"
	MsgInternalError    = "error.internal_error"
	MsgRouteNotFound    = "error.route_not_found"
)

// I18nManager 国际化管理器
type I18nManager struct {
	messages map[string]map[string]string // lang -> key -> message
}

var defaultI18nManager *I18nManager

func init() {
	defaultI18nManager = NewI18nManager()
	// 加载默认语言资源
	defaultI18nManager.LoadMessages(LangEnglish, map[string]string{
		MsgValidationFailed: "validation failed",
		MsgInvalidPayload:   "no recognizable harvest card data",
		MsgCardNotFound:     "The card may belong to another farmer or device, or it may have been deactivated.",
		MsgStorageFailed:    "storage operation failed",
		MsgInternalError:    "internal server error",
		MsgRouteNotFound:    "route not found",
	})
	defaultI18nManager.LoadMessages(LangHindi, map[string]string{
		MsgValidationFailed: "सत्यापन विफल",
		MsgInvalidPayload:   "पहचानने योग्य फसल कार्ड डेटा नहीं मिला",
		MsgCardNotFound:     "यह कार्ड किसी अन्य किसान या डिवाइस का हो सकता है, या इसे निष्क्रिय कर दिया गया है।",
		MsgStorageFailed:    "भंडारण कार्य विफल",
		MsgInternalError:    "आंतरिक सर्वर त्रुटि",
		MsgRouteNotFound:    "मार्ग नहीं मिला",
	})
	defaultI18nManager.LoadMessages(LangMalayalam, map[string]string{
		MsgValidationFailed: "വിവര പരിശോധന പരാജയപ്പെട്ടു",
		MsgInvalidPayload:   "തിരിച്ചറിയാവുന്ന വിളവെടുപ്പ് കാർഡ് വിവരങ്ങൾ ഇല്ല",
		MsgCardNotFound:     "ഈ കാർഡ് മറ്റൊരു കർഷകന്റെയോ ഉപകരണത്തിന്റെയോ ആകാം, അല്ലെങ്കിൽ നിർജ്ജീവമാക്കിയതാകാം.",
		MsgStorageFailed:    "സംഭരണ പ്രവർത്തനം പരാജയപ്പെട്ടു",
		MsgInternalError:    "സെർവർ പിശക്",
		MsgRouteNotFound:    "വഴി കണ്ടെത്തിയില്ല",
	})
}

// NewI18nManager 创建国际化管理器
func NewI18nManager() *I18nManager {
	return &I18nManager{
		messages: make(map[string]map[string]string),
	}
}

// LoadMessages 加载语言消息
func (m *I18nManager) LoadMessages(lang string, messages map[string]string) {
	m.messages[lang] = messages
}

// Translate 翻译消息
func (m *I18nManager) Translate(lang, key string) string {
	if messages, ok := m.messages[lang]; ok {
		if message, ok := messages[key]; ok {
			return message
		}
	}
	// 如果找不到翻译，尝试使用英文
	if lang != LangEnglish {
		if messages, ok := m.messages[LangEnglish]; ok {
			if message, ok := messages[key]; ok {
				return message
			}
		}
	}
	// 如果还是找不到，返回 key
	return key
}

// I18nMiddleware 国际化中间件
func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := LangEnglish // 默认语言

		// 方式 1: 从查询参数获取语言
		if queryLang := c.Query("lang"); queryLang != "" {
			lang = normalizeLanguage(queryLang)
		} else if headerLang := c.GetHeader("Accept-Language"); headerLang != "" {
			// 方式 2: 从 Accept-Language 头获取语言
			lang = parseAcceptLanguage(headerLang)
		}

		// 将语言信息存储到上下文
		c.Set("language", lang)

		c.Next()
	}
}

// GetLanguage 从上下文获取语言
func GetLanguage(c *gin.Context) string {
	if lang, exists := c.Get("language"); exists {
		if l, ok := lang.(string); ok {
			return l
		}
	}
	return LangEnglish
}

// T 翻译消息（使用默认管理器）
func T(c *gin.Context, key string) string {
	return defaultI18nManager.Translate(GetLanguage(c), key)
}

// normalizeLanguage 规范化语言代码,ml-IN -> ml
func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	for _, supported := range []string{LangMalayalam, LangHindi, LangEnglish} {
		if lang == supported || strings.HasPrefix(lang, supported+"-") || strings.HasPrefix(lang, supported+"_") {
			return supported
		}
	}
	return LangEnglish
}

// parseAcceptLanguage 解析 Accept-Language 头
func parseAcceptLanguage(header string) string {
	// 解析 Accept-Language: ml-IN,ml;q=0.9,en;q=0.8
	// 取第一个语言代码
	lang, _, _ := strings.Cut(header, ",")
	// 移除质量值（如果有）
	lang, _, _ = strings.Cut(lang, ";")
	return normalizeLanguage(lang)
}
