package api

import (
	"net/http"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/service"
	"github.com/gin-gonic/gin"
)

// maxUploadSize 核验图片大小上限
const maxUploadSize = 5 << 20

// VerifyController 扫码核验控制器
type VerifyController struct {
	traceabilityService service.TraceabilityService
}

// NewVerifyController 创建扫码核验控制器
func NewVerifyController(traceabilityService service.TraceabilityService) *VerifyController {
	return &VerifyController{
		traceabilityService: traceabilityService,
	}
}

// verifyBody 核验请求体
type verifyBody struct {
	Payload string `json:"payload"`
}

// respond 写出核验结果,失败时在 data 中携带终止状态
func (c *VerifyController) respond(ctx *gin.Context, result *service.VerificationResult, err error) {
	if err != nil {
		HandleServiceError(ctx, err, result)
		return
	}
	Success(ctx, result)
}

// Verify 核验扫描文本
func (c *VerifyController) Verify(ctx *gin.Context) {
	var body verifyBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	result, err := c.traceabilityService.Verify(ctx.Request.Context(), body.Payload)
	c.respond(ctx, result, err)
}

// VerifyImage 核验上传的二维码图片
func (c *VerifyController) VerifyImage(ctx *gin.Context) {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxUploadSize)

	header, err := ctx.FormFile("file")
	if err != nil {
		Error(ctx, http.StatusBadRequest, "image file is required", err.Error())
		return
	}
	file, err := header.Open()
	if err != nil {
		Error(ctx, http.StatusBadRequest, "failed to read image", err.Error())
		return
	}
	defer file.Close()

	result, err := c.traceabilityService.VerifyImage(ctx.Request.Context(), file)
	c.respond(ctx, result, err)
}

// VerifyByID 通过核验地址中的 card_id 核验
func (c *VerifyController) VerifyByID(ctx *gin.Context) {
	cardID := ctx.Param("card_id")
	if !validateCardID(ctx, cardID) {
		return
	}

	result, err := c.traceabilityService.Verify(ctx.Request.Context(), cardID)
	if result != nil {
		// 核验地址携带的是规范 ID,不是旧版裸编码
		result.Legacy = false
	}
	c.respond(ctx, result, err)
}
