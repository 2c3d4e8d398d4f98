package server

import (
	"crypto/subtle"
	"errors"
	"image"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/krau/headpose/infer"
	"github.com/krau/headpose/pipeline"
)

var (
	errUnauthorized = errors.New("unauthorized")
)

func (s *Server) authenticate(c *gin.Context) error {
	auth := c.GetHeader("Authorization")

	expectedToken := s.cfg.Token
	if expectedToken == "" {
		return nil
	}
	providedToken := ""
	if len(auth) > 7 && auth[:7] == "Bearer " {
		providedToken = auth[7:]
	}
	if subtle.ConstantTimeCompare([]byte(providedToken), []byte(expectedToken)) != 1 {
		return errUnauthorized
	}

	return nil
}

func (s *Server) PredictHandler(c *gin.Context) {
	if err := s.authenticate(c); err != nil {
		c.JSON(401, gin.H{"error": "认证失败"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(400, gin.H{"error": "未上传文件"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(400, gin.H{"error": "无法打开上传的文件"})
		return
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		c.JSON(400, gin.H{"error": "无法解析图片"})
		return
	}

	res, err := s.pool.Estimate(c.Request.Context(), pipeline.FromImage(fileHeader.Filename, img))
	if err != nil {
		slog.Error("Prediction failed",
			slog.String("request_id", c.GetString(RequestIDKey)),
			slog.String("file", fileHeader.Filename),
			slog.String("error", err.Error()))
		switch infer.CodeOf(err) {
		case infer.CodeImageLoad:
			c.JSON(422, gin.H{"error": "无法处理图片区域"})
		case infer.CodeDecode:
			c.JSON(500, gin.H{"error": "模型输出解析失败"})
		default:
			c.JSON(500, gin.H{"error": "推理失败"})
		}
		return
	}

	c.JSON(200, newPredictionResult(res))
}

func (s *Server) HealthHandler(c *gin.Context) {
	c.JSON(200, gin.H{"status": "healthy", "two_stage": s.pool.TwoStage()})
}
