// internal/handler/log.go

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/orgoj/lokilog/internal/config"
	"github.com/orgoj/lokilog/internal/iputil"
	"github.com/orgoj/lokilog/internal/logger"
	"github.com/orgoj/lokilog/internal/lokilog"
	"github.com/orgoj/lokilog/internal/validation"
)

// RequestIDKey is the gin context key holding the request ID set by the
// server middleware.
const RequestIDKey = "request_id"

// LogRequestBody defines the structure for the /log endpoint request body.
// Message may be any JSON value; objects and arrays are forwarded as
// structured messages, numbers arrive as json.Number.
type LogRequestBody struct {
	Level   string      `json:"level" binding:"required,oneof=debug info warning error"`
	Message interface{} `json:"message"`
	OrgID   string      `json:"org_id"`
	BotID   string      `json:"bot_id"`
	Context string      `json:"context"`
	Trace   string      `json:"trace"`
	Logger  string      `json:"logger"` // Optional, defaults to app.name
}

// LogHandlerDependencies holds dependencies for the log handler
type LogHandlerDependencies struct {
	Manager   *lokilog.Manager
	Config    *config.Config
	AppLogger *logger.AppLogger
	Resolver  *iputil.Resolver
}

// NewLogHandler creates a Gin handler function for the /log endpoint. Each
// accepted request is forwarded synchronously as exactly one Loki record.
func NewLogHandler(deps LogHandlerDependencies) gin.HandlerFunc {
	if deps.Manager == nil {
		panic("LogHandler requires a non-nil Manager")
	}
	if deps.Config == nil {
		panic("LogHandler requires a non-nil Config")
	}
	if deps.AppLogger == nil {
		panic("LogHandler requires a non-nil AppLogger")
	}
	if deps.Resolver == nil {
		panic("LogHandler requires a non-nil Resolver")
	}

	limits := validation.DefaultLimits()
	if deps.Config.Relay.MaxMessageLength > 0 {
		limits.MaxStringLength = deps.Config.Relay.MaxMessageLength
	}
	maxBody := int64(deps.Config.Relay.RequestLimits.MaxBodySize)

	reject := func(ctx *gin.Context, reason string, err error) {
		deps.AppLogger.Warn("Log Handler: %s from IP %s (request %s): %v",
			reason, deps.Resolver.ClientIP(ctx.Request), ctx.GetString(RequestIDKey), err)
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": reason})
	}

	return func(ctx *gin.Context) {
		if maxBody > 0 {
			ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxBody)
		}

		var reqBody LogRequestBody
		if err := decodeBody(ctx.Request, &reqBody); err != nil {
			reject(ctx, "invalid request body", err)
			return
		}
		if reqBody.Message == nil {
			reject(ctx, "missing message", errors.New("message is required"))
			return
		}

		if err := validation.IsValidID(reqBody.OrgID, validation.DefaultMaxIDLength); err != nil {
			reject(ctx, "invalid org_id", err)
			return
		}
		if err := validation.IsValidID(reqBody.BotID, validation.DefaultMaxIDLength); err != nil {
			reject(ctx, "invalid bot_id", err)
			return
		}
		if err := validation.IsValidID(reqBody.Logger, validation.DefaultMaxIDLength); err != nil {
			reject(ctx, "invalid logger", err)
			return
		}

		message, err := validation.SanitizeMessage(reqBody.Message, limits)
		if err != nil {
			reject(ctx, "invalid message", err)
			return
		}

		level, ok := lokilog.ParseLevel(reqBody.Level)
		if !ok {
			reject(ctx, "invalid level", errors.New(reqBody.Level))
			return
		}

		name := reqBody.Logger
		if name == "" {
			name = deps.Config.App.Name
		}

		// The push outlives a client that hangs up.
		pushCtx := context.WithoutCancel(ctx.Request.Context())
		deps.Manager.GetLogger(name).LogContext(pushCtx, level, message, lokilog.Meta{
			OrgID:   reqBody.OrgID,
			BotID:   reqBody.BotID,
			Context: validation.SanitizeString(reqBody.Context, validation.DefaultMaxContextLength),
			Trace:   validation.SanitizeString(reqBody.Trace, limits.MaxStringLength),
		})

		ctx.JSON(http.StatusAccepted, gin.H{
			"status":     "forwarded",
			"request_id": ctx.GetString(RequestIDKey),
		})
	}
}

// decodeBody is gin's JSON binding with UseNumber, so numeric messages keep
// their original text ("1000000", not "1e+06").
func decodeBody(req *http.Request, obj *LogRequestBody) error {
	if req.Body == nil {
		return errors.New("invalid request")
	}
	dec := json.NewDecoder(req.Body)
	dec.UseNumber()
	if err := dec.Decode(obj); err != nil {
		return err
	}
	return binding.Validator.ValidateStruct(obj)
}
