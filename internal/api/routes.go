package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roder/stroma/internal/engine"
	"github.com/roder/stroma/pkg/models"
)

// Server wires the command surface's HTTP/WebSocket routes to an Engine.
type Server struct {
	eng *engine.Engine
	hub *Hub
	log *zap.Logger
}

// NewServer builds a Server. hub may be shared across groups.
func NewServer(eng *engine.Engine, hub *Hub, log *zap.Logger) *Server {
	return &Server{eng: eng, hub: hub, log: log}
}

// Register attaches every command-surface route to r.
func (s *Server) Register(r *gin.Engine) {
	r.GET("/ws", func(c *gin.Context) { s.hub.Subscribe(c.Writer, c.Request) })

	grp := r.Group("/v1")
	grp.POST("/create-group", s.handle(engine.CmdCreateGroup))
	grp.POST("/invite", s.handle(engine.CmdInvite))
	grp.POST("/vouch", s.handle(engine.CmdVouch))
	grp.POST("/flag", s.handle(engine.CmdFlag))
	grp.POST("/reject-intro", s.handle(engine.CmdRejectIntro))
	grp.POST("/propose", s.handle(engine.CmdPropose))
	grp.POST("/vote", s.handle(engine.CmdVote))
	grp.GET("/status", s.handle(engine.CmdStatus))
	grp.GET("/mesh", s.handle(engine.CmdMesh))
	grp.GET("/audit", s.handle(engine.CmdAudit))
}

type commandRequest struct {
	Actor       string `json:"actor_hash"`
	Group       string `json:"group"`
	Target      string `json:"target_hash"`
	AuditOf     string `json:"audit_of_hash"`
	ConfigKey   string `json:"config_key"`
	ConfigValue string `json:"config_value"`
	MeshLimit   int    `json:"mesh_limit"`
	ProposalID  string `json:"proposal_id"`
	VoteOption  int    `json:"vote_option"`
}

func (s *Server) handle(kind engine.CommandKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req commandRequest
		if c.Request.Method == http.MethodPost {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		} else {
			req.Actor = c.Query("actor_hash")
			req.Group = c.Query("group")
			req.AuditOf = c.Query("audit_of_hash")
			req.Target = c.Query("target_hash")
		}

		cmd := engine.Command{Kind: kind, Group: req.Group, MeshLimit: req.MeshLimit, ConfigKey: req.ConfigKey, ConfigValue: req.ConfigValue}
		if req.Actor != "" {
			actor, err := models.MemberHashFromHex(req.Actor)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor_hash"})
				return
			}
			cmd.Actor = actor
		}
		if req.Target != "" {
			target, err := models.MemberHashFromHex(req.Target)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target_hash"})
				return
			}
			cmd.Target = target
		}
		if req.AuditOf != "" {
			auditOf, err := models.MemberHashFromHex(req.AuditOf)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid audit_of_hash"})
				return
			}
			cmd.AuditOf = auditOf
		}
		if req.ProposalID != "" {
			proposalID, err := models.ProposalIdFromString(req.ProposalID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposal_id"})
				return
			}
			cmd.ProposalID = proposalID
		}
		cmd.VoteOption = req.VoteOption

		result := s.eng.Dispatch(c.Request.Context(), cmd)
		c.JSON(statusForExitCode(result.Code), gin.H{
			"exit_code": int(result.Code),
			"message":   result.Message,
			"payload":   result.Payload,
		})
	}
}

func statusForExitCode(code engine.ExitCode) int {
	switch code {
	case engine.ExitOK:
		return http.StatusOK
	case engine.ExitInvalidUpdate, engine.ExitInvalidState:
		return http.StatusBadRequest
	case engine.ExitRateLimited:
		return http.StatusTooManyRequests
	case engine.ExitUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}
