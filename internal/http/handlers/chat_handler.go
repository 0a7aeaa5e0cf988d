// Chat HTTP handlers.
//
// This file exposes chat-on-report endpoints for signed-in users:
//   - POST /research/{id}/chat   (ask a question about a saved report)
//   - GET  /research/{id}/chat   (conversation history, oldest first)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/shiporskip-backend/internal/domain"
	"github.com/tbourn/shiporskip-backend/internal/http/middleware"
)

// ChatRequest is the JSON payload for a chat question.
type ChatRequest struct {
	// Content is the question (1–1000 characters).
	Content string `json:"content" example:"Which competitor is the biggest threat?"`
}

// ChatHistoryResponse lists the messages of one conversation.
type ChatHistoryResponse struct {
	ResearchID string               `json:"research_id"`
	Messages   []domain.ChatMessage `json:"messages"`
}

// SendChat godoc
// @ID          sendChat
// @Summary     Ask about a saved report
// @Description Answers a question using only the saved report. Each research allows a limited number of user messages; the response tells how many remain.
// @Tags        Chat
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                true  "Research ID (UUID)"  format(uuid)
// @Param       body  body  handlers.ChatRequest  true  "Question"
//
// @Success     201  {object} services.ChatReply
// @Failure     400  {object} handlers.ErrorResponse "Bad request or report not ready"
// @Failure     401  {object} handlers.ErrorResponse "Sign in required"
// @Failure     404  {object} handlers.ErrorResponse "Research not found"
// @Failure     429  {object} handlers.ErrorResponse "Chat limit reached"
// @Failure     502  {object} handlers.ErrorResponse "Upstream failure"
// @Router      /research/{id}/chat [post]
func (h *Handlers) SendChat(c *gin.Context) {
	rid, valid := researchID(c)
	if !valid {
		return
	}
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "invalid JSON body")
		return
	}

	reply, err := h.chat.Send(c.Request.Context(), middleware.IdentityFrom(c), rid, req.Content)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, reply)
}

// ChatHistory godoc
// @ID          chatHistory
// @Summary     Chat history of a report
// @Tags        Chat
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Research ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.ChatHistoryResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Sign in required"
// @Failure     404  {object} handlers.ErrorResponse "Research not found"
// @Router      /research/{id}/chat [get]
func (h *Handlers) ChatHistory(c *gin.Context) {
	rid, valid := researchID(c)
	if !valid {
		return
	}
	msgs, err := h.chat.History(c.Request.Context(), middleware.IdentityFrom(c), rid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ChatHistoryResponse{ResearchID: rid, Messages: msgs})
}
