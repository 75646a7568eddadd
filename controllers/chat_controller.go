package controllers

import (
	"net/http"

	"loanflow/services"

	"github.com/gorilla/mux"
)

type chatMessageRequest struct {
	Message string `json:"message"`
}

// ChatController handles the loan assistant conversation
type ChatController struct {
	orch *services.Orchestrator
}

func NewChatController(orch *services.Orchestrator) *ChatController {
	return &ChatController{orch: orch}
}

func (c *ChatController) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := applicantID(w, r)
	if !ok {
		return
	}

	res, err := c.orch.StartChat(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (c *ChatController) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := applicantID(w, r)
	if !ok {
		return
	}

	var req chatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	reply, err := c.orch.SendMessage(r.Context(), userID, mux.Vars(r)["session"], req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (c *ChatController) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := applicantID(w, r)
	if !ok {
		return
	}

	msgs, err := c.orch.ChatHistory(r.Context(), userID, mux.Vars(r)["session"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
