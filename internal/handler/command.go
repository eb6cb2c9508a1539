package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"forgebot/internal/command"
	"forgebot/internal/model"
	"forgebot/pkg/apierror"
	"forgebot/pkg/response"
)

// CommandHandler exposes the chat-command surface over HTTP. Game relays
// and the Discord gateway POST commands here and forward the Result text.
type CommandHandler struct {
	dispatcher *command.Dispatcher
}

// NewCommandHandler creates a command handler.
func NewCommandHandler(d *command.Dispatcher) *CommandHandler {
	return &CommandHandler{dispatcher: d}
}

// commandPayload is the wire form of one command invocation.
type commandPayload struct {
	Identity string   `json:"identity"`
	Kind     string   `json:"kind"`
	Command  string   `json:"command"`
	Args     []string `json:"args"`
}

// Execute handles POST /api/v1/command
func (h *CommandHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var payload commandPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON body"))
		return
	}
	if strings.TrimSpace(payload.Identity) == "" {
		response.Error(w, apierror.ValidationError("validation failed",
			apierror.FieldError{Field: "identity", Message: "identity is required"}))
		return
	}
	if strings.TrimSpace(payload.Command) == "" {
		response.Error(w, apierror.ValidationError("validation failed",
			apierror.FieldError{Field: "command", Message: "command is required"}))
		return
	}

	kind := model.KindGame
	if payload.Kind == string(model.KindDiscord) {
		kind = model.KindDiscord
	}

	result, err := h.dispatcher.Dispatch(r.Context(), command.Request{
		Identity: payload.Identity,
		Kind:     kind,
		Command:  payload.Command,
		Args:     payload.Args,
	})
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, result)
}
