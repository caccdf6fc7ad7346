package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/jacksonlee411/authhooks/internal/routing"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/fieldmeta"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
	"github.com/jacksonlee411/authhooks/modules/authconfig/services"
	"github.com/jacksonlee411/authhooks/pkg/httperr"
)

// NotificationFeed hands out the notifications queued for a session.
type NotificationFeed interface {
	Drain(sessionID string) []types.Notification
	Forget(sessionID string)
}

type HooksController struct {
	Registry      *services.SessionRegistry
	Notifications NotificationFeed
}

type openSessionRequest struct {
	ProjectRef string `json:"project_ref"`
}

type setFieldsRequest struct {
	Fields map[string]json.RawMessage `json:"fields"`
}

type sessionResponse struct {
	Session     services.SessionView `json:"session"`
	FieldErrors services.FieldErrors `json:"field_errors"`
}

type submitResponse struct {
	Submission services.Submission  `json:"submission"`
	Session    services.SessionView `json:"session"`
}

type hookSchemaResponse struct {
	Hooks  []hookSchema  `json:"hooks"`
	Fields []fieldSchema `json:"fields"`
}

type hookSchema struct {
	HookKey      string      `json:"hook_key"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Transport    string      `json:"transport"`
	EnabledField types.Field `json:"enabled_field"`
	URIField     types.Field `json:"uri_field"`
}

type fieldSchema struct {
	FieldKey     types.Field     `json:"field_key"`
	ValueType    types.FieldKind `json:"value_type"`
	HookKey      string          `json:"hook_key"`
	DefaultValue types.Value     `json:"default_value"`
	LabelI18nKey string          `json:"label_i18n_key"`
}

func (c HooksController) HandleSchemaAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	hooks := fieldmeta.ListHookDefinitions()
	if key := strings.TrimSpace(r.URL.Query().Get("hook")); key != "" {
		h, ok := fieldmeta.LookupHookDefinition(key)
		if !ok {
			writeErrorDetails(w, r, http.StatusNotFound, "hook_not_found", "unknown hook "+key, map[string]string{"hook": key})
			return
		}
		hooks = []fieldmeta.HookDefinition{h}
	}

	var out hookSchemaResponse
	selected := make(map[string]bool, len(hooks))
	for _, h := range hooks {
		selected[h.HookKey] = true
		out.Hooks = append(out.Hooks, hookSchema{
			HookKey:      h.HookKey,
			Title:        h.Title,
			Description:  h.Description,
			Transport:    h.Transport,
			EnabledField: h.EnabledField,
			URIField:     h.URIField,
		})
	}
	for _, f := range fieldmeta.ListFieldDefinitions() {
		if !selected[f.HookKey] {
			continue
		}
		out.Fields = append(out.Fields, fieldSchema{
			FieldKey:     f.FieldKey,
			ValueType:    f.ValueType,
			HookKey:      f.HookKey,
			DefaultValue: f.DefaultValue,
			LabelI18nKey: f.LabelI18nKey,
		})
	}
	routing.WriteJSON(w, http.StatusOK, out)
}

// HandleSessionsAPI opens (POST), shows (GET) and closes (DELETE) edit sessions.
func (c HooksController) HandleSessionsAPI(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req openSessionRequest
		if err := httperr.DecodeJSONBody(w, r, 0, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", err.Error())
			return
		}
		projectRef := strings.TrimSpace(req.ProjectRef)
		if projectRef == "" {
			writeError(w, r, http.StatusBadRequest, "missing_project_ref", "project_ref is required")
			return
		}
		s, err := c.Registry.Open(r.Context(), projectRef)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		routing.WriteJSON(w, http.StatusCreated, newSessionResponse(s))

	case http.MethodGet:
		s, ok := c.session(w, r)
		if !ok {
			return
		}
		routing.WriteJSON(w, http.StatusOK, newSessionResponse(s))

	case http.MethodDelete:
		id := strings.TrimSpace(r.URL.Query().Get("session_id"))
		if id == "" {
			writeError(w, r, http.StatusBadRequest, "missing_session_id", "session_id is required")
			return
		}
		if err := c.Registry.Close(id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		if c.Notifications != nil {
			c.Notifications.Forget(id)
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// HandleFieldsAPI applies a batch of field edits. Unknown keys reject the whole batch.
func (c HooksController) HandleFieldsAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	s, ok := c.session(w, r)
	if !ok {
		return
	}
	var req setFieldsRequest
	if err := httperr.DecodeJSONBody(w, r, 0, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	if len(req.Fields) == 0 {
		writeError(w, r, http.StatusBadRequest, "missing_fields", "fields is required")
		return
	}

	keys := make([]string, 0, len(req.Fields))
	for k := range req.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	edits := make([]fieldEdit, 0, len(keys))
	for _, k := range keys {
		field := types.Field(k)
		if !fieldmeta.IsKnownField(field) {
			writeErrorDetails(w, r, http.StatusBadRequest, "unknown_field", "unknown field "+k, map[string]string{"field": k})
			return
		}
		var v types.Value
		if err := json.Unmarshal(req.Fields[k], &v); err != nil {
			writeErrorDetails(w, r, http.StatusBadRequest, "invalid_value", "field "+k+" must be a boolean, a string or null", map[string]string{"field": k})
			return
		}
		edits = append(edits, fieldEdit{field: field, value: v})
	}

	sy := c.Registry.Synchronizer()
	for _, e := range edits {
		if err := sy.SetField(s, e.field, e.value); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	routing.WriteJSON(w, http.StatusOK, newSessionResponse(s))
}

type fieldEdit struct {
	field types.Field
	value types.Value
}

func (c HooksController) HandleSubmitAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	s, ok := c.session(w, r)
	if !ok {
		return
	}
	sub, err := c.Registry.Synchronizer().Submit(r.Context(), s)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	routing.WriteJSON(w, http.StatusOK, submitResponse{Submission: sub, Session: s.View()})
}

func (c HooksController) HandleResetAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	s, ok := c.session(w, r)
	if !ok {
		return
	}
	c.Registry.Synchronizer().Reset(s)
	routing.WriteJSON(w, http.StatusOK, newSessionResponse(s))
}

func (c HooksController) HandleReloadAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	s, ok := c.session(w, r)
	if !ok {
		return
	}
	if err := c.Registry.Synchronizer().Reload(r.Context(), s); err != nil {
		writeServiceError(w, r, err)
		return
	}
	routing.WriteJSON(w, http.StatusOK, newSessionResponse(s))
}

// HandleNotificationsAPI drains the notifications queued for a session.
func (c HooksController) HandleNotificationsAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "missing_session_id", "session_id is required")
		return
	}
	notifications := []types.Notification{}
	if c.Notifications != nil {
		notifications = c.Notifications.Drain(id)
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

func (c HooksController) session(w http.ResponseWriter, r *http.Request) (*services.Session, bool) {
	id := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "missing_session_id", "session_id is required")
		return nil, false
	}
	s, err := c.Registry.Get(id)
	if err != nil {
		writeServiceError(w, r, err)
		return nil, false
	}
	return s, true
}

func newSessionResponse(s *services.Session) sessionResponse {
	view := s.View()
	fieldErrs := services.Validate(view.Current)
	if fieldErrs == nil {
		fieldErrs = services.FieldErrors{}
	}
	return sessionResponse{Session: view, FieldErrors: fieldErrs}
}

var serviceErrorStatus = map[services.ErrorKind]struct {
	status int
	code   string
}{
	services.KindUnknownField:     {status: http.StatusBadRequest, code: "unknown_field"},
	services.KindValidationFailed: {status: http.StatusUnprocessableEntity, code: "validation_failed"},
	services.KindPermissionDenied: {status: http.StatusForbidden, code: "forbidden"},
	services.KindSubmitInProgress: {status: http.StatusConflict, code: "submit_in_progress"},
	services.KindFetchFailed:      {status: http.StatusBadGateway, code: "fetch_failed"},
	services.KindSubmitFailed:     {status: http.StatusBadGateway, code: "submit_failed"},
	services.KindSessionNotFound:  {status: http.StatusNotFound, code: "session_not_found"},
	services.KindSessionClosed:    {status: http.StatusGone, code: "session_closed"},
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := errors.AsType[*services.Error](err)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	m, ok := serviceErrorStatus[e.Kind]
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	var details any
	switch {
	case len(e.Fields) > 0:
		details = e.Fields
	case e.Field != "":
		details = map[string]string{"field": string(e.Field)}
	}
	writeErrorDetails(w, r, m.status, m.code, m.code, details)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string) {
	writeErrorDetails(w, r, status, code, message, nil)
}

func writeErrorDetails(w http.ResponseWriter, r *http.Request, status int, code string, message string, details any) {
	routing.WriteErrorDetails(w, r, routing.RouteClassInternalAPI, status, code, message, details)
}
