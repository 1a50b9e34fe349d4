package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"DocrestAPI/internal/httperr"
	"DocrestAPI/internal/logger"
	"DocrestAPI/internal/service"
)

// maxBodyBytes ограничивает размер тела запроса.
const maxBodyBytes = 4 << 20

// Resource exposes one service over HTTP. Item routes read the identity from
// the {id} path value; collection-level PATCH and DELETE act on every match.
type Resource struct {
	Name string
	svc  *service.Service
}

func NewResource(name string, svc *service.Service) *Resource {
	return &Resource{Name: name, svc: svc}
}

func (h *Resource) Find(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Find(r.Context(), h.params(r, service.ID{}, nil))
	h.respond(w, r, http.StatusOK, res, err)
}

func (h *Resource) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Get(r.Context(), h.params(r, itemID(r), nil))
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Resource) Create(w http.ResponseWriter, r *http.Request) {
	body, ok := h.body(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Create(r.Context(), h.params(r, service.ID{}, body))
	h.respond(w, r, http.StatusCreated, res, err)
}

func (h *Resource) Update(w http.ResponseWriter, r *http.Request) {
	body, ok := h.body(w, r)
	if !ok {
		return
	}
	doc, err := h.svc.Update(r.Context(), h.params(r, itemID(r), body))
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Resource) Patch(w http.ResponseWriter, r *http.Request) {
	h.patch(w, r, itemID(r))
}

// PatchMany применяет patch ко всем записям, подходящим под query.
func (h *Resource) PatchMany(w http.ResponseWriter, r *http.Request) {
	h.patch(w, r, service.Multi)
}

func (h *Resource) patch(w http.ResponseWriter, r *http.Request, id service.ID) {
	body, ok := h.body(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Patch(r.Context(), h.params(r, id, body))
	h.respond(w, r, http.StatusOK, res, err)
}

func (h *Resource) Remove(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Remove(r.Context(), h.params(r, itemID(r), nil))
	h.respond(w, r, http.StatusOK, res, err)
}

func (h *Resource) RemoveMany(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Remove(r.Context(), h.params(r, service.Multi, nil))
	h.respond(w, r, http.StatusOK, res, err)
}

func itemID(r *http.Request) service.ID {
	return service.IDOf(r.PathValue("id"))
}

func (h *Resource) params(r *http.Request, id service.ID, body any) service.Params {
	return service.Params{
		ID:    id,
		Query: ParseQuery(r.URL.Query()),
		Body:  body,
	}
}

// body читает JSON-тело; при ошибке ответ уже записан.
func (h *Resource) body(w http.ResponseWriter, r *http.Request) (any, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		logger.Warn("read_body_failed", map[string]any{
			"resource": h.Name,
			"error":    err.Error(),
		})
		h.writeError(w, httperr.BadRequest("Failed to read body: "+err.Error()))
		return nil, false
	}
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		logger.Warn("invalid_json", map[string]any{
			"resource": h.Name,
			"error":    err.Error(),
		})
		h.writeError(w, httperr.BadRequest("Invalid JSON body: "+err.Error()))
		return nil, false
	}
	return body, true
}

func (h *Resource) respond(w http.ResponseWriter, r *http.Request, status int, result any, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logger.Error("write_response_failed", map[string]any{
			"resource": h.Name,
			"path":     r.URL.Path,
			"error":    err.Error(),
		})
	}
}

// writeError отдаёт ошибку в JSON-форме каталога; неизвестные ошибки
// становятся GeneralError.
func (h *Resource) writeError(w http.ResponseWriter, err error) {
	var he *httperr.Error
	if !errors.As(err, &he) {
		he = httperr.GeneralError(err.Error(), httperr.WithCause(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.Code)
	_ = json.NewEncoder(w).Encode(he)
}
