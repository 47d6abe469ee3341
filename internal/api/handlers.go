package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"postbot/internal/storage"
	kit "postbot/internal/transport"
	"postbot/internal/trigger"
	logx "postbot/pkg/logx"
)

type handlers struct {
	deps Deps
	log  logx.Logger
}

// postRequest is the create/replace body.
type postRequest struct {
	APIToken   string          `json:"api_token" validate:"max=256"`
	RoomID     string          `json:"room_id" validate:"required,max=128"`
	ThreadID   int             `json:"thread_id" validate:"gte=0"`
	Body       string          `json:"body" validate:"required,max=65536"`
	SelfUnread bool            `json:"self_unread"`
	Trigger    json.RawMessage `json:"trigger" validate:"required"`
}

type postView struct {
	ID        int64           `json:"id"`
	Post      kit.Post        `json:"post"`
	Trigger   json.RawMessage `json:"trigger"`
	Kind      string          `json:"kind,omitempty"`
	Label     string          `json:"label,omitempty"`
	Goal      time.Time       `json:"goal,omitzero"`
	Completed bool            `json:"completed"`
	// Invalid is set when the stored blob no longer restores.
	Invalid string `json:"invalid,omitempty"`
}

type kindView struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
}

func (h *handlers) storeCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.deps.StoreTimeout)
}

func (h *handlers) view(rec storage.Record) postView {
	v := postView{ID: rec.ID, Post: rec.Post}
	if json.Valid([]byte(rec.Trigger)) {
		v.Trigger = json.RawMessage(rec.Trigger)
	} else {
		b, _ := json.Marshal(rec.Trigger)
		v.Trigger = b
	}
	trig, err := h.deps.Registry.Restore(rec.Trigger)
	if err != nil {
		v.Invalid = err.Error()
		return v
	}
	v.Kind = string(trig.Kind())
	v.Label = KindLabel(trig.Kind())
	v.Goal = trig.Goal()
	v.Completed = trig.Completed()
	return v
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if h.deps.Health != nil {
		body["detail"] = h.deps.Health()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handlers) triggerKinds(w http.ResponseWriter, _ *http.Request) {
	kinds := h.deps.Registry.Kinds()
	out := make([]kindView, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, kindView{Kind: string(k), Label: KindLabel(k)})
	}
	writeJSON(w, http.StatusOK, out)
}

// kindTemplate is a freshly created trigger of one kind, ready to be edited
// and sent back in a post.
type kindTemplate struct {
	Kind    string          `json:"kind"`
	Label   string          `json:"label"`
	Trigger json.RawMessage `json:"trigger"`
}

func (h *handlers) triggerTemplate(w http.ResponseWriter, r *http.Request) {
	kind := trigger.Kind(chi.URLParam(r, "kind"))
	trig, err := h.deps.Registry.Create(kind)
	if err != nil {
		if errors.Is(err, trigger.ErrUnknownKind) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	blob, err := trigger.Marshal(trig)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, kindTemplate{
		Kind:    string(kind),
		Label:   KindLabel(kind),
		Trigger: json.RawMessage(blob),
	})
}

func (h *handlers) listPosts(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("api_token")
	ctx, cancel := h.storeCtx(r)
	recs, err := h.deps.Store.List(ctx)
	cancel()
	if err != nil {
		h.storeError(w, err)
		return
	}
	out := make([]postView, 0, len(recs))
	for _, rec := range recs {
		if token != "" && rec.Post.APIToken != token {
			continue
		}
		out = append(out, h.view(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.storeCtx(r)
	rec, err := h.deps.Store.Get(ctx, id)
	cancel()
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(rec))
}

func (h *handlers) createPost(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.bindRecord(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.storeCtx(r)
	id, err := h.deps.Store.Insert(ctx, rec)
	cancel()
	if err != nil {
		h.storeError(w, err)
		return
	}
	rec.ID = id
	h.log.Info("post registered", logx.Int64("id", id), logx.String("room", rec.Post.RoomID))
	w.Header().Set("Location", "/api/posts/"+strconv.FormatInt(id, 10))
	writeJSON(w, http.StatusCreated, h.view(rec))
}

func (h *handlers) replacePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, ok := h.bindRecord(w, r)
	if !ok {
		return
	}
	rec.ID = id
	ctx, cancel := h.storeCtx(r)
	err := h.deps.Store.Update(ctx, rec)
	cancel()
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.log.Info("post replaced", logx.Int64("id", id))
	writeJSON(w, http.StatusOK, h.view(rec))
}

func (h *handlers) deletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.storeCtx(r)
	err := h.deps.Store.Delete(ctx, id)
	cancel()
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.log.Info("post deleted", logx.Int64("id", id))
	w.WriteHeader(http.StatusNoContent)
}

// bindRecord decodes and validates the body and normalizes the trigger blob
// through the registry.
func (h *handlers) bindRecord(w http.ResponseWriter, r *http.Request) (storage.Record, bool) {
	var req postRequest
	if err := bindJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return storage.Record{}, false
	}
	trig, err := h.deps.Registry.Restore(string(req.Trigger))
	if err != nil {
		writeError(w, triggerStatus(err), err.Error())
		return storage.Record{}, false
	}
	blob, err := trigger.Marshal(trig)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return storage.Record{}, false
	}
	return storage.Record{
		Post: kit.Post{
			APIToken:   req.APIToken,
			RoomID:     req.RoomID,
			ThreadID:   req.ThreadID,
			Body:       req.Body,
			SelfUnread: req.SelfUnread,
		},
		Trigger: blob,
	}, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func triggerStatus(err error) int {
	switch {
	case errors.Is(err, trigger.ErrUnknownKind),
		errors.Is(err, trigger.ErrMalformedBlob),
		errors.Is(err, trigger.ErrInvalidTimeFormat):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func (h *handlers) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrUnavailable):
		h.log.Warn("store unavailable", logx.Err(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		h.log.Error("store error", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
