package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/autogrow/api"
	"github.com/mjasion/balena-home/autogrow/dashboard"
	"github.com/mjasion/balena-home/autogrow/render"
)

type actionResponse struct {
	OK    bool   `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, actionResponse{OK: true})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, actionResponse{Error: message})
}

// writeActionError maps engine errors to the alert text shown by the page
func writeActionError(w http.ResponseWriter, err error) {
	if errors.Is(err, api.ErrMissingReadingFields) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var actionErr *dashboard.ActionError
	if errors.As(err, &actionErr) {
		writeError(w, http.StatusBadGateway, actionErr.Message)
		return
	}
	writeError(w, http.StatusBadGateway, render.LoadFailed)
}

// decodeBody reads an optional JSON body into dst; an empty body leaves dst untouched
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// field reads a single text field from a JSON body, falling back to form and query values
func field(r *http.Request, name string) (string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body map[string]string
		if err := decodeBody(r, &body); err != nil {
			return "", err
		}
		return body[name], nil
	}
	return r.FormValue(name), nil
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// detach keeps an action's follow-up reload running after the client disconnects
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := s.renderer.Page(w, render.PageData{
		Query:       s.engine.Query(),
		DeviceQuery: s.engine.DeviceQuery(),
		DeviceID:    s.engine.WateringDevice(),
		Fragments:   s.view.Snapshot(),
	})
	if err != nil {
		s.logger.Error("failed to render page", zap.Error(err))
	}
}

func (s *Server) handleFragment(w http.ResponseWriter, r *http.Request) {
	fragment, ok := s.view.Get(mux.Vars(r)["target"])
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Fragment-Seq", strconv.FormatUint(fragment.Seq, 10))
	io.WriteString(w, fragment.HTML)
}

func (s *Server) handleSearchSensors(w http.ResponseWriter, r *http.Request) {
	q, err := field(r, "q")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.engine.SearchSensors(detach(r), q); err != nil {
		writeActionError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleRefreshSensors(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RefreshSensors(detach(r)); err != nil {
		writeActionError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleCreateSensor(w http.ResponseWriter, r *http.Request) {
	var in api.SensorReadingInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	reading, err := s.engine.CreateSensor(detach(r), in)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reading)
}

func (s *Server) handleUpdateSensor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var upd api.SensorReadingUpdate
	if err := decodeBody(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	reading, err := s.engine.UpdateSensor(detach(r), id, upd)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handleDeleteSensor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.engine.DeleteSensor(detach(r), id); err != nil {
		writeActionError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleSearchWateringHistory(w http.ResponseWriter, r *http.Request) {
	deviceID, err := field(r, "device_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.engine.SearchWateringHistory(detach(r), deviceID); err != nil {
		writeActionError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleRefreshWateringHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RefreshWateringHistory(detach(r)); err != nil {
		writeActionError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleDeleteWateringHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.engine.DeleteWateringHistory(detach(r), id); err != nil {
		writeActionError(w, err)
		return
	}
	writeOK(w)
}

type pumpRequest struct {
	PumpActive *bool `json:"pump_active"`
}

func (s *Server) handleSetPump(w http.ResponseWriter, r *http.Request) {
	var req pumpRequest
	if err := decodeBody(r, &req); err != nil || req.PumpActive == nil {
		writeError(w, http.StatusBadRequest, "pump_active is required")
		return
	}
	event, err := s.engine.SetPump(detach(r), *req.PumpActive)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}
