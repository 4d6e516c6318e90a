package testservice

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/handlerqueue/multipart-contract-tests/servicedef"
)

const scopesPathPrefix = "/scopes/"

// status returns the response to the status query.
func (s *Service) status() servicedef.StatusRep {
	capabilities := []string{
		servicedef.CapabilityFaultInjection,
		servicedef.CapabilityLogSink,
		servicedef.CapabilityUploadInspection,
	}
	if s.descriptor.HasHandler(SessionStoreHandler) {
		capabilities = append(capabilities, servicedef.CapabilityHiddenStore)
	}
	rep := servicedef.StatusRep{
		Name:         s.descriptor.Name,
		HandlerQueue: s.descriptor.HandlerQueue,
		Capabilities: capabilities,
		AppPath:      s.appPath,
	}
	if max := s.descriptor.Multipart.MaxContentLength; max > 0 {
		rep.MaxUploadBytes = ldvalue.NewOptionalInt(int(max))
	}
	return rep
}

func (s *Service) serveRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.status())
	case http.MethodPost:
		var params servicedef.CreateScopeParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			http.Error(w, fmt.Sprintf("invalid scope parameters: %s", err), http.StatusBadRequest)
			return
		}
		sc := s.scopes.open(params)
		s.logger.WithField("scope", sc.id).Infof("opened scope for test %q", params.Tag)
		w.Header().Set("Location", scopesPathPrefix+sc.id)
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		s.logger.Info("test harness asked the service to stop")
		w.WriteHeader(http.StatusNoContent)
		if s.onStop != nil {
			go s.onStop()
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Service) serveScope(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, scopesPathPrefix)
	sc := s.scopes.get(id)
	if sc == nil {
		http.Error(w, "unknown scope", http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var params servicedef.CommandParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			http.Error(w, fmt.Sprintf("invalid command: %s", err), http.StatusBadRequest)
			return
		}
		s.runCommand(w, sc, params)
	case http.MethodDelete:
		s.scopes.close(id)
		s.logger.WithField("scope", id).Infof("closed scope for test %q", sc.tag)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Service) runCommand(w http.ResponseWriter, sc *scope, params servicedef.CommandParams) {
	uploadPath := filepath.Join(s.uploadDir, UploadFileName)
	switch params.Command {
	case servicedef.CommandResetUploads:
		if err := os.Remove(uploadPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case servicedef.CommandInjectFault:
		if params.Fault != servicedef.FaultPartWriteFailure {
			http.Error(w, fmt.Sprintf("unknown fault %q", params.Fault), http.StatusBadRequest)
			return
		}
		s.faults.inject(sc.id, params.Fault)
		w.WriteHeader(http.StatusNoContent)
	case servicedef.CommandInspectUpload:
		rep := servicedef.UploadRep{Name: UploadFileName}
		if fi, err := os.Stat(uploadPath); err == nil {
			rep.Exists = true
			rep.Size = ldvalue.NewOptionalInt(int(fi.Size()))
		}
		writeJSON(w, http.StatusOK, rep)
	default:
		http.Error(w, fmt.Sprintf("unknown command %q", params.Command), http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
