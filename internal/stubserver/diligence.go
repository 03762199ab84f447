package stubserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"duedil/internal/domain"
)

// run is one scripted generation for a company URL.
type run struct {
	id        string
	companyID int64
	url       string
	status    domain.Status
	doc       map[string]any
	logs      []map[string]any
}

type wsFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	companyURL := r.URL.Query().Get("company_url")
	s.mu.Lock()
	rn, ok := s.runs[companyURL]
	var resp map[string]any
	if ok {
		resp = rn.snapshotLocked()
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) startProfile(w http.ResponseWriter, r *http.Request) {
	companyURL := r.URL.Query().Get("company_url")
	if companyURL == "" {
		writeError(w, http.StatusBadRequest, "company_url is required")
		return
	}

	s.mu.Lock()
	if existing, ok := s.runs[companyURL]; ok && !existing.status.Terminal() {
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"msg": "already running", "status": "ok"})
		return
	}
	companyID, _ := s.findCompanyByURL(companyURL)
	if companyID == 0 {
		s.mu.Unlock()
		companyID = s.SeedCompany(companyURL, companyURL)
		s.mu.Lock()
	}
	rn := &run{
		id:        uuid.NewString(),
		companyID: companyID,
		url:       companyURL,
		status:    domain.StatusQueued,
		doc: map[string]any{
			"company_name":      companyURL,
			"url":               companyURL,
			"founded":           "",
			"founder":           "",
			"address":           map[string]any{},
			"description":       "",
			"key_individuals":   map[string]any{},
			"security_risks":    map[string]any{},
			"financial_risks":   map[string]any{},
			"operational_risks": map[string]any{},
			"key_relationships": map[string]any{},
			"risk_level_int":    0,
			"status":            "queued",
		},
	}
	s.runs[companyURL] = rn
	s.setDDStatus(companyID, domain.StatusQueued)
	s.mu.Unlock()

	go s.generate(rn)
	writeJSON(w, http.StatusOK, map[string]any{"msg": "started " + rn.id, "status": "ok"})
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile document")
		return
	}
	companyURL, _ := doc["url"].(string)

	s.mu.Lock()
	rn, ok := s.runs[companyURL]
	if ok {
		delete(doc, "logs")
		rn.doc = doc
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"msg": "updated", "status": "ok"})
}

func (s *Server) deleteProfile(w http.ResponseWriter, r *http.Request) {
	companyURL := r.URL.Query().Get("company_url")
	s.mu.Lock()
	rn, ok := s.runs[companyURL]
	if ok {
		delete(s.runs, companyURL)
		s.setDDStatus(rn.companyID, domain.StatusNotAvailable)
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"msg": "deleted", "status": "ok"})
}

// generate walks the scripted agent steps, mutating the run document and
// broadcasting chat/profile frames, then publishes the final report.
func (s *Server) generate(rn *run) {
	steps := []struct {
		agent   string
		message string
		apply   func(doc map[string]any)
	}{
		{
			agent:   "Nora Caldwell (Researcher)",
			message: "Provided initial company data for " + rn.url + ".",
			apply: func(doc map[string]any) {
				doc["description"] = "Automatically collected description for " + rn.url + "."
			},
		},
		{
			agent:   "Julian Frost (Risk Analyst)",
			message: "Reviewed the initial data; searching for sanctions, financial issues and operational risks.",
			apply: func(doc map[string]any) {
				doc["security_risks"] = map[string]any{
					"exposure": "No sanctions hits found in available sources.",
				}
			},
		},
		{
			agent:   "Evelyn Fields (Documentation Specialist)",
			message: "Filled missing fields and recorded the identified risks.",
			apply: func(doc map[string]any) {
				doc["operational_risks"] = map[string]any{
					"delivery": "Schedule and quality risks typical for the sector.",
				}
				doc["key_individuals"] = map[string]any{
					"management": "To be confirmed from registry data.",
				}
				doc["risk_level_int"] = 2
			},
		},
		{
			agent:   "Ethan Pierce (Product Manager)",
			message: "Running a final completeness check before publishing the report.",
			apply:   func(doc map[string]any) {},
		},
	}

	advance := func(status domain.Status, agent, message string, apply func(map[string]any)) (map[string]any, bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.runs[rn.url] != rn {
			// Run was deleted mid-generation.
			return nil, false
		}
		rn.status = status
		rn.doc["status"] = status.String()
		if apply != nil {
			apply(rn.doc)
		}
		if agent != "" {
			rn.logs = append(rn.logs, map[string]any{
				"agent":     agent,
				"message":   message,
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		}
		s.setDDStatus(rn.companyID, status)
		return rn.snapshotLocked(), true
	}

	for _, step := range steps {
		time.Sleep(s.stepDelay)
		snap, alive := advance(domain.StatusRunning, step.agent, step.message, step.apply)
		if !alive {
			return
		}
		s.publish(rn.companyID, wsFrame{Type: "chat", Payload: map[string]any{
			"agent":   step.agent,
			"message": step.message,
		}})
		s.publish(rn.companyID, wsFrame{Type: "profile", Payload: snap})
	}

	time.Sleep(s.stepDelay)
	snap, alive := advance(domain.StatusGenerated, "", "", func(doc map[string]any) {
		doc["risk_level_int"] = 3
		doc["due_diligence_timestamp"] = time.Now().UTC().Format(time.RFC3339)
	})
	if !alive {
		return
	}
	s.publish(rn.companyID, wsFrame{Type: "final_report", Payload: snap})
	s.log.Info("stub generation finished", "url", rn.url)
}

// snapshotLocked renders the wire document including the full log history.
// Caller holds s.mu.
func (rn *run) snapshotLocked() map[string]any {
	out := make(map[string]any, len(rn.doc)+1)
	for k, v := range rn.doc {
		out[k] = v
	}
	logs := make([]any, len(rn.logs))
	for i, l := range rn.logs {
		logs[i] = l
	}
	out["logs"] = logs
	return out
}

func (s *Server) profileSocket(w http.ResponseWriter, r *http.Request) {
	companyID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := make(chan wsFrame, 64)
	s.mu.Lock()
	s.watchers[companyID] = append(s.watchers[companyID], ch)
	// Replay the current document so late subscribers see the run so far.
	var current map[string]any
	for _, rn := range s.runs {
		if rn.companyID == companyID {
			current = rn.snapshotLocked()
			break
		}
	}
	s.mu.Unlock()
	defer s.removeWatcher(companyID, ch)

	if current != nil {
		if err := conn.WriteJSON(wsFrame{Type: "profile", Payload: current}); err != nil {
			return
		}
	}

	// Reader goroutine only detects client disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case f := <-ch:
			if err := conn.WriteJSON(f); err != nil {
				return
			}
			if f.Type == "final_report" {
				return
			}
		}
	}
}

func (s *Server) publish(companyID int64, f wsFrame) {
	s.mu.Lock()
	targets := make([]chan wsFrame, len(s.watchers[companyID]))
	copy(targets, s.watchers[companyID])
	s.mu.Unlock()
	for _, ch := range targets {
		select {
		case ch <- f:
		default:
			s.log.Warn("dropping frame for slow watcher", "company_id", companyID)
		}
	}
}

func (s *Server) removeWatcher(companyID int64, ch chan wsFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.watchers[companyID]
	for i, c := range list {
		if c == ch {
			s.watchers[companyID] = append(list[:i], list[i+1:]...)
			break
		}
	}
}
