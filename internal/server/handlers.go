package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/stageleft/convoke/internal/meeting"
	"github.com/stageleft/convoke/internal/plan"
)

// meetingJSON is the wire shape of a meeting.
type meetingJSON struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	Plan             plan.Plan  `json:"plan"`
	PlanMarkdown     string     `json:"plan_markdown,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	ExtensionSeconds int        `json:"extension_seconds"`
}

func toMeetingJSON(m meeting.Meeting) meetingJSON {
	return meetingJSON{
		ID:               m.ID,
		Status:           string(m.Status),
		Plan:             m.Plan,
		PlanMarkdown:     m.PlanMarkdown,
		CreatedAt:        m.CreatedAt,
		StartedAt:        m.StartedAt,
		EndedAt:          m.EndedAt,
		ExtensionSeconds: m.ExtensionSeconds,
	}
}

// chunkJSON is the wire shape of a chunk. Audio is served separately.
type chunkJSON struct {
	ID              string     `json:"id"`
	Sequence        int        `json:"sequence_number"`
	DurationSeconds float64    `json:"duration_seconds"`
	SizeBytes       int        `json:"size_bytes"`
	Transcript      string     `json:"transcript,omitempty"`
	TranscribedAt   *time.Time `json:"transcribed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toChunkJSON(c meeting.Chunk) chunkJSON {
	return chunkJSON{
		ID:              c.ID,
		Sequence:        c.Sequence,
		DurationSeconds: c.DurationSeconds,
		SizeBytes:       len(c.Audio),
		Transcript:      c.Transcript,
		TranscribedAt:   c.TranscribedAt,
		CreatedAt:       c.CreatedAt,
	}
}

// interventionJSON is the wire shape of an intervention.
type interventionJSON struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Question    string     `json:"question"`
	Note        string     `json:"note,omitempty"`
	Displayed   bool       `json:"displayed"`
	DismissedAt *time.Time `json:"dismissed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toInterventionJSON(iv meeting.Intervention) interventionJSON {
	return interventionJSON{
		ID:          iv.ID,
		Kind:        string(iv.Kind),
		Question:    iv.Question,
		Note:        iv.Note,
		Displayed:   iv.Displayed,
		DismissedAt: iv.DismissedAt,
		CreatedAt:   iv.CreatedAt,
	}
}

// handleCreateMeeting accepts a plan either as raw markdown (text/markdown)
// or wrapped in JSON as {"plan_markdown": "..."}.
func (s *Server) handleCreateMeeting(w http.ResponseWriter, r *http.Request) {
	markdown, err := readPlanBody(r)
	if err != nil {
		writeError(w, err)
		return
	}

	m, err := s.cfg.Coordinator.CreateMeeting(r.Context(), markdown)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMeetingJSON(m))
}

// readPlanBody extracts the plan markdown from the request body.
func readPlanBody(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxChunkUploadBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req struct {
			PlanMarkdown string `json:"plan_markdown"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return "", fmt.Errorf("%w: decode request: %v", meeting.ErrInvalidArgument, err)
		}
		return req.PlanMarkdown, nil
	}
	return string(body), nil
}

func (s *Server) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	ms, err := s.cfg.Store.ListMeetings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]meetingJSON, 0, len(ms))
	for _, m := range ms {
		out = append(out, toMeetingJSON(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMeeting(w http.ResponseWriter, r *http.Request) {
	m, err := s.cfg.Store.GetMeeting(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMeetingJSON(m))
}

func (s *Server) handleStartMeeting(w http.ResponseWriter, r *http.Request) {
	m, err := s.cfg.Coordinator.Start(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMeetingJSON(m))
}

func (s *Server) handleEndMeeting(w http.ResponseWriter, r *http.Request) {
	m, err := s.cfg.Coordinator.End(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMeetingJSON(m))
}

func (s *Server) handleExtendMeeting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds int `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: decode request: %v", meeting.ErrInvalidArgument, err))
		return
	}

	m, err := s.cfg.Coordinator.Extend(r.Context(), r.PathValue("id"), req.Seconds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMeetingJSON(m))
}

// handleIngestChunk accepts one audio chunk as a multipart form with fields
// "sequence", "duration_seconds", and an "audio" file part.
func (s *Server) handleIngestChunk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChunkUploadBytes)
	if err := r.ParseMultipartForm(maxChunkUploadBytes); err != nil {
		writeError(w, fmt.Errorf("%w: parse multipart form: %v", meeting.ErrInvalidArgument, err))
		return
	}

	sequence, err := strconv.Atoi(r.FormValue("sequence"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: sequence must be an integer", meeting.ErrInvalidArgument))
		return
	}
	duration, err := strconv.ParseFloat(r.FormValue("duration_seconds"), 64)
	if err != nil {
		writeError(w, fmt.Errorf("%w: duration_seconds must be a number", meeting.ErrInvalidArgument))
		return
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, fmt.Errorf("%w: missing audio file part", meeting.ErrInvalidArgument))
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, fmt.Errorf("read audio part: %w", err))
		return
	}

	c, err := s.cfg.Coordinator.IngestChunk(r.Context(), r.PathValue("id"), sequence, audio, duration)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChunkJSON(c))
}

func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	chunks, err := s.cfg.Store.ListChunks(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]chunkJSON, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, toChunkJSON(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.Atoi(r.PathValue("seq"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: sequence must be an integer", meeting.ErrInvalidArgument))
		return
	}
	c, err := s.cfg.Store.GetChunk(r.Context(), r.PathValue("id"), seq)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChunkJSON(c))
}

func (s *Server) handleGetChunkAudio(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.Atoi(r.PathValue("seq"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: sequence must be an integer", meeting.ErrInvalidArgument))
		return
	}
	c, err := s.cfg.Store.GetChunk(r.Context(), r.PathValue("id"), seq)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(c.Audio)))
	_, _ = w.Write(c.Audio)
}

// handleIngestRecording accepts a complete meeting recording, splits it into
// fixed-length segments with ffmpeg, and feeds each through the normal chunk
// pipeline. Sequence numbers continue after the highest existing chunk.
func (s *Server) handleIngestRecording(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Splitter == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "recording uploads require ffmpeg", Code: "unavailable"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRecordingUploadBytes)
	audio, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, fmt.Errorf("%w: read recording: %v", meeting.ErrInvalidArgument, err))
		return
	}
	if len(audio) == 0 {
		writeError(w, fmt.Errorf("%w: empty recording", meeting.ErrInvalidArgument))
		return
	}

	meetingID := r.PathValue("id")
	segments, err := s.cfg.Splitter.Split(r.Context(), audio, s.cfg.RecordingSegmentSeconds)
	if err != nil {
		writeError(w, fmt.Errorf("split recording: %w", err))
		return
	}

	existing, err := s.cfg.Store.ListChunks(r.Context(), meetingID)
	if err != nil {
		writeError(w, err)
		return
	}
	next := 1
	if n := len(existing); n > 0 {
		next = existing[n-1].Sequence + 1
	}

	out := make([]chunkJSON, 0, len(segments))
	for i, seg := range segments {
		c, err := s.cfg.Coordinator.IngestChunk(r.Context(), meetingID, next+i, seg.Audio, seg.DurationSeconds)
		if err != nil {
			// Report what was ingested so far alongside the failure.
			writeJSON(w, statusFor(err), struct {
				Error    string      `json:"error"`
				Ingested []chunkJSON `json:"ingested"`
			}{Error: err.Error(), Ingested: out})
			return
		}
		out = append(out, toChunkJSON(c))
	}
	writeJSON(w, http.StatusCreated, out)
}

// statusFor maps a domain error to its HTTP status without writing a body.
func statusFor(err error) int {
	switch {
	case errors.Is(err, meeting.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, meeting.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, meeting.ErrDuplicateChunk), errors.Is(err, meeting.ErrInvalidState):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) handleListInterventions(w http.ResponseWriter, r *http.Request) {
	ivs, err := s.cfg.Store.ListInterventions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]interventionJSON, 0, len(ivs))
	for _, iv := range ivs {
		out = append(out, toInterventionJSON(iv))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDisplayIntervention(w http.ResponseWriter, r *http.Request) {
	err := s.cfg.Store.MarkInterventionDisplayed(r.Context(), r.PathValue("id"), r.PathValue("iid"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDismissIntervention(w http.ResponseWriter, r *http.Request) {
	err := s.cfg.Store.DismissIntervention(r.Context(), r.PathValue("id"), r.PathValue("iid"), time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Searcher == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "search requires an embeddings provider", Code: "unavailable"})
		return
	}

	meetingID := r.PathValue("id")
	if _, err := s.cfg.Store.GetMeeting(r.Context(), meetingID); err != nil {
		writeError(w, err)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer", meeting.ErrInvalidArgument))
			return
		}
		limit = n
	}

	matches, err := s.cfg.Searcher.Search(r.Context(), meetingID, r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleProtocol(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Protocol == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "protocol generation is not configured", Code: "unavailable"})
		return
	}

	meetingID := r.PathValue("id")
	m, err := s.cfg.Store.GetMeeting(r.Context(), meetingID)
	if err != nil {
		writeError(w, err)
		return
	}
	chunks, err := s.cfg.Store.ListChunks(r.Context(), meetingID)
	if err != nil {
		writeError(w, err)
		return
	}
	ivs, err := s.cfg.Store.ListInterventions(r.Context(), meetingID)
	if err != nil {
		writeError(w, err)
		return
	}

	proto, err := s.cfg.Protocol.Generate(r.Context(), m, chunks, ivs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proto)
}
