package server

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/attention/internal/engine"
	"github.com/lazypower/attention/internal/interaction"
)

func (s *Server) handleScaling(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Scaling.Snapshot())
}

type contextView struct {
	ID          string `json:"id"`
	Entries     int    `json:"entries"`
	UserEvents  int    `json:"user_events"`
	Interesting int    `json:"interesting"`
	Landmarks   int    `json:"landmarks"`
}

func (s *Server) handleContexts(w http.ResponseWriter, r *http.Request) {
	out := []contextView{}
	for _, id := range s.engine.Contexts() {
		c, err := s.engine.Context(id)
		if err != nil {
			continue
		}
		out = append(out, contextView{
			ID:          id,
			Entries:     c.Len(),
			UserEvents:  c.UserEventCount(),
			Interesting: len(c.Interesting()),
			Landmarks:   len(c.Landmarks()),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// lookup resolves the {contextID} parameter, writing a 404 when it is unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*interaction.Context, bool) {
	id := chi.URLParam(r, "contextID")
	c, err := s.engine.Context(id)
	if errors.Is(err, engine.ErrUnknownContext) {
		writeError(w, http.StatusNotFound, "unknown context "+strconv.Quote(id))
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return c, true
}

func (s *Server) handleInterest(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var out []interaction.Interest
	if r.URL.Query().Get("landmarks") != "" {
		out = c.Landmarks()
	} else {
		out = c.Interesting()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleElement(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	handle, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || handle == "" {
		writeError(w, http.StatusBadRequest, "invalid handle")
		return
	}
	st, found := c.Get(handle)
	if !found {
		writeError(w, http.StatusNotFound, "no interest recorded for "+strconv.Quote(handle))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"interest":    st,
		"interesting": st.Interesting(),
	})
}

type entryView struct {
	Seq                  int       `json:"seq"`
	Kind                 string    `json:"kind"`
	StructureKind        string    `json:"structure_kind"`
	Handle               string    `json:"handle"`
	OriginID             string    `json:"origin_id"`
	Navigation           string    `json:"navigation,omitempty"`
	Delta                string    `json:"delta"`
	Interest             float64   `json:"interest"`
	Date                 time.Time `json:"date"`
	EndDate              time.Time `json:"end_date"`
	NumCollapsedEvents   int       `json:"num_collapsed_events"`
	EventCountOnCreation int       `json:"event_count_on_creation"`
	Durations            string    `json:"durations"`
	Score                float64   `json:"score"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}

	history := c.History()
	start := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n < len(history) {
			start = len(history) - n
		}
	}

	out := make([]entryView, 0, len(history)-start)
	for i := start; i < len(history); i++ {
		a := history[i]
		out = append(out, entryView{
			Seq:                  i,
			Kind:                 a.Kind.String(),
			StructureKind:        a.StructureKind,
			Handle:               a.Handle,
			OriginID:             a.OriginID,
			Navigation:           a.NavigatedRelation,
			Delta:                a.Delta,
			Interest:             a.InterestContribution,
			Date:                 a.Date,
			EndDate:              a.EndDate,
			NumCollapsedEvents:   a.NumCollapsedEvents,
			EventCountOnCreation: a.EventCountOnCreation,
			Durations:            a.DurationsText(),
			Score:                a.Score,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
