// Package dojotest provides an in-memory DefectDojo API for tests.
package dojotest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/z4ce/sonar2dojo/internal/dojo"
)

// Server is a fake DefectDojo v2 API kept in memory
type Server struct {
	*httptest.Server

	Token string

	// FailFinding, when set, makes finding creation answer 400 for matching findings
	FailFinding func(*dojo.Finding) bool
	// FailStatus forces a status code for "METHOD /path/" (e.g. "POST /tests/")
	FailStatus map[string]int

	mu       sync.Mutex
	nextID   int
	state    State
	requests []string
}

// State is a copy of everything the fake currently stores
type State struct {
	Products    []dojo.Product
	Engagements []dojo.Engagement
	Tests       []dojo.Test
	Findings    []dojo.Finding
	Deleted     []int
}

// NewServer starts a fake DefectDojo accepting the given token
func NewServer(token string) *Server {
	s := &Server{Token: token, FailStatus: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *Server) id() int {
	s.nextID++
	return s.nextID
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/api/v2")
	key := r.Method + " " + path
	s.requests = append(s.requests, key)

	if r.Header.Get("Authorization") != "Token "+s.Token {
		http.Error(w, `{"detail":"Invalid token."}`, http.StatusUnauthorized)
		return
	}
	if code, ok := s.FailStatus[key]; ok {
		http.Error(w, `{"detail":"forced failure"}`, code)
		return
	}

	switch {
	case key == "GET /products/":
		name := r.URL.Query().Get("name")
		var results []dojo.Product
		for _, p := range s.state.Products {
			// DefectDojo's name filter is a case-insensitive contains match
			if strings.Contains(strings.ToLower(p.Name), strings.ToLower(name)) {
				results = append(results, p)
			}
		}
		writePage(w, results)
	case key == "POST /products/":
		var p dojo.Product
		if !decode(w, r, &p) {
			return
		}
		p.ID = s.id()
		s.state.Products = append(s.state.Products, p)
		writeJSON(w, http.StatusCreated, p)
	case key == "GET /engagements/":
		q := r.URL.Query()
		var results []dojo.Engagement
		for _, e := range s.state.Engagements {
			if q.Get("product") != "" && strconv.Itoa(e.Product) != q.Get("product") {
				continue
			}
			if q.Get("name") != "" && e.Name != q.Get("name") {
				continue
			}
			results = append(results, e)
		}
		writePage(w, results)
	case key == "POST /engagements/":
		var e dojo.Engagement
		if !decode(w, r, &e) {
			return
		}
		e.ID = s.id()
		s.state.Engagements = append(s.state.Engagements, e)
		writeJSON(w, http.StatusCreated, e)
	case r.Method == http.MethodDelete && strings.HasPrefix(path, "/engagements/"):
		id, err := strconv.Atoi(strings.Trim(strings.TrimPrefix(path, "/engagements/"), "/"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		for i, e := range s.state.Engagements {
			if e.ID == id {
				s.state.Engagements = append(s.state.Engagements[:i], s.state.Engagements[i+1:]...)
				s.state.Deleted = append(s.state.Deleted, id)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		http.NotFound(w, r)
	case key == "POST /tests/":
		var t dojo.Test
		if !decode(w, r, &t) {
			return
		}
		t.ID = s.id()
		s.state.Tests = append(s.state.Tests, t)
		writeJSON(w, http.StatusCreated, t)
	case key == "POST /findings/":
		var f dojo.Finding
		if !decode(w, r, &f) {
			return
		}
		if s.FailFinding != nil && s.FailFinding(&f) {
			http.Error(w, `{"title":["rejected"]}`, http.StatusBadRequest)
			return
		}
		f.ID = s.id()
		s.state.Findings = append(s.state.Findings, f)
		writeJSON(w, http.StatusCreated, f)
	default:
		http.NotFound(w, r)
	}
}

// State returns a snapshot of the stored entities
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Products:    append([]dojo.Product(nil), s.state.Products...),
		Engagements: append([]dojo.Engagement(nil), s.state.Engagements...),
		Tests:       append([]dojo.Test(nil), s.state.Tests...),
		Findings:    append([]dojo.Finding(nil), s.state.Findings...),
		Deleted:     append([]int(nil), s.state.Deleted...),
	}
}

// AddProduct seeds an existing product and returns it with its id
func (s *Server) AddProduct(p dojo.Product) dojo.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	s.state.Products = append(s.state.Products, p)
	return p
}

// Count returns how many requests matched "METHOD /path/"
func (s *Server) Count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r == key {
			n++
		}
	}
	return n
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, `{"detail":"malformed"}`, http.StatusBadRequest)
		return false
	}
	return true
}

func writePage[T any](w http.ResponseWriter, results []T) {
	if results == nil {
		results = []T{}
	}
	writeJSON(w, http.StatusOK, dojo.Page[T]{Count: len(results), Results: results})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
