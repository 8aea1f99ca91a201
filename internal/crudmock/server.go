package crudmock

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// storeKey is the identifier field the document store uses natively.
const storeKey = "_id"

type document map[string]interface{}

type collection struct {
	ids  []string
	docs map[string]document
}

func newCollection() *collection {
	return &collection{docs: make(map[string]document)}
}

func (c *collection) list() []document {
	out := make([]document, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.docs[id])
	}
	return out
}

func (c *collection) insert(doc document) document {
	id := uuid.New().String()
	stored := make(document, len(doc)+1)
	for k, v := range doc {
		if k == "id" || k == storeKey {
			continue
		}
		stored[k] = v
	}
	stored[storeKey] = id
	c.ids = append(c.ids, id)
	c.docs[id] = stored
	return stored
}

func (c *collection) update(id string, patch document) (document, bool) {
	stored, ok := c.docs[id]
	if !ok {
		return nil, false
	}
	for k, v := range patch {
		if k == "id" || k == storeKey {
			continue
		}
		stored[k] = v
	}
	return stored, true
}

func (c *collection) delete(id string) {
	if _, ok := c.docs[id]; !ok {
		return
	}
	delete(c.docs, id)
	for i, existing := range c.ids {
		if existing == id {
			c.ids = append(c.ids[:i], c.ids[i+1:]...)
			break
		}
	}
}

// Server is an in-memory stand-in for the CRUD service the sessions talk to.
// Documents carry the store's native "_id" key.
type Server struct {
	mutex       sync.RWMutex
	collections map[string]*collection
	logger      *logrus.Logger
}

func NewServer(logger *logrus.Logger) *Server {
	return &Server{
		collections: map[string]*collection{
			"users":  newCollection(),
			"shops":  newCollection(),
			"menus":  newCollection(),
			"orders": newCollection(),
		},
		logger: logger,
	}
}

// Router mounts the API under /api.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.healthCheck).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/login", s.login).Methods("POST")
	api.HandleFunc("/register", s.register).Methods("POST")
	api.HandleFunc("/users", s.listUsers).Methods("GET")
	api.HandleFunc("/{collection:shops|menus|orders}", s.list).Methods("GET")
	api.HandleFunc("/{collection:shops|menus|orders}", s.create).Methods("POST")
	api.HandleFunc("/{collection:shops|menus|orders}/{id}", s.get).Methods("GET")
	api.HandleFunc("/{collection:users|shops|menus|orders}/{id}", s.update).Methods("PUT")
	api.HandleFunc("/{collection:shops|menus|orders}/{id}", s.remove).Methods("DELETE")
	return router
}

// Seed inserts a document directly and returns its id.
func (s *Server) Seed(collectionName string, doc map[string]interface{}) string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.collections[collectionName].insert(doc)[storeKey].(string)
}

// Count returns the number of documents in a collection.
func (s *Server) Count(collectionName string) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.collections[collectionName].ids)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "crud-mock",
		"time":    time.Now().Format(time.RFC3339),
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, u := range s.collections["users"].list() {
		if u["email"] == creds.Email && u["password"] == creds.Password {
			respondWithJSON(w, http.StatusOK, u)
			return
		}
	}

	s.logger.WithField("email", creds.Email).Warn("Login rejected")
	respondWithError(w, http.StatusUnauthorized, "Invalid credentials")
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var doc document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, u := range s.collections["users"].list() {
		if u["email"] == doc["email"] {
			respondWithError(w, http.StatusInternalServerError, "Email already registered")
			return
		}
	}

	stored := s.collections["users"].insert(doc)
	s.logger.WithField("user_id", stored[storeKey]).Info("User registered")
	respondWithJSON(w, http.StatusOK, stored)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := []document{}
	for _, u := range s.collections["users"].list() {
		if role == "" || u["role"] == role {
			out = append(out, u)
		}
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["collection"]

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	respondWithJSON(w, http.StatusOK, s.collections[name].list())
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	doc, ok := s.collections[vars["collection"]].docs[vars["id"]]
	if !ok {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}
	respondWithJSON(w, http.StatusOK, doc)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["collection"]

	var doc document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	stored := s.collections[name].insert(doc)

	s.logger.WithFields(logrus.Fields{
		"collection": name,
		"id":         stored[storeKey],
	}).Info("Document created")
	respondWithJSON(w, http.StatusOK, stored)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var patch document
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	stored, ok := s.collections[vars["collection"]].update(vars["id"], patch)

	if !ok {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}
	respondWithJSON(w, http.StatusOK, stored)
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	s.mutex.Lock()
	s.collections[vars["collection"]].delete(vars["id"])
	s.mutex.Unlock()

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Deleted"})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"message": message})
}
