package crudmock

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	s := NewServer(logger)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return s, srv
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestCreateUsesStoreKey(t *testing.T) {
	_, srv := newTestServer(t)

	resp, doc := doJSON(t, http.MethodPost, srv.URL+"/api/shops", map[string]interface{}{"name": "Warung A", "id": "ignored"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if _, ok := doc["_id"]; !ok {
		t.Error("Expected _id on created document")
	}
	if _, ok := doc["id"]; ok {
		t.Error("Expected client id to be dropped")
	}
}

func TestUpdateAndDelete(t *testing.T) {
	s, srv := newTestServer(t)
	id := s.Seed("orders", map[string]interface{}{"status": "PROSES", "workerId": "w-1"})

	resp, doc := doJSON(t, http.MethodPut, srv.URL+"/api/orders/"+id, map[string]interface{}{"status": "ORDERED"})
	if resp.StatusCode != http.StatusOK || doc["status"] != "ORDERED" || doc["workerId"] != "w-1" {
		t.Errorf("Unexpected update response %d: %v", resp.StatusCode, doc)
	}

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/orders/missing", map[string]interface{}{"status": "ORDERED"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}

	doJSON(t, http.MethodDelete, srv.URL+"/api/orders/"+id, nil)
	if s.Count("orders") != 0 {
		t.Errorf("Expected order to be deleted, %d left", s.Count("orders"))
	}
}

func TestLogin(t *testing.T) {
	s, srv := newTestServer(t)
	s.Seed("users", map[string]interface{}{"email": "budi@office.id", "password": "secret", "role": "WORKER"})

	resp, doc := doJSON(t, http.MethodPost, srv.URL+"/api/login", map[string]string{"email": "budi@office.id", "password": "secret"})
	if resp.StatusCode != http.StatusOK || doc["email"] != "budi@office.id" {
		t.Errorf("Expected successful login, got %d: %v", resp.StatusCode, doc)
	}

	resp, doc = doJSON(t, http.MethodPost, srv.URL+"/api/login", map[string]string{"email": "budi@office.id", "password": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized || doc["message"] != "Invalid credentials" {
		t.Errorf("Expected 401, got %d: %v", resp.StatusCode, doc)
	}
}

func TestUsersByRole(t *testing.T) {
	s, srv := newTestServer(t)
	s.Seed("users", map[string]interface{}{"name": "Budi", "role": "WORKER"})
	s.Seed("users", map[string]interface{}{"name": "Joko", "role": "OFFICE_BOY"})

	resp, err := http.Get(srv.URL + "/api/users?role=OFFICE_BOY")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var users []map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&users)
	if len(users) != 1 || users[0]["name"] != "Joko" {
		t.Errorf("Unexpected users: %v", users)
	}
}
