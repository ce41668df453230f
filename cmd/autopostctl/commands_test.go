package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/maheshrc27/autopost/internal/models"
)

func TestTriggerRun(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotKey = r.URL.Path, r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/accounts/1/run":
			w.Write([]byte(`{"run_id":"r1","account_id":1,"status":"success","message":"Published 1 of 1 images","images":[{"image_name":"bird1.jpg","status":"success"}]}`))
		case "/api/accounts/2/run":
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"a publication run is already in progress for this account","result":{"account_id":2,"status":"skipped"}}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Unauthorized"}`))
		}
	}))
	defer srv.Close()

	res, err := triggerRun(context.Background(), srv.Client(), srv.URL+"/", "ap_key", 1)
	if err != nil {
		t.Fatalf("triggerRun: %v", err)
	}
	if gotPath != "/api/accounts/1/run" || gotKey != "ap_key" {
		t.Errorf("request = %s with key %q", gotPath, gotKey)
	}
	if res.Status != models.RunStatusSuccess || len(res.Images) != 1 {
		t.Errorf("result = %+v", res)
	}

	res, err = triggerRun(context.Background(), srv.Client(), srv.URL, "ap_key", 2)
	if err == nil || !strings.Contains(err.Error(), "409") {
		t.Errorf("busy run err = %v, want 409", err)
	}
	if res == nil || res.Status != models.RunStatusSkipped {
		t.Errorf("busy run result = %+v, want skipped", res)
	}

	if _, err := triggerRun(context.Background(), srv.Client(), srv.URL, "ap_key", 3); err == nil {
		t.Error("expected error for a rejected request")
	}
}

func TestTriggerRunRequiresAPIKey(t *testing.T) {
	if _, err := triggerRun(context.Background(), http.DefaultClient, "http://127.0.0.1:1", "", 1); err == nil {
		t.Fatal("expected error without an api key")
	}
}
