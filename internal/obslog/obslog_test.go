package obslog

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewUsesJSONFormatterInProduction(t *testing.T) {
	log := New("production")
	if _, ok := log.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("Formatter = %T, want *logrus.JSONFormatter", log.Formatter)
	}
}

func TestNewUsesTextFormatterElsewhere(t *testing.T) {
	for _, env := range []string{"development", "testing", ""} {
		log := New(env)
		if _, ok := log.Formatter.(*logrus.TextFormatter); !ok {
			t.Errorf("environment %q: Formatter = %T, want *logrus.TextFormatter", env, log.Formatter)
		}
	}
}

func TestMiddlewareLogsStatusAndPath(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	handler := Middleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/chat/list", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("recorder code = %d, want %d", rec.Code, http.StatusTeapot)
	}
	out := buf.String()
	if !strings.Contains(out, `"status":418`) {
		t.Errorf("log output missing status field: %s", out)
	}
	if !strings.Contains(out, `"path":"/chat/list"`) {
		t.Errorf("log output missing path field: %s", out)
	}
}

func TestMiddlewareDefaultsStatusTo200WhenUnset(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	handler := Middleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !strings.Contains(buf.String(), `"status":200`) {
		t.Errorf("log output missing default 200 status: %s", buf.String())
	}
}

func TestMiddlewareLogsErrorLevelOn5xx(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	handler := Middleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Errorf("expected error level log on a 5xx response, got: %s", buf.String())
	}
}
