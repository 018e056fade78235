package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/basa-ph/basa/internal/api"
	"github.com/basa-ph/basa/internal/remedial"
	"github.com/basa-ph/basa/internal/remedial/memstore"
)

func ptr[T any](v T) *T { return &v }

func slide(idx int, avg float64) api.SlideEntry {
	return api.SlideEntry{
		FlashcardIndex:     idx,
		ExpectedText:       "ang bata ay naglalaro",
		Transcription:      "ang bata ay naglalaro",
		PronunciationScore: ptr(avg),
		AccuracyScore:      ptr(avg),
		FluencyScore:       ptr(avg),
		CompletenessScore:  ptr(avg),
		ReadingSpeedWPM:    ptr(95.0),
		SlideAverage:       ptr(avg),
	}
}

func validRequest() api.SubmitRequest {
	return api.SubmitRequest{
		StudentID:          7,
		ApprovedScheduleID: 11,
		SubjectID:          2,
		GradeID:            3,
		PhonemicID:         ptr(int64(4)),
		Slides:             []api.SlideEntry{slide(0, 90), slide(1, 80)},
	}
}

func newServer(t *testing.T) (*httptest.Server, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	st.AddSchedule(remedial.Schedule{ID: 11, SubjectID: 2})
	st.AddSubject(2, "Filipino")
	svc := remedial.NewService(st, remedial.WithClock(func() time.Time {
		return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	}))

	mux := http.NewServeMux()
	api.NewHandler(svc).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, st
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func TestSubmit_Success(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t)

	resp := postJSON(t, srv.URL+"/api/remedial/sessions", validRequest())

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := decode[api.SubmitResponse](t, resp)
	if body.OverallAverage != 85 || body.Remarks == "" || body.Completed || body.MasteryAwarded {
		t.Errorf("unexpected response: %+v", body)
	}
}

func TestSubmit_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       any
		failOn     string
		wantStatus int
		wantError  string
		wantField  string
	}{
		{
			name:       "malformed body",
			body:       `{"studentId": "seven"`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name: "missing grade",
			body: func() api.SubmitRequest {
				r := validRequest()
				r.GradeID = 0
				return r
			}(),
			wantStatus: http.StatusBadRequest,
			wantError:  "gradeId: required",
			wantField:  "gradeId",
		},
		{
			name: "missing metric",
			body: func() api.SubmitRequest {
				r := validRequest()
				r.Slides[1].FluencyScore = nil
				return r
			}(),
			wantStatus: http.StatusBadRequest,
			wantField:  "slides[1].fluencyScore",
		},
		{
			name: "unknown schedule",
			body: func() api.SubmitRequest {
				r := validRequest()
				r.ApprovedScheduleID = 99
				return r
			}(),
			wantStatus: http.StatusNotFound,
			wantError:  "not found",
		},
		{
			name:       "store failure",
			body:       validRequest(),
			failOn:     "upsert_activity",
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal server error",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv, st := newServer(t)
			if tc.failOn != "" {
				st.FailOn = func(op string) error {
					if op == tc.failOn {
						return errors.New("disk on fire")
					}
					return nil
				}
			}

			resp := postJSON(t, srv.URL+"/api/remedial/sessions", tc.body)

			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
			body := decode[api.ErrorResponse](t, resp)
			if !strings.Contains(body.Error, tc.wantError) {
				t.Errorf("error = %q, want it to contain %q", body.Error, tc.wantError)
			}
			if strings.Contains(body.Error, "disk on fire") {
				t.Errorf("internal error leaked: %q", body.Error)
			}
			if tc.wantField != "" && !slices.ContainsFunc(body.Fields, func(f remedial.FieldError) bool {
				return f.Field == tc.wantField
			}) {
				t.Errorf("fields = %+v, want %s", body.Fields, tc.wantField)
			}
			if st.SessionCount() != 0 {
				t.Errorf("failed submission left %d sessions", st.SessionCount())
			}
		})
	}
}

func TestProgress(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t)
	url := srv.URL + "/api/remedial/sessions?studentId=7&approvedScheduleId=11"

	before := decode[remedial.Progress](t, get(t, url))
	if before.Found {
		t.Fatalf("progress before submit = %+v, want found false", before)
	}

	postJSON(t, srv.URL+"/api/remedial/sessions", validRequest())

	resp := get(t, url)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	after := decode[remedial.Progress](t, resp)
	if !after.Found || after.Session == nil || after.Session.OverallAverage != 85 {
		t.Fatalf("progress after submit = %+v", after)
	}
	if len(after.Slides) != 2 || after.Slides[0].FlashcardIndex != 0 || after.Slides[1].SlideAverage != 80 {
		t.Errorf("slides = %+v", after.Slides)
	}
}

func TestProgress_BadQuery(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t)

	tests := []struct {
		query     string
		wantField string
	}{
		{"?approvedScheduleId=11", "studentId"},
		{"?studentId=abc&approvedScheduleId=11", "studentId"},
		{"?studentId=7&approvedScheduleId=-1", "approvedScheduleId"},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			resp := get(t, srv.URL+"/api/remedial/sessions"+tc.query)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			body := decode[api.ErrorResponse](t, resp)
			if len(body.Fields) != 1 || body.Fields[0].Field != tc.wantField {
				t.Errorf("fields = %+v, want %s", body.Fields, tc.wantField)
			}
		})
	}
}

func TestListSessions(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t)

	empty := decode[map[string][]remedial.Session](t, get(t, srv.URL+"/api/students/7/sessions"))
	if s, ok := empty["sessions"]; !ok || s == nil || len(s) != 0 {
		t.Errorf("empty history = %+v, want an empty list", empty)
	}

	postJSON(t, srv.URL+"/api/remedial/sessions", validRequest())

	got := decode[map[string][]remedial.Session](t, get(t, srv.URL+"/api/students/7/sessions?limit=5"))
	if len(got["sessions"]) != 1 || got["sessions"][0].ApprovedScheduleID != 11 {
		t.Errorf("history = %+v", got)
	}

	if resp := get(t, srv.URL+"/api/students/7/sessions?limit=many"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", resp.StatusCode)
	}
	if resp := get(t, srv.URL+"/api/students/0/sessions"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("zero student status = %d, want 400", resp.StatusCode)
	}
}

func TestListMastery(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t)

	req := validRequest()
	req.Completed = true
	req.TeacherFeedback = "Mahusay!"
	resp := postJSON(t, srv.URL+"/api/remedial/sessions", req)
	if res := decode[api.SubmitResponse](t, resp); !res.MasteryAwarded {
		t.Fatalf("submit = %+v, want mastery awarded", res)
	}

	got := decode[map[string][]remedial.MasteryRecord](t, get(t, srv.URL+"/api/students/7/mastery"))
	records := got["mastery"]
	if len(records) != 1 || records[0].SubjectID != 2 || records[0].PhonemicID != 4 {
		t.Errorf("mastery = %+v", records)
	}
}
