package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mapchat/api/internal/artifact"
	"mapchat/api/internal/auth"
	"mapchat/api/internal/comments"
	"mapchat/api/internal/export"
	"mapchat/api/internal/search"
	"mapchat/api/internal/session"
	"mapchat/api/internal/tier"
)

var testSecret = []byte("test-secret")

type fakeComments struct {
	listFn    func(ctx context.Context, featureID string) ([]comments.Comment, error)
	createFn  func(ctx context.Context, userID string, in comments.CreateInput) (comments.Comment, tier.Tier, error)
	listAllFn func(ctx context.Context) ([]export.CommentRecord, error)
}

func (f *fakeComments) List(ctx context.Context, featureID string) ([]comments.Comment, error) {
	if f.listFn != nil {
		return f.listFn(ctx, featureID)
	}
	return []comments.Comment{}, nil
}

func (f *fakeComments) Create(ctx context.Context, userID string, in comments.CreateInput) (comments.Comment, tier.Tier, error) {
	if f.createFn != nil {
		return f.createFn(ctx, userID, in)
	}
	return comments.Comment{ID: "c1", FeatureID: in.FeatureID, Text: in.Text, UserID: userID}, tier.Free, nil
}

func (f *fakeComments) ListAllComments(ctx context.Context) ([]export.CommentRecord, error) {
	if f.listAllFn != nil {
		return f.listAllFn(ctx)
	}
	return nil, nil
}

type fakeSearch struct {
	searchFn func(ctx context.Context, q search.Query) search.Response
}

func (f *fakeSearch) Search(ctx context.Context, q search.Query) search.Response {
	if f.searchFn != nil {
		return f.searchFn(ctx, q)
	}
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

type fakeRenderer struct {
	renderFn func(ctx context.Context, region export.Region) ([]byte, error)
}

func (f *fakeRenderer) Render(ctx context.Context, region export.Region) ([]byte, error) {
	if f.renderFn != nil {
		return f.renderFn(ctx, region)
	}
	return []byte("\x89PNG"), nil
}

type fakeArtifacts struct {
	putFn func(ctx context.Context, res *export.Result) (artifact.Stored, error)
}

func (f *fakeArtifacts) Put(ctx context.Context, res *export.Result) (artifact.Stored, error) {
	return f.putFn(ctx, res)
}

// tierByUser resolves a fixed tier per user id.
type tierByUser map[string]tier.Tier

func (m tierByUser) Resolve(_ context.Context, userID string) tier.Tier {
	if t, ok := m[userID]; ok {
		return t
	}
	return tier.Free
}

// newTestServer fills unset collaborators with working defaults.
func newTestServer(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	if deps.Sessions == nil {
		deps.Sessions = session.NewManager(session.Options{CreateDelay: 5 * time.Millisecond})
		t.Cleanup(deps.Sessions.Close)
	}
	if deps.Tiers == nil {
		deps.Tiers = tierByUser{"pro-user": tier.Pro}
	}
	if deps.Exports == nil {
		deps.Exports = export.NewService(export.Options{Renderer: &fakeRenderer{}})
	}
	if deps.Comments == nil {
		deps.Comments = &fakeComments{}
	}
	if deps.Search == nil {
		deps.Search = &fakeSearch{}
	}
	deps.JWTSecret = testSecret
	return NewHTTPServer(deps).Handler()
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.IssueToken(testSecret, userID, userID+"@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

type requestOption func(*http.Request)

func withUser(t *testing.T, userID string) requestOption {
	token := tokenFor(t, userID)
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func do(h http.Handler, method, path string, body io.Reader, opts ...requestOption) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func jsonBody(v any) io.Reader {
	data, _ := json.Marshal(v)
	return bytes.NewReader(data)
}

func multipartFile(t *testing.T, fileName, content string) (io.Reader, requestOption) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte(content))
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	contentType := mw.FormDataContentType()
	return &buf, func(r *http.Request) { r.Header.Set("Content-Type", contentType) }
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := do(h, http.MethodPost, "/api/sessions", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session: status %d body %s", rr.Code, rr.Body.String())
	}
	return decode(t, rr)["id"].(string)
}
