package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/shiporskip-backend/internal/domain"
	"github.com/tbourn/shiporskip-backend/internal/http/middleware"
	"github.com/tbourn/shiporskip-backend/internal/identity"
	"github.com/tbourn/shiporskip-backend/internal/research"
	"github.com/tbourn/shiporskip-backend/internal/services"
)

// ---------- fake services ----------

type fakeAnalysis struct {
	beginErr error
	res      *services.AnalysisResult
	err      error
	progress []string // stages emitted by Execute
	block    bool     // Execute waits for ctx

	gotIn  services.AnalyzeInput
	gotID  identity.Identity
	gotKey string
	ran    chan struct{}
}

func (f *fakeAnalysis) Validate(in services.AnalyzeInput) error {
	return (&services.AnalysisService{IdeaMaxRunes: 500}).Validate(in)
}

func (f *fakeAnalysis) Begin(_ context.Context, id identity.Identity, in services.AnalyzeInput) (*services.Ticket, error) {
	f.gotIn, f.gotID = in, id
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return &services.Ticket{Identity: id, ResearchID: "141add05-4415-4938-b5a1-17e0d3171aff"}, nil
}

func (f *fakeAnalysis) Execute(ctx context.Context, _ *services.Ticket, em *research.Emitter) (*services.AnalysisResult, error) {
	if f.ran != nil {
		defer close(f.ran)
	}
	for i, st := range f.progress {
		em.Progress(st, st, (i+1)*10)
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.res, f.err
}

func (f *fakeAnalysis) RunFast(_ context.Context, id identity.Identity, in services.AnalyzeInput, key string) (*services.AnalysisResult, error) {
	f.gotIn, f.gotID, f.gotKey = in, id, key
	return f.res, f.err
}

type fakeQuota struct {
	usage services.Usage
	err   error
}

func (f fakeQuota) Snapshot(_ context.Context, id identity.Identity) (services.Usage, error) {
	u := f.usage
	u.Tier = id.Kind
	return u, f.err
}

type fakeResearch struct {
	items    []domain.Research
	count    int64
	newest   *time.Time
	notesErr error
	gotNotes string
	listHits int
}

func (f *fakeResearch) ListPage(_ context.Context, id identity.Identity, page, pageSize int) ([]domain.Research, int64, error) {
	if !id.Authenticated() {
		return nil, 0, services.ErrAuthRequired
	}
	f.listHits++
	return f.items, f.count, nil
}

func (f *fakeResearch) Get(_ context.Context, id identity.Identity, rid string) (*domain.Research, error) {
	if !id.Authenticated() {
		return nil, services.ErrAuthRequired
	}
	for i := range f.items {
		if f.items[i].ID == rid {
			return &f.items[i], nil
		}
	}
	return nil, services.ErrResearchNotFound
}

func (f *fakeResearch) Delete(ctx context.Context, id identity.Identity, rid string) error {
	_, err := f.Get(ctx, id, rid)
	return err
}

func (f *fakeResearch) UpdateNotes(ctx context.Context, id identity.Identity, rid, notes string) error {
	if _, err := f.Get(ctx, id, rid); err != nil {
		return err
	}
	f.gotNotes = notes
	return f.notesErr
}

func (f *fakeResearch) Stats(_ context.Context, id identity.Identity) (int64, *time.Time, error) {
	if !id.Authenticated() {
		return 0, nil, services.ErrAuthRequired
	}
	return f.count, f.newest, nil
}

type fakeChat struct {
	reply   *services.ChatReply
	err     error
	history []domain.ChatMessage
	gotText string
}

func (f *fakeChat) Send(_ context.Context, id identity.Identity, _ string, content string) (*services.ChatReply, error) {
	if !id.Authenticated() {
		return nil, services.ErrAuthRequired
	}
	f.gotText = content
	return f.reply, f.err
}

func (f *fakeChat) History(_ context.Context, id identity.Identity, _ string) ([]domain.ChatMessage, error) {
	if !id.Authenticated() {
		return nil, services.ErrAuthRequired
	}
	return f.history, f.err
}

type fakeBot struct {
	err      error
	gotToken string
	calls    int
}

func (f *fakeBot) Verify(_ context.Context, token, _ string) error {
	f.calls++
	f.gotToken = token
	return f.err
}

type tokenVerifier struct{}

func (tokenVerifier) Verify(_ context.Context, token string) (identity.Identity, error) {
	if token == "user-token" {
		return identity.User("u1", "founder@example.com"), nil
	}
	return identity.Identity{}, identity.ErrInvalidToken
}

// ---------- router + request helpers ----------

type deps struct {
	analysis *fakeAnalysis
	quota    fakeQuota
	research *fakeResearch
	chat     *fakeChat
	bot      *fakeBot
}

func newDeps() *deps {
	return &deps{
		analysis: &fakeAnalysis{},
		research: &fakeResearch{},
		chat:     &fakeChat{},
		bot:      &fakeBot{},
	}
}

func (d *deps) router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(d.analysis, d.quota, d.research, d.chat, d.bot)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Authenticate(tokenVerifier{}, "salt"))
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, func(_ context.Context, uid, key string, _ time.Time) (bool, error) {
		return uid == "u1" && key == "seen-key", nil
	}))
	r.POST("/analyze/fast", h.AnalyzeFast)
	r.POST("/analyze/deep", h.AnalyzeDeep)
	r.GET("/usage", h.GetUsage)
	r.GET("/me", h.GetMe)
	r.GET("/research", h.ListResearch)
	r.GET("/research/:id", h.GetResearch)
	r.DELETE("/research/:id", h.DeleteResearch)
	r.GET("/research/:id/notes", h.GetNotes)
	r.PUT("/research/:id/notes", h.UpdateNotes)
	r.POST("/research/:id/chat", h.SendChat)
	r.GET("/research/:id/chat", h.ChatHistory)
	return r
}

// streamRecorder adds CloseNotify so gin's c.Stream works under httptest.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
}

func (s *streamRecorder) CloseNotify() <-chan bool { return s.closed }

func doJSON(t *testing.T, r http.Handler, method, path, token string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, isStr := body.(string); isStr {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("error body: %v (%s)", err, w.Body.String())
	}
	return er
}

const testResearchID = "141add05-4415-4938-b5a1-17e0d3171aff"

func contextWithCancel(req *http.Request) (context.Context, context.CancelFunc) {
	return context.WithCancel(req.Context())
}
