package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"marketbot/internal/config"
	"marketbot/internal/domain"
	"marketbot/internal/lang"
	"marketbot/internal/media"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newResolver(props map[string]string) *config.Resolver {
	return config.NewResolver(config.ResolverConfig{
		Defaults:  props,
		LookupEnv: func(string) (string, bool) { return "", false },
	})
}

// --- Mocks ---

type mockFiles struct {
	urlErr    error
	data      []byte
	urlCalls  int
	downloads int
}

func (m *mockFiles) FileURL(_ context.Context, fileID string) (string, error) {
	m.urlCalls++
	if m.urlErr != nil {
		return "", m.urlErr
	}
	return "https://files.test/" + fileID, nil
}

func (m *mockFiles) Download(context.Context, string) ([]byte, error) {
	m.downloads++
	return m.data, nil
}

type mockStage struct {
	name   string
	result domain.StageResult
	calls  int
}

func (m *mockStage) Name() string { return m.name }

func (m *mockStage) Transcribe(context.Context, *media.Payload) domain.StageResult {
	m.calls++
	return m.result
}

func isDemo(s string) bool {
	for _, d := range DemoTranscripts() {
		if d == s {
			return true
		}
	}
	return false
}

// --- Pipeline ---

func TestTranscribe_NoFileIDFailsWithoutNetwork(t *testing.T) {
	files := &mockFiles{}
	p := New(Config{Files: files, Logger: testLogger()})
	if _, ok := p.Transcribe(context.Background(), domain.Attachment{}); ok {
		t.Fatal("expected failure without file id")
	}
	if files.urlCalls != 0 {
		t.Fatalf("expected no file lookups, got %d", files.urlCalls)
	}
}

func TestTranscribe_FirstSuccessWins(t *testing.T) {
	a := &mockStage{name: "a", result: domain.Decline(domain.ErrMissingCredential)}
	b := &mockStage{name: "b", result: domain.Success("hello 世界")}
	c := &mockStage{name: "c", result: domain.Success("never")}
	p := New(Config{Files: &mockFiles{}, Stages: []Stage{a, b, c}, Logger: testLogger()})

	tr, ok := p.Transcribe(context.Background(), domain.Attachment{FileID: "f1"})
	if !ok || tr.Text != "hello 世界" || tr.Source != "b" {
		t.Fatalf("unexpected transcript %+v", tr)
	}
	if tr.Language != lang.EnglishDominant {
		t.Fatalf("expected language tag %q, got %q", lang.EnglishDominant, tr.Language)
	}
	if a.calls != 1 || b.calls != 1 || c.calls != 0 {
		t.Fatalf("unexpected call counts a=%d b=%d c=%d", a.calls, b.calls, c.calls)
	}
}

func TestTranscribe_AllStagesFailUsesDemo(t *testing.T) {
	stages := []Stage{
		&mockStage{name: "a", result: domain.Failure(errors.New("500"))},
		&mockStage{name: "b", result: domain.Success("   ")},
		&mockStage{name: "c", result: domain.Decline(domain.ErrNotImplemented)},
	}
	p := New(Config{Files: &mockFiles{}, Stages: stages, Logger: testLogger()})

	tr, ok := p.Transcribe(context.Background(), domain.Attachment{FileID: "abc123"})
	if !ok || tr.Source != SourceDemo || tr.Text != Demo("abc123") {
		t.Fatalf("expected demo transcript, got %+v", tr)
	}
	if tr.Language != lang.Chinese && tr.Language != lang.ChineseDominant {
		t.Fatalf("demo transcripts are Chinese, got %q", tr.Language)
	}
}

func TestTranscribe_FileLookupFailureSkipsStages(t *testing.T) {
	s := &mockStage{name: "a", result: domain.Success("x")}
	p := New(Config{Files: &mockFiles{urlErr: errors.New("no token")}, Stages: []Stage{s}, Logger: testLogger()})

	tr, ok := p.Transcribe(context.Background(), domain.Attachment{FileID: "abc123"})
	if !ok || tr.Text != Demo("abc123") {
		t.Fatalf("expected demo transcript, got %+v", tr)
	}
	if s.calls != 0 {
		t.Fatalf("stages must not run without a file url, got %d calls", s.calls)
	}
}

func TestTranscribe_DemoIsDeterministic(t *testing.T) {
	p := New(Config{Logger: testLogger()})
	for _, id := range []string{"abc123", "x", "AgADBAADbq8xG", "%%%", "很长的文件"} {
		first, ok := p.Transcribe(context.Background(), domain.Attachment{FileID: id})
		if !ok || first.Text == "" || !isDemo(first.Text) {
			t.Fatalf("%q: expected a demo transcript, got %+v", id, first)
		}
		for i := 0; i < 3; i++ {
			again, _ := p.Transcribe(context.Background(), domain.Attachment{FileID: id})
			if again.Text != first.Text {
				t.Fatalf("%q: demo transcript changed between calls", id)
			}
		}
	}
	if len(DemoTranscripts()) != 10 {
		t.Fatalf("expected 10 demo transcripts, got %d", len(DemoTranscripts()))
	}
}

// --- Stages ---

func TestDefaultStages_Order(t *testing.T) {
	stages := DefaultStages(newResolver(nil), http.DefaultClient, &media.BaiduOAuth{})
	want := []string{"zhipu", "baidu", "aliyun"}
	if len(stages) != len(want) {
		t.Fatalf("expected %d stages, got %d", len(want), len(stages))
	}
	for i, s := range stages {
		if s.Name() != want[i] {
			t.Fatalf("stage %d: expected %s, got %s", i, want[i], s.Name())
		}
	}
}

func TestPlaceholderStages_Decline(t *testing.T) {
	files := &mockFiles{data: []byte("audio")}
	payload := media.NewPayload(files, "u")

	none := newResolver(nil)
	for _, s := range []Stage{&zhipuStage{resolver: none}, &aliyunStage{resolver: none}} {
		res := s.Transcribe(context.Background(), payload)
		if res.Outcome != domain.Declined || !errors.Is(res.Err, domain.ErrMissingCredential) {
			t.Fatalf("%s: expected decline for missing credential, got %v", s.Name(), res)
		}
	}
	if files.downloads != 0 {
		t.Fatalf("expected no download without credentials, got %d", files.downloads)
	}

	keyed := newResolver(map[string]string{
		"zhipu.api.key":                   "z",
		"aliyun.speech.access.key.id":     "id",
		"aliyun.speech.access.key.secret": "s",
	})
	for _, s := range []Stage{&zhipuStage{resolver: keyed}, &aliyunStage{resolver: keyed}} {
		res := s.Transcribe(context.Background(), payload)
		if res.Outcome != domain.Declined || !errors.Is(res.Err, domain.ErrNotImplemented) {
			t.Fatalf("%s: expected not-implemented decline, got %v", s.Name(), res)
		}
	}
}

type baiduServer struct {
	*httptest.Server
	byPID map[int]string
	calls atomic.Int32
}

func newBaiduServer(t *testing.T, byPID map[int]string) *baiduServer {
	bs := &baiduServer{byPID: byPID}
	bs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth" {
			io.WriteString(w, `{"access_token":"tok"}`)
			return
		}
		bs.calls.Add(1)
		var req baiduASRRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad asr body: %v", err)
		}
		audio, _ := base64.StdEncoding.DecodeString(req.Speech)
		if req.Token != "tok" || string(audio) != "pcm" || req.Len != 3 || req.Format != "wav" || req.Rate != 16000 {
			t.Errorf("unexpected asr request %+v", req)
		}
		text := bs.byPID[req.DevPID]
		if text == "" {
			io.WriteString(w, `{"err_no":3301,"err_msg":"speech quality error."}`)
			return
		}
		json.NewEncoder(w).Encode(baiduASRResponse{Result: []string{text}})
	}))
	return bs
}

func newBaiduStage(srv *baiduServer) *BaiduStage {
	return &BaiduStage{
		Resolver: newResolver(map[string]string{"baidu.speech.api.key": "ak", "baidu.speech.secret.key": "sk"}),
		OAuth:    &media.BaiduOAuth{TokenURL: srv.URL + "/oauth", Client: srv.Client()},
		Client:   srv.Client(),
		Endpoint: srv.URL + "/asr",
	}
}

func TestBaiduStage_Bilingual(t *testing.T) {
	cases := []struct {
		name  string
		byPID map[int]string
		want  string
		calls int32
		fail  bool
	}{
		{"mandarin only", map[int]string{baiduMandarinPID: "采购大米"}, "采购大米", 1, false},
		{"english fallback", map[int]string{baiduEnglishPID: "buy rice"}, "buy rice", 2, false},
		{"mixed joins both", map[int]string{baiduMandarinPID: "采购 rice", baiduEnglishPID: "buy rice"}, "采购 rice buy rice", 2, false},
		{"mixed same text kept once", map[int]string{baiduMandarinPID: "ok", baiduEnglishPID: "ok"}, "ok", 2, false},
		{"nothing recognised", map[int]string{}, "", 2, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newBaiduServer(t, tc.byPID)
			defer srv.Close()

			payload := media.NewPayload(&mockFiles{data: []byte("pcm")}, "u")
			res := newBaiduStage(srv).Transcribe(context.Background(), payload)
			if tc.fail {
				if res.Outcome != domain.Failed {
					t.Fatalf("expected failure, got %v", res)
				}
			} else if res.Outcome != domain.Succeeded || res.Text != tc.want {
				t.Fatalf("expected %q, got %v", tc.want, res)
			}
			if got := srv.calls.Load(); got != tc.calls {
				t.Fatalf("expected %d recognition calls, got %d", tc.calls, got)
			}
		})
	}
}

func TestBaiduStage_MissingSecretDeclines(t *testing.T) {
	s := &BaiduStage{Resolver: newResolver(map[string]string{"baidu.speech.api.key": "ak"})}
	res := s.Transcribe(context.Background(), media.NewPayload(&mockFiles{}, "u"))
	if res.Outcome != domain.Declined {
		t.Fatalf("expected decline, got %v", res)
	}
}

func TestPipeline_EndToEndWithBaidu(t *testing.T) {
	srv := newBaiduServer(t, map[int]string{baiduMandarinPID: "需要采购大米"})
	defer srv.Close()

	files := &mockFiles{data: []byte("pcm")}
	stages := []Stage{
		&zhipuStage{resolver: newResolver(nil)},
		newBaiduStage(srv),
		&aliyunStage{resolver: newResolver(nil)},
	}
	p := New(Config{Files: files, Stages: stages, Logger: testLogger()})

	tr, ok := p.Transcribe(context.Background(), domain.Attachment{FileID: "v1", Duration: 4})
	if !ok || tr.Text != "需要采购大米" || tr.Source != "baidu" || tr.Language != lang.Chinese {
		t.Fatalf("unexpected transcript %+v", tr)
	}
	if files.downloads != 1 {
		t.Fatalf("expected one download, got %d", files.downloads)
	}
}
