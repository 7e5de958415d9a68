package user

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/seokit/internal/apiclient"
	"github.com/hitoshi/seokit/internal/model"
	"github.com/hitoshi/seokit/internal/session"
)

// --- モック ---

type mockDoer struct {
	doFn  func(ctx context.Context, req *apiclient.Request, out any) error
	calls []*apiclient.Request
}

func (m *mockDoer) Do(ctx context.Context, req *apiclient.Request, out any) error {
	m.calls = append(m.calls, req)
	if m.doFn == nil {
		return nil
	}
	return m.doFn(ctx, req, out)
}

type mockLogouter struct {
	called int
}

func (m *mockLogouter) Logout() { m.called++ }

func respondJSON(out any, raw string) error {
	return json.Unmarshal([]byte(raw), out)
}

func loggedIn(t *testing.T) *session.MemoryStore {
	t.Helper()
	st := session.NewMemoryStore()
	err := st.Save(&model.Session{
		Token: "tok",
		User:  &model.User{ID: "u1", Email: "taro@example.com", Name: "Taro", Provider: model.ProviderLocal},
	})
	if err != nil {
		t.Fatal(err)
	}
	return st
}

// --- テスト ---

func TestService_Profile_CachesAvatar(t *testing.T) {
	doer := &mockDoer{
		doFn: func(_ context.Context, _ *apiclient.Request, out any) error {
			return respondJSON(out, `{"id":"u1","email":"taro@example.com","name":"Taro","avatarUrl":"/uploads/u1.png","googleLinked":true}`)
		},
	}
	cache := NewAvatarCache()
	svc := NewService(doer, loggedIn(t), cache, nil, nil)

	p, err := svc.Profile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "u1" || !p.GoogleLinked {
		t.Errorf("profile = %+v", p)
	}
	if u, ok := svc.AvatarURL(); !ok || u != "/uploads/u1.png" {
		t.Errorf("AvatarURL() = %q, %v", u, ok)
	}

	cache.ClearCache()
	if _, ok := svc.AvatarURL(); ok {
		t.Error("ClearCache後はキャッシュが空であるべき")
	}
}

func TestService_UpdateProfile_RefreshesSession(t *testing.T) {
	doer := &mockDoer{
		doFn: func(_ context.Context, req *apiclient.Request, out any) error {
			upd := req.Body.(ProfileUpdate)
			if upd.Name != "Jiro" || upd.Website != "https://jiro.example.com" {
				t.Errorf("body = %+v", upd)
			}
			return respondJSON(out, `{"id":"u1","name":"Jiro"}`)
		},
	}
	st := loggedIn(t)
	svc := NewService(doer, st, nil, nil, nil)

	if _, err := svc.UpdateProfile(context.Background(), ProfileUpdate{Name: " Jiro ", Website: "jiro.example.com"}); err != nil {
		t.Fatal(err)
	}

	sess, ok := st.Load()
	if !ok {
		t.Fatal("セッションが維持されるべき")
	}
	if sess.User.Name != "Jiro" || sess.User.Email != "taro@example.com" || sess.Token != "tok" {
		t.Errorf("session = %+v / %+v", sess, sess.User)
	}
	if sess.User.Provider != model.ProviderLocal {
		t.Errorf("Provider = %q", sess.User.Provider)
	}
}

func TestService_UpdateProfile_Validation(t *testing.T) {
	doer := &mockDoer{}
	svc := NewService(doer, loggedIn(t), nil, nil, nil)

	_, err := svc.UpdateProfile(context.Background(), ProfileUpdate{Name: strings.Repeat("a", 101)})
	if !model.IsValidationError(err) {
		t.Errorf("101文字の名前は検証エラー: %v", err)
	}
	if len(doer.calls) != 0 {
		t.Error("ネットワーク呼び出しを行わないべき")
	}
}

func TestService_ChangePassword(t *testing.T) {
	tests := []struct {
		name    string
		in      PasswordChange
		wantErr bool
	}{
		{"成功", PasswordChange{CurrentPassword: "old-password", NewPassword: "new-password"}, false},
		{"短い", PasswordChange{CurrentPassword: "old-password", NewPassword: "short"}, true},
		{"同じ", PasswordChange{CurrentPassword: "same-password", NewPassword: "same-password"}, true},
		{"現在のパスワードなし", PasswordChange{NewPassword: "new-password"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &mockDoer{}
			err := NewService(doer, nil, nil, nil, nil).ChangePassword(context.Background(), tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && len(doer.calls) != 0 {
				t.Error("検証エラー時はネットワーク呼び出しを行わないべき")
			}
			if !tt.wantErr && (len(doer.calls) != 1 || doer.calls[0].Method != http.MethodPut) {
				t.Errorf("calls = %+v", doer.calls)
			}
		})
	}
}

func TestService_Preferences(t *testing.T) {
	doer := &mockDoer{
		doFn: func(_ context.Context, req *apiclient.Request, out any) error {
			if req.Method == http.MethodGet {
				return respondJSON(out, `{"emailNotifications":true,"language":"ja"}`)
			}
			b, _ := json.Marshal(req.Body)
			return json.Unmarshal(b, out)
		},
	}
	svc := NewService(doer, nil, nil, nil, nil)

	p, err := svc.Preferences(context.Background())
	if err != nil || !p.EmailNotifications || p.Language != "ja" {
		t.Errorf("Preferences() = %+v, %v", p, err)
	}

	updated, err := svc.UpdatePreferences(context.Background(), Preferences{WeeklyReport: true, Timezone: "Asia/Tokyo", DefaultLocation: "google.co.jp"})
	if err != nil || !updated.WeeklyReport || updated.DefaultLocation != "google.co.jp" {
		t.Errorf("UpdatePreferences() = %+v, %v", updated, err)
	}

	bad := []Preferences{
		{DefaultLocation: "google.fake"},
		{Timezone: "Mars/Olympus"},
		{Language: "xx"},
	}
	for _, p := range bad {
		if _, err := svc.UpdatePreferences(context.Background(), p); !model.IsValidationError(err) {
			t.Errorf("UpdatePreferences(%+v) は検証エラーになるべき: %v", p, err)
		}
	}
}

func TestService_StatsAndActivity(t *testing.T) {
	doer := &mockDoer{
		doFn: func(_ context.Context, req *apiclient.Request, out any) error {
			switch req.Path {
			case "/api/user/stats":
				return respondJSON(out, `{"totalAnalyses":42,"keywordsTracked":8}`)
			case "/api/user/activity":
				if req.Query.Get("limit") != "20" {
					t.Errorf("limit = %q", req.Query.Get("limit"))
				}
				return respondJSON(out, `[{"id":"a1","type":"analysis","description":"Analyzed example.com"}]`)
			}
			return nil
		},
	}
	svc := NewService(doer, nil, nil, nil, nil)

	st, err := svc.Stats(context.Background())
	if err != nil || st.TotalAnalyses != 42 {
		t.Errorf("Stats() = %+v, %v", st, err)
	}
	acts, err := svc.Activity(context.Background(), 20)
	if err != nil || len(acts) != 1 || acts[0].Type != "analysis" {
		t.Errorf("Activity() = %+v, %v", acts, err)
	}
}

func TestService_UploadAvatar_Multipart(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/user/avatar" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		f, hdr, err := r.FormFile("avatar")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "me.png" || string(data) != "\x89PNG" {
			t.Errorf("file = %s %q", hdr.Filename, data)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"avatarUrl":"/uploads/u1-2.png"}}`))
	}))
	defer ts.Close()

	st := loggedIn(t)
	client := apiclient.New(ts.URL, st, apiclient.WithHTTPClient(ts.Client()))
	svc := NewService(client, st, nil, nil, nil)

	u, err := svc.UploadAvatar(context.Background(), "/home/taro/Pictures/me.png", strings.NewReader("\x89PNG"))
	if err != nil {
		t.Fatalf("UploadAvatar() error = %v", err)
	}
	if u != "/uploads/u1-2.png" {
		t.Errorf("url = %q", u)
	}
	if cached, _ := svc.AvatarURL(); cached != u {
		t.Errorf("アップロード後のURLがキャッシュされるべき: %q", cached)
	}
}

func TestService_UploadAvatar_RejectsExtension(t *testing.T) {
	doer := &mockDoer{}
	_, err := NewService(doer, nil, nil, nil, nil).UploadAvatar(context.Background(), "me.exe", strings.NewReader("MZ"))
	if !model.IsValidationError(err) {
		t.Errorf("err = %v", err)
	}
}

func TestService_DeleteAccount(t *testing.T) {
	t.Run("成功後にログアウト", func(t *testing.T) {
		doer := &mockDoer{
			doFn: func(_ context.Context, req *apiclient.Request, _ any) error {
				if req.Method != http.MethodDelete || req.Path != "/api/user/account" {
					t.Errorf("unexpected request: %s %s", req.Method, req.Path)
				}
				if body := req.Body.(deleteAccountRequest); body.Confirmation != DeleteConfirmation {
					t.Errorf("body = %+v", body)
				}
				return nil
			},
		}
		lo := &mockLogouter{}
		if err := NewService(doer, loggedIn(t), nil, lo, nil).DeleteAccount(context.Background(), "pw"); err != nil {
			t.Fatal(err)
		}
		if lo.called != 1 {
			t.Errorf("Logout呼び出し回数 = %d", lo.called)
		}
	})

	t.Run("失敗時はログアウトしない", func(t *testing.T) {
		doer := &mockDoer{
			doFn: func(context.Context, *apiclient.Request, any) error {
				return model.NewAPIError(http.StatusBadRequest, "Incorrect password")
			},
		}
		lo := &mockLogouter{}
		err := NewService(doer, loggedIn(t), nil, lo, nil).DeleteAccount(context.Background(), "wrong")
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Message != "Incorrect password" {
			t.Errorf("err = %v", err)
		}
		if lo.called != 0 {
			t.Error("失敗時にログアウトしてはならない")
		}
	})
}
