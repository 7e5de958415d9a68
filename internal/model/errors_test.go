package model

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAPIError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &APIError{StatusCode: http.StatusInternalServerError, Message: MsgRequestFailed, Err: cause}

	if err.Error() != MsgRequestFailed {
		t.Errorf("Error() = %q, want %q", err.Error(), MsgRequestFailed)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is で元のエラーを辿れない")
	}
}

func TestWrapAPIError(t *testing.T) {
	if WrapAPIError(nil) != nil {
		t.Error("WrapAPIError(nil) は nil を返すべき")
	}

	plain := errors.New("dial tcp: timeout")
	wrapped := WrapAPIError(plain)
	if wrapped.StatusCode != http.StatusInternalServerError || wrapped.Message != plain.Error() {
		t.Errorf("WrapAPIError() = %+v", wrapped)
	}
	if !errors.Is(wrapped, plain) {
		t.Error("包んだエラーから元のエラーを辿れない")
	}

	original := NewRateLimitedError()
	if got := WrapAPIError(fmt.Errorf("track: %w", original)); got != original {
		t.Errorf("既存のAPIErrorはそのまま返すべき: got %+v", got)
	}
}

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		wantUnauthorize bool
		wantRateLimited bool
	}{
		{"401", NewAuthRequiredError(), true, false},
		{"429", NewRateLimitedError(), false, true},
		{"包まれた401", fmt.Errorf("profile: %w", NewAuthRequiredError()), true, false},
		{"500", NewAPIError(http.StatusInternalServerError, MsgUnknownError), false, false},
		{"APIError以外", errors.New("boom"), false, false},
		{"nil", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUnauthorized(tt.err); got != tt.wantUnauthorize {
				t.Errorf("IsUnauthorized() = %v, want %v", got, tt.wantUnauthorize)
			}
			if got := IsRateLimited(tt.err); got != tt.wantRateLimited {
				t.Errorf("IsRateLimited() = %v, want %v", got, tt.wantRateLimited)
			}
		})
	}
}

func TestNewAuthRequiredError(t *testing.T) {
	err := NewAuthRequiredError()
	if err.StatusCode != http.StatusUnauthorized || err.Message != MsgAuthRequired {
		t.Errorf("NewAuthRequiredError() = %+v", err)
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("domain", "Invalid domain format: %s", "not a domain")
	if err.Field != "domain" || err.Error() != "Invalid domain format: not a domain" {
		t.Errorf("NewValidationError() = %+v", err)
	}

	if !IsValidationError(fmt.Errorf("track: %w", err)) {
		t.Error("包まれたValidationErrorを判定できない")
	}
	if IsValidationError(NewAPIError(http.StatusBadRequest, "Validation error: domain: bad")) {
		t.Error("サーバー側の400はクライアント側の検証エラーではない")
	}
	if _, ok := AsAPIError(err); ok {
		t.Error("ValidationErrorはAPIErrorとして扱わない")
	}
}
