package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesByKind(t *testing.T) {
	err := New(KindCodeExhausted, "批次 X 已领完")
	if !errors.Is(err, ErrCodeExhausted) {
		t.Fatal("errors.Is should match on kind")
	}
	if errors.Is(err, ErrCodeExpired) {
		t.Fatal("different kinds must not match")
	}
	if !errors.Is(fmt.Errorf("wrap: %w", err), ErrCodeExhausted) {
		t.Fatal("wrapped error should match")
	}
}

func TestInfra(t *testing.T) {
	if Infra(nil, "x") != nil {
		t.Fatal("Infra(nil) must be nil")
	}

	cause := errors.New("connection reset")
	err := Infra(cause, "查询失败")
	if KindOf(err) != KindInfrastructure {
		t.Fatalf("kind = %s", KindOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause should be unwrappable")
	}

	// 已分类的错误原样返回
	if got := Infra(ErrInsufficientBalance, "扣款失败"); got != ErrInsufficientBalance {
		t.Fatalf("Infra rewrapped a typed error: %v", got)
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(nil) != "" {
		t.Fatal("nil error has no kind")
	}
	if KindOf(errors.New("x")) != KindInfrastructure {
		t.Fatal("untyped errors are infrastructure errors")
	}
	if !IsKind(fmt.Errorf("ctx: %w", ErrInvalidSignature), KindInvalidSignature) {
		t.Fatal("IsKind should see through wrapping")
	}
	if IsKind(nil, KindInfrastructure) {
		t.Fatal("IsKind(nil) must be false")
	}
}
